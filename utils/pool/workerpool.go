/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package pool runs queue units on a bounded set of goroutines.
//
// The worker management follows the FILO scheme of valyala/fasthttp's
// workerpool.go: the most recently released worker serves the next unit and
// workers idle for longer than MaxIdleWorkerDuration are stopped.
package pool

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	stack "github.com/rulego/fhiradapter/utils/runtime"
)

var (
	// ErrNoIdleWorkers all workers are busy and MaxWorkersCount is reached
	ErrNoIdleWorkers = errors.New("no idle workers")
	// ErrPoolStopped the pool no longer accepts units
	ErrPoolStopped = errors.New("worker pool has been stopped")
)

// WorkerPool serves submitted functions with at most MaxWorkersCount
// goroutines. A panic of a function is passed to PanicHandler and does not
// end the worker.
type WorkerPool struct {
	// MaxWorkersCount 最大并发工作者数量，即队列的并行处理数
	MaxWorkersCount int
	// MaxIdleWorkerDuration 空闲工作者的最长存活时间，默认10秒
	MaxIdleWorkerDuration time.Duration
	// PanicHandler receives the recovered value of a panicking function.
	PanicHandler func(r interface{})

	lock         sync.Mutex
	workersCount int
	busyCount    int
	mustStop     bool
	ready        []*workerChan
	stopCh       chan struct{}
	// pending counts submitted functions that have not returned yet
	pending        sync.WaitGroup
	workerChanPool sync.Pool
	startOnce      sync.Once
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan func()
}

// Start starts the cleanup goroutine. Calling it again has no effect.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		stopCh := wp.stopCh
		wp.lock.Unlock()
		wp.workerChanPool.New = func() interface{} {
			return &workerChan{ch: make(chan func(), workerChanCap)}
		}
		go func() {
			var scratch []*workerChan
			ticker := time.NewTicker(wp.maxIdleWorkerDuration())
			defer ticker.Stop()
			for {
				wp.clean(&scratch)
				select {
				case <-stopCh:
					return
				case <-ticker.C:
				}
			}
		}()
	})
}

// Stop rejects further submissions and stops the idle workers. Busy workers
// stop after their current function; use Wait to wait for them.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return
	}
	wp.mustStop = true
	if wp.stopCh != nil {
		close(wp.stopCh)
	}
	ready := wp.ready
	wp.ready = nil
	wp.lock.Unlock()

	for _, ch := range ready {
		ch.ch <- nil
	}
}

// Wait blocks until every submitted function has returned.
func (wp *WorkerPool) Wait() {
	wp.pending.Wait()
}

// Busy returns the number of functions being executed.
func (wp *WorkerPool) Busy() int {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return wp.busyCount
}

// Idle reports whether a submission would be accepted right now.
func (wp *WorkerPool) Idle() bool {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return !wp.mustStop && (len(wp.ready) > 0 || wp.workersCount < wp.MaxWorkersCount)
}

// Submit hands fn to an idle worker. It never blocks: ErrNoIdleWorkers is
// returned when every worker is busy.
func (wp *WorkerPool) Submit(fn func()) error {
	if fn == nil {
		return errors.New("function must not be nil")
	}
	ch, err := wp.getCh()
	if err != nil {
		return err
	}
	ch.ch <- fn
	return nil
}

func (wp *WorkerPool) maxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

// clean stops the workers idle for longer than MaxIdleWorkerDuration. ready
// is ordered by last use, so a binary search finds the cut.
func (wp *WorkerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.maxIdleWorkerDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)
	l, r := 0, n-1
	for l <= r {
		mid := (l + r) / 2
		if criticalTime.After(ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	i := r
	if i == -1 {
		wp.lock.Unlock()
		return
	}
	*scratch = append((*scratch)[:0], ready[:i+1]...)
	m := copy(ready, ready[i+1:])
	for i = m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// outside the lock, a send may block
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

// workerChanCap 单核时使用无缓冲通道，让提交者直接切换到工作者
var workerChanCap = func() int {
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

func (wp *WorkerPool) getCh() (*workerChan, error) {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	if ch != nil || createWorker {
		wp.busyCount++
		wp.pending.Add(1)
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil, ErrNoIdleWorkers
		}
		wp.Start()
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch, nil
}

func (wp *WorkerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	defer wp.lock.Unlock()
	wp.busyCount--
	if wp.mustStop {
		return false
	}
	wp.ready = append(wp.ready, ch)
	return true
}

func (wp *WorkerPool) workerFunc(ch *workerChan) {
	for fn := range ch.ch {
		if fn == nil {
			break
		}
		wp.run(fn)
		released := wp.release(ch)
		wp.pending.Done()
		if !released {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

func (wp *WorkerPool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if wp.PanicHandler != nil {
				wp.PanicHandler(r)
			} else {
				fmt.Printf("worker pool: recovered from panic: %v\n%s", r, stack.Stack())
			}
		}
	}()
	fn()
}
