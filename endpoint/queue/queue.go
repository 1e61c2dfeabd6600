/*
 * Copyright 2025 The RuleGo Authors.
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

// Package queue is the front-end between change notifications and the
// processor. It keeps at most one pending unit per group key, runs units on
// a bounded worker pool and never runs two units of one group key at once.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/robfig/cron/v3"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/utils/pool"
	"github.com/rulego/fhiradapter/utils/runtime"
)

const maxRetryDelay = 5 * time.Minute

// Processor handles one dequeued unit. A returned error re-queues the unit.
type Processor interface {
	Process(ctx context.Context, item *types.QueuedItem) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, item *types.QueuedItem) error

func (f ProcessorFunc) Process(ctx context.Context, item *types.QueuedItem) error {
	return f(ctx, item)
}

// Queue deduplicates notifications by group key and dispatches them to the
// processor.
type Queue struct {
	config    types.Config
	store     types.QueueStore
	processor Processor
	pool      *pool.WorkerPool
	cron      *cron.Cron

	mu       sync.Mutex
	inFlight map[string]struct{}
	// retryAt 失败单元的最早重试时间
	retryAt map[string]time.Time
	started bool
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	// now 测试时可替换
	now func() time.Time
}

func New(config types.Config, store types.QueueStore, processor Processor) (*Queue, error) {
	if store == nil || processor == nil {
		return nil, types.NewFatalError("queue requires a store and a processor")
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	parallel := config.ParallelCount
	if parallel <= 0 {
		parallel = 1
	}
	q := &Queue{
		config:    config,
		store:     store,
		processor: processor,
		inFlight:  make(map[string]struct{}),
		retryAt:   make(map[string]time.Time),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	q.pool = &pool.WorkerPool{
		MaxWorkersCount: parallel,
		PanicHandler: func(r interface{}) {
			q.config.Logger.Printf("queue worker recovered from panic: %v", r)
		},
	}
	return q, nil
}

// Notify stores item unless a unit with the same group key is already
// pending. It returns false when the item has been absorbed by the pending one.
func (q *Queue) Notify(ctx context.Context, item *types.QueuedItem) (bool, error) {
	if item == nil {
		return false, errors.New("queue item must not be nil")
	}
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return false, types.ErrQueueStopped
	}
	if item.ID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return false, err
		}
		item.ID = id.String()
	}
	if item.GroupKey == "" {
		item.GroupKey = types.GroupKeyOf(item.ClientResourceID, item.ResourceType, item.ResourceID)
	}
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = q.now()
	}
	added, err := q.store.Add(ctx, item)
	if err != nil {
		return false, err
	}
	if added {
		q.config.Metrics.IncrementQueued()
	} else {
		q.config.Metrics.IncrementAbsorbed()
	}
	q.signal()
	return added, nil
}

// Start starts the workers, the dispatch loop and the stale sweep.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return types.ErrQueueStopped
	}
	if q.started {
		return nil
	}
	spec := q.config.StaleSweepSpec
	if spec == "" {
		spec = types.DefaultStaleSweepSpec
	}
	q.cron = cron.New(cron.WithSeconds())
	if _, err := q.cron.AddFunc(spec, func() {
		if n := q.SweepStale(ctx); n > 0 {
			q.config.Logger.Printf("Stale sweep dropped %d queue items", n)
		}
	}); err != nil {
		return types.NewMappingError("invalid stale sweep schedule %q: %s", spec, err)
	}
	q.pool.Start()
	q.cron.Start()
	q.started = true
	go q.loop(ctx)
	q.signal()
	return nil
}

// Stop stops accepting notifications and waits for running units. Pending
// units stay in the store.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	started := q.started
	close(q.stopCh)
	q.mu.Unlock()

	if started {
		<-q.done
		<-q.cron.Stop().Done()
	}
	q.pool.Stop()
	q.pool.Wait()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
		if _, err := q.Dispatch(ctx); err != nil {
			q.config.Logger.Printf("Dispatching queue items failed: %s", err)
		}
	}
}

// Dispatch hands pending units to idle workers in receipt order and returns
// how many were dispatched. Units of group keys in flight wait, stale units
// are dropped.
func (q *Queue) Dispatch(ctx context.Context) (int, error) {
	items, err := q.store.List(ctx)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, item := range items {
		if q.drop(ctx, item) {
			continue
		}
		if !q.pool.Idle() {
			break
		}
		q.mu.Lock()
		if _, busy := q.inFlight[item.GroupKey]; busy || q.stopped {
			q.mu.Unlock()
			continue
		}
		if at, ok := q.retryAt[item.GroupKey]; ok {
			if q.now().Before(at) {
				q.mu.Unlock()
				continue
			}
			delete(q.retryAt, item.GroupKey)
		}
		q.inFlight[item.GroupKey] = struct{}{}
		q.mu.Unlock()

		if err := q.store.Remove(ctx, item.GroupKey); err != nil {
			q.finish(item.GroupKey)
			return dispatched, err
		}
		unit := item
		if err := q.pool.Submit(func() { q.run(ctx, unit) }); err != nil {
			q.requeue(ctx, unit)
			q.finish(unit.GroupKey)
			if errors.Is(err, pool.ErrNoIdleWorkers) {
				break
			}
			return dispatched, err
		}
		dispatched++
	}
	return dispatched, nil
}

// drop removes item when it is older than MaxProcessedAge.
func (q *Queue) drop(ctx context.Context, item *types.QueuedItem) bool {
	if q.config.MaxProcessedAge <= 0 || !item.ReceivedAt.Before(q.now().Add(-q.config.MaxProcessedAge)) {
		return false
	}
	q.mu.Lock()
	_, busy := q.inFlight[item.GroupKey]
	q.mu.Unlock()
	if busy {
		return false
	}
	if err := q.store.Remove(ctx, item.GroupKey); err != nil {
		q.config.Logger.Printf("Removing stale queue item %s failed: %s", item.GroupKey, err)
		return false
	}
	q.mu.Lock()
	delete(q.retryAt, item.GroupKey)
	q.mu.Unlock()
	q.config.Metrics.IncrementDropped()
	q.config.Logger.Printf("Dropping queue item %s received at %s, older than %s",
		item.GroupKey, item.ReceivedAt.Format(time.RFC3339), q.config.MaxProcessedAge)
	return true
}

// SweepStale drops every stale pending unit and returns how many were dropped.
func (q *Queue) SweepStale(ctx context.Context) int {
	items, err := q.store.List(ctx)
	if err != nil {
		q.config.Logger.Printf("Listing queue items failed: %s", err)
		return 0
	}
	n := 0
	for _, item := range items {
		if q.drop(ctx, item) {
			n++
		}
	}
	return n
}

func (q *Queue) run(ctx context.Context, item *types.QueuedItem) {
	defer func() {
		q.finish(item.GroupKey)
		q.signal()
	}()
	err := q.process(ctx, item)
	if err == nil {
		q.config.Metrics.IncrementProcessed()
		return
	}
	q.config.Logger.Printf("Processing queue item %s failed (attempt %d): %s", item.GroupKey, item.Attempts+1, err)
	q.mu.Lock()
	q.retryAt[item.GroupKey] = q.now().Add(retryDelay(item.Attempts + 1))
	q.mu.Unlock()
	q.requeue(ctx, item)
}

// retryDelay doubles per attempt from one second up to maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	delay := time.Second
	for i := 1; i < attempts && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func (q *Queue) process(ctx context.Context, item *types.QueuedItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.config.Logger.Printf("processor panicked on %s: %v\n%s", item.GroupKey, r, runtime.Stack())
			err = types.NewFatalError("processor panicked: %v", r)
		}
	}()
	return q.processor.Process(ctx, item)
}

// requeue stores item again with its original receipt time so that it
// eventually ages out. A newer pending notification absorbs it.
func (q *Queue) requeue(ctx context.Context, item *types.QueuedItem) {
	retry := *item
	retry.Attempts++
	if _, err := q.store.Add(ctx, &retry); err != nil {
		q.config.Logger.Printf("Re-queuing %s failed: %s", item.GroupKey, err)
	}
}

func (q *Queue) finish(groupKey string) {
	q.mu.Lock()
	delete(q.inFlight, groupKey)
	q.mu.Unlock()
}

// InFlight returns the number of units being processed.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Pending returns the number of stored units.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	items, err := q.store.List(ctx)
	return len(items), err
}
