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

// Package app assembles the adapter from its configuration.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/api/types/fhir"
	"github.com/rulego/fhiradapter/api/types/metrics"
	"github.com/rulego/fhiradapter/builtin/funcs"
	"github.com/rulego/fhiradapter/components/external"
	"github.com/rulego/fhiradapter/endpoint/queue"
	"github.com/rulego/fhiradapter/endpoint/rest"
	"github.com/rulego/fhiradapter/engine"
	"github.com/rulego/fhiradapter/engine/script"
	"github.com/rulego/fhiradapter/internal/config"
	"github.com/rulego/fhiradapter/processor"
	"github.com/rulego/fhiradapter/store/memory"
	"github.com/rulego/fhiradapter/store/sqlstore"
	"github.com/rulego/fhiradapter/utils/cache"
	"github.com/rulego/fhiradapter/utils/lock"
)

// App is an assembled adapter.
type App struct {
	Config    config.Config
	Adapter   types.Config
	Registry  *prometheus.Registry
	Repo      *memory.Repository
	Tracker   types.TrackerRepository
	Service   *engine.Service
	Processor *processor.Processor
	Queue     *queue.Queue
	Rest      *rest.Rest

	cache   *cache.MemoryCache
	closers []func() error
}

// New builds the adapter. The caller closes it.
func New(ctx context.Context, c config.Config, logger types.Logger) (*App, error) {
	logger = types.NewLogger(logger)
	a := &App{Config: c, Registry: prometheus.NewRegistry(), cache: cache.NewMemoryCache(time.Minute)}
	a.closers = append(a.closers, func() error {
		a.cache.StopGC()
		return nil
	})
	if err := a.build(ctx, logger); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, logger types.Logger) error {
	c := a.Config
	opts := append(c.Options(),
		types.WithLogger(logger),
		types.WithCache(a.cache, c.Transform.MetadataCacheTTL),
		types.WithMetrics(metrics.NewTransformMetrics(a.Registry)),
	)
	a.Adapter = types.NewConfig(opts...)

	doc, err := memory.LoadFile(c.MappingFile)
	if err != nil {
		return err
	}
	if a.Repo, err = memory.NewRepository(doc, a.Adapter); err != nil {
		return err
	}

	httpClient := external.NewHttpClient(c.HttpConfiguration())
	if c.Tracker.BaseURL != "" {
		if a.Tracker, err = external.NewTrackerClient(httpClient, external.TrackerConfiguration{
			BaseURL:  c.Tracker.BaseURL,
			Username: c.Tracker.Username,
			Password: c.Tracker.Password,
		}); err != nil {
			return err
		}
	} else {
		a.Adapter.Logger.Printf("No tracker configured, tracker data is kept in memory")
		a.Tracker = memory.NewTrackerStore(c.TrackerUsername)
	}

	var queueStore types.QueueStore
	var stored types.StoredResourceRepository
	switch c.Store.Driver {
	case "", config.StoreMemory:
		queueStore, stored = memory.NewQueueStore(), memory.NewStoredResources()
	default:
		s, err := sqlstore.Open(ctx, c.Store.Driver, c.Store.Dsn)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		queueStore, stored = s, s
	}

	locks := lock.NewManager()
	executor, err := script.NewExecutor(a.Adapter)
	if err != nil {
		return err
	}
	bindings, err := engine.Registry.Build(a.Adapter, types.TransformerDeps{
		ScriptExecutor: executor,
		Locks:          locks,
		Tracker:        a.Tracker,
		Metadata:       a.Repo,
	})
	if err != nil {
		return err
	}
	utils, err := engine.NewDefaultUtilsRegistry(funcs.Deps{Config: a.Adapter, Codes: a.Repo})
	if err != nil {
		return err
	}
	if a.Service, err = engine.NewService(a.Adapter, engine.ServiceDeps{
		Executor:  executor,
		Locks:     locks,
		Bindings:  bindings,
		Utils:     utils,
		Resolvers: engine.NewDefaultResolvers(a.Repo, a.Repo),
	}); err != nil {
		return err
	}
	if a.Processor, err = processor.New(a.Adapter, processor.Deps{
		Service:         a.Service,
		ClientResources: a.Repo,
		Fhir:            external.NewFhirClient(httpClient, a.Adapter.Logger),
		Tracker:         a.Tracker,
		Stored:          stored,
	}); err != nil {
		return err
	}
	if a.Queue, err = queue.New(a.Adapter, queueStore, a.Processor); err != nil {
		return err
	}
	a.Rest = rest.New(rest.Config{
		Addr:           c.Server,
		CertFile:       c.CertFile,
		CertKeyFile:    c.CertKeyFile,
		MaxPayloadSize: c.MaxPayloadSize,
	}, a.Adapter, a.Repo, a.Queue, rest.WithGatherer(a.Registry))
	return nil
}

// Serve runs the queue and the webhook until ctx is done or the server fails.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Queue.Start(ctx); err != nil {
		return err
	}
	defer a.Queue.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Rest.Start()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Rest.Stop(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.Adapter.Logger.Printf("stopped server")
	return nil
}

// ImportFile transforms the FHIR resource in file as if clientResourceID had
// delivered it and returns the number of saved tracker resources.
func (a *App) ImportFile(ctx context.Context, clientResourceID, file string) (int, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, err
	}
	resource, err := fhir.ParseResource(data)
	if err != nil {
		return 0, types.NewDataError("%s could not be parsed: %s", file, err)
	}
	cr, err := a.Repo.FindClientResource(ctx, clientResourceID)
	if err != nil {
		return 0, err
	}
	return a.Processor.Import(ctx, cr, resource, time.Now())
}

// Close releases the stores and caches. It is safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
