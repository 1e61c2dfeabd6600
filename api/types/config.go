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

package types

import (
	"time"

	"github.com/rulego/fhiradapter/api/types/metrics"
)

// Config defines the configuration of the adapter.
type Config struct {
	// ScriptMaxExecutionTime is the maximum execution time for scripts, defaulting to 2000 milliseconds.
	ScriptMaxExecutionTime time.Duration
	// MaxCachedScripts is the maximum number of compiled scripts kept in the cache, defaulting to 10000.
	MaxCachedScripts int
	// MaxCachedScriptLifetime evicts compiled scripts that have not been used for this long, defaulting to 24 hours.
	MaxCachedScriptLifetime time.Duration
	// ParallelCount is the number of queue workers, defaulting to 1.
	ParallelCount int
	// MaxProcessedAge drops queued items older than this, defaulting to 2880 minutes.
	MaxProcessedAge time.Duration
	// MaxSearchCount limits the resources fetched per poll.
	MaxSearchCount int
	// StoreFhirResource skips resource versions that have already been processed for a client.
	StoreFhirResource bool
	// StaleSweepSpec is the cron spec of the stale queue sweep.
	StaleSweepSpec string
	// MetadataCacheTTL is the time-to-live of cached metadata lookups, e.g. "5m". Empty disables expiry.
	MetadataCacheTTL string
	// TrackerUsername is the user the adapter writes tracker data as.
	TrackerUsername string
	// Logger is the logging interface, defaulting to `DefaultLogger()`.
	Logger Logger
	// Cache caches metadata lookups. Nil disables caching.
	Cache Cache
	// Metrics collects transformation counters. Nil disables collection.
	Metrics *metrics.TransformMetrics
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		ScriptMaxExecutionTime:  time.Millisecond * 2000,
		MaxCachedScripts:        DefaultMaxCachedScripts,
		MaxCachedScriptLifetime: time.Hour * 24,
		ParallelCount:           1,
		MaxProcessedAge:         time.Minute * 2880,
		MaxSearchCount:          DefaultMaxSearchCount,
		StaleSweepSpec:          DefaultStaleSweepSpec,
		MetadataCacheTTL:        "5m",
		Logger:                  DefaultLogger(),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}
