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

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithScriptMaxExecutionTime is an option that sets the script max execution time of the Config.
func WithScriptMaxExecutionTime(scriptMaxExecutionTime time.Duration) Option {
	return func(c *Config) error {
		c.ScriptMaxExecutionTime = scriptMaxExecutionTime
		return nil
	}
}

// WithScriptCache sets the population cap and idle lifetime of the compiled script cache.
func WithScriptCache(maxCachedScripts int, maxCachedScriptLifetime time.Duration) Option {
	return func(c *Config) error {
		c.MaxCachedScripts = maxCachedScripts
		c.MaxCachedScriptLifetime = maxCachedScriptLifetime
		return nil
	}
}

// WithParallelCount sets the number of queue workers.
func WithParallelCount(parallelCount int) Option {
	return func(c *Config) error {
		c.ParallelCount = parallelCount
		return nil
	}
}

// WithMaxProcessedAge sets the age after which queued items are dropped.
func WithMaxProcessedAge(maxProcessedAge time.Duration) Option {
	return func(c *Config) error {
		c.MaxProcessedAge = maxProcessedAge
		return nil
	}
}

func WithMaxSearchCount(maxSearchCount int) Option {
	return func(c *Config) error {
		c.MaxSearchCount = maxSearchCount
		return nil
	}
}

func WithStoreFhirResource(storeFhirResource bool) Option {
	return func(c *Config) error {
		c.StoreFhirResource = storeFhirResource
		return nil
	}
}

func WithStaleSweepSpec(spec string) Option {
	return func(c *Config) error {
		c.StaleSweepSpec = spec
		return nil
	}
}

func WithTrackerUsername(username string) Option {
	return func(c *Config) error {
		c.TrackerUsername = username
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithCache is an option that sets the metadata cache and its time-to-live.
func WithCache(cache Cache, ttl string) Option {
	return func(c *Config) error {
		c.Cache = cache
		c.MetadataCacheTTL = ttl
		return nil
	}
}

// WithMetrics is an option that sets the transformation metrics.
func WithMetrics(m *metrics.TransformMetrics) Option {
	return func(c *Config) error {
		c.Metrics = m
		return nil
	}
}
