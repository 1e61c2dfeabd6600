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

// Package config loads the adapter configuration from an ini file. Values
// may refer to environment variables as ${NAME}; a .env file is loaded into
// the environment first.
package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rulego/fhiradapter/api/types"
	"github.com/rulego/fhiradapter/components/external"
	"gopkg.in/ini.v1"
)

const (
	// StoreMemory keeps the queue and processed markers in memory
	StoreMemory = "memory"
	// DefaultEnvFile 默认的环境变量文件
	DefaultEnvFile = ".env"
)

// Config 适配器配置
type Config struct {
	// Server webhook监听地址
	Server      string `ini:"server"`
	CertFile    string `ini:"cert_file"`
	CertKeyFile string `ini:"cert_key_file"`
	// MaxPayloadSize webhook请求体最大字节数
	MaxPayloadSize int64 `ini:"max_payload_size"`
	// MappingFile yaml格式的映射元数据文件：项目、规则、脚本和客户端
	MappingFile string `ini:"mapping_file"`
	// TrackerUsername 写入tracker数据的用户
	TrackerUsername string `ini:"tracker_username"`

	Log       Log       `ini:"log"`
	Transform Transform `ini:"transform"`
	Queue     Queue     `ini:"queue"`
	Store     Store     `ini:"store"`
	Tracker   Tracker   `ini:"tracker"`
	Http      Http      `ini:"http"`
}

type Log struct {
	// File 日志文件，为空输出到标准输出
	File       string `ini:"file"`
	MaxSizeMB  int    `ini:"max_size_mb"`
	MaxBackups int    `ini:"max_backups"`
	MaxAgeDays int    `ini:"max_age_days"`
	Compress   bool   `ini:"compress"`
	// Stdout 同时输出到标准输出
	Stdout bool `ini:"stdout"`
}

type Transform struct {
	// ScriptMaxExecutionTime 脚本最大执行时间，单位毫秒
	ScriptMaxExecutionTime int `ini:"script_max_execution_time"`
	MaxCachedScripts       int `ini:"max_cached_scripts"`
	// MaxCachedScriptLifetime 脚本缓存空闲时间，单位分钟
	MaxCachedScriptLifetime int `ini:"max_cached_script_lifetime"`
	// MetadataCacheTTL 元数据缓存时间，例如 5m
	MetadataCacheTTL  string `ini:"metadata_cache_ttl"`
	MaxSearchCount    int    `ini:"max_search_count"`
	StoreFhirResource bool   `ini:"store_fhir_resource"`
}

type Queue struct {
	ParallelCount int `ini:"parallel_count"`
	// MaxProcessedAge 超过该时间的通知被丢弃，单位分钟
	MaxProcessedAge int `ini:"max_processed_age"`
	// StaleSweepSpec 清理过期通知的cron表达式
	StaleSweepSpec string `ini:"stale_sweep_spec"`
}

type Store struct {
	// Driver memory, postgres, pgx, mysql or sqlite
	Driver string `ini:"driver"`
	Dsn    string `ini:"dsn"`
}

type Tracker struct {
	// BaseURL tracker Web API地址，为空时使用内存tracker
	BaseURL  string `ini:"base_url"`
	Username string `ini:"username"`
	Password string `ini:"password"`
}

type Http struct {
	ReadTimeoutMs            int    `ini:"read_timeout_ms"`
	InsecureSkipVerify       bool   `ini:"insecure_skip_verify"`
	MaxParallelRequestsCount int    `ini:"max_parallel_requests_count"`
	EnableProxy              bool   `ini:"enable_proxy"`
	UseSystemProxyProperties bool   `ini:"use_system_proxy_properties"`
	ProxyScheme              string `ini:"proxy_scheme"`
	ProxyHost                string `ini:"proxy_host"`
	ProxyPort                int    `ini:"proxy_port"`
	ProxyUser                string `ini:"proxy_user"`
	ProxyPassword            string `ini:"proxy_password"`
}

// DefaultConfig 默认配置
var DefaultConfig = Config{
	Server:          ":9080",
	MappingFile:     "mapping.yaml",
	TrackerUsername: "admin",
	Log: Log{
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
	},
	Transform: Transform{
		ScriptMaxExecutionTime:  2000,
		MaxCachedScripts:        types.DefaultMaxCachedScripts,
		MaxCachedScriptLifetime: 24 * 60,
		MetadataCacheTTL:        "5m",
		MaxSearchCount:          types.DefaultMaxSearchCount,
	},
	Queue: Queue{
		ParallelCount:   1,
		MaxProcessedAge: 2880,
		StaleSweepSpec:  types.DefaultStaleSweepSpec,
	},
	Store: Store{Driver: StoreMemory},
	Http:  Http{ReadTimeoutMs: 30000, MaxParallelRequestsCount: 20},
}

// Load reads configFile over DefaultConfig. An empty configFile returns the
// defaults. envFile is loaded into the environment first; a missing
// DefaultEnvFile is ignored.
func Load(configFile, envFile string) (Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || envFile != DefaultEnvFile {
			return Config{}, err
		}
	}
	c := DefaultConfig
	if configFile == "" {
		return c, nil
	}
	cfg, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, configFile)
	if err != nil {
		return Config{}, err
	}
	cfg.ValueMapper = os.ExpandEnv
	if err := cfg.MapTo(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Options converts the configuration to adapter options.
func (c Config) Options() []types.Option {
	return []types.Option{
		types.WithScriptMaxExecutionTime(time.Duration(c.Transform.ScriptMaxExecutionTime) * time.Millisecond),
		types.WithScriptCache(c.Transform.MaxCachedScripts, time.Duration(c.Transform.MaxCachedScriptLifetime)*time.Minute),
		types.WithParallelCount(c.Queue.ParallelCount),
		types.WithMaxProcessedAge(time.Duration(c.Queue.MaxProcessedAge) * time.Minute),
		types.WithMaxSearchCount(c.Transform.MaxSearchCount),
		types.WithStoreFhirResource(c.Transform.StoreFhirResource),
		types.WithStaleSweepSpec(c.Queue.StaleSweepSpec),
		types.WithTrackerUsername(c.TrackerUsername),
	}
}

// HttpConfiguration returns the configuration of the outbound HTTP clients.
func (c Config) HttpConfiguration() external.HttpConfiguration {
	return external.HttpConfiguration{
		ReadTimeoutMs:            c.Http.ReadTimeoutMs,
		InsecureSkipVerify:       c.Http.InsecureSkipVerify,
		MaxParallelRequestsCount: c.Http.MaxParallelRequestsCount,
		EnableProxy:              c.Http.EnableProxy,
		UseSystemProxyProperties: c.Http.UseSystemProxyProperties,
		ProxyScheme:              c.Http.ProxyScheme,
		ProxyHost:                c.Http.ProxyHost,
		ProxyPort:                c.Http.ProxyPort,
		ProxyUser:                c.Http.ProxyUser,
		ProxyPassword:            c.Http.ProxyPassword,
	}
}

// NewLogger writes to the rotated log file when one is configured.
func (c Config) NewLogger() *log.Logger {
	if c.Log.File == "" {
		return types.DefaultLogger()
	}
	return types.NewFileLogger(types.FileLogConfig{
		Filename:   c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		Stdout:     c.Log.Stdout,
	})
}
