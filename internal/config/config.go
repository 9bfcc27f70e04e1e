// Package config loads the offline proxy configuration from a YAML file
// with PWA_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/pwa-posts-offline/pkg/logging"
	"github.com/Sternrassler/pwa-posts-offline/pkg/worker"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PWA_"

// Storage drivers.
const (
	DriverMemory  = "memory"
	DriverRedis   = "redis"
	DriverLevelDB = "leveldb"
)

type Config struct {
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Worker  WorkerConfig  `yaml:"worker" envPrefix:"WORKER_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Log     LogConfig     `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	Origin          string        `yaml:"origin" env:"ORIGIN"`
	ReadTimeout     time.Duration `yaml:"readTimeout" env:"READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
}

type WorkerConfig struct {
	App                string        `yaml:"app" env:"APP"`
	Version            string        `yaml:"version" env:"VERSION"`
	Scope              string        `yaml:"scope" env:"SCOPE"`
	ShellAssets        []string      `yaml:"shellAssets" env:"SHELL_ASSETS" envSeparator:","`
	ShellDocument      string        `yaml:"shellDocument" env:"SHELL_DOCUMENT"`
	APIURLs            []string      `yaml:"apiUrls" env:"API_URLS" envSeparator:","`
	StaticDestinations []string      `yaml:"staticDestinations" env:"STATIC_DESTINATIONS" envSeparator:","`
	SyncTag            string        `yaml:"syncTag" env:"SYNC_TAG"`
	SyncEvery          time.Duration `yaml:"syncEvery" env:"SYNC_EVERY"`
	InstallConcurrency int           `yaml:"installConcurrency" env:"INSTALL_CONCURRENCY"`
	RefreshConcurrency int           `yaml:"refreshConcurrency" env:"REFRESH_CONCURRENCY"`
	RefreshAttempts    int           `yaml:"refreshAttempts" env:"REFRESH_ATTEMPTS"`
}

type StorageConfig struct {
	Driver  string        `yaml:"driver" env:"DRIVER"`
	HotTier int           `yaml:"hotTier" env:"HOT_TIER"`
	Redis   RedisConfig   `yaml:"redis" envPrefix:"REDIS_"`
	LevelDB LevelDBConfig `yaml:"leveldb" envPrefix:"LEVELDB_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

type LevelDBConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PRETTY"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	wc := worker.DefaultConfig("http://localhost:8080/")
	dests := make([]string, len(wc.StaticDestinations))
	for i, d := range wc.StaticDestinations {
		dests[i] = string(d)
	}
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			App:                "pwa-posts",
			Version:            "v1.2",
			ShellAssets:        wc.ShellAssets,
			ShellDocument:      wc.ShellDocument,
			APIURLs:            wc.APIURLs,
			StaticDestinations: dests,
			SyncTag:            wc.SyncTag,
			InstallConcurrency: wc.InstallConcurrency,
			RefreshConcurrency: wc.RefreshConcurrency,
			RefreshAttempts:    wc.RefreshAttempts,
		},
		Storage: StorageConfig{
			Driver:  DriverMemory,
			HotTier: 256,
			Redis:   RedisConfig{Addr: "localhost:6379"},
			LevelDB: LevelDBConfig{Path: "./data/pwa-cache"},
		},
		Log: LogConfig{Level: string(logging.LevelInfo)},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Server.Origin = strings.TrimRight(cfg.Server.Origin, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.Origin == "" {
		return errors.New("server.origin is required")
	}
	if u, err := url.Parse(c.Server.Origin); err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("server.origin %q must be an absolute URL", c.Server.Origin)
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required")
		}
	case DriverLevelDB:
		if c.Storage.LevelDB.Path == "" {
			return errors.New("storage.leveldb.path is required")
		}
	default:
		return fmt.Errorf("storage.driver %q unknown (memory, redis, leveldb)", c.Storage.Driver)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Worker.SyncEvery < 0 {
		return fmt.Errorf("worker.syncEvery must not be negative")
	}
	if _, err := c.WorkerConfig(); err != nil {
		return err
	}
	return nil
}

// Scope is the worker scope: worker.scope, or the origin root.
func (c Config) Scope() string {
	if c.Worker.Scope != "" {
		return c.Worker.Scope
	}
	return c.Server.Origin + "/"
}

// WorkerConfig converts the worker section into a validated worker.Config.
func (c Config) WorkerConfig() (worker.Config, error) {
	dests := make([]worker.Destination, len(c.Worker.StaticDestinations))
	for i, d := range c.Worker.StaticDestinations {
		dests[i] = worker.Destination(strings.ToLower(strings.TrimSpace(d)))
	}
	wc := worker.Config{
		Scope:              c.Scope(),
		CacheNames:         worker.DefaultCacheNames(c.Worker.App, c.Worker.Version),
		ShellAssets:        c.Worker.ShellAssets,
		ShellDocument:      c.Worker.ShellDocument,
		APIURLs:            c.Worker.APIURLs,
		StaticDestinations: dests,
		SyncTag:            c.Worker.SyncTag,
		InstallConcurrency: c.Worker.InstallConcurrency,
		RefreshConcurrency: c.Worker.RefreshConcurrency,
		RefreshAttempts:    c.Worker.RefreshAttempts,
	}
	if c.Worker.App == "" || c.Worker.Version == "" {
		return worker.Config{}, fmt.Errorf("%w: worker.app and worker.version are required", worker.ErrInvalidConfig)
	}
	if err := wc.Validate(); err != nil {
		return worker.Config{}, err
	}
	return wc, nil
}

// Logging converts the log section for logging.Setup.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
