package core

import (
	"fmt"
	"strings"
	"time"
)

type SlackConfig struct {
	SigningSecret       string `koanf:"signing_secret" mapstructure:"signing_secret"`
	EventsEnabled       bool   `koanf:"events_enabled" mapstructure:"events_enabled"`
	IncludePrivate      bool   `koanf:"include_private" mapstructure:"include_private"`
	IncludeArchived     bool   `koanf:"include_archived" mapstructure:"include_archived"`
	AllowDirectMessages bool   `koanf:"allow_direct_messages" mapstructure:"allow_direct_messages"`
	BotToken            string `koanf:"bot_token" mapstructure:"bot_token"`
	APIURL              string `koanf:"api_url" mapstructure:"api_url"`
}

type PoolConfig struct {
	MaxClients           int           `koanf:"max_clients" mapstructure:"max_clients"`
	IdleTTL              time.Duration `koanf:"idle_ttl" mapstructure:"idle_ttl"`
	MaxRetries           int           `koanf:"max_retries" mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval" mapstructure:"retry_initial_interval"`
	RetryMultiplier      float64       `koanf:"retry_multiplier" mapstructure:"retry_multiplier"`
	RequestTimeout       time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

type BreakerConfig struct {
	FailureThreshold  int           `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	OpenTimeout       time.Duration `koanf:"open_timeout" mapstructure:"open_timeout"`
	HalfOpenMaxTrials int           `koanf:"half_open_max_trials" mapstructure:"half_open_max_trials"`
}

type QueueConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent" mapstructure:"max_concurrent"`
	DispatchDelay time.Duration `koanf:"dispatch_delay" mapstructure:"dispatch_delay"`
}

// MaxSignatureWindow is the freshness bound slack.SecretsVerifier enforces on
// its own; a wider events.signature_window would never take effect.
const MaxSignatureWindow = 300 * time.Second

type EventsConfig struct {
	DedupCapacity   int           `koanf:"dedup_capacity" mapstructure:"dedup_capacity"`
	EvictFraction   float64       `koanf:"evict_fraction" mapstructure:"evict_fraction"`
	SignatureWindow time.Duration `koanf:"signature_window" mapstructure:"signature_window"`
	AsyncWorkers    int           `koanf:"async_workers" mapstructure:"async_workers"`
}

type HTTPConfig struct {
	Addr            string        `koanf:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver string `koanf:"driver" mapstructure:"driver"`
	DSN    string `koanf:"dsn" mapstructure:"dsn"`
	AppKey string `koanf:"app_key" mapstructure:"app_key"`
	// PreviousAppKey still decrypts tokens sealed before a key rotation.
	PreviousAppKey string `koanf:"previous_app_key" mapstructure:"previous_app_key"`
}

type LogConfig struct {
	Level string `koanf:"level" mapstructure:"level"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Slack       SlackConfig   `koanf:"slack" mapstructure:"slack"`
	Pool        PoolConfig    `koanf:"pool" mapstructure:"pool"`
	Breaker     BreakerConfig `koanf:"breaker" mapstructure:"breaker"`
	Queue       QueueConfig   `koanf:"queue" mapstructure:"queue"`
	Events      EventsConfig  `koanf:"events" mapstructure:"events"`
	HTTP        HTTPConfig    `koanf:"http" mapstructure:"http"`
	Store       StoreConfig   `koanf:"store" mapstructure:"store"`
	Log         LogConfig     `koanf:"log" mapstructure:"log"`
}

const (
	StoreDriverMemory   = "memory"
	StoreDriverSQLite   = "sqlite3"
	StoreDriverPostgres = "postgres"
)

func DefaultConfig() Config {
	return Config{
		ServiceName: "mods",
		Slack: SlackConfig{
			EventsEnabled:       true,
			IncludePrivate:      true,
			AllowDirectMessages: true,
		},
		Pool: PoolConfig{
			MaxClients:           100,
			IdleTTL:              30 * time.Minute,
			MaxRetries:           3,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMultiplier:      2,
			RequestTimeout:       30 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold:  5,
			OpenTimeout:       60 * time.Second,
			HalfOpenMaxTrials: 3,
		},
		Queue: QueueConfig{
			MaxConcurrent: 10,
			DispatchDelay: time.Second,
		},
		Events: EventsConfig{
			DedupCapacity:   10000,
			EvictFraction:   0.1,
			SignatureWindow: 300 * time.Second,
			AsyncWorkers:    4,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Pool.MaxClients <= 0 {
		return fmt.Errorf("core: pool.max_clients must be positive")
	}
	if c.Pool.MaxRetries < 0 {
		return fmt.Errorf("core: pool.max_retries must not be negative")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("core: breaker.failure_threshold must be positive")
	}
	if c.Breaker.HalfOpenMaxTrials <= 0 {
		return fmt.Errorf("core: breaker.half_open_max_trials must be positive")
	}
	if c.Queue.MaxConcurrent <= 0 {
		return fmt.Errorf("core: queue.max_concurrent must be positive")
	}
	if c.Queue.DispatchDelay < 0 {
		return fmt.Errorf("core: queue.dispatch_delay must not be negative")
	}
	if c.Events.DedupCapacity <= 0 {
		return fmt.Errorf("core: events.dedup_capacity must be positive")
	}
	if c.Events.EvictFraction <= 0 || c.Events.EvictFraction > 1 {
		return fmt.Errorf("core: events.evict_fraction must be within (0, 1]")
	}
	if c.Events.SignatureWindow < 0 || c.Events.SignatureWindow > MaxSignatureWindow {
		return fmt.Errorf("core: events.signature_window must be within [0, %s]", MaxSignatureWindow)
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", StoreDriverMemory:
	case StoreDriverSQLite, StoreDriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("core: store.dsn is required for driver %q", c.Store.Driver)
		}
		if strings.TrimSpace(c.Store.AppKey) == "" {
			return fmt.Errorf("core: store.app_key is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("core: unsupported store.driver %q", c.Store.Driver)
	}
	return nil
}
