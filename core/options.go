package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

const DefaultEnvPrefix = "MODS_"

// EnvLoader reads MODS_* variables into the nested raw shape consumed by cfgx.
// Durations are parsed before decoding.
type EnvLoader struct {
	Prefix string
	Lookup func(key string) (string, bool)
}

type envBinding struct {
	env   string
	path  []string
	parse func(string) (any, error)
}

var envBindings = []envBinding{
	{"SERVICE_NAME", []string{"service_name"}, parseString},
	{"SLACK_SIGNING_SECRET", []string{"slack", "signing_secret"}, parseString},
	{"SLACK_EVENTS_ENABLED", []string{"slack", "events_enabled"}, parseBool},
	{"SLACK_INCLUDE_PRIVATE", []string{"slack", "include_private"}, parseBool},
	{"SLACK_INCLUDE_ARCHIVED", []string{"slack", "include_archived"}, parseBool},
	{"SLACK_ALLOW_DIRECT_MESSAGES", []string{"slack", "allow_direct_messages"}, parseBool},
	{"SLACK_BOT_TOKEN", []string{"slack", "bot_token"}, parseString},
	{"SLACK_API_URL", []string{"slack", "api_url"}, parseString},
	{"POOL_MAX_CLIENTS", []string{"pool", "max_clients"}, parseInt},
	{"POOL_IDLE_TTL", []string{"pool", "idle_ttl"}, parseDuration},
	{"POOL_MAX_RETRIES", []string{"pool", "max_retries"}, parseInt},
	{"POOL_RETRY_INITIAL_INTERVAL", []string{"pool", "retry_initial_interval"}, parseDuration},
	{"POOL_RETRY_MULTIPLIER", []string{"pool", "retry_multiplier"}, parseFloat},
	{"POOL_REQUEST_TIMEOUT", []string{"pool", "request_timeout"}, parseDuration},
	{"BREAKER_FAILURE_THRESHOLD", []string{"breaker", "failure_threshold"}, parseInt},
	{"BREAKER_OPEN_TIMEOUT", []string{"breaker", "open_timeout"}, parseDuration},
	{"BREAKER_HALF_OPEN_MAX_TRIALS", []string{"breaker", "half_open_max_trials"}, parseInt},
	{"QUEUE_MAX_CONCURRENT", []string{"queue", "max_concurrent"}, parseInt},
	{"QUEUE_DISPATCH_DELAY", []string{"queue", "dispatch_delay"}, parseDuration},
	{"EVENTS_DEDUP_CAPACITY", []string{"events", "dedup_capacity"}, parseInt},
	{"EVENTS_EVICT_FRACTION", []string{"events", "evict_fraction"}, parseFloat},
	{"EVENTS_SIGNATURE_WINDOW", []string{"events", "signature_window"}, parseDuration},
	{"EVENTS_ASYNC_WORKERS", []string{"events", "async_workers"}, parseInt},
	{"HTTP_ADDR", []string{"http", "addr"}, parseString},
	{"HTTP_READ_TIMEOUT", []string{"http", "read_timeout"}, parseDuration},
	{"HTTP_WRITE_TIMEOUT", []string{"http", "write_timeout"}, parseDuration},
	{"HTTP_SHUTDOWN_TIMEOUT", []string{"http", "shutdown_timeout"}, parseDuration},
	{"STORE_DRIVER", []string{"store", "driver"}, parseString},
	{"DATABASE_DSN", []string{"store", "dsn"}, parseString},
	{"APP_KEY", []string{"store", "app_key"}, parseString},
	{"PREVIOUS_APP_KEY", []string{"store", "previous_app_key"}, parseString},
	{"LOG_LEVEL", []string{"log", "level"}, parseString},
}

func (l EnvLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := l.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultEnvPrefix
	}
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	raw := map[string]any{}
	for _, binding := range envBindings {
		value, ok := lookup(prefix + binding.env)
		if !ok {
			continue
		}
		parsed, err := binding.parse(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: env %s%s: %w", prefix, binding.env, err)
		}
		setPath(raw, binding.path, parsed)
	}
	return raw, nil
}

func setPath(target map[string]any, path []string, value any) {
	current := target
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func parseString(value string) (any, error) { return value, nil }

func parseBool(value string) (any, error) { return strconv.ParseBool(value) }

func parseInt(value string) (any, error) { return strconv.Atoi(value) }

func parseFloat(value string) (any, error) { return strconv.ParseFloat(value, 64) }

func parseDuration(value string) (any, error) { return time.ParseDuration(value) }

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, true),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// LoadConfig resolves defaults < provider-loaded values < runtime overrides.
func LoadConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

// configToLayerMap flattens cfg into a layer. Without includeZero only
// non-zero values are emitted, so booleans can only be switched on by the
// runtime layer.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	put := func(section string, key string, value any, zero bool) {
		if !includeZero && zero {
			return
		}
		if section == "" {
			layer[key] = value
			return
		}
		values, ok := layer[section].(map[string]any)
		if !ok {
			values = map[string]any{}
			layer[section] = values
		}
		values[key] = value
	}

	put("", "service_name", cfg.ServiceName, strings.TrimSpace(cfg.ServiceName) == "")

	put("slack", "signing_secret", cfg.Slack.SigningSecret, cfg.Slack.SigningSecret == "")
	put("slack", "events_enabled", cfg.Slack.EventsEnabled, !cfg.Slack.EventsEnabled)
	put("slack", "include_private", cfg.Slack.IncludePrivate, !cfg.Slack.IncludePrivate)
	put("slack", "include_archived", cfg.Slack.IncludeArchived, !cfg.Slack.IncludeArchived)
	put("slack", "allow_direct_messages", cfg.Slack.AllowDirectMessages, !cfg.Slack.AllowDirectMessages)
	put("slack", "bot_token", cfg.Slack.BotToken, cfg.Slack.BotToken == "")
	put("slack", "api_url", cfg.Slack.APIURL, cfg.Slack.APIURL == "")

	put("pool", "max_clients", cfg.Pool.MaxClients, cfg.Pool.MaxClients == 0)
	put("pool", "idle_ttl", cfg.Pool.IdleTTL, cfg.Pool.IdleTTL == 0)
	put("pool", "max_retries", cfg.Pool.MaxRetries, cfg.Pool.MaxRetries == 0)
	put("pool", "retry_initial_interval", cfg.Pool.RetryInitialInterval, cfg.Pool.RetryInitialInterval == 0)
	put("pool", "retry_multiplier", cfg.Pool.RetryMultiplier, cfg.Pool.RetryMultiplier == 0)
	put("pool", "request_timeout", cfg.Pool.RequestTimeout, cfg.Pool.RequestTimeout == 0)

	put("breaker", "failure_threshold", cfg.Breaker.FailureThreshold, cfg.Breaker.FailureThreshold == 0)
	put("breaker", "open_timeout", cfg.Breaker.OpenTimeout, cfg.Breaker.OpenTimeout == 0)
	put("breaker", "half_open_max_trials", cfg.Breaker.HalfOpenMaxTrials, cfg.Breaker.HalfOpenMaxTrials == 0)

	put("queue", "max_concurrent", cfg.Queue.MaxConcurrent, cfg.Queue.MaxConcurrent == 0)
	put("queue", "dispatch_delay", cfg.Queue.DispatchDelay, cfg.Queue.DispatchDelay == 0)

	put("events", "dedup_capacity", cfg.Events.DedupCapacity, cfg.Events.DedupCapacity == 0)
	put("events", "evict_fraction", cfg.Events.EvictFraction, cfg.Events.EvictFraction == 0)
	put("events", "signature_window", cfg.Events.SignatureWindow, cfg.Events.SignatureWindow == 0)
	put("events", "async_workers", cfg.Events.AsyncWorkers, cfg.Events.AsyncWorkers == 0)

	put("http", "addr", cfg.HTTP.Addr, cfg.HTTP.Addr == "")
	put("http", "read_timeout", cfg.HTTP.ReadTimeout, cfg.HTTP.ReadTimeout == 0)
	put("http", "write_timeout", cfg.HTTP.WriteTimeout, cfg.HTTP.WriteTimeout == 0)
	put("http", "shutdown_timeout", cfg.HTTP.ShutdownTimeout, cfg.HTTP.ShutdownTimeout == 0)

	put("store", "driver", cfg.Store.Driver, cfg.Store.Driver == "")
	put("store", "dsn", cfg.Store.DSN, cfg.Store.DSN == "")
	put("store", "app_key", cfg.Store.AppKey, cfg.Store.AppKey == "")
	put("store", "previous_app_key", cfg.Store.PreviousAppKey, cfg.Store.PreviousAppKey == "")

	put("log", "level", cfg.Log.Level, cfg.Log.Level == "")
	return layer
}
