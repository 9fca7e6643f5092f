package mods

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/actions/githubmod"
	"github.com/goliatone/go-mods/actions/linearmod"
	"github.com/goliatone/go-mods/actions/slackmod"
	"github.com/goliatone/go-mods/actions/wikipediamod"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/identity"
	"github.com/goliatone/go-mods/inbound"
	"github.com/goliatone/go-mods/ratelimit"
	"github.com/goliatone/go-mods/response"
	"github.com/goliatone/go-mods/security"
	sqlstore "github.com/goliatone/go-mods/store/sql"
	"github.com/goliatone/go-mods/transport"
	"github.com/goliatone/go-mods/webhooks"
)

type Config = core.Config

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Endpoints overrides provider base URLs, mostly for tests and proxies.
type Endpoints struct {
	GitHub    string
	Linear    string
	Wikipedia string
}

type Option func(*runtimeOptions)

type runtimeOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	credentials    core.CredentialStore
	processed      inbound.ProcessedEventStore
	rateLimits     ratelimit.StateStore
	persistence    any
	cache          repositorycache.CacheService
	enqueuer       webhooks.EventEnqueuer
	httpClient     transport.HTTPDoer
	endpoints      Endpoints
}

func WithLogger(logger core.Logger) Option {
	return func(o *runtimeOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *runtimeOptions) {
		o.loggerProvider = provider
	}
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *runtimeOptions) {
		o.metrics = metrics
	}
}

func WithCredentialStore(store core.CredentialStore) Option {
	return func(o *runtimeOptions) {
		o.credentials = store
	}
}

func WithProcessedEventStore(store inbound.ProcessedEventStore) Option {
	return func(o *runtimeOptions) {
		o.processed = store
	}
}

func WithRateLimitStateStore(store ratelimit.StateStore) Option {
	return func(o *runtimeOptions) {
		o.rateLimits = store
	}
}

// WithPersistenceClient backs every store with SQL. client is a *bun.DB or
// anything exposing DB() *bun.DB. Tokens are sealed with store.app_key.
func WithPersistenceClient(client any) Option {
	return func(o *runtimeOptions) {
		o.persistence = client
	}
}

// WithCacheService puts read-through caches in front of the SQL credential
// and rate-limit stores.
func WithCacheService(cacheService repositorycache.CacheService) Option {
	return func(o *runtimeOptions) {
		o.cache = cacheService
	}
}

// WithEventEnqueuer hands verified events to a job queue instead of the
// in-process worker pool.
func WithEventEnqueuer(enqueuer webhooks.EventEnqueuer) Option {
	return func(o *runtimeOptions) {
		o.enqueuer = enqueuer
	}
}

func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(o *runtimeOptions) {
		o.httpClient = client
	}
}

func WithEndpoints(endpoints Endpoints) Option {
	return func(o *runtimeOptions) {
		o.endpoints = endpoints
	}
}

// Runtime owns the process-wide state: pooled clients, breakers, the request
// queue, the processed-event set and the action registry.
type Runtime struct {
	Config      Config
	Logger      core.Logger
	Observer    *core.Observer
	Credentials core.CredentialStore
	Processed   inbound.ProcessedEventStore
	Policy      *ratelimit.AdaptivePolicy
	Pool        *transport.ClientPool
	Resolver    *identity.Resolver
	Router      *inbound.Router
	Actions     *actions.Dispatcher
	Events      *webhooks.EventsHandler

	handlers map[string]*response.Handler
	slack    *slackmod.Module
	sink     webhooks.EventSink
}

func New(cfg Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := runtimeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	_, logger := glog.Resolve(cfg.ServiceName, options.loggerProvider, options.logger)
	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Observer: core.NewObserver(logger, options.metrics),
		handlers: map[string]*response.Handler{},
	}
	if err := rt.initStores(options); err != nil {
		return nil, err
	}

	poolConfig := transport.PoolConfigFromCore(cfg)
	poolConfig.Logger = logger
	poolConfig.HTTPClient = options.httpClient
	rt.Pool = transport.NewClientPool(poolConfig)
	rt.Policy = ratelimit.NewAdaptivePolicy(options.rateLimits)
	for _, provider := range []string{core.ProviderSlack, core.ProviderGitHub, core.ProviderLinear, core.ProviderWikipedia} {
		rt.handlers[provider] = response.NewHandler(rt.Pool.Breakers(), rt.Pool.Queue(),
			response.WithPolicy(rt.Policy),
			response.WithObserver(rt.Observer),
			response.WithProvider(provider),
		)
	}
	rt.Resolver = identity.NewResolver(logger)

	if err := rt.initActions(options.endpoints); err != nil {
		return nil, err
	}
	if err := rt.initEvents(options.enqueuer); err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) initStores(options runtimeOptions) error {
	if options.persistence != nil {
		ring, err := security.NewKeyRingFromConfig(r.Config.Store)
		if err != nil {
			return err
		}
		factory, err := sqlstore.NewRepositoryFactory(
			sqlstore.WithSecretProvider(ring),
			sqlstore.WithCacheService(options.cache),
		).BuildStores(options.persistence)
		if err != nil {
			return err
		}
		if options.credentials == nil {
			options.credentials = factory.CredentialStore()
		}
		if options.processed == nil {
			options.processed = factory.ProcessedEventStore()
		}
		if options.rateLimits == nil {
			options.rateLimits = factory.RateLimitStateStore()
		}
	}
	if options.credentials == nil {
		options.credentials = core.NewMemoryCredentialStore()
	}
	if options.processed == nil {
		options.processed = inbound.NewMemoryProcessedStoreFromConfig(r.Config.Events)
	}
	r.Credentials = options.credentials
	r.Processed = options.processed
	return nil
}

func (r *Runtime) initActions(endpoints Endpoints) error {
	r.Actions = actions.NewDispatcher(actions.WithLogger(r.Logger), actions.WithObserver(r.Observer))
	rest := transport.NewRESTAdapter(r.Pool.HTTPClient())

	r.slack = slackmod.NewModule(r.Credentials, r.Pool, r.handlers[core.ProviderSlack],
		slackmod.WithLogger(r.Logger),
		slackmod.WithResolver(r.Resolver),
		slackmod.WithResolveOptions(identity.OptionsFromConfig(r.Config.Slack)),
	)
	github := githubmod.NewModule(r.Credentials, rest, r.handlers[core.ProviderGitHub],
		githubmod.WithBaseURL(endpoints.GitHub),
	)
	linearEndpoint := strings.TrimSpace(endpoints.Linear)
	if linearEndpoint == "" {
		linearEndpoint = linearmod.DefaultEndpoint
	}
	linear := linearmod.NewModule(r.Credentials, transport.NewGraphQLAdapter(linearEndpoint, r.Pool.HTTPClient()), r.handlers[core.ProviderLinear],
		linearmod.WithEndpoint(linearEndpoint),
	)
	wikipedia := wikipediamod.NewModule(rest, r.handlers[core.ProviderWikipedia],
		wikipediamod.WithBaseURL(endpoints.Wikipedia),
	)
	return r.Actions.Install(r.slack, github, linear, wikipedia)
}

func (r *Runtime) initEvents(enqueuer webhooks.EventEnqueuer) error {
	r.Router = inbound.NewRouter(
		inbound.WithProcessedStore(r.Processed),
		inbound.WithRouterLogger(r.Logger),
		inbound.WithRouterObserver(r.Observer),
	)
	if err := r.registerBuiltinHandlers(); err != nil {
		return err
	}
	if enqueuer != nil {
		r.sink = webhooks.NewJobSink(enqueuer)
	} else {
		r.sink = webhooks.NewPoolSink(r.Router, r.Config.Events.AsyncWorkers, r.Logger)
	}
	verifier := webhooks.NewSlackSignatureVerifier(r.Config.Slack.SigningSecret, r.Config.Events.SignatureWindow)
	r.Events = webhooks.NewEventsHandler(verifier, r.sink,
		webhooks.WithEventsLogger(r.Logger),
		webhooks.WithEventsObserver(r.Observer),
		webhooks.WithEventsEnabled(r.Config.Slack.EventsEnabled),
	)
	return nil
}

// Handler returns the response handler bound to provider.
func (r *Runtime) Handler(provider string) *response.Handler {
	if r == nil {
		return nil
	}
	return r.handlers[strings.ToLower(strings.TrimSpace(provider))]
}

func (r *Runtime) Dispatch(ctx context.Context, call actions.Call) map[string]any {
	if r == nil || r.Actions == nil {
		return response.Payload(core.NewError("mods: runtime is not initialized", "", core.ErrorInternal))
	}
	return r.Actions.Dispatch(ctx, call)
}

// SaveCredential stores a token. A replaced Slack token loses its pooled
// client.
func (r *Runtime) SaveCredential(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if r == nil || r.Credentials == nil {
		return core.Credential{}, core.NewError("mods: credential store is not configured", "", core.ErrorInternal)
	}
	previous, prevErr := r.Credentials.Get(ctx, in.Provider, in.UserID)
	saved, err := r.Credentials.Save(ctx, in)
	if err != nil {
		return core.Credential{}, err
	}
	if prevErr == nil && previous.Token != "" && previous.Token != saved.Token {
		r.Pool.Evict(previous.Token)
	}
	return saved, nil
}

func (r *Runtime) RevokeCredential(ctx context.Context, provider string, userID string, reason string) error {
	if r == nil || r.Credentials == nil {
		return core.NewError("mods: credential store is not configured", "", core.ErrorInternal)
	}
	existing, getErr := r.Credentials.Get(ctx, provider, userID)
	if err := r.Credentials.Revoke(ctx, provider, userID, reason); err != nil {
		return err
	}
	if getErr == nil {
		r.Pool.Evict(existing.Token)
	}
	r.Logger.Info("mods: credential revoked",
		"provider", provider,
		"user_id", userID,
		"reason", reason,
	)
	return nil
}

// ResolveIdentifier maps a Slack channel, user or conversation name to its
// canonical ID using the caller's credential.
func (r *Runtime) ResolveIdentifier(ctx context.Context, userID string, kind string, identifier string) (string, error) {
	if r == nil || r.slack == nil {
		return "", core.NewError("mods: runtime is not initialized", "", core.ErrorInternal)
	}
	out, err := r.slack.ResolveIdentifier(ctx, actions.Request{
		Name:   slackmod.ActionResolveIdentifier,
		UserID: userID,
		Params: map[string]any{"identifier": identifier, "kind": kind},
	})
	if err != nil {
		return "", err
	}
	id, _ := out["id"].(string)
	return id, nil
}

// PruneProcessedEvents forgets processed event IDs older than before when the
// store supports it.
func (r *Runtime) PruneProcessedEvents(ctx context.Context, before time.Time) (int64, error) {
	pruner, ok := r.Processed.(interface {
		Prune(ctx context.Context, before time.Time) (int64, error)
	})
	if !ok {
		return 0, nil
	}
	return pruner.Prune(ctx, before)
}

// Close drains in-process event routing and releases pooled clients.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if closer, ok := r.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	r.Pool.Close()
}

func (r *Runtime) String() string {
	if r == nil {
		return "mods.Runtime<nil>"
	}
	return fmt.Sprintf("mods.Runtime{service=%s actions=%d pool=%d}", r.Config.ServiceName, len(r.Actions.Names()), r.Pool.Len())
}
