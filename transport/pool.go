package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/breaker"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/jellydator/ttlcache/v3"
	"github.com/slack-go/slack"
)

const (
	DefaultMaxClients = 100
	DefaultIdleTTL    = 30 * time.Minute
)

// ClientHandle is a pooled Slack client bound to exactly one token.
type ClientHandle struct {
	Token     string
	Client    *slack.Client
	CreatedAt time.Time

	lastUsed atomic.Int64
}

func (h *ClientHandle) LastUsedAt() time.Time {
	if h == nil {
		return time.Time{}
	}
	return time.Unix(0, h.lastUsed.Load()).UTC()
}

func (h *ClientHandle) touch(at time.Time) {
	h.lastUsed.Store(at.UnixNano())
}

type PoolConfig struct {
	MaxClients     int
	IdleTTL        time.Duration
	Retry          RetryPolicy
	RequestTimeout time.Duration
	APIURL         string
	HTTPClient     HTTPDoer
	Breaker        breaker.Config
	Queue          ratelimit.QueueConfig
	Logger         core.Logger
}

func PoolConfigFromCore(cfg core.Config) PoolConfig {
	return PoolConfig{
		MaxClients: cfg.Pool.MaxClients,
		IdleTTL:    cfg.Pool.IdleTTL,
		Retry: RetryPolicy{
			MaxTries:        uint(max(cfg.Pool.MaxRetries, 0)),
			InitialInterval: cfg.Pool.RetryInitialInterval,
			Multiplier:      cfg.Pool.RetryMultiplier,
		},
		RequestTimeout: cfg.Pool.RequestTimeout,
		APIURL:         cfg.Slack.APIURL,
		Breaker:        breaker.ConfigFromCore(cfg.Breaker),
		Queue:          ratelimit.QueueConfigFromCore(cfg.Queue),
	}
}

type PoolOption func(*ClientPool)

func WithBreakerRegistry(registry *breaker.Registry) PoolOption {
	return func(p *ClientPool) {
		if registry != nil {
			p.breakers = registry
		}
	}
}

func WithRequestQueue(queue *ratelimit.RequestQueue) PoolOption {
	return func(p *ClientPool) {
		if queue != nil {
			p.queue = queue
		}
	}
}

func WithPoolNow(now func() time.Time) PoolOption {
	return func(p *ClientPool) {
		if now != nil {
			p.now = now
		}
	}
}

// ClientPool hands out one Slack client per token and owns the process-wide
// breakers and request queue. Idle clients expire after IdleTTL; beyond
// MaxClients the least recently used client is evicted.
type ClientPool struct {
	cache    *ttlcache.Cache[string, *ClientHandle]
	doer     HTTPDoer
	apiURL   string
	logger   core.Logger
	now      func() time.Time
	breakers *breaker.Registry
	queue    *ratelimit.RequestQueue

	mu     sync.Mutex
	closed bool
}

func NewClientPool(cfg PoolConfig, opts ...PoolOption) *ClientPool {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = glog.Nop()
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: cfg.RequestTimeout}
	}
	if cfg.Queue.Logger == nil {
		cfg.Queue.Logger = cfg.Logger
	}

	pool := &ClientPool{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *ClientHandle](cfg.IdleTTL),
			ttlcache.WithCapacity[string, *ClientHandle](uint64(cfg.MaxClients)),
		),
		doer:   NewRetryingDoer(base, cfg.Retry, cfg.Logger),
		apiURL: normalizeAPIURL(cfg.APIURL),
		logger: cfg.Logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(pool)
		}
	}
	if pool.breakers == nil {
		pool.breakers = breaker.NewRegistry(cfg.Breaker)
	}
	if pool.queue == nil {
		pool.queue = ratelimit.NewRequestQueue(cfg.Queue)
	}
	pool.cache.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *ClientHandle]) {
		pool.logger.Debug("transport: slack client evicted",
			"reason", evictionReason(reason),
			"token", core.MaskToken(item.Key()),
		)
	})
	return pool
}

// Get returns the pooled client for the credential's token, creating it on
// first use. Every call sweeps expired clients first.
func (p *ClientPool) Get(cred core.Credential) (*ClientHandle, error) {
	if p == nil {
		return nil, transportError("transport: client pool is nil", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	token := strings.TrimSpace(cred.Token)
	if err := core.ValidateSlackToken(token); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, transportError("transport: client pool is closed", goerrors.CategoryInternal, http.StatusServiceUnavailable, nil)
	}

	p.cache.DeleteExpired()
	now := p.now()
	if item := p.cache.Get(token); item != nil {
		handle := item.Value()
		handle.touch(now)
		return handle, nil
	}

	handle := &ClientHandle{
		Token:     token,
		Client:    p.newSlackClient(token),
		CreatedAt: now,
	}
	handle.touch(now)
	p.cache.Set(token, handle, ttlcache.DefaultTTL)
	p.logger.Debug("transport: slack client created",
		"token", core.MaskToken(token),
		"user_id", cred.UserID,
		"pool_size", p.cache.Len(),
	)
	return handle, nil
}

func (p *ClientPool) newSlackClient(token string) *slack.Client {
	options := []slack.Option{slack.OptionHTTPClient(p.doer)}
	if p.apiURL != "" {
		options = append(options, slack.OptionAPIURL(p.apiURL))
	}
	return slack.New(token, options...)
}

func (p *ClientPool) Evict(token string) bool {
	if p == nil {
		return false
	}
	token = strings.TrimSpace(token)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cache.Has(token) {
		return false
	}
	p.cache.Delete(token)
	return true
}

func (p *ClientPool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

func (p *ClientPool) Breaker(name string) *breaker.Breaker {
	if p == nil {
		return nil
	}
	return p.breakers.Get(name)
}

func (p *ClientPool) Breakers() *breaker.Registry {
	if p == nil {
		return nil
	}
	return p.breakers
}

func (p *ClientPool) Queue() *ratelimit.RequestQueue {
	if p == nil {
		return nil
	}
	return p.queue
}

// HTTPClient is the retrying doer shared by every pooled client.
func (p *ClientPool) HTTPClient() HTTPDoer {
	if p == nil {
		return nil
	}
	return p.doer
}

func (p *ClientPool) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cache.DeleteAll()
	p.mu.Unlock()
	p.queue.Close()
}

func normalizeAPIURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
