package breaker

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-mods/core"
)

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	DefaultFailureThreshold  = 5
	DefaultOpenTimeout       = 60 * time.Second
	DefaultHalfOpenMaxTrials = 3
)

type Config struct {
	FailureThreshold  int
	OpenTimeout       time.Duration
	HalfOpenMaxTrials int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:  DefaultFailureThreshold,
		OpenTimeout:       DefaultOpenTimeout,
		HalfOpenMaxTrials: DefaultHalfOpenMaxTrials,
	}
}

func ConfigFromCore(cfg core.BreakerConfig) Config {
	return Config{
		FailureThreshold:  cfg.FailureThreshold,
		OpenTimeout:       cfg.OpenTimeout,
		HalfOpenMaxTrials: cfg.HalfOpenMaxTrials,
	}.normalized()
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = defaults.OpenTimeout
	}
	if c.HalfOpenMaxTrials <= 0 {
		c.HalfOpenMaxTrials = defaults.HalfOpenMaxTrials
	}
	return c
}

type StateChange struct {
	Name     string
	From     State
	To       State
	Failures int
	At       time.Time
}

type Snapshot struct {
	Name        string
	State       State
	Failures    int
	Trials      int
	LastFailure time.Time
}

// Breaker guards one named operation. All transitions happen under mu so a
// read-decide-write is never interleaved with another caller.
type Breaker struct {
	name     string
	config   Config
	now      func() time.Time
	onChange func(StateChange)

	mu          sync.Mutex
	state       State
	failures    int
	trials      int
	lastFailure time.Time
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:   strings.TrimSpace(name),
		config: cfg.normalized(),
		now:    time.Now,
		state:  StateClosed,
	}
}

func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Allow admits a call or rejects it with CIRCUIT_OPEN or CIRCUIT_HALF_OPEN_LIMIT.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateOpen:
		if now.Sub(b.lastFailure) < b.config.OpenTimeout {
			return openError(b.name, b.lastFailure.Add(b.config.OpenTimeout).Sub(now))
		}
		b.transitionLocked(StateHalfOpen, now)
		b.trials = 0
		fallthrough
	case StateHalfOpen:
		if b.trials >= b.config.HalfOpenMaxTrials {
			b.lastFailure = now
			b.transitionLocked(StateOpen, now)
			return halfOpenLimitError(b.name, b.config.HalfOpenMaxTrials)
		}
		b.trials++
		return nil
	default:
		return nil
	}
}

// Release returns a half-open trial slot taken by Allow for a call that
// never reached the downstream. The outcome is not counted.
func (b *Breaker) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.trials > 0 {
		b.trials--
	}
}

func (b *Breaker) RecordSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.transitionLocked(StateClosed, b.now())
	}
	b.failures = 0
	b.trials = 0
}

func (b *Breaker) RecordFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.failures++
	b.lastFailure = now
	switch b.state {
	case StateHalfOpen:
		b.transitionLocked(StateOpen, now)
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen, now)
		}
	}
}

func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{State: StateClosed}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state,
		Failures:    b.failures,
		Trials:      b.trials,
		LastFailure: b.lastFailure,
	}
}

func (b *Breaker) transitionLocked(to State, at time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(StateChange{
			Name:     b.name,
			From:     from,
			To:       to,
			Failures: b.failures,
			At:       at,
		})
	}
}

type Option func(*Registry)

func WithNow(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStateChangeHook registers a callback invoked while the breaker lock is
// held; it must not call back into the breaker.
func WithStateChangeHook(hook func(StateChange)) Option {
	return func(r *Registry) {
		if hook != nil {
			r.hooks = append(r.hooks, hook)
		}
	}
}

// WithObserver logs transitions and counts them as mods.breaker.transition.
func WithObserver(observer *core.Observer) Option {
	return WithStateChangeHook(func(change StateChange) {
		if observer == nil {
			return
		}
		level := "info"
		if change.To == StateOpen {
			level = "warn"
		}
		fields := map[string]any{
			"breaker":  change.Name,
			"from":     string(change.From),
			"to":       string(change.To),
			"failures": change.Failures,
		}
		observer.Log(context.Background(), level, "breaker: state changed", fields)
		observer.RecordCounter(context.Background(), "mods.breaker.transition", 1, map[string]string{
			"breaker": change.Name,
			"to":      string(change.To),
		})
	})
}

// Registry lazily creates one breaker per operation name.
type Registry struct {
	config Config
	now    func() time.Time
	hooks  []func(StateChange)

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(cfg Config, opts ...Option) *Registry {
	registry := &Registry{
		config:   cfg.normalized(),
		now:      time.Now,
		breakers: map[string]*Breaker{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(registry)
		}
	}
	return registry
}

func (r *Registry) Get(name string) *Breaker {
	if r == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.breakers[name]; ok {
		return existing
	}
	created := New(name, r.config)
	created.now = r.now
	if len(r.hooks) > 0 {
		hooks := append([]func(StateChange){}, r.hooks...)
		created.onChange = func(change StateChange) {
			for _, hook := range hooks {
				hook(change)
			}
		}
	}
	r.breakers[name] = created
	return created
}

// Breaker is Get under the name the response handler expects.
func (r *Registry) Breaker(name string) *Breaker {
	return r.Get(name)
}

func (r *Registry) Snapshots() []Snapshot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
