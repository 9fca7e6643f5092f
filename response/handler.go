package response

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/breaker"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/ratelimit"
)

type BreakerProvider interface {
	Breaker(name string) *breaker.Breaker
}

type QueueProvider interface {
	Queue() *ratelimit.RequestQueue
}

type Handler struct {
	Breakers BreakerProvider
	Queue    *ratelimit.RequestQueue
	Policy   *ratelimit.AdaptivePolicy
	Observer *core.Observer
	Provider string
}

type HandlerOption func(*Handler)

func WithPolicy(policy *ratelimit.AdaptivePolicy) HandlerOption {
	return func(h *Handler) {
		h.Policy = policy
	}
}

func WithObserver(observer *core.Observer) HandlerOption {
	return func(h *Handler) {
		if observer != nil {
			h.Observer = observer
		}
	}
}

func WithProvider(provider string) HandlerOption {
	return func(h *Handler) {
		if provider = strings.TrimSpace(provider); provider != "" {
			h.Provider = provider
		}
	}
}

// NewHandler wires the shared breakers and queue, typically a
// *transport.ClientPool for both.
func NewHandler(breakers BreakerProvider, queue QueueProvider, opts ...HandlerOption) *Handler {
	handler := &Handler{
		Breakers: breakers,
		Observer: core.NewObserver(nil, nil),
		Provider: core.ProviderSlack,
	}
	if queue != nil {
		handler.Queue = queue.Queue()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

type executeOptions struct {
	circuitBreaker bool
	queue          bool
	scope          string
	fields         map[string]any
}

type ExecuteOption func(*executeOptions)

func WithCircuitBreaker(enabled bool) ExecuteOption {
	return func(o *executeOptions) {
		o.circuitBreaker = enabled
	}
}

func WithQueue(enabled bool) ExecuteOption {
	return func(o *executeOptions) {
		o.queue = enabled
	}
}

// WithScope narrows the rate-limit cooldown to a team or user.
func WithScope(scope string) ExecuteOption {
	return func(o *executeOptions) {
		o.scope = strings.TrimSpace(scope)
	}
}

// WithFields attaches log context to the call.
func WithFields(fields map[string]any) ExecuteOption {
	return func(o *executeOptions) {
		for key, value := range fields {
			o.fields[key] = value
		}
	}
}

// Execute runs op behind the cooldown policy, the breaker for name and the
// request queue, and returns a classified error on failure.
func Execute[T any](
	ctx context.Context,
	h *Handler,
	name string,
	op func(ctx context.Context) (T, error),
	opts ...ExecuteOption,
) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	options := executeOptions{circuitBreaker: true, queue: true, fields: map[string]any{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if h == nil {
		h = &Handler{Provider: core.ProviderSlack}
	}
	if op == nil {
		err := core.NewError("response: operation is required", goerrors.CategoryBadInput, core.ErrorBadInput)
		return zero, err
	}

	startedAt := h.observer().Start()
	key := ratelimit.Key{Provider: h.Provider, Operation: name, Scope: options.scope}

	if err := h.Policy.BeforeCall(ctx, key); err != nil {
		classified := Classify(err)
		h.observe(ctx, startedAt, name, classified, options.fields)
		return zero, classified
	}

	var guard *breaker.Breaker
	if options.circuitBreaker && h.Breakers != nil {
		guard = h.Breakers.Breaker(name)
		if err := guard.Allow(); err != nil {
			classified := Classify(err)
			h.observe(ctx, startedAt, name, classified, options.fields)
			return zero, classified
		}
	}

	var (
		value T
		err   error
	)
	if options.queue && h.Queue != nil {
		value, err = ratelimit.Submit(ctx, h.Queue, op)
	} else {
		value, err = op(ctx)
	}

	if err == nil {
		guard.RecordSuccess()
		h.observe(ctx, startedAt, name, nil, options.fields)
		return value, nil
	}

	classified := Classify(err)
	switch {
	case ctx.Err() != nil:
		// caller gave up, possibly while still queued
		guard.Release()
	case callerFault(classified):
		guard.RecordSuccess()
	default:
		guard.RecordFailure()
	}
	if classified.TextCode == core.ErrorRateLimited {
		h.recordCooldown(ctx, key, classified)
	}
	h.observe(ctx, startedAt, name, classified, options.fields)
	return zero, classified
}

func (h *Handler) recordCooldown(ctx context.Context, key ratelimit.Key, classified *goerrors.Error) {
	if h.Policy == nil {
		return
	}
	retryAfter := retryAfterFromMetadata(classified.Metadata)
	if err := h.Policy.Throttle(ctx, key, retryAfter); err != nil {
		h.observer().Log(ctx, "warn", "response: failed to record rate-limit cooldown", map[string]any{
			"call":  key.Operation,
			"error": err.Error(),
		})
	}
}

func (h *Handler) observe(ctx context.Context, startedAt time.Time, name string, err *goerrors.Error, fields map[string]any) {
	logFields := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		if text, ok := value.(string); ok {
			value = core.TruncateContext(text, core.DefaultContextTruncation)
		}
		logFields[key] = value
	}
	logFields["provider"] = h.Provider
	logFields["call"] = name
	var failure error
	if err != nil {
		failure = err
		if breakerRejection(err) {
			logFields["breaker"] = name
		}
	}
	h.observer().ObserveOperation(ctx, startedAt, "api."+name, failure, logFields)
}

func (h *Handler) observer() *core.Observer {
	if h == nil || h.Observer == nil {
		return core.NewObserver(nil, nil)
	}
	return h.Observer
}
