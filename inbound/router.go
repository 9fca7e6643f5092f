package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	glog "github.com/goliatone/go-logger/glog"
)

// Event is an event_callback delivery with its inner event type lifted out.
type Event struct {
	ID        string          `json:"event_id"`
	Type      string          `json:"type"`
	TeamID    string          `json:"team_id,omitempty"`
	APIAppID  string          `json:"api_app_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Data holds the typed inner event when the webhook layer could decode it.
	Data any `json:"-"`
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeInFlight  Outcome = "in_flight"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeFailed    Outcome = "failed"
)

type RouterOption func(*Router)

func WithProcessedStore(store ProcessedEventStore) RouterOption {
	return func(r *Router) {
		if store != nil {
			r.Store = store
		}
	}
}

func WithRouterLogger(logger core.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.Logger = logger
		}
	}
}

func WithRouterObserver(observer *core.Observer) RouterOption {
	return func(r *Router) {
		r.Observer = observer
	}
}

// Router delivers each event ID to its handler at most once per successful
// completion.
type Router struct {
	Store    ProcessedEventStore
	Logger   core.Logger
	Observer *core.Observer

	mu       sync.RWMutex
	handlers map[string]Handler

	claimMu  sync.Mutex
	inFlight map[string]struct{}
}

func NewRouter(opts ...RouterOption) *Router {
	router := &Router{
		Store:    NewMemoryProcessedStore(DefaultProcessedCapacity, DefaultEvictFraction),
		Logger:   glog.Nop(),
		handlers: map[string]Handler{},
		inFlight: map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	return router
}

func (r *Router) Register(eventType string, handler Handler) error {
	if r == nil {
		return inboundInternal("inbound: router is nil", nil)
	}
	eventType = normalizeType(eventType)
	if eventType == "" {
		return inboundBadInput("inbound: event type is required", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", map[string]any{"event_type": eventType})
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = map[string]Handler{}
	}
	r.handlers[eventType] = handler
	return nil
}

func (r *Router) RegisterFunc(eventType string, fn func(ctx context.Context, event Event) error) error {
	if fn == nil {
		return r.Register(eventType, nil)
	}
	return r.Register(eventType, HandlerFunc(fn))
}

func (r *Router) EventTypes() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for eventType := range r.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

func (r *Router) Route(ctx context.Context, event Event) (outcome Outcome, err error) {
	if r == nil {
		return OutcomeFailed, inboundInternal("inbound: router is nil", nil)
	}
	event.ID = strings.TrimSpace(event.ID)
	event.Type = normalizeType(event.Type)
	if event.ID == "" {
		return OutcomeFailed, inboundBadInput("inbound: event id is required", map[string]any{"event_type": event.Type})
	}

	startedAt := r.Observer.Start()
	defer func() {
		r.Observer.ObserveOperation(ctx, startedAt, "events.route", err, map[string]any{
			"event_id":   event.ID,
			"event_type": event.Type,
			"team_id":    event.TeamID,
			"outcome":    string(outcome),
		})
	}()

	claimed, outcome, err := r.claim(ctx, event.ID)
	if err != nil || !claimed {
		if err == nil {
			r.logger(ctx).Debug("inbound: event skipped", "event_id", event.ID, "outcome", outcome)
		}
		return outcome, err
	}
	defer r.release(event.ID)

	handler := r.handlerFor(event.Type)
	if handler == nil {
		r.logger(ctx).Info("inbound: no handler registered for event type",
			"event_id", event.ID,
			"event_type", event.Type,
		)
		return OutcomeUnhandled, nil
	}

	if err := invoke(ctx, handler, event); err != nil {
		return OutcomeFailed, err
	}
	if err := r.Store.MarkProcessed(ctx, event.ID); err != nil {
		return OutcomeFailed, inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: mark event processed",
			http.StatusInternalServerError,
			core.ErrorInternal,
			map[string]any{"event_id": event.ID},
		)
	}
	return OutcomeHandled, nil
}

// claim reserves the ID in the in-flight set, then consults the processed
// set without holding claimMu. MarkProcessed runs before release, so a
// reservation taken after a finished run always sees it as processed. The
// in-flight set is per process; replicas sharing a SQL store can still
// overlap on a concurrent redelivery.
func (r *Router) claim(ctx context.Context, id string) (bool, Outcome, error) {
	if r.Store == nil {
		return false, OutcomeFailed, inboundInternal("inbound: processed event store is nil", nil)
	}
	r.claimMu.Lock()
	if _, busy := r.inFlight[id]; busy {
		r.claimMu.Unlock()
		return false, OutcomeInFlight, nil
	}
	if r.inFlight == nil {
		r.inFlight = map[string]struct{}{}
	}
	r.inFlight[id] = struct{}{}
	r.claimMu.Unlock()

	processed, err := r.Store.IsProcessed(ctx, id)
	if err != nil {
		r.release(id)
		return false, OutcomeFailed, inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: lookup processed event",
			http.StatusInternalServerError,
			core.ErrorInternal,
			map[string]any{"event_id": id},
		)
	}
	if processed {
		r.release(id)
		return false, OutcomeDuplicate, nil
	}
	return true, "", nil
}

func (r *Router) release(id string) {
	r.claimMu.Lock()
	delete(r.inFlight, id)
	r.claimMu.Unlock()
}

func (r *Router) handlerFor(eventType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[eventType]
}

func (r *Router) logger(ctx context.Context) core.Logger {
	if r.Logger == nil {
		return glog.Nop()
	}
	if ctx == nil {
		return r.Logger
	}
	return r.Logger.WithContext(ctx)
}

func invoke(ctx context.Context, handler Handler, event Event) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = inboundInternal(
				fmt.Sprintf("inbound: handler panicked: %v", recovered),
				map[string]any{
					"event_id":   event.ID,
					"event_type": event.Type,
					"stack":      core.TruncateContext(string(debug.Stack()), 1024),
				},
			)
		}
	}()
	return handler.Handle(ctx, event)
}

func normalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}
