package actions

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/params"
	"github.com/goliatone/go-mods/response"
	glog "github.com/goliatone/go-logger/glog"
)

type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Meta struct {
	User User `json:"user"`
}

// Call is the raw shape delivered by the host platform.
type Call struct {
	Name       string `json:"name"`
	Parameters any    `json:"parameters"`
	Meta       Meta   `json:"meta"`
}

// Request is what handlers receive: the call with its parameters decoded.
type Request struct {
	Name   string
	UserID string
	Params map[string]any
}

type Handler interface {
	Handle(ctx context.Context, req Request) (map[string]any, error)
}

type HandlerFunc func(ctx context.Context, req Request) (map[string]any, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// Registrar is implemented by action modules that install several handlers.
type Registrar interface {
	RegisterActions(d *Dispatcher) error
}

type Option func(*Dispatcher)

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.Logger = logger
		}
	}
}

func WithObserver(observer *core.Observer) Option {
	return func(d *Dispatcher) {
		d.Observer = observer
	}
}

func WithNormalizer(normalizer *params.Normalizer) Option {
	return func(d *Dispatcher) {
		if normalizer != nil {
			d.Normalizer = normalizer
		}
	}
}

type Dispatcher struct {
	Normalizer *params.Normalizer
	Logger     core.Logger
	Observer   *core.Observer

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		Logger:   glog.Nop(),
		handlers: map[string]Handler{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.Normalizer == nil {
		d.Normalizer = params.NewNormalizer(d.Logger)
	}
	return d
}

func (d *Dispatcher) Register(name string, handler Handler) error {
	if d == nil {
		return actionInternal("actions: dispatcher is nil", nil)
	}
	name = normalizeName(name)
	if name == "" {
		return actionValidationError("name", "action name is required")
	}
	if handler == nil {
		return actionValidationError("handler", "handler is required for "+name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[name]; exists {
		return core.NewError("actions: action already registered: "+name, goerrors.CategoryConflict, core.ErrorBadInput)
	}
	d.handlers[name] = handler
	return nil
}

func (d *Dispatcher) RegisterFunc(name string, fn func(ctx context.Context, req Request) (map[string]any, error)) error {
	if fn == nil {
		return d.Register(name, nil)
	}
	return d.Register(name, HandlerFunc(fn))
}

// Install lets each module register its handlers, stopping at the first error.
func (d *Dispatcher) Install(modules ...Registrar) error {
	for _, module := range modules {
		if module == nil {
			continue
		}
		if err := module.RegisterActions(d); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) Names() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named action and returns {success: true, ...data} or the
// error payload built by response.Payload. It never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (result map[string]any) {
	if ctx == nil {
		ctx = context.Background()
	}
	name := normalizeName(call.Name)
	userID := strings.TrimSpace(call.Meta.User.ID)

	var outcome error
	startedAt := d.observer().Start()
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome = actionInternal(fmt.Sprintf("actions: %s panicked: %v", name, recovered), map[string]any{
				"action": name,
				"stack":  core.TruncateContext(string(debug.Stack()), 1024),
			})
			result = response.Payload(outcome)
		}
		d.observer().ObserveOperation(ctx, startedAt, "actions.dispatch", outcome, map[string]any{
			"action":  name,
			"user_id": userID,
		})
	}()

	if d == nil {
		outcome = actionInternal("actions: dispatcher is nil", nil)
		return response.Payload(outcome)
	}
	if name == "" {
		outcome = actionValidationError("name", "action name is required")
		return response.Payload(outcome)
	}
	handler := d.handlerFor(name)
	if handler == nil {
		outcome = actionNotFound(name)
		return response.Payload(outcome)
	}

	req := Request{
		Name:   name,
		UserID: userID,
		Params: d.Normalizer.Normalize(ctx, call.Parameters),
	}
	data, err := handler.Handle(ctx, req)
	if err != nil {
		outcome = err
		return response.Payload(err)
	}

	result = make(map[string]any, len(data)+1)
	for key, value := range data {
		result[key] = value
	}
	result["success"] = true
	return result
}

func (d *Dispatcher) handlerFor(name string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[name]
}

func (d *Dispatcher) observer() *core.Observer {
	if d == nil || d.Observer == nil {
		return core.NewObserver(nil, nil)
	}
	return d.Observer
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
