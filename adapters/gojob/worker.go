package gojob

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const DefaultPollInterval = time.Second

type EventRouter interface {
	Route(ctx context.Context, event inbound.Event) (inbound.Outcome, error)
}

type WorkerOption func(*EventWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *EventWorker) {
		w.Policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *EventWorker) {
		w.Hook = hook
	}
}

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *EventWorker) {
		if logger != nil {
			w.Logger = logger
		}
	}
}

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *EventWorker) {
		if interval > 0 {
			w.PollInterval = interval
		}
	}
}

func WithWorkerNow(now func() time.Time) WorkerOption {
	return func(w *EventWorker) {
		if now != nil {
			w.now = now
		}
	}
}

// EventWorker consumes mods.events.route messages and routes them. Success and
// duplicate outcomes ack; failures nack with bounded, growing delays. Attempt
// counts are kept per event ID for the life of the worker.
type EventWorker struct {
	Dequeuer     queue.Dequeuer
	Router       EventRouter
	Policy       RetryPolicy
	Hook         worker.Hook
	Logger       core.Logger
	PollInterval time.Duration

	now      func() time.Time
	mu       sync.Mutex
	attempts map[string]int
}

func NewEventWorker(dequeuer queue.Dequeuer, router EventRouter, opts ...WorkerOption) *EventWorker {
	w := &EventWorker{
		Dequeuer:     dequeuer,
		Router:       router,
		Policy:       DefaultRetryPolicy(),
		Logger:       glog.Nop(),
		PollInterval: DefaultPollInterval,
		now:          func() time.Time { return time.Now().UTC() },
		attempts:     map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run processes deliveries until ctx is done.
func (w *EventWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.ProcessNext(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Logger.Warn("gojob: event delivery failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.PollInterval):
			}
		}
	}
}

// ProcessNext handles a single delivery. It returns dequeue and ack/nack
// failures; routing failures are settled through Nack.
func (w *EventWorker) ProcessNext(ctx context.Context) error {
	if w == nil || w.Dequeuer == nil || w.Router == nil {
		return core.NewError("gojob: event worker requires a dequeuer and a router", "", core.ErrorInternal)
	}
	delivery, err := w.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}

	msg := delivery.Message()
	event, err := EventFromMessage(msg)
	if err != nil {
		w.Logger.Error("gojob: dropping undecodable event message", "error", err)
		return delivery.Nack(ctx, queue.NackOptions{DeadLetter: true, Reason: err.Error()})
	}

	attempt := w.nextAttempt(event.ID)
	startedAt := w.now()
	hookEvent := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: startedAt}
	w.hook(func(h worker.Hook) { h.OnStart(ctx, hookEvent) })

	outcome, routeErr := w.Router.Route(ctx, event)
	hookEvent.Duration = w.now().Sub(startedAt)

	if routeErr == nil || outcome == inbound.OutcomeDuplicate {
		w.forget(event.ID)
		w.hook(func(h worker.Hook) { h.OnSuccess(ctx, hookEvent) })
		return delivery.Ack(ctx)
	}

	requeue := core.IsRetryable(routeErr) || core.TextCode(routeErr) == ""
	opts := w.Policy.NormalizeAttempt(queue.NackOptions{
		Delay:      w.Policy.Delay(attempt),
		Requeue:    requeue,
		DeadLetter: !requeue,
		Reason:     core.TruncateContext(routeErr.Error(), core.DefaultContextTruncation),
	}, attempt)
	hookEvent.Err = routeErr
	hookEvent.Delay = opts.Delay
	if opts.Requeue {
		w.hook(func(h worker.Hook) { h.OnRetry(ctx, hookEvent) })
	} else {
		w.forget(event.ID)
		w.hook(func(h worker.Hook) { h.OnFailure(ctx, hookEvent) })
	}
	w.Logger.Warn("gojob: event routing failed",
		"event_id", event.ID,
		"event_type", event.Type,
		"attempt", attempt,
		"requeue", opts.Requeue,
		"dead_letter", opts.DeadLetter,
		"error", routeErr,
	)
	return delivery.Nack(ctx, opts)
}

func (w *EventWorker) nextAttempt(eventID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempts == nil {
		w.attempts = map[string]int{}
	}
	w.attempts[eventID]++
	return w.attempts[eventID]
}

func (w *EventWorker) forget(eventID string) {
	w.mu.Lock()
	delete(w.attempts, eventID)
	w.mu.Unlock()
}

func (w *EventWorker) hook(fn func(worker.Hook)) {
	if w.Hook != nil {
		fn(w.Hook)
	}
}
