package webhooks

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultAsyncWorkers = 4

// EventSink receives acknowledged events. Implementations must not block on
// routing; the HTTP response has already been committed when Submit runs.
type EventSink interface {
	Submit(ctx context.Context, event inbound.Event) error
}

type EventRouter interface {
	Route(ctx context.Context, event inbound.Event) (inbound.Outcome, error)
}

// PoolSink routes events on a bounded pond worker pool.
type PoolSink struct {
	router EventRouter
	pool   pond.Pool
	logger core.Logger
	closed atomic.Bool
}

func NewPoolSink(router EventRouter, workers int, logger core.Logger) *PoolSink {
	if workers <= 0 {
		workers = DefaultAsyncWorkers
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &PoolSink{
		router: router,
		pool:   pond.NewPool(workers),
		logger: logger,
	}
}

func (s *PoolSink) Submit(ctx context.Context, event inbound.Event) error {
	if s == nil || s.router == nil {
		return webhookError("webhooks: event sink is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal)
	}
	if s.closed.Load() {
		return webhookError("webhooks: event sink is closed", goerrors.CategoryOperation, http.StatusServiceUnavailable, core.ErrorInternal)
	}
	detached := context.WithoutCancel(ctx)
	s.pool.Submit(func() {
		outcome, err := s.router.Route(detached, event)
		logger := s.logger.WithContext(detached)
		if err != nil {
			logger.Error("webhooks: event routing failed",
				"event_id", event.ID,
				"event_type", event.Type,
				"error", err,
			)
			return
		}
		logger.Debug("webhooks: event routed",
			"event_id", event.ID,
			"event_type", event.Type,
			"outcome", string(outcome),
		)
	})
	return nil
}

// Close waits for submitted events to finish routing.
func (s *PoolSink) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.pool.StopAndWait()
}

type EventEnqueuer interface {
	EnqueueEvent(ctx context.Context, event inbound.Event) error
}

// JobSink hands events to a job queue so a separate worker routes them.
type JobSink struct {
	Enqueuer EventEnqueuer
}

func NewJobSink(enqueuer EventEnqueuer) *JobSink {
	return &JobSink{Enqueuer: enqueuer}
}

func (s *JobSink) Submit(ctx context.Context, event inbound.Event) error {
	if s == nil || s.Enqueuer == nil {
		return webhookError("webhooks: job enqueuer is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal)
	}
	return s.Enqueuer.EnqueueEvent(context.WithoutCancel(ctx), event)
}

var (
	_ EventSink = (*PoolSink)(nil)
	_ EventSink = (*JobSink)(nil)
)
