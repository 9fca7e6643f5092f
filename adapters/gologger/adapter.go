package gologger

import (
	"context"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves the glog pair and returns the go-job bridges for it.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, jobProvider, jobLogger
}

// WorkerHook logs event worker lifecycle transitions.
type WorkerHook struct {
	logger glog.Logger
}

func NewWorkerHook(logger glog.Logger) *WorkerHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &WorkerHook{logger: logger}
}

func (h *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx).Debug("worker: job started", fields(event)...)
}

func (h *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx).Info("worker: job completed", fields(event)...)
}

func (h *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx).Error("worker: job failed", fields(event)...)
}

func (h *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx).Warn("worker: job scheduled for retry", fields(event)...)
}

func (h *WorkerHook) log(ctx context.Context) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	if ctx == nil {
		return h.logger
	}
	return h.logger.WithContext(ctx)
}

func fields(event worker.Event) []any {
	out := []any{"attempt", event.Attempt}
	if event.Message != nil {
		out = append(out, "job_id", event.Message.JobID, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Duration > 0 {
		out = append(out, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Delay > 0 {
		out = append(out, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		out = append(out, "error", event.Err)
	}
	return out
}
