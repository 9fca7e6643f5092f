package ratelimit

import (
	"container/list"
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultMaxConcurrent = 10
	DefaultDispatchDelay = time.Second
)

type QueueConfig struct {
	MaxConcurrent int
	DispatchDelay time.Duration
	Clock         clockwork.Clock
	Logger        core.Logger
}

func QueueConfigFromCore(cfg core.QueueConfig) QueueConfig {
	return QueueConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		DispatchDelay: cfg.DispatchDelay,
	}
}

type Operation func(ctx context.Context) (any, error)

type queuedCall struct {
	ctx    context.Context
	op     Operation
	result chan callResult
}

type callResult struct {
	value any
	err   error
}

type QueueStats struct {
	Pending int
	Active  int
}

// RequestQueue admits at most MaxConcurrent operations and waits DispatchDelay
// after each completion before dispatching the next waiting call. Waiting calls
// leave in FIFO order.
type RequestQueue struct {
	maxConcurrent int
	delay         time.Duration
	clock         clockwork.Clock
	logger        core.Logger
	pool          pond.Pool

	mu      sync.Mutex
	pending *list.List
	active  int
	closed  bool
	done    chan struct{}
	timers  sync.WaitGroup
}

func NewRequestQueue(cfg QueueConfig) *RequestQueue {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.DispatchDelay < 0 {
		cfg.DispatchDelay = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = glog.Nop()
	}
	return &RequestQueue{
		maxConcurrent: cfg.MaxConcurrent,
		delay:         cfg.DispatchDelay,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		pool:          pond.NewPool(cfg.MaxConcurrent),
		pending:       list.New(),
		done:          make(chan struct{}),
	}
}

// Enqueue blocks until op has run or ctx is done. A call whose context ends
// before dispatch is dropped; once dispatched, op runs to completion.
func (q *RequestQueue) Enqueue(ctx context.Context, op Operation) (any, error) {
	if q == nil {
		return nil, queueError("ratelimit: request queue is nil")
	}
	if op == nil {
		return nil, queueError("ratelimit: operation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call := &queuedCall{ctx: ctx, op: op, result: make(chan callResult, 1)}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, queueError("ratelimit: request queue is closed")
	}
	q.pending.PushBack(call)
	q.dispatchLocked()
	q.mu.Unlock()

	select {
	case res := <-call.result:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Submit is the typed form of Enqueue.
func Submit[T any](ctx context.Context, q *RequestQueue, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if op == nil {
		return zero, queueError("ratelimit: operation is required")
	}
	value, err := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil {
		if typed, ok := value.(T); ok {
			return typed, err
		}
		return zero, err
	}
	typed, ok := value.(T)
	if !ok && value != nil {
		return zero, queueError(fmt.Sprintf("ratelimit: unexpected result type %T", value))
	}
	return typed, nil
}

func (q *RequestQueue) Stats() QueueStats {
	if q == nil {
		return QueueStats{}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Pending: q.pending.Len(), Active: q.active}
}

// Close rejects waiting calls and waits for dispatched ones to finish.
func (q *RequestQueue) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	for element := q.pending.Front(); element != nil; element = element.Next() {
		call := element.Value.(*queuedCall)
		call.result <- callResult{err: queueError("ratelimit: request queue is closed")}
	}
	q.pending.Init()
	q.mu.Unlock()

	q.timers.Wait()
	q.pool.StopAndWait()
}

func (q *RequestQueue) dispatchLocked() {
	for !q.closed && q.active < q.maxConcurrent && q.pending.Len() > 0 {
		call := q.pending.Remove(q.pending.Front()).(*queuedCall)
		if err := call.ctx.Err(); err != nil {
			q.logger.Debug("ratelimit: skipping cancelled call", "error", err)
			continue
		}
		q.active++
		q.pool.Submit(func() {
			q.run(call)
		})
	}
}

func (q *RequestQueue) run(call *queuedCall) {
	value, err := q.invoke(call)
	call.result <- callResult{value: value, err: err}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.active--
	if q.closed {
		return
	}
	q.timers.Add(1)
	go q.dispatchAfterDelay()
}

func (q *RequestQueue) invoke(call *queuedCall) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			q.logger.Error("ratelimit: queued operation panicked", "panic", recovered)
			err = queueError(fmt.Sprintf("ratelimit: operation panicked: %v", recovered))
		}
	}()
	return call.op(context.WithoutCancel(call.ctx))
}

func (q *RequestQueue) dispatchAfterDelay() {
	defer q.timers.Done()
	if q.delay > 0 {
		select {
		case <-q.clock.After(q.delay):
		case <-q.done:
			return
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dispatchLocked()
}

func queueError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorInternal)
}
