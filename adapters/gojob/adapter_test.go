package gojob

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestEventMessageRoundTrip(t *testing.T) {
	event := inbound.Event{
		ID:        "Ev01",
		Type:      "app_mention",
		TeamID:    "T0AAAAAAA1",
		APIAppID:  "A0AAAAAAA1",
		EventTime: 1700000000,
		Payload:   json.RawMessage(`{"type":"app_mention","text":"hi"}`),
	}

	msg, err := EventMessage(event)
	if err != nil {
		t.Fatalf("event message: %v", err)
	}
	if msg.JobID != JobIDRouteEvent {
		t.Fatalf("expected job id %q, got %q", JobIDRouteEvent, msg.JobID)
	}
	if msg.IdempotencyKey != "mods.event:Ev01" {
		t.Fatalf("expected idempotency key from event id, got %q", msg.IdempotencyKey)
	}

	decoded, err := EventFromMessage(msg)
	if err != nil {
		t.Fatalf("event from message: %v", err)
	}
	if decoded.ID != event.ID || decoded.Type != event.Type || decoded.TeamID != event.TeamID {
		t.Fatalf("expected identity fields to survive, got %#v", decoded)
	}
	if decoded.EventTime != event.EventTime {
		t.Fatalf("expected event time %d, got %d", event.EventTime, decoded.EventTime)
	}
	if string(decoded.Payload) != string(event.Payload) {
		t.Fatalf("expected payload to survive, got %s", decoded.Payload)
	}
}

func TestEventMessageRejectsMissingID(t *testing.T) {
	if _, err := EventMessage(inbound.Event{Type: "app_mention"}); err == nil {
		t.Fatalf("expected error for missing event id")
	} else if core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected bad input, got %q", core.TextCode(err))
	}
	if _, err := EventFromMessage(&job.ExecutionMessage{JobID: "other.job"}); err == nil {
		t.Fatalf("expected error for foreign job id")
	}
}

func TestEventEnqueuerPublishesMessage(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	adapter := NewEventEnqueuer(enqueuer)

	if err := adapter.EnqueueEvent(context.Background(), inbound.Event{ID: "Ev02", Type: "message"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.Parameters["event_id"] != "Ev02" {
		t.Fatalf("expected mapped go-job message, got %#v", enqueuer.last)
	}
	if string(enqueuer.last.DedupPolicy) != "drop" {
		t.Fatalf("expected drop dedup policy, got %q", enqueuer.last.DedupPolicy)
	}
}

func TestRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	first := policy.NormalizeAttempt(queue.NackOptions{Delay: 30 * time.Second, Requeue: true, Reason: " transient "}, 1)
	if first.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", first.Delay)
	}
	if !first.Requeue || first.DeadLetter {
		t.Fatalf("expected requeue before max attempts, got %#v", first)
	}
	if first.Reason != "transient" {
		t.Fatalf("expected trimmed reason, got %q", first.Reason)
	}

	last := policy.NormalizeAttempt(queue.NackOptions{Delay: time.Second, Requeue: true}, 3)
	if last.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !last.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestRetryPolicyDelayGrowsAndCaps(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	if got := policy.Delay(1); got != time.Second {
		t.Fatalf("expected 1s, got %s", got)
	}
	if got := policy.Delay(3); got != 4*time.Second {
		t.Fatalf("expected 4s, got %s", got)
	}
	if got := policy.Delay(10); got != 5*time.Second {
		t.Fatalf("expected cap at 5s, got %s", got)
	}
}

func TestEventWorkerAcksHandledEvent(t *testing.T) {
	router := inbound.NewRouter()
	var seen inbound.Event
	_ = router.RegisterFunc("app_mention", func(_ context.Context, event inbound.Event) error {
		seen = event
		return nil
	})
	delivery := newDelivery(t, inbound.Event{ID: "Ev10", Type: "app_mention", Payload: json.RawMessage(`{"text":"hi"}`)})
	hook := &capturingHook{}
	w := NewEventWorker(&stubQueueDequeuer{delivery: delivery}, router, WithHook(hook))

	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !delivery.acked {
		t.Fatalf("expected ack")
	}
	if seen.ID != "Ev10" || string(seen.Payload) != `{"text":"hi"}` {
		t.Fatalf("expected handler to receive decoded event, got %#v", seen)
	}
	if hook.successes != 1 || hook.starts != 1 {
		t.Fatalf("expected start and success hooks, got %#v", hook)
	}
}

func TestEventWorkerRequeuesThenDeadLetters(t *testing.T) {
	router := &stubRouter{err: errors.New("downstream unavailable")}
	delivery := newDelivery(t, inbound.Event{ID: "Ev11", Type: "message"})
	hook := &capturingHook{}
	w := NewEventWorker(&stubQueueDequeuer{delivery: delivery}, router,
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute, DeadLetterOnMax: true}),
	)

	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process attempt 1: %v", err)
	}
	if !delivery.nackOpts.Requeue || delivery.nackOpts.Delay != time.Second {
		t.Fatalf("expected requeue with 1s delay, got %#v", delivery.nackOpts)
	}
	if hook.retries != 1 || hook.last.Attempt != 1 {
		t.Fatalf("expected retry hook for attempt 1, got %#v", hook)
	}

	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process attempt 2: %v", err)
	}
	if delivery.nackOpts.Requeue || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on final attempt, got %#v", delivery.nackOpts)
	}
	if hook.failures != 1 {
		t.Fatalf("expected failure hook, got %#v", hook)
	}
}

func TestEventWorkerDeadLettersNonRetryableError(t *testing.T) {
	router := &stubRouter{err: core.NewError("bad payload", "", core.ErrorBadInput)}
	delivery := newDelivery(t, inbound.Event{ID: "Ev12", Type: "message"})
	w := NewEventWorker(&stubQueueDequeuer{delivery: delivery}, router)

	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if delivery.nackOpts.Requeue || !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected immediate dead letter, got %#v", delivery.nackOpts)
	}
}

func TestEventWorkerDeadLettersUndecodableMessage(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "other.job"}}
	w := NewEventWorker(&stubQueueDequeuer{delivery: delivery}, &stubRouter{})

	if err := w.ProcessNext(context.Background()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter for foreign message")
	}
}

func TestEventWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewEventWorker(&stubQueueDequeuer{}, &stubRouter{})
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func newDelivery(t *testing.T, event inbound.Event) *stubQueueDelivery {
	t.Helper()
	msg, err := EventMessage(event)
	if err != nil {
		t.Fatalf("event message: %v", err)
	}
	return &stubQueueDelivery{msg: msg}
}

type stubRouter struct {
	err   error
	calls int
}

func (s *stubRouter) Route(context.Context, inbound.Event) (inbound.Outcome, error) {
	s.calls++
	if s.err != nil {
		return inbound.OutcomeFailed, s.err
	}
	return inbound.OutcomeHandled, nil
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	starts    int
	successes int
	failures  int
	retries   int
	last      worker.Event
}

func (h *capturingHook) OnStart(context.Context, worker.Event) { h.starts++ }
func (h *capturingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.successes++
	h.last = event
}
func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failures++
	h.last = event
}
func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retries++
	h.last = event
}
