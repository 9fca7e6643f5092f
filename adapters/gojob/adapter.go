package gojob

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDRouteEvent      = "mods.events.route"
	ScriptPathRouteEvent = "mods.events.route"

	dedupDrop = "drop"
)

// RetryPolicy bounds redelivery of failed events.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Delay doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// EventMessage packs an event into a go-job execution message. The event ID
// doubles as the idempotency key so queue-level dedup drops redeliveries.
func EventMessage(event inbound.Event) (*job.ExecutionMessage, error) {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return nil, core.NewError("gojob: event id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	return &job.ExecutionMessage{
		JobID:      JobIDRouteEvent,
		ScriptPath: ScriptPathRouteEvent,
		Parameters: map[string]any{
			"event_id":   eventID,
			"type":       strings.TrimSpace(event.Type),
			"team_id":    strings.TrimSpace(event.TeamID),
			"api_app_id": strings.TrimSpace(event.APIAppID),
			"event_time": event.EventTime,
			"payload":    string(event.Payload),
		},
		IdempotencyKey: "mods.event:" + eventID,
		DedupPolicy:    job.DeduplicationPolicy(dedupDrop),
	}, nil
}

// EventFromMessage reverses EventMessage. The typed inner event is not carried
// across the queue; handlers decode Payload when Data is nil.
func EventFromMessage(msg *job.ExecutionMessage) (inbound.Event, error) {
	if msg == nil {
		return inbound.Event{}, core.NewError("gojob: execution message is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if strings.TrimSpace(msg.JobID) != JobIDRouteEvent {
		return inbound.Event{}, core.NewError("gojob: unexpected job id "+msg.JobID, goerrors.CategoryBadInput, core.ErrorBadInput).
			WithMetadata(map[string]any{"job_id": msg.JobID})
	}
	event := inbound.Event{
		ID:       stringParam(msg.Parameters, "event_id"),
		Type:     stringParam(msg.Parameters, "type"),
		TeamID:   stringParam(msg.Parameters, "team_id"),
		APIAppID: stringParam(msg.Parameters, "api_app_id"),
	}
	switch value := msg.Parameters["event_time"].(type) {
	case int64:
		event.EventTime = value
	case int:
		event.EventTime = int64(value)
	case float64:
		event.EventTime = int64(value)
	case json.Number:
		event.EventTime, _ = value.Int64()
	}
	if payload := stringParam(msg.Parameters, "payload"); payload != "" {
		event.Payload = json.RawMessage(payload)
	}
	if event.ID == "" {
		return inbound.Event{}, core.NewError("gojob: message carries no event id", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	return event, nil
}

// EventEnqueuer satisfies webhooks.EventEnqueuer on top of a go-job queue.
type EventEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEventEnqueuer(enqueuer queue.Enqueuer) *EventEnqueuer {
	return &EventEnqueuer{enqueuer: enqueuer}
}

func (a *EventEnqueuer) EnqueueEvent(ctx context.Context, event inbound.Event) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := EventMessage(event)
	if err != nil {
		return err
	}
	return a.enqueuer.Enqueue(ctx, msg)
}

func stringParam(params map[string]any, key string) string {
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
