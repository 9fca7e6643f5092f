package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/slack-go/slack/slackevents"
)

const DefaultMaxBodyBytes int64 = 1 << 20

const (
	bodyAccepted = "OK"
	bodyError    = "Error"
)

// envelope is the outer Events API payload. Only the fields the router needs
// are decoded here; the inner event is kept raw.
type envelope struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge"`
	TeamID    string          `json:"team_id"`
	APIAppID  string          `json:"api_app_id"`
	EventID   string          `json:"event_id"`
	EventTime int64           `json:"event_time"`
	Event     json.RawMessage `json:"event"`
}

type innerEventType struct {
	Type string `json:"type"`
}

type EventsHandlerOption func(*EventsHandler)

func WithEventsLogger(logger core.Logger) EventsHandlerOption {
	return func(h *EventsHandler) {
		if logger != nil {
			h.Logger = logger
		}
	}
}

func WithEventsObserver(observer *core.Observer) EventsHandlerOption {
	return func(h *EventsHandler) {
		h.Observer = observer
	}
}

func WithEventsEnabled(enabled bool) EventsHandlerOption {
	return func(h *EventsHandler) {
		h.Enabled = enabled
	}
}

func WithMaxBodyBytes(limit int64) EventsHandlerOption {
	return func(h *EventsHandler) {
		if limit > 0 {
			h.MaxBodyBytes = limit
		}
	}
}

// EventsHandler is the HTTP endpoint for the Slack Events API.
type EventsHandler struct {
	Verifier     core.InboundVerifier
	Sink         EventSink
	Enabled      bool
	MaxBodyBytes int64
	Logger       core.Logger
	Observer     *core.Observer
}

func NewEventsHandler(verifier core.InboundVerifier, sink EventSink, opts ...EventsHandlerOption) *EventsHandler {
	handler := &EventsHandler{
		Verifier:     verifier,
		Sink:         sink,
		Enabled:      true,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Logger:       glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger().WithContext(ctx)
	startedAt := h.Observer.Start()

	var outcomeErr error
	eventType := ""
	defer func() {
		h.Observer.ObserveOperation(ctx, startedAt, "events.receive", outcomeErr, map[string]any{
			"provider":   core.ProviderSlack,
			"event_type": eventType,
		})
	}()

	if !h.Enabled {
		outcomeErr = webhookError("webhooks: slack events are disabled", goerrors.CategoryNotFound, http.StatusNotFound, core.ErrorEventsDisabled)
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes()+1))
	if err != nil || int64(len(body)) > h.maxBodyBytes() {
		outcomeErr = webhookError("webhooks: request body unreadable", goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput)
		logger.Warn("webhooks: request body unreadable", "error", err, "bytes", len(body))
		writeText(w, http.StatusOK, bodyError)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		outcomeErr = core.WrapError(err, goerrors.CategoryBadInput, core.ErrorParse, "webhooks: malformed event body")
		logger.Warn("webhooks: malformed event body", "error", err)
		writeText(w, http.StatusOK, bodyError)
		return
	}
	eventType = env.Type

	if env.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			challenge.Challenge = env.Challenge
		}
		logger.Info("webhooks: answering url verification challenge")
		writeText(w, http.StatusOK, challenge.Challenge)
		return
	}

	if h.Verifier == nil {
		outcomeErr = signatureError("webhooks: verifier is not configured", nil)
		writeText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}
	if err := h.Verifier.Verify(ctx, core.InboundRequest{
		Surface: env.Type,
		Headers: flattenHeaders(r.Header),
		Body:    body,
	}); err != nil {
		outcomeErr = err
		logger.Warn("webhooks: signature verification failed", "error", err)
		writeText(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	switch env.Type {
	case slackevents.CallbackEvent:
		event, err := decodeCallback(env, body)
		if err != nil {
			outcomeErr = err
			logger.Warn("webhooks: malformed event callback", "error", err)
			writeText(w, http.StatusOK, bodyError)
			return
		}
		eventType = event.Type
		writeText(w, http.StatusOK, bodyAccepted)
		if h.Sink == nil {
			outcomeErr = webhookError("webhooks: event sink is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, core.ErrorInternal)
			logger.Error("webhooks: dropping event without a sink", "event_id", event.ID)
			return
		}
		if err := h.Sink.Submit(ctx, event); err != nil {
			outcomeErr = err
			logger.Error("webhooks: event submission failed", "event_id", event.ID, "error", err)
		}
	case slackevents.AppRateLimited:
		logger.Warn("webhooks: slack is rate limiting event deliveries", "team_id", env.TeamID)
		writeText(w, http.StatusOK, bodyAccepted)
	default:
		logger.Info("webhooks: ignoring envelope type", "type", env.Type)
		writeText(w, http.StatusOK, bodyAccepted)
	}
}

func decodeCallback(env envelope, body []byte) (inbound.Event, error) {
	if strings.TrimSpace(env.EventID) == "" {
		return inbound.Event{}, core.NewError("webhooks: event_id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if len(env.Event) == 0 {
		return inbound.Event{}, core.NewError("webhooks: event payload is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	var inner innerEventType
	if err := json.Unmarshal(env.Event, &inner); err != nil {
		return inbound.Event{}, core.WrapError(err, goerrors.CategoryBadInput, core.ErrorParse, "webhooks: inner event is malformed")
	}
	if strings.TrimSpace(inner.Type) == "" {
		return inbound.Event{}, core.NewError("webhooks: inner event type is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}

	event := inbound.Event{
		ID:        env.EventID,
		Type:      inner.Type,
		TeamID:    env.TeamID,
		APIAppID:  env.APIAppID,
		EventTime: env.EventTime,
		Payload:   append(json.RawMessage(nil), env.Event...),
	}
	if parsed, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken()); err == nil {
		event.Data = parsed.InnerEvent.Data
	}
	return event, nil
}

func (h *EventsHandler) logger() core.Logger {
	if h == nil || h.Logger == nil {
		return glog.Nop()
	}
	return h.Logger
}

func (h *EventsHandler) maxBodyBytes() int64 {
	if h != nil && h.MaxBodyBytes > 0 {
		return h.MaxBodyBytes
	}
	return DefaultMaxBodyBytes
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
