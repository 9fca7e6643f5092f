package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-mods/inbound"
	"github.com/slack-go/slack/slackevents"
)

type recordingSink struct {
	mu     sync.Mutex
	events []inbound.Event
}

func (s *recordingSink) Submit(_ context.Context, event inbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

const appMentionBody = `{
	"token": "legacy",
	"team_id": "T0001",
	"api_app_id": "A0001",
	"type": "event_callback",
	"event_id": "Ev0PV52K21",
	"event_time": 1700000000,
	"event": {
		"type": "app_mention",
		"user": "U061F7AUR",
		"text": "<@U0LAN0Z89> help",
		"ts": "1515449522.000016",
		"channel": "C0LAN2Q65",
		"event_ts": "1515449522000016"
	}
}`

func newSignedRequest(body string, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	for key, value := range signedHeaders(secret, time.Now(), []byte(body)) {
		req.Header.Set(key, value)
	}
	return req
}

func TestEventsHandler_AcceptsSignedCallback(t *testing.T) {
	sink := &recordingSink{}
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), sink)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newSignedRequest(appMentionBody, testSigningSecret))

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
	if sink.count() != 1 {
		t.Fatalf("expected one submitted event, got %d", sink.count())
	}
	event := sink.events[0]
	if event.ID != "Ev0PV52K21" || event.Type != "app_mention" || event.TeamID != "T0001" {
		t.Fatalf("unexpected event %#v", event)
	}
	if _, ok := event.Data.(*slackevents.AppMentionEvent); !ok {
		t.Fatalf("expected typed app mention data, got %T", event.Data)
	}
}

func TestEventsHandler_EchoesURLVerificationChallenge(t *testing.T) {
	sink := &recordingSink{}
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), sink)

	body := `{"token":"legacy","challenge":"abc123","type":"url_verification"}`
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "abc123" {
		t.Fatalf("expected challenge echo, got %q", rec.Body.String())
	}
	if sink.count() != 0 {
		t.Fatalf("expected no routed events for a challenge")
	}
}

func TestEventsHandler_BadSignatureNeverReachesRouter(t *testing.T) {
	router := inbound.NewRouter()
	routed := false
	router.RegisterFunc("app_mention", func(context.Context, inbound.Event) error {
		routed = true
		return nil
	})
	sink := NewPoolSink(router, 1, nil)
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), sink)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newSignedRequest(appMentionBody, "not-the-secret"))
	sink.Close()

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if routed {
		t.Fatalf("expected router not to be invoked")
	}
}

func TestEventsHandler_MalformedBodyIsAcknowledgedAsError(t *testing.T) {
	sink := &recordingSink{}
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), sink)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newSignedRequest(`{"type":`, testSigningSecret))

	if rec.Code != http.StatusOK || rec.Body.String() != "Error" {
		t.Fatalf("expected 200 Error, got %d %q", rec.Code, rec.Body.String())
	}
	if sink.count() != 0 {
		t.Fatalf("expected nothing submitted for malformed body")
	}
}

func TestEventsHandler_CallbackWithoutEventIDIsRejected(t *testing.T) {
	sink := &recordingSink{}
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), sink)

	body := `{"type":"event_callback","event":{"type":"app_mention"}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newSignedRequest(body, testSigningSecret))

	if rec.Body.String() != "Error" {
		t.Fatalf("expected Error body, got %q", rec.Body.String())
	}
	if sink.count() != 0 {
		t.Fatalf("expected nothing submitted")
	}
}

func TestEventsHandler_DisabledReturnsNotFound(t *testing.T) {
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), &recordingSink{}, WithEventsEnabled(false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newSignedRequest(appMentionBody, testSigningSecret))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEventsHandler_RejectsNonPost(t *testing.T) {
	handler := NewEventsHandler(NewSlackSignatureVerifier(testSigningSecret, 0), &recordingSink{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slack/events", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
