package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/identity"
)

func TestDispatcher_MergesHandlerDataIntoSuccessPayload(t *testing.T) {
	dispatcher := NewDispatcher()
	var got Request
	if err := dispatcher.RegisterFunc("echo", func(_ context.Context, req Request) (map[string]any, error) {
		got = req
		return map[string]any{"text": String(req.Params, "text")}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	result := dispatcher.Dispatch(context.Background(), Call{
		Name:       " Echo ",
		Parameters: `["{\"text\":\"hello\"}"]`,
		Meta:       Meta{User: User{ID: "U123"}},
	})
	if result["success"] != true {
		t.Fatalf("expected success, got %#v", result)
	}
	if result["text"] != "hello" {
		t.Fatalf("expected normalized parameters to reach the handler, got %#v", result)
	}
	if got.UserID != "U123" || got.Name != "echo" {
		t.Fatalf("unexpected request %#v", got)
	}
}

func TestDispatcher_UnknownActionReturnsNotFoundPayload(t *testing.T) {
	result := NewDispatcher().Dispatch(context.Background(), Call{Name: "missing"})
	if result["success"] != false {
		t.Fatalf("expected failure payload, got %#v", result)
	}
	if result["code"] != core.ErrorActionNotRegistered {
		t.Fatalf("expected %s, got %#v", core.ErrorActionNotRegistered, result["code"])
	}
}

func TestDispatcher_MissingNameIsBadInput(t *testing.T) {
	result := NewDispatcher().Dispatch(context.Background(), Call{})
	if result["code"] != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT, got %#v", result)
	}
	if result["retryable"] != false {
		t.Fatalf("expected bad input to be non-retryable")
	}
}

func TestDispatcher_RecoversHandlerPanics(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.RegisterFunc("boom", func(context.Context, Request) (map[string]any, error) {
		panic("kaboom")
	})
	result := dispatcher.Dispatch(context.Background(), Call{Name: "boom"})
	if result["success"] != false || result["code"] != core.ErrorInternal {
		t.Fatalf("expected INTERNAL failure payload, got %#v", result)
	}
}

func TestDispatcher_RendersHandlerErrors(t *testing.T) {
	dispatcher := NewDispatcher()
	dispatcher.RegisterFunc("lookup", func(context.Context, Request) (map[string]any, error) {
		return nil, &identity.NotFoundError{Kind: identity.KindChannel, Identifier: "#nosuch"}
	})
	dispatcher.RegisterFunc("flaky", func(context.Context, Request) (map[string]any, error) {
		return nil, errors.New("socket closed")
	})

	notFound := dispatcher.Dispatch(context.Background(), Call{Name: "lookup"})
	if notFound["code"] != core.ErrorNotFound || notFound["identifier"] != "#nosuch" {
		t.Fatalf("expected not found payload with identifier, got %#v", notFound)
	}
	flaky := dispatcher.Dispatch(context.Background(), Call{Name: "flaky"})
	if flaky["success"] != false || flaky["error"] == "" {
		t.Fatalf("expected failure payload, got %#v", flaky)
	}
}

func TestDispatcher_RegisterRejectsDuplicatesAndBlanks(t *testing.T) {
	dispatcher := NewDispatcher()
	noop := func(context.Context, Request) (map[string]any, error) { return nil, nil }
	if err := dispatcher.RegisterFunc("list_users", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := dispatcher.RegisterFunc("LIST_USERS", noop); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := dispatcher.RegisterFunc(" ", noop); core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT for blank name, got %v", err)
	}
	if err := dispatcher.Register("other", nil); err == nil {
		t.Fatalf("expected nil handler to be rejected")
	}
	if names := dispatcher.Names(); len(names) != 1 || names[0] != "list_users" {
		t.Fatalf("unexpected names %#v", names)
	}
}

type registrarFunc func(d *Dispatcher) error

func (f registrarFunc) RegisterActions(d *Dispatcher) error { return f(d) }

func TestDispatcher_InstallStopsAtFirstError(t *testing.T) {
	dispatcher := NewDispatcher()
	calls := 0
	err := dispatcher.Install(
		registrarFunc(func(*Dispatcher) error { calls++; return errors.New("broken module") }),
		registrarFunc(func(*Dispatcher) error { calls++; return nil }),
	)
	if err == nil || calls != 1 {
		t.Fatalf("expected install to stop at the first failure, calls=%d err=%v", calls, err)
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"limit":   float64(500),
		"small":   "7",
		"neg":     -3,
		"private": "true",
		"name":    "  general ",
	}
	if got := Int(params, "limit", 20, 100); got != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", got)
	}
	if got := Int(params, "small", 20, 100); got != 7 {
		t.Fatalf("expected numeric string to parse, got %d", got)
	}
	if got := Int(params, "neg", 20, 100); got != 20 {
		t.Fatalf("expected fallback for negative value, got %d", got)
	}
	if !Bool(params, "private", false) || Bool(params, "absent", false) {
		t.Fatalf("unexpected bool parsing")
	}
	if String(params, "name") != "general" {
		t.Fatalf("expected trimmed string")
	}
	if _, err := RequireString(params, "missing"); core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected BAD_INPUT for missing field, got %v", err)
	}
}
