package query

import (
	"context"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/identity"
)

type stubResolver struct {
	resolveFn func(ctx context.Context, userID string, kind string, identifier string) (string, error)
}

func (s stubResolver) ResolveIdentifier(ctx context.Context, userID string, kind string, identifier string) (string, error) {
	return s.resolveFn(ctx, userID, kind, identifier)
}

func TestResolveIdentifierQuery_DefaultsToConversation(t *testing.T) {
	resolver := stubResolver{resolveFn: func(_ context.Context, userID string, kind string, identifier string) (string, error) {
		if userID != "U1" || kind != identity.KindConversation || identifier != "#general" {
			t.Fatalf("unexpected resolve request %q %q %q", userID, kind, identifier)
		}
		return "C0GENERAL01", nil
	}}
	result, err := NewResolveIdentifierQuery(resolver).Query(context.Background(), ResolveIdentifierMessage{
		UserID:     "U1",
		Identifier: " #general ",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result.ID != "C0GENERAL01" || result.Kind != identity.KindConversation || result.Identifier != "#general" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestResolveIdentifierQuery_PropagatesNotFound(t *testing.T) {
	resolver := stubResolver{resolveFn: func(context.Context, string, string, string) (string, error) {
		return "", &identity.NotFoundError{Kind: identity.KindChannel, Identifier: "#nosuch"}
	}}
	_, err := NewResolveIdentifierQuery(resolver).Query(context.Background(), ResolveIdentifierMessage{
		UserID:     "U1",
		Kind:       "channel",
		Identifier: "#nosuch",
	})
	if err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestDispatchActionQuery_ReturnsPayload(t *testing.T) {
	dispatcher := actions.NewDispatcher()
	dispatcher.RegisterFunc("ping", func(context.Context, actions.Request) (map[string]any, error) {
		return map[string]any{"pong": true}, nil
	})

	result, err := NewDispatchActionQuery(dispatcher).Query(context.Background(), DispatchActionMessage{Call: actions.Call{Name: "ping"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if result["success"] != true || result["pong"] != true {
		t.Fatalf("unexpected payload %#v", result)
	}

	names, err := NewListActionsQuery(dispatcher).Query(context.Background(), ListActionsMessage{})
	if err != nil || len(names) != 1 || names[0] != "ping" {
		t.Fatalf("unexpected action names %#v (%v)", names, err)
	}
}

func TestMessages_ValidateReturnsRichErrors(t *testing.T) {
	cases := []struct {
		name string
		msg  interface{ Validate() error }
	}{
		{name: "missing user", msg: ResolveIdentifierMessage{Identifier: "#general"}},
		{name: "unknown kind", msg: ResolveIdentifierMessage{UserID: "U1", Identifier: "x", Kind: "team"}},
		{name: "missing action", msg: DispatchActionMessage{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.msg.Validate(), &rich) {
				t.Fatalf("expected go-errors envelope")
			}
			if rich.TextCode != core.ErrorBadInput {
				t.Fatalf("expected BAD_INPUT, got %q", rich.TextCode)
			}
		})
	}
}

func TestQueries_NilDependenciesReturnInternalErrors(t *testing.T) {
	var q *DispatchActionQuery
	if _, err := q.Query(context.Background(), DispatchActionMessage{}); core.TextCode(err) != core.ErrorInternal {
		t.Fatalf("expected INTERNAL, got %v", err)
	}
	if _, err := NewResolveIdentifierQuery(nil).Query(context.Background(), ResolveIdentifierMessage{}); core.TextCode(err) != core.ErrorInternal {
		t.Fatalf("expected INTERNAL, got %v", err)
	}
}
