package query

import (
	"strings"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/identity"
)

const (
	TypeResolveIdentifier = "mods.query.identity.resolve"
	TypeDispatchAction    = "mods.query.actions.dispatch"
	TypeListActions       = "mods.query.actions.list"
)

type ResolveIdentifierMessage struct {
	UserID     string
	Kind       string
	Identifier string
}

func (ResolveIdentifierMessage) Type() string { return TypeResolveIdentifier }

func (m ResolveIdentifierMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return queryValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.Identifier) == "" {
		return queryValidationError("identifier", "identifier is required")
	}
	switch strings.ToLower(strings.TrimSpace(m.Kind)) {
	case "", identity.KindChannel, identity.KindUser, identity.KindConversation:
		return nil
	default:
		return queryValidationError("kind", "kind must be channel, user or conversation")
	}
}

type ResolvedIdentifier struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	ID         string `json:"id"`
}

// DispatchActionMessage is a query because the dispatcher always answers with a
// result payload; failures are part of the payload.
type DispatchActionMessage struct {
	Call actions.Call
}

func (DispatchActionMessage) Type() string { return TypeDispatchAction }

func (m DispatchActionMessage) Validate() error {
	if strings.TrimSpace(m.Call.Name) == "" {
		return queryValidationError("name", "action name is required")
	}
	return nil
}

type ListActionsMessage struct{}

func (ListActionsMessage) Type() string { return TypeListActions }

func (ListActionsMessage) Validate() error { return nil }
