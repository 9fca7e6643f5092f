package command

import (
	"strings"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
)

const (
	TypeRouteEvent       = "mods.command.events.route"
	TypeSaveCredential   = "mods.command.credentials.save"
	TypeRevokeCredential = "mods.command.credentials.revoke"
)

type RouteEventMessage struct {
	Event inbound.Event
}

func (RouteEventMessage) Type() string { return TypeRouteEvent }

func (m RouteEventMessage) Validate() error {
	if strings.TrimSpace(m.Event.ID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	if strings.TrimSpace(m.Event.Type) == "" {
		return commandValidationError("type", "event type is required")
	}
	return nil
}

type SaveCredentialMessage struct {
	Input core.SaveCredentialInput
}

func (SaveCredentialMessage) Type() string { return TypeSaveCredential }

func (m SaveCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Input.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.Input.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	if strings.TrimSpace(m.Input.Token) == "" {
		return commandValidationError("token", "token is required")
	}
	return nil
}

type RevokeCredentialMessage struct {
	Provider string
	UserID   string
	Reason   string
}

func (RevokeCredentialMessage) Type() string { return TypeRevokeCredential }

func (m RevokeCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Provider) == "" {
		return commandValidationError("provider", "provider is required")
	}
	if strings.TrimSpace(m.UserID) == "" {
		return commandValidationError("user_id", "user id is required")
	}
	return nil
}
