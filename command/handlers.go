package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
)

type EventRouter interface {
	Route(ctx context.Context, event inbound.Event) (inbound.Outcome, error)
}

// CredentialManager saves and revokes tokens. Revocation also drops any pooled
// client bound to the revoked token.
type CredentialManager interface {
	SaveCredential(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error)
	RevokeCredential(ctx context.Context, provider string, userID string, reason string) error
}

type RouteEventCommand struct {
	router EventRouter
}

func NewRouteEventCommand(router EventRouter) *RouteEventCommand {
	return &RouteEventCommand{router: router}
}

func (c *RouteEventCommand) Execute(ctx context.Context, msg RouteEventMessage) error {
	if c == nil || c.router == nil {
		return commandDependencyError("command: event router is required")
	}
	outcome, err := c.router.Route(ctx, msg.Event)
	if err != nil {
		return err
	}
	storeResult(ctx, outcome)
	return nil
}

type SaveCredentialCommand struct {
	credentials CredentialManager
}

func NewSaveCredentialCommand(credentials CredentialManager) *SaveCredentialCommand {
	return &SaveCredentialCommand{credentials: credentials}
}

func (c *SaveCredentialCommand) Execute(ctx context.Context, msg SaveCredentialMessage) error {
	if c == nil || c.credentials == nil {
		return commandDependencyError("command: credential manager is required")
	}
	saved, err := c.credentials.SaveCredential(ctx, msg.Input)
	if err != nil {
		return err
	}
	saved.Token = ""
	storeResult(ctx, saved)
	return nil
}

type RevokeCredentialCommand struct {
	credentials CredentialManager
}

func NewRevokeCredentialCommand(credentials CredentialManager) *RevokeCredentialCommand {
	return &RevokeCredentialCommand{credentials: credentials}
}

func (c *RevokeCredentialCommand) Execute(ctx context.Context, msg RevokeCredentialMessage) error {
	if c == nil || c.credentials == nil {
		return commandDependencyError("command: credential manager is required")
	}
	return c.credentials.RevokeCredential(ctx, msg.Provider, msg.UserID, msg.Reason)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
