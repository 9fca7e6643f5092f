// Package slackmod exposes Slack Web API calls as AI actions. Every call runs
// with the invoking user's stored token through the shared response handler.
package slackmod

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/identity"
	"github.com/goliatone/go-mods/response"
	"github.com/goliatone/go-mods/transport"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/slack-go/slack"
)

const (
	ActionSendMessage       = "send_message"
	ActionListChannels      = "list_channels"
	ActionListUsers         = "list_users"
	ActionGetChannelHistory = "get_channel_history"
	ActionAddReaction       = "add_reaction"
	ActionOpenDM            = "open_dm"
	ActionResolveIdentifier = "resolve_identifier"
)

const (
	defaultListLimit    = 100
	maxListLimit        = 1000
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type Option func(*Module)

func WithLogger(logger core.Logger) Option {
	return func(m *Module) {
		if logger != nil {
			m.Logger = logger
		}
	}
}

func WithResolver(resolver *identity.Resolver) Option {
	return func(m *Module) {
		if resolver != nil {
			m.Resolver = resolver
		}
	}
}

func WithResolveOptions(opts identity.Options) Option {
	return func(m *Module) {
		m.Options = opts
	}
}

type Module struct {
	Credentials core.CredentialStore
	Pool        *transport.ClientPool
	Handler     *response.Handler
	Resolver    *identity.Resolver
	Options     identity.Options
	Logger      core.Logger
}

func NewModule(credentials core.CredentialStore, pool *transport.ClientPool, handler *response.Handler, opts ...Option) *Module {
	module := &Module{
		Credentials: credentials,
		Pool:        pool,
		Handler:     handler,
		Options:     identity.OptionsFromConfig(core.DefaultConfig().Slack),
		Logger:      glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(module)
		}
	}
	if module.Resolver == nil {
		module.Resolver = identity.NewResolver(module.Logger)
	}
	return module
}

func (m *Module) RegisterActions(d *actions.Dispatcher) error {
	if m == nil {
		return core.NewError("slackmod: module is nil", goerrors.CategoryInternal, core.ErrorInternal)
	}
	handlers := map[string]actions.HandlerFunc{
		ActionSendMessage:       m.SendMessage,
		ActionListChannels:      m.ListChannels,
		ActionListUsers:         m.ListUsers,
		ActionGetChannelHistory: m.GetChannelHistory,
		ActionAddReaction:       m.AddReaction,
		ActionOpenDM:            m.OpenDM,
		ActionResolveIdentifier: m.ResolveIdentifier,
	}
	for _, name := range []string{
		ActionSendMessage,
		ActionListChannels,
		ActionListUsers,
		ActionGetChannelHistory,
		ActionAddReaction,
		ActionOpenDM,
		ActionResolveIdentifier,
	} {
		if err := d.Register(name, handlers[name]); err != nil {
			return err
		}
	}
	return nil
}

type session struct {
	credential core.Credential
	client     *slack.Client
}

func (m *Module) session(ctx context.Context, req actions.Request) (session, error) {
	if m.Credentials == nil || m.Pool == nil {
		return session{}, core.NewError("slackmod: credentials and client pool are required", goerrors.CategoryInternal, core.ErrorInternal)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return session{}, core.NewError("slackmod: calling user is required", goerrors.CategoryBadInput, core.ErrorBadInput).
			WithMetadata(map[string]any{"action": req.Name})
	}
	cred, err := m.Credentials.Get(ctx, core.ProviderSlack, userID)
	if err != nil {
		return session{}, err
	}
	handle, err := m.Pool.Get(cred)
	if err != nil {
		return session{}, err
	}
	return session{credential: cred, client: handle.Client}, nil
}

func (m *Module) fields(s session, req actions.Request) []response.ExecuteOption {
	return []response.ExecuteOption{
		response.WithScope(s.credential.TeamID),
		response.WithFields(map[string]any{
			"action":  req.Name,
			"user_id": req.UserID,
			"team_id": s.credential.TeamID,
		}),
	}
}

func (m *Module) resolveConversation(ctx context.Context, s session, req actions.Request, identifier string) (string, error) {
	return response.Execute(ctx, m.Handler, "conversations.resolve", func(ctx context.Context) (string, error) {
		return m.Resolver.ResolveConversation(ctx, s.client, identifier, m.Options)
	}, m.fields(s, req)...)
}

func (m *Module) resolveChannel(ctx context.Context, s session, req actions.Request, identifier string) (string, error) {
	return response.Execute(ctx, m.Handler, "conversations.resolve", func(ctx context.Context) (string, error) {
		return m.Resolver.ResolveChannel(ctx, s.client, identifier, m.Options)
	}, m.fields(s, req)...)
}

func (m *Module) resolveUser(ctx context.Context, s session, req actions.Request, identifier string) (string, error) {
	return response.Execute(ctx, m.Handler, "users.resolve", func(ctx context.Context) (string, error) {
		return m.Resolver.ResolveUser(ctx, s.client, identifier)
	}, m.fields(s, req)...)
}
