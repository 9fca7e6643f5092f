package slackmod

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/identity"
	"github.com/goliatone/go-mods/response"
	"github.com/slack-go/slack"
)

func (m *Module) ListChannels(ctx context.Context, req actions.Request) (map[string]any, error) {
	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	limit := actions.Int(req.Params, "limit", defaultListLimit, maxListLimit)
	types := []string{"public_channel"}
	if actions.Bool(req.Params, "include_private", m.Options.IncludePrivate) {
		types = append(types, "private_channel")
	}

	channels, err := response.Execute(ctx, m.Handler, "conversations.list", func(ctx context.Context) ([]slack.Channel, error) {
		params := &slack.GetConversationsParameters{
			Types:           types,
			ExcludeArchived: !m.Options.IncludeArchived,
			Limit:           min(limit, 200),
		}
		collected := make([]slack.Channel, 0, limit)
		for len(collected) < limit {
			page, cursor, err := s.client.GetConversationsContext(ctx, params)
			if err != nil {
				return nil, err
			}
			collected = append(collected, page...)
			if strings.TrimSpace(cursor) == "" {
				break
			}
			params.Cursor = cursor
		}
		if len(collected) > limit {
			collected = collected[:limit]
		}
		return collected, nil
	}, m.fields(s, req)...)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(channels))
	for _, channel := range channels {
		out = append(out, map[string]any{
			"id":          channel.ID,
			"name":        channel.Name,
			"is_private":  channel.IsPrivate,
			"is_archived": channel.IsArchived,
			"num_members": channel.NumMembers,
		})
	}
	return map[string]any{"channels": out, "count": len(out)}, nil
}

func (m *Module) ListUsers(ctx context.Context, req actions.Request) (map[string]any, error) {
	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	limit := actions.Int(req.Params, "limit", defaultListLimit, maxListLimit)

	users, err := response.Execute(ctx, m.Handler, "users.list", func(ctx context.Context) ([]slack.User, error) {
		return s.client.GetUsersContext(ctx, slack.GetUsersOptionLimit(min(limit, 200)))
	}, m.fields(s, req)...)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, min(len(users), limit))
	for _, user := range users {
		if user.Deleted {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, map[string]any{
			"id":           user.ID,
			"name":         user.Name,
			"real_name":    user.RealName,
			"display_name": user.Profile.DisplayName,
			"is_bot":       user.IsBot,
		})
	}
	return map[string]any{"users": out, "count": len(out)}, nil
}

func (m *Module) OpenDM(ctx context.Context, req actions.Request) (map[string]any, error) {
	target, err := actions.RequireString(req.Params, "user")
	if err != nil {
		return nil, err
	}
	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	userID, err := m.resolveUser(ctx, s, req, target)
	if err != nil {
		return nil, err
	}
	channel, err := response.Execute(ctx, m.Handler, "conversations.open", func(ctx context.Context) (*slack.Channel, error) {
		channel, _, _, err := s.client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
			Users:    []string{userID},
			ReturnIM: true,
		})
		return channel, err
	}, m.fields(s, req)...)
	if err != nil {
		return nil, err
	}
	if channel == nil || channel.ID == "" {
		return nil, &identity.NotFoundError{Kind: identity.KindConversation, Identifier: target}
	}
	return map[string]any{"channel": channel.ID, "user": userID}, nil
}

// ResolveIdentifier maps a name to its canonical ID. kind is one of channel,
// user or conversation (default).
func (m *Module) ResolveIdentifier(ctx context.Context, req actions.Request) (map[string]any, error) {
	identifier, err := actions.RequireString(req.Params, "identifier")
	if err != nil {
		return nil, err
	}
	kind := strings.ToLower(actions.String(req.Params, "kind"))
	if kind == "" {
		kind = identity.KindConversation
	}
	if identity.IsCanonicalID(identifier) {
		return map[string]any{"id": identifier, "kind": kind, "identifier": identifier}, nil
	}

	s, err := m.session(ctx, req)
	if err != nil {
		return nil, err
	}
	var id string
	switch kind {
	case identity.KindChannel:
		id, err = m.resolveChannel(ctx, s, req, identifier)
	case identity.KindUser:
		id, err = m.resolveUser(ctx, s, req, identifier)
	case identity.KindConversation:
		id, err = m.resolveConversation(ctx, s, req, identifier)
	default:
		return nil, core.NewError("slackmod: unsupported identifier kind "+kind, goerrors.CategoryBadInput, core.ErrorBadInput).
			WithMetadata(map[string]any{"kind": kind})
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "kind": kind, "identifier": identifier}, nil
}
