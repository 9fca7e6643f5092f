package mods

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
	"github.com/goliatone/go-mods/response"
)

const (
	EventTokensRevoked  = "tokens_revoked"
	EventAppUninstalled = "app_uninstalled"
	EventAppMention     = "app_mention"

	botCredentialUserID = "bot"
)

func (r *Runtime) registerBuiltinHandlers() error {
	return errors.Join(
		r.Router.RegisterFunc(EventTokensRevoked, r.handleTokensRevoked),
		r.Router.RegisterFunc(EventAppUninstalled, r.handleAppUninstalled),
		r.Router.RegisterFunc(EventAppMention, r.handleAppMention),
	)
}

type tokensRevokedPayload struct {
	Tokens struct {
		OAuth []string `json:"oauth"`
		Bot   []string `json:"bot"`
	} `json:"tokens"`
}

// handleTokensRevoked drops the stored Slack credentials of every user whose
// OAuth token Slack reports as revoked.
func (r *Runtime) handleTokensRevoked(ctx context.Context, event inbound.Event) error {
	var users []string
	if typed, ok := event.Data.(*slackevents.TokensRevokedEvent); ok && typed != nil {
		users = append(users, typed.Tokens.Oauth...)
	} else {
		var payload tokensRevokedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return core.WrapError(err, goerrors.CategoryBadInput, core.ErrorParse, "mods: tokens_revoked payload is malformed")
		}
		users = payload.Tokens.OAuth
	}

	var errs []error
	for _, userID := range users {
		if strings.TrimSpace(userID) == "" {
			continue
		}
		if err := r.RevokeCredential(ctx, core.ProviderSlack, userID, EventTokensRevoked); err != nil && core.TextCode(err) != core.ErrorAuth {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleAppUninstalled revokes every Slack credential of the workspace. Stores
// that cannot list by team are left alone and the event is logged.
func (r *Runtime) handleAppUninstalled(ctx context.Context, event inbound.Event) error {
	teamID := strings.TrimSpace(event.TeamID)
	if teamID == "" {
		return core.NewError("mods: app_uninstalled event has no team id", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	lister, ok := r.Credentials.(core.TeamCredentialLister)
	if !ok {
		r.Logger.Warn("mods: credential store cannot list by team; skipping uninstall cleanup", "team_id", teamID)
		return nil
	}
	credentials, err := lister.ListByTeam(ctx, core.ProviderSlack, teamID)
	if err != nil {
		return err
	}
	var errs []error
	for _, cred := range credentials {
		if err := r.RevokeCredential(ctx, core.ProviderSlack, cred.UserID, EventAppUninstalled); err != nil && core.TextCode(err) != core.ErrorAuth {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// handleAppMention answers in-thread with the list of available actions. It
// needs slack.bot_token and ignores messages posted by bots.
func (r *Runtime) handleAppMention(ctx context.Context, event inbound.Event) error {
	token := strings.TrimSpace(r.Config.Slack.BotToken)
	if token == "" {
		r.Logger.Debug("mods: app_mention ignored without a bot token", "event_id", event.ID)
		return nil
	}
	mention, err := appMention(event)
	if err != nil {
		return err
	}
	if mention.BotID != "" || mention.Channel == "" {
		return nil
	}

	handle, err := r.Pool.Get(core.Credential{
		Provider: core.ProviderSlack,
		UserID:   botCredentialUserID,
		TeamID:   event.TeamID,
		Token:    token,
	})
	if err != nil {
		return err
	}
	threadTS := mention.ThreadTimeStamp
	if threadTS == "" {
		threadTS = mention.TimeStamp
	}
	_, err = response.Execute(ctx, r.Handler(core.ProviderSlack), "chat.postMessage", func(ctx context.Context) (string, error) {
		_, ts, err := handle.Client.PostMessageContext(ctx, mention.Channel,
			slack.MsgOptionText(r.helpText(mention.User), false),
			slack.MsgOptionTS(threadTS),
		)
		return ts, err
	},
		response.WithScope(event.TeamID),
		response.WithFields(map[string]any{"event_id": event.ID, "channel": mention.Channel}),
	)
	return err
}

func appMention(event inbound.Event) (*slackevents.AppMentionEvent, error) {
	if typed, ok := event.Data.(*slackevents.AppMentionEvent); ok && typed != nil {
		return typed, nil
	}
	mention := &slackevents.AppMentionEvent{}
	if err := json.Unmarshal(event.Payload, mention); err != nil {
		return nil, core.WrapError(err, goerrors.CategoryBadInput, core.ErrorParse, "mods: app_mention payload is malformed")
	}
	return mention, nil
}

func (r *Runtime) helpText(userID string) string {
	names := r.Actions.Names()
	sort.Strings(names)
	var b strings.Builder
	if userID != "" {
		fmt.Fprintf(&b, "Hi <@%s>! ", userID)
	}
	b.WriteString("I can run these actions:")
	for _, name := range names {
		b.WriteString("\n• `" + name + "`")
	}
	return b.String()
}
