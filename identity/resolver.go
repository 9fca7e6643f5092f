package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/slack-go/slack"
)

const (
	KindChannel      = "channel"
	KindUser         = "user"
	KindConversation = "conversation"
)

const defaultPageSize = 200

var (
	conversationIDPattern = regexp.MustCompile(`^[CDG][A-Z0-9]{8,}$`)
	userIDPattern         = regexp.MustCompile(`^[UW][A-Z0-9]{8,}$`)
)

var ErrNotFound = errors.New("identity: identifier not found")

type NotFoundError struct {
	Kind       string
	Identifier string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("identity: %s %q not found", e.Kind, e.Identifier)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func (e *NotFoundError) ToServiceError() *goerrors.Error {
	if e == nil {
		return core.NewError(ErrNotFound.Error(), goerrors.CategoryNotFound, core.ErrorNotFound)
	}
	return goerrors.New(e.Error(), goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.ErrorNotFound).
		WithMetadata(map[string]any{
			"kind":       e.Kind,
			"identifier": e.Identifier,
		})
}

func notFound(kind string, identifier string) error {
	return &NotFoundError{Kind: kind, Identifier: identifier}
}

// Directory is the subset of the Slack Web API used for resolution. *slack.Client
// satisfies it.
type Directory interface {
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
}

type Options struct {
	IncludePrivate      bool
	IncludeArchived     bool
	AllowDirectMessages bool
	PageSize            int
}

func OptionsFromConfig(cfg core.SlackConfig) Options {
	return Options{
		IncludePrivate:      cfg.IncludePrivate,
		IncludeArchived:     cfg.IncludeArchived,
		AllowDirectMessages: cfg.AllowDirectMessages,
	}
}

func IsConversationID(identifier string) bool {
	return conversationIDPattern.MatchString(strings.TrimSpace(identifier))
}

func IsUserID(identifier string) bool {
	return userIDPattern.MatchString(strings.TrimSpace(identifier))
}

func IsCanonicalID(identifier string) bool {
	return IsConversationID(identifier) || IsUserID(identifier)
}

// Resolver maps human-friendly references to canonical Slack IDs. Every call
// lists fresh; nothing is cached between calls.
type Resolver struct {
	Logger core.Logger
}

func NewResolver(logger core.Logger) *Resolver {
	if logger == nil {
		logger = glog.Nop()
	}
	return &Resolver{Logger: logger}
}

func (r *Resolver) ResolveChannel(ctx context.Context, api Directory, identifier string, opts Options) (string, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return "", identityBadInput("identity: channel identifier is required")
	}
	if IsConversationID(raw) {
		return raw, nil
	}
	if api == nil {
		return "", identityDependencyError("identity: slack directory is required")
	}
	name := stripSigil(raw)
	if IsConversationID(name) {
		return name, nil
	}

	params := &slack.GetConversationsParameters{
		Types:           channelTypes(opts),
		ExcludeArchived: !opts.IncludeArchived,
		Limit:           pageSize(opts),
	}
	folded := ""
	for {
		channels, cursor, err := api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", err
		}
		for _, channel := range channels {
			if channel.Name == name {
				r.debug(ctx, "identity: channel resolved", KindChannel, raw, channel.ID)
				return channel.ID, nil
			}
			if folded == "" && strings.EqualFold(channel.Name, name) {
				folded = channel.ID
			}
		}
		if strings.TrimSpace(cursor) == "" {
			break
		}
		params.Cursor = cursor
	}
	if folded != "" {
		r.debug(ctx, "identity: channel resolved case-insensitively", KindChannel, raw, folded)
		return folded, nil
	}
	return "", notFound(KindChannel, raw)
}

func (r *Resolver) ResolveUser(ctx context.Context, api Directory, identifier string) (string, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return "", identityBadInput("identity: user identifier is required")
	}
	if IsUserID(raw) {
		return raw, nil
	}
	if api == nil {
		return "", identityDependencyError("identity: slack directory is required")
	}
	name := stripSigil(raw)
	if IsUserID(name) {
		return name, nil
	}

	users, err := api.GetUsersContext(ctx, slack.GetUsersOptionLimit(defaultPageSize))
	if err != nil {
		return "", err
	}
	if id := matchUser(users, name, func(a, b string) bool { return a == b }); id != "" {
		r.debug(ctx, "identity: user resolved", KindUser, raw, id)
		return id, nil
	}
	if id := matchUser(users, name, strings.EqualFold); id != "" {
		r.debug(ctx, "identity: user resolved case-insensitively", KindUser, raw, id)
		return id, nil
	}
	return "", notFound(KindUser, raw)
}

// ResolveConversation tries, in order: a canonical conversation ID, a DM with a
// user ID, a DM with a username, then a channel name.
func (r *Resolver) ResolveConversation(ctx context.Context, api Directory, identifier string, opts Options) (string, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return "", identityBadInput("identity: conversation identifier is required")
	}
	if IsConversationID(raw) {
		return raw, nil
	}
	if api == nil {
		return "", identityDependencyError("identity: slack directory is required")
	}

	name := stripSigil(raw)
	isChannelRef := strings.HasPrefix(raw, "#")

	if !isChannelRef && IsUserID(name) {
		if id, err := r.openDirectMessage(ctx, api, name); err == nil {
			return id, nil
		} else {
			r.warn(ctx, "identity: direct message open failed, trying channels", raw, err)
		}
	} else if !isChannelRef && opts.AllowDirectMessages {
		userID, err := r.ResolveUser(ctx, api, name)
		if err == nil {
			if id, openErr := r.openDirectMessage(ctx, api, userID); openErr == nil {
				return id, nil
			} else {
				r.warn(ctx, "identity: direct message open failed, trying channels", raw, openErr)
			}
		} else if !errors.Is(err, ErrNotFound) {
			r.warn(ctx, "identity: user lookup failed, trying channels", raw, err)
		}
	}

	id, err := r.ResolveChannel(ctx, api, raw, opts)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return "", notFound(KindConversation, raw)
		}
		return "", err
	}
	return id, nil
}

func (r *Resolver) openDirectMessage(ctx context.Context, api Directory, userID string) (string, error) {
	channel, _, _, err := api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", err
	}
	if channel == nil || strings.TrimSpace(channel.ID) == "" {
		return "", notFound(KindConversation, userID)
	}
	r.debug(ctx, "identity: direct message opened", KindUser, userID, channel.ID)
	return channel.ID, nil
}

func matchUser(users []slack.User, name string, equal func(a, b string) bool) string {
	for _, user := range users {
		if user.Deleted {
			continue
		}
		candidates := []string{user.Name, user.Profile.DisplayName, user.RealName}
		for _, candidate := range candidates {
			if strings.TrimSpace(candidate) == "" {
				continue
			}
			if equal(candidate, name) {
				return user.ID
			}
		}
	}
	return ""
}

func stripSigil(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.HasPrefix(identifier, "#") || strings.HasPrefix(identifier, "@") {
		return strings.TrimSpace(identifier[1:])
	}
	return identifier
}

func channelTypes(opts Options) []string {
	types := []string{"public_channel"}
	if opts.IncludePrivate {
		types = append(types, "private_channel")
	}
	return types
}

func pageSize(opts Options) int {
	if opts.PageSize > 0 {
		return opts.PageSize
	}
	return defaultPageSize
}

func (r *Resolver) debug(ctx context.Context, message string, kind string, identifier string, id string) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.WithContext(ctx).Debug(message, "kind", kind, "identifier", identifier, "id", id)
}

func (r *Resolver) warn(ctx context.Context, message string, identifier string, err error) {
	if r == nil || r.Logger == nil {
		return
	}
	r.Logger.WithContext(ctx).Warn(message, "identifier", identifier, "error", err)
}
