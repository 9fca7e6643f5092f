package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-mods/actions"
	"github.com/goliatone/go-mods/identity"
)

type IdentifierResolver interface {
	ResolveIdentifier(ctx context.Context, userID string, kind string, identifier string) (string, error)
}

type ActionDispatcher interface {
	Dispatch(ctx context.Context, call actions.Call) map[string]any
	Names() []string
}

type ResolveIdentifierQuery struct {
	resolver IdentifierResolver
}

func NewResolveIdentifierQuery(resolver IdentifierResolver) *ResolveIdentifierQuery {
	return &ResolveIdentifierQuery{resolver: resolver}
}

func (q *ResolveIdentifierQuery) Query(ctx context.Context, msg ResolveIdentifierMessage) (ResolvedIdentifier, error) {
	if q == nil || q.resolver == nil {
		return ResolvedIdentifier{}, queryDependencyError("query: identifier resolver is required")
	}
	kind := strings.ToLower(strings.TrimSpace(msg.Kind))
	if kind == "" {
		kind = identity.KindConversation
	}
	id, err := q.resolver.ResolveIdentifier(ctx, msg.UserID, kind, msg.Identifier)
	if err != nil {
		return ResolvedIdentifier{}, err
	}
	return ResolvedIdentifier{Kind: kind, Identifier: strings.TrimSpace(msg.Identifier), ID: id}, nil
}

type DispatchActionQuery struct {
	dispatcher ActionDispatcher
}

func NewDispatchActionQuery(dispatcher ActionDispatcher) *DispatchActionQuery {
	return &DispatchActionQuery{dispatcher: dispatcher}
}

func (q *DispatchActionQuery) Query(ctx context.Context, msg DispatchActionMessage) (map[string]any, error) {
	if q == nil || q.dispatcher == nil {
		return nil, queryDependencyError("query: action dispatcher is required")
	}
	return q.dispatcher.Dispatch(ctx, msg.Call), nil
}

type ListActionsQuery struct {
	dispatcher ActionDispatcher
}

func NewListActionsQuery(dispatcher ActionDispatcher) *ListActionsQuery {
	return &ListActionsQuery{dispatcher: dispatcher}
}

func (q *ListActionsQuery) Query(_ context.Context, _ ListActionsMessage) ([]string, error) {
	if q == nil || q.dispatcher == nil {
		return nil, queryDependencyError("query: action dispatcher is required")
	}
	return q.dispatcher.Names(), nil
}
