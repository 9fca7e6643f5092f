package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-mods/actions"
)

var (
	_ gocmd.Querier[ResolveIdentifierMessage, ResolvedIdentifier] = (*ResolveIdentifierQuery)(nil)
	_ gocmd.Querier[DispatchActionMessage, map[string]any]        = (*DispatchActionQuery)(nil)
	_ gocmd.Querier[ListActionsMessage, []string]                 = (*ListActionsQuery)(nil)

	_ ActionDispatcher = (*actions.Dispatcher)(nil)
)
