package mods

import (
	"fmt"

	"github.com/goliatone/go-command/runner"

	"github.com/goliatone/go-mods/adapters/gocommand"
	modscommand "github.com/goliatone/go-mods/command"
	modsquery "github.com/goliatone/go-mods/query"
)

type Commands struct {
	RouteEvent       *modscommand.RouteEventCommand
	SaveCredential   *modscommand.SaveCredentialCommand
	RevokeCredential *modscommand.RevokeCredentialCommand
}

type Queries struct {
	ResolveIdentifier *modsquery.ResolveIdentifierQuery
	DispatchAction    *modsquery.DispatchActionQuery
	ListActions       *modsquery.ListActionsQuery
}

// Facade exposes the runtime as go-command commands and queries.
type Facade struct {
	runtime  *Runtime
	commands Commands
	queries  Queries
}

func NewFacade(runtime *Runtime) (*Facade, error) {
	if runtime == nil {
		return nil, fmt.Errorf("mods: runtime is required")
	}
	return &Facade{
		runtime: runtime,
		commands: Commands{
			RouteEvent:       modscommand.NewRouteEventCommand(runtime.Router),
			SaveCredential:   modscommand.NewSaveCredentialCommand(runtime),
			RevokeCredential: modscommand.NewRevokeCredentialCommand(runtime),
		},
		queries: Queries{
			ResolveIdentifier: modsquery.NewResolveIdentifierQuery(runtime),
			DispatchAction:    modsquery.NewDispatchActionQuery(runtime.Actions),
			ListActions:       modsquery.NewListActionsQuery(runtime.Actions),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Runtime() *Runtime {
	if f == nil {
		return nil
	}
	return f.runtime
}

// Subscribe registers the runtime's commands and queries on the go-command
// bus.
func (f *Facade) Subscribe(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) (gocommand.Subscriptions, error) {
	if f == nil || f.runtime == nil {
		return nil, fmt.Errorf("mods: facade is not configured")
	}
	return gocommand.Install(adapter, gocommand.Handlers{
		Router:      f.runtime.Router,
		Credentials: f.runtime,
		Resolver:    f.runtime,
		Dispatcher:  f.runtime.Actions,
	}, runnerOpts...)
}

var (
	_ modscommand.CredentialManager = (*Runtime)(nil)
	_ modsquery.IdentifierResolver  = (*Runtime)(nil)
)
