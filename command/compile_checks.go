package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RouteEventMessage]       = (*RouteEventCommand)(nil)
	_ gocmd.Commander[SaveCredentialMessage]   = (*SaveCredentialCommand)(nil)
	_ gocmd.Commander[RevokeCredentialMessage] = (*RevokeCredentialCommand)(nil)
)
