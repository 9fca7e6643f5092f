package sqlstore

import (
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/inbound"
	"github.com/goliatone/go-mods/ratelimit"
)

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.TeamCredentialLister   = (*CredentialStore)(nil)
	_ CredentialRepository        = (*CachedCredentialStore)(nil)
	_ inbound.ProcessedEventStore = (*ProcessedEventStore)(nil)
	_ ratelimit.StateStore        = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore        = (*CachedRateLimitStateStore)(nil)
)
