package gojob

import (
	"github.com/goliatone/go-mods/inbound"
	"github.com/goliatone/go-mods/webhooks"
)

var (
	_ webhooks.EventEnqueuer = (*EventEnqueuer)(nil)
	_ EventRouter            = (*inbound.Router)(nil)
)
