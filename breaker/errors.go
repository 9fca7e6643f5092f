package breaker

import (
	"fmt"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
)

func openError(name string, remaining time.Duration) error {
	if remaining < 0 {
		remaining = 0
	}
	return goerrors.New(fmt.Sprintf("breaker: circuit %q is open", name), goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorCircuitOpen).
		WithMetadata(map[string]any{
			core.MetadataOperation:    name,
			core.MetadataRetryable:    false,
			core.MetadataRetryAfterMS: remaining.Milliseconds(),
		})
}

func halfOpenLimitError(name string, limit int) error {
	return goerrors.New(fmt.Sprintf("breaker: circuit %q exhausted %d half-open trials", name, limit), goerrors.CategoryOperation).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(core.ErrorCircuitHalfOpen).
		WithMetadata(map[string]any{
			core.MetadataOperation: name,
			core.MetadataRetryable: false,
		})
}
