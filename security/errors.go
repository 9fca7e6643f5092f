package security

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
)

func securityError(message string) error {
	return core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal).
		WithCode(http.StatusInternalServerError)
}

func securityWrapError(source error, message string) error {
	return core.WrapError(source, goerrors.CategoryInternal, core.ErrorInternal, message).
		WithCode(http.StatusInternalServerError)
}

func keyMismatchError(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryAuth, core.ErrorAuth).
		WithCode(http.StatusUnauthorized).
		WithMetadata(metadata)
}
