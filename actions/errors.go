package actions

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
)

func actionValidationError(field string, message string) error {
	return goerrors.NewValidation("actions: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}

func actionNotFound(name string) error {
	return core.NewError("actions: unknown action "+name, goerrors.CategoryNotFound, core.ErrorActionNotRegistered).
		WithCode(http.StatusNotFound).
		WithMetadata(map[string]any{"action": name})
}

func actionInternal(message string, metadata map[string]any) error {
	err := core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal).
		WithCode(http.StatusInternalServerError)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
