package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorRateLimited         = "RATE_LIMITED"
	ErrorNetwork             = "NETWORK_ERROR"
	ErrorTimeout             = "TIMEOUT"
	ErrorAuth                = "AUTH_ERROR"
	ErrorAPI                 = "API_ERROR"
	ErrorCircuitOpen         = "CIRCUIT_OPEN"
	ErrorCircuitHalfOpen     = "CIRCUIT_HALF_OPEN_LIMIT"
	ErrorNotFound            = "NOT_FOUND"
	ErrorSignatureInvalid    = "SIGNATURE_INVALID"
	ErrorBadInput            = "BAD_INPUT"
	ErrorParse               = "PARSE_ERROR"
	ErrorInternal            = "INTERNAL"
	ErrorEventsDisabled      = "EVENTS_DISABLED"
	ErrorActionNotRegistered = "ACTION_NOT_FOUND"
)

const (
	MetadataRetryable      = "retryable"
	MetadataRetryAfterMS   = "retry_after_ms"
	MetadataOperation      = "operation"
	MetadataPlatformError  = "platform_error"
	MetadataReauthRequired = "reauth_required"
)

func NewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func WrapError(source error, category goerrors.Category, textCode string, message string) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode)
	}
	return ensureErrorEnvelope(goerrors.Wrap(source, category, message).WithTextCode(textCode))
}

// MapError converts any error into a go-errors envelope carrying a text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}
	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func TextCode(err error) string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return ""
	}
	return strings.TrimSpace(richErr.TextCode)
}

func IsRetryable(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	if value, ok := richErr.Metadata[MetadataRetryable].(bool); ok {
		return value
	}
	return RetryableTextCode(richErr.TextCode)
}

func RetryableTextCode(code string) bool {
	switch strings.TrimSpace(code) {
	case ErrorRateLimited, ErrorNetwork, ErrorTimeout:
		return true
	default:
		return false
	}
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorAuth
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return ErrorAPI
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
