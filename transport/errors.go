package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/goliatone/go-mods/ratelimit"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// executionError reports a request that never produced a response.
func executionError(source error, metadata map[string]any) error {
	textCode := core.ErrorNetwork
	message := "transport: execute http request"
	if isTimeout(source) {
		textCode = core.ErrorTimeout
		message = "transport: http request timed out"
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata[core.MetadataRetryable] = true
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusError turns a non-2xx provider response into the error taxonomy. It
// returns nil for successful responses.
func StatusError(provider string, res core.TransportResponse) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	provider = strings.TrimSpace(provider)
	metadata := map[string]any{
		"provider":                provider,
		"status_code":             res.StatusCode,
		core.MetadataPlatformError: core.TruncateContext(strings.TrimSpace(string(res.Body)), core.DefaultContextTruncation),
	}
	message := fmt.Sprintf("transport: %s responded with status %d", provider, res.StatusCode)

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		metadata[core.MetadataRetryable] = true
		if retryAfter, ok := ratelimit.ParseRetryAfterHeader(headerValue(res.Headers, "Retry-After"), time.Now()); ok {
			metadata[core.MetadataRetryAfterMS] = retryAfter.Milliseconds()
		}
		return goerrors.New(message, goerrors.CategoryRateLimit).
			WithCode(http.StatusTooManyRequests).
			WithTextCode(core.ErrorRateLimited).
			WithMetadata(metadata)
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		metadata[core.MetadataRetryable] = false
		metadata[core.MetadataReauthRequired] = true
		return goerrors.New(message, goerrors.CategoryAuth).
			WithCode(res.StatusCode).
			WithTextCode(core.ErrorAuth).
			WithMetadata(metadata)
	case res.StatusCode == http.StatusNotFound:
		return goerrors.New(message, goerrors.CategoryNotFound).
			WithCode(http.StatusNotFound).
			WithTextCode(core.ErrorNotFound).
			WithMetadata(metadata)
	case res.StatusCode >= 500:
		metadata[core.MetadataRetryable] = true
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorNetwork).
			WithMetadata(metadata)
	default:
		metadata[core.MetadataRetryable] = false
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorAPI).
			WithMetadata(metadata)
	}
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ErrorAuth
	case goerrors.CategoryRateLimit:
		return core.ErrorRateLimited
	case goerrors.CategoryNotFound:
		return core.ErrorNotFound
	case goerrors.CategoryExternal:
		return core.ErrorAPI
	default:
		return core.ErrorInternal
	}
}
