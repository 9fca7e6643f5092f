package response

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/slack-go/slack"
)

var authErrorCodes = map[string]struct{}{
	"invalid_auth":           {},
	"not_authed":             {},
	"token_revoked":          {},
	"token_expired":          {},
	"account_inactive":       {},
	"missing_scope":          {},
	"no_permission":          {},
	"ekm_access_denied":      {},
	"not_allowed_token_type": {},
}

type serviceError interface {
	ToServiceError() *goerrors.Error
}

// Classify maps any failure onto the error taxonomy. Errors that already carry
// a text code pass through unchanged.
func Classify(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var svc serviceError
	if errors.As(err, &svc) {
		if mapped := svc.ToServiceError(); mapped != nil {
			return mapped
		}
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return rateLimitedError(err, rateLimited.RetryAfter.Milliseconds())
	}

	var platform slack.SlackErrorResponse
	if errors.As(err, &platform) {
		return platformError(err, platform.Err)
	}

	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return statusError(err, status.Code)
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return rich
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return transientError(err, core.ErrorTimeout, "response: request timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return transientError(err, core.ErrorTimeout, "response: request timed out")
		}
		return transientError(err, core.ErrorNetwork, "response: network failure")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return transientError(err, core.ErrorNetwork, "response: connection closed unexpectedly")
	}

	if rich != nil {
		return core.MapError(rich)
	}
	// slack-go surfaces some platform errors as bare strings.
	if code := strings.TrimSpace(err.Error()); isAuthCode(code) {
		return platformError(err, code)
	}
	return platformError(err, err.Error())
}

func rateLimitedError(source error, retryAfterMS int64) *goerrors.Error {
	metadata := map[string]any{core.MetadataRetryable: true}
	if retryAfterMS > 0 {
		metadata[core.MetadataRetryAfterMS] = retryAfterMS
	}
	return goerrors.Wrap(source, goerrors.CategoryRateLimit, "response: rate limited by platform").
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.ErrorRateLimited).
		WithMetadata(metadata)
}

func platformError(source error, code string) *goerrors.Error {
	code = strings.TrimSpace(code)
	switch {
	case isAuthCode(code):
		return goerrors.Wrap(source, goerrors.CategoryAuth, "response: credential rejected, re-authentication required").
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ErrorAuth).
			WithMetadata(map[string]any{
				core.MetadataRetryable:      false,
				core.MetadataReauthRequired: true,
				core.MetadataPlatformError:  code,
			})
	case code == "ratelimited" || code == "rate_limited":
		return rateLimitedError(source, 0)
	default:
		return goerrors.Wrap(source, goerrors.CategoryExternal, "response: platform returned an error").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorAPI).
			WithMetadata(map[string]any{
				core.MetadataRetryable:     false,
				core.MetadataPlatformError: core.TruncateContext(code, core.DefaultContextTruncation),
			})
	}
}

func statusError(source error, code int) *goerrors.Error {
	switch {
	case code == http.StatusTooManyRequests:
		return rateLimitedError(source, 0)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return goerrors.Wrap(source, goerrors.CategoryAuth, "response: credential rejected, re-authentication required").
			WithCode(code).
			WithTextCode(core.ErrorAuth).
			WithMetadata(map[string]any{
				core.MetadataRetryable:      false,
				core.MetadataReauthRequired: true,
			})
	case code >= 500:
		return transientError(source, core.ErrorNetwork, "response: platform unavailable")
	default:
		return goerrors.Wrap(source, goerrors.CategoryExternal, "response: unexpected platform status").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ErrorAPI).
			WithMetadata(map[string]any{
				core.MetadataRetryable:     false,
				core.MetadataPlatformError: http.StatusText(code),
			})
	}
}

func transientError(source error, textCode string, message string) *goerrors.Error {
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(textCode).
		WithMetadata(map[string]any{core.MetadataRetryable: true})
}

func isAuthCode(code string) bool {
	_, ok := authErrorCodes[strings.TrimSpace(code)]
	return ok
}

// callerFault reports errors caused by the caller rather than an unhealthy
// downstream; they never trip a breaker.
func callerFault(err *goerrors.Error) bool {
	if err == nil {
		return false
	}
	switch err.TextCode {
	case core.ErrorAuth, core.ErrorNotFound, core.ErrorBadInput, core.ErrorParse:
		return true
	}
	switch err.Category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound,
		goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return true
	}
	return false
}

func breakerRejection(err *goerrors.Error) bool {
	return err != nil && (err.TextCode == core.ErrorCircuitOpen || err.TextCode == core.ErrorCircuitHalfOpen)
}

// Payload renders err as the structured result returned to AI callers.
func Payload(err error) map[string]any {
	classified := Classify(err)
	if classified == nil {
		return map[string]any{"success": true}
	}
	payload := map[string]any{
		"success":   false,
		"error":     classified.Message,
		"code":      classified.TextCode,
		"retryable": core.IsRetryable(classified),
	}
	for _, key := range []string{
		core.MetadataRetryAfterMS,
		core.MetadataReauthRequired,
		core.MetadataPlatformError,
		"kind",
		"identifier",
	} {
		if value, ok := classified.Metadata[key]; ok {
			payload[key] = value
		}
	}
	return payload
}

func retryAfterFromMetadata(metadata map[string]any) time.Duration {
	switch value := metadata[core.MetadataRetryAfterMS].(type) {
	case int64:
		return time.Duration(value) * time.Millisecond
	case int:
		return time.Duration(value) * time.Millisecond
	case float64:
		return time.Duration(value) * time.Millisecond
	default:
		return 0
	}
}
