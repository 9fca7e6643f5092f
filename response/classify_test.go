package response

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-mods/core"
	"github.com/slack-go/slack"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify_Taxonomy(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		textCode  string
		retryable bool
	}{
		{name: "rate limited", err: &slack.RateLimitedError{RetryAfter: 2 * time.Second}, textCode: core.ErrorRateLimited, retryable: true},
		{name: "platform ratelimited string", err: slack.SlackErrorResponse{Err: "ratelimited"}, textCode: core.ErrorRateLimited, retryable: true},
		{name: "invalid auth", err: slack.SlackErrorResponse{Err: "invalid_auth"}, textCode: core.ErrorAuth},
		{name: "missing scope", err: slack.SlackErrorResponse{Err: "missing_scope"}, textCode: core.ErrorAuth},
		{name: "bare auth string", err: errors.New("token_revoked"), textCode: core.ErrorAuth},
		{name: "platform error", err: slack.SlackErrorResponse{Err: "channel_not_found"}, textCode: core.ErrorAPI},
		{name: "status 401", err: slack.StatusCodeError{Code: 401}, textCode: core.ErrorAuth},
		{name: "status 500", err: slack.StatusCodeError{Code: 500}, textCode: core.ErrorNetwork, retryable: true},
		{name: "status 429", err: slack.StatusCodeError{Code: 429}, textCode: core.ErrorRateLimited, retryable: true},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), textCode: core.ErrorTimeout, retryable: true},
		{name: "net timeout", err: &net.OpError{Op: "dial", Err: timeoutError{}}, textCode: core.ErrorTimeout, retryable: true},
		{name: "connection refused", err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}, textCode: core.ErrorNetwork, retryable: true},
		{name: "unknown", err: errors.New("something odd"), textCode: core.ErrorAPI},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := Classify(tc.err)
			if classified.TextCode != tc.textCode {
				t.Fatalf("expected %q, got %q", tc.textCode, classified.TextCode)
			}
			if core.IsRetryable(classified) != tc.retryable {
				t.Fatalf("expected retryable=%v", tc.retryable)
			}
		})
	}
}

func TestClassify_CarriesPlatformDetail(t *testing.T) {
	classified := Classify(slack.SlackErrorResponse{Err: "channel_not_found"})
	if classified.Metadata[core.MetadataPlatformError] != "channel_not_found" {
		t.Fatalf("expected platform error string, got %#v", classified.Metadata)
	}
	auth := Classify(slack.SlackErrorResponse{Err: "token_expired"})
	if auth.Metadata[core.MetadataReauthRequired] != true {
		t.Fatalf("expected reauth flag, got %#v", auth.Metadata)
	}
	limited := Classify(&slack.RateLimitedError{RetryAfter: 1500 * time.Millisecond})
	if limited.Metadata[core.MetadataRetryAfterMS] != int64(1500) {
		t.Fatalf("expected retry hint, got %#v", limited.Metadata)
	}
}

func TestClassify_KeepsTaxonomyErrors(t *testing.T) {
	original := core.NewError("breaker open", goerrors.CategoryOperation, core.ErrorCircuitOpen)
	if Classify(original) != original {
		t.Fatalf("expected already classified error to pass through")
	}
	if Classify(nil) != nil {
		t.Fatalf("expected nil to classify as nil")
	}
}

func TestPayload(t *testing.T) {
	payload := Payload(slack.SlackErrorResponse{Err: "invalid_auth"})
	if payload["success"] != false || payload["code"] != core.ErrorAuth || payload["retryable"] != false {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if payload[core.MetadataReauthRequired] != true {
		t.Fatalf("expected reauth flag in payload")
	}
}
