package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-mods/core"
)

func TestThrottledError_ToServiceError(t *testing.T) {
	err := ThrottledError{
		Provider:   "slack",
		Operation:  "chat.postMessage",
		RetryAfter: 3 * time.Second,
	}

	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.ErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata[core.MetadataRetryAfterMS] != int64(3000) {
		t.Fatalf("expected retry hint metadata, got %#v", mapped.Metadata)
	}
	if !core.IsRetryable(mapped) {
		t.Fatalf("expected throttled error to be retryable")
	}
}
