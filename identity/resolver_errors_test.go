package identity

import (
	"errors"
	"testing"

	"github.com/goliatone/go-mods/core"
)

func TestNotFoundError_ToServiceError(t *testing.T) {
	err := &NotFoundError{Kind: KindChannel, Identifier: "#nosuch"}
	mapped := err.ToServiceError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.ErrorNotFound {
		t.Fatalf("expected %q text code, got %q", core.ErrorNotFound, mapped.TextCode)
	}
	if mapped.Code != 404 {
		t.Fatalf("expected status code 404, got %d", mapped.Code)
	}
	if mapped.Metadata["identifier"] != "#nosuch" {
		t.Fatalf("expected identifier metadata, got %#v", mapped.Metadata)
	}
}

func TestNotFoundError_PreservesSentinel(t *testing.T) {
	err := notFound(KindUser, "@ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected errors.Is(err, ErrNotFound) to be true")
	}
}
