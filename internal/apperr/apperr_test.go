package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSentinelMatching(t *testing.T) {
	err := NotFound("events.get", "event %s not found", "e1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found sentinel match")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatalf("unexpected forbidden match")
	}
	wrapped := fmt.Errorf("load: %w", err)
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("expected kind through wrapping, got %s", KindOf(wrapped))
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := Validation("op", "bad input")
	err := Wrap(KindStorageUnavailable, "outer", inner)
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation kind kept, got %s", KindOf(err))
	}
	io := Wrap(KindStorageUnavailable, "events.get", context.DeadlineExceeded)
	if !Is(io, KindStorageUnavailable) || !KindOf(io).Retryable() {
		t.Fatalf("expected retryable storage error")
	}
	if !errors.Is(io, context.DeadlineExceeded) {
		t.Fatalf("expected cause preserved")
	}
}

func TestUserMessageHidesExistence(t *testing.T) {
	nf := UserMessage(NotFound("op", "event x"))
	fb := UserMessage(Forbidden("op", "not the requester"))
	if nf != fb {
		t.Fatalf("not found and forbidden must render identically: %q vs %q", nf, fb)
	}
	if got := UserMessage(Validation("op", "name is required")); got != "name is required" {
		t.Fatalf("unexpected validation message %q", got)
	}
}
