package util

import (
	"errors"
	"testing"
)

func TestExternalKeepsExistingKind(t *testing.T) {
	blocked := External("generate", ErrContentBlocked)
	if !errors.Is(blocked, ErrContentBlocked) || errors.Is(blocked, ErrExternal) {
		t.Fatalf("content block should not be reclassified: %v", blocked)
	}

	raw := errors.New("connection refused")
	wrapped := External("embed batch 0", raw)
	if !errors.Is(wrapped, ErrExternal) || !errors.Is(wrapped, raw) {
		t.Fatalf("expected external wrapping of cause: %v", wrapped)
	}

	if External("noop", nil) != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestNoExtractableTextIsValidation(t *testing.T) {
	if !errors.Is(ErrNoExtractableText, ErrValidation) {
		t.Fatalf("ErrNoExtractableText must classify as validation")
	}
	if !errors.Is(NotFoundf("document %s", "x"), ErrNotFound) {
		t.Fatalf("NotFoundf must classify as not found")
	}
}
