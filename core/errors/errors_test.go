package errors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}

	err := Wrap(ErrNotFound, "lookup handler")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected wrapped error to match ErrNotFound, got %v", err)
	}
	if got := err.Error(); got != "lookup handler\nresource not found" {
		t.Errorf("Unexpected message %q", got)
	}
}

func TestNew(t *testing.T) {
	err := New("boom")
	if err.Error() != "boom" {
		t.Errorf("Expected 'boom', got '%s'", err.Error())
	}
	if errors.Is(err, ErrInternal) {
		t.Error("New errors should not match sentinels")
	}
}
