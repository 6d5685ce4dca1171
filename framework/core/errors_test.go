package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestFrameworkError_Error(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, "TEST_ERROR", "Test error")

	if msg := err.Error(); msg != "[TEST_ERROR] Test error: root cause" {
		t.Errorf("unexpected message: %s", msg)
	}

	plain := NewError("TEST_ERROR", "Test error")
	if msg := plain.Error(); msg != "[TEST_ERROR] Test error" {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestFrameworkError_IsByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewError(ErrNotFound, "missing"))

	if !errors.Is(err, NewError(ErrNotFound, "")) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, NewError(ErrAlreadyExists, "")) {
		t.Error("expected different code not to match")
	}
	if !HasCode(err, ErrNotFound) {
		t.Error("expected HasCode to find NOT_FOUND")
	}
	if CodeOf(err) != ErrNotFound {
		t.Errorf("expected code NOT_FOUND, got %q", CodeOf(err))
	}
}

func TestWrap_Nil(t *testing.T) {
	if Wrap(nil, "X", "y") != nil {
		t.Error("expected nil for nil cause")
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("expected empty code for plain error")
	}
}

func TestFrameworkError_WithContext(t *testing.T) {
	err := NewError(ErrInvalidConfig, "bad port").WithContext("bus")
	if err.Message != "bus: bad port" {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if err.Code != ErrInvalidConfig {
		t.Errorf("code lost: %s", err.Code)
	}
}
