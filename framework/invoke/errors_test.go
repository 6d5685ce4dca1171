// Package invoke предоставляет тесты для модуля errors.
package invoke

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/akriventsev/potter-commerce/framework/core"
)

func TestTimeoutError_Is(t *testing.T) {
	err := &TimeoutError{CorrelationID: "c-1", Timeout: 100 * time.Millisecond}

	if !errors.Is(err, &TimeoutError{}) {
		t.Error("expected TimeoutError to match any *TimeoutError")
	}
	if !errors.Is(err, core.NewError(ErrRequestTimeout, "")) {
		t.Error("expected TimeoutError to match REQUEST_TIMEOUT code")
	}
	if errors.Is(err, core.NewError(ErrUpstreamFailure, "")) {
		t.Error("expected TimeoutError not to match UPSTREAM_FAILURE")
	}

	wrapped := fmt.Errorf("coupon stage: %w", err)
	if !errors.Is(wrapped, &TimeoutError{}) {
		t.Error("expected wrapped TimeoutError to match")
	}

	if !strings.Contains(err.Error(), "c-1") || !strings.Contains(err.Error(), "100ms") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestNewUpstreamFailureError_DefaultMessage(t *testing.T) {
	err := NewUpstreamFailureError("c-2", "")

	if err.Code != ErrUpstreamFailure {
		t.Errorf("expected code %s, got %s", ErrUpstreamFailure, err.Code)
	}
	if !strings.HasPrefix(err.Message, "upstream reported failure") {
		t.Errorf("unexpected message: %s", err.Message)
	}

	err = NewUpstreamFailureError("c-2", "coupon service down")
	if !strings.HasPrefix(err.Message, "coupon service down") {
		t.Errorf("unexpected message: %s", err.Message)
	}
}

func TestNewDeserializationError_KeepsCause(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := NewDeserializationError("c-3", "discount.CouponReply", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if !core.HasCode(err, ErrDeserialization) {
		t.Errorf("expected code %s, got %s", ErrDeserialization, core.CodeOf(err))
	}
	if !strings.Contains(err.Error(), "discount.CouponReply") {
		t.Errorf("expected type name in message, got %s", err.Error())
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  *core.FrameworkError
		code string
	}{
		{"duplicate", NewDuplicateCorrelationIDError("x"), ErrDuplicateCorrelationID},
		{"unmatched", NewUnmatchedReplyError("x"), ErrUnmatchedReply},
		{"serialization", NewSerializationError("t", errors.New("boom")), ErrSerialization},
		{"publish", NewPublishFailedError("t", errors.New("boom")), ErrPublishFailed},
		{"pool", NewPoolStoppedError(), ErrPoolStopped},
		{"registry", NewRegistryClosedError(), ErrRegistryClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, tt.err.Code)
			}
			if !errors.Is(tt.err, core.NewError(tt.code, "")) {
				t.Errorf("expected errors.Is to match code %s", tt.code)
			}
		})
	}
}
