package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/invoke"
)

// Коды ошибок расчета скидки
const (
	ErrDiscountFailed       = "DISCOUNT_FAILED"
	ErrInvalidRequest       = "INVALID_REQUEST"
	ErrPartialCouponFailure = "PARTIAL_COUPON_FAILURE"
)

// ErrorKind причина провала этапа
type ErrorKind string

const (
	KindTimeout         ErrorKind = "TIMEOUT"
	KindUpstream        ErrorKind = "UPSTREAM_FAILURE"
	KindDeserialization ErrorKind = "DESERIALIZATION"
	KindCancelled       ErrorKind = "CANCELLED"
	KindStrictCoupons   ErrorKind = "STRICT_COUPONS"
	KindPublishFailed   ErrorKind = "PUBLISH_FAILED"
	KindInternal        ErrorKind = "INTERNAL"
)

// DiscountError провал саги на этапе Stage.
// Context содержит состояние расчета на момент провала.
type DiscountError struct {
	SagaID  string
	Stage   string
	Kind    ErrorKind
	Context *DiscountContext
	Cause   error
}

func (e *DiscountError) Error() string {
	msg := fmt.Sprintf("[%s] saga %s failed at %s (%s)", ErrDiscountFailed, e.SagaID, e.Stage, e.Kind)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DiscountError) Unwrap() error {
	return e.Cause
}

// Is сопоставляет DiscountError с кодовой ошибкой DISCOUNT_FAILED
func (e *DiscountError) Is(target error) bool {
	if t, ok := target.(*core.FrameworkError); ok {
		return t.Code == ErrDiscountFailed
	}
	return false
}

func newDiscountError(sagaID, stage string, c *DiscountContext, cause error) *DiscountError {
	return &DiscountError{
		SagaID:  sagaID,
		Stage:   stage,
		Kind:    classify(cause),
		Context: c.Snapshot(),
		Cause:   cause,
	}
}

// classify определяет ErrorKind по цепочке ошибок
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	switch core.CodeOf(err) {
	case invoke.ErrRequestTimeout:
		return KindTimeout
	case invoke.ErrUpstreamFailure:
		return KindUpstream
	case invoke.ErrDeserialization:
		return KindDeserialization
	case invoke.ErrPublishFailed, invoke.ErrPoolStopped, invoke.ErrSerialization:
		return KindPublishFailed
	}

	var timeout *invoke.TimeoutError
	if errors.As(err, &timeout) {
		return KindTimeout
	}
	var partial *PartialCouponFailure
	if errors.As(err, &partial) {
		return KindStrictCoupons
	}
	return KindInternal
}

// PartialCouponFailure часть купонов не прошла проверку, расчет продолжен
type PartialCouponFailure struct {
	Invalid []CouponError `json:"invalid"`
}

func (p *PartialCouponFailure) Error() string {
	codes := make([]string, 0, len(p.Invalid))
	for _, c := range p.Invalid {
		codes = append(codes, c.Code)
	}
	return fmt.Sprintf("[%s] invalid coupons: %s", ErrPartialCouponFailure, strings.Join(codes, ","))
}

// Is сопоставляет с кодовой ошибкой PARTIAL_COUPON_FAILURE
func (p *PartialCouponFailure) Is(target error) bool {
	if t, ok := target.(*core.FrameworkError); ok {
		return t.Code == ErrPartialCouponFailure
	}
	return false
}

// NewInvalidRequestError создает ошибку некорректного запроса
func NewInvalidRequestError(cause error) *core.FrameworkError {
	return core.Wrap(cause, ErrInvalidRequest, "invalid discount request")
}
