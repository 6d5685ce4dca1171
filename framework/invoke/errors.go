// Package invoke предоставляет систему ошибок для модуля Invoke.
package invoke

import (
	"fmt"
	"time"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Коды ошибок модуля Invoke
const (
	ErrRequestTimeout         = "REQUEST_TIMEOUT"
	ErrDuplicateCorrelationID = "DUPLICATE_CORRELATION_ID"
	ErrUnmatchedReply         = "UNMATCHED_REPLY"
	ErrUpstreamFailure        = "UPSTREAM_FAILURE"
	ErrDeserialization        = "DESERIALIZATION_ERROR"
	ErrSerialization          = "SERIALIZATION_ERROR"
	ErrPublishFailed          = "PUBLISH_FAILED"
	ErrPoolStopped            = "POOL_STOPPED"
	ErrPoolSaturated          = "POOL_SATURATED"
	ErrRegistryClosed         = "REGISTRY_CLOSED"
)

// TimeoutError ответ не получен до дедлайна
type TimeoutError struct {
	CorrelationID string
	Timeout       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] no reply for correlation_id=%s within %s", ErrRequestTimeout, e.CorrelationID, e.Timeout)
}

// Is позволяет сравнивать TimeoutError с кодовой ошибкой REQUEST_TIMEOUT
func (e *TimeoutError) Is(target error) bool {
	switch t := target.(type) {
	case *TimeoutError:
		return true
	case *core.FrameworkError:
		return t.Code == ErrRequestTimeout
	}
	return false
}

// NewDuplicateCorrelationIDError создает ошибку повторной регистрации
func NewDuplicateCorrelationIDError(correlationID string) *core.FrameworkError {
	return core.NewError(
		ErrDuplicateCorrelationID,
		"correlation id already registered: "+correlationID,
	)
}

// NewUnmatchedReplyError создает ошибку ответа без ожидающего вызова
func NewUnmatchedReplyError(correlationID string) *core.FrameworkError {
	return core.NewError(
		ErrUnmatchedReply,
		"no pending call for correlation_id="+correlationID,
	)
}

// NewUpstreamFailureError создает ошибку success=false от upstream сервиса
func NewUpstreamFailureError(correlationID, message string) *core.FrameworkError {
	if message == "" {
		message = "upstream reported failure"
	}
	return core.NewError(
		ErrUpstreamFailure,
		message+" (correlation_id="+correlationID+")",
	)
}

// NewDeserializationError создает ошибку разбора payload ответа
func NewDeserializationError(correlationID, expected string, cause error) *core.FrameworkError {
	return core.Wrap(
		cause,
		ErrDeserialization,
		"cannot decode reply into "+expected+" (correlation_id="+correlationID+")",
	)
}

// NewSerializationError создает ошибку сериализации запроса
func NewSerializationError(topic string, cause error) *core.FrameworkError {
	return core.Wrap(
		cause,
		ErrSerialization,
		"cannot encode request for topic "+topic,
	)
}

// NewPublishFailedError создает ошибку публикации запроса
func NewPublishFailedError(topic string, cause error) *core.FrameworkError {
	return core.Wrap(
		cause,
		ErrPublishFailed,
		"failed to publish request to "+topic,
	)
}

// NewPoolStoppedError создает ошибку остановленного пула
func NewPoolStoppedError() *core.FrameworkError {
	return core.NewError(ErrPoolStopped, "worker pool is stopped")
}

// NewPoolSaturatedError создает ошибку заполненной очереди пула
func NewPoolSaturatedError(queueSize int) *core.FrameworkError {
	return core.NewError(ErrPoolSaturated, fmt.Sprintf("worker pool queue is full (%d)", queueSize))
}

// NewRegistryClosedError создает ошибку закрытого реестра
func NewRegistryClosedError() *core.FrameworkError {
	return core.NewError(ErrRegistryClosed, "correlation registry is closed")
}
