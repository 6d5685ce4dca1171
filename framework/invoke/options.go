// Package invoke предоставляет опции конфигурации для модуля Invoke.
package invoke

import (
	"time"
)

// DefaultCallTimeout таймаут вызова по умолчанию
const DefaultCallTimeout = 30 * time.Second

// InvokeOptions опции для одного вызова Call
type InvokeOptions struct {
	Timeout       time.Duration
	ReplyTo       string
	Key           string
	CorrelationID string
	Headers       map[string]string
}

// InvokeOption функция для настройки опций
type InvokeOption func(*InvokeOptions)

// WithTimeout устанавливает таймаут
func WithTimeout(timeout time.Duration) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.Timeout = timeout
	}
}

// WithReplyTo переопределяет топик ответа
func WithReplyTo(topic string) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.ReplyTo = topic
	}
}

// WithKey устанавливает ключ сообщения (по умолчанию correlation ID)
func WithKey(key string) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.Key = key
	}
}

// WithCorrelationIDOption задает correlation ID вместо сгенерированного
func WithCorrelationIDOption(id string) InvokeOption {
	return func(opts *InvokeOptions) {
		opts.CorrelationID = id
	}
}

// WithHeaders добавляет заголовки сообщения
func WithHeaders(headers map[string]string) InvokeOption {
	return func(opts *InvokeOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

// ApplyOptions применяет опции к InvokeOptions
func ApplyOptions(options ...InvokeOption) *InvokeOptions {
	opts := &InvokeOptions{
		Timeout: DefaultCallTimeout,
	}
	for _, opt := range options {
		opt(opts)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCallTimeout
	}
	return opts
}
