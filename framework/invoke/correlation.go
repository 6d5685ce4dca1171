// Package invoke предоставляет request/reply поверх однонаправленного pub/sub.
package invoke

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

// Ключи контекста
const (
	correlationIDKey contextKey = "correlation_id"
)

// GenerateCorrelationID генерирует уникальный correlation ID
func GenerateCorrelationID() string {
	return uuid.New().String()
}

// ExtractCorrelationID извлекает correlation ID из контекста
func ExtractCorrelationID(ctx context.Context) string {
	if val := ctx.Value(correlationIDKey); val != nil {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// WithCorrelationID добавляет correlation ID в контекст
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}
