package invoke

import (
	"time"

	"github.com/sony/gobreaker"
)

// BreakerOption функциональная опция circuit breaker публикации
type BreakerOption func(*gobreaker.Settings)

// WithBreakerName задает имя breaker
func WithBreakerName(name string) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Name = name
	}
}

// WithBreakerTimeout задает время нахождения в open состоянии
func WithBreakerTimeout(timeout time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.Timeout = timeout
	}
}

// WithBreakerMaxFailures задает число подряд идущих ошибок до размыкания
func WithBreakerMaxFailures(failures uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		}
	}
}

// WithBreakerStateChange задает обработчик смены состояния
func WithBreakerStateChange(fn func(name string, from, to gobreaker.State)) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.OnStateChange = fn
	}
}

// NewPublishBreaker создает circuit breaker для публикации запросов
func NewPublishBreaker(options ...BreakerOption) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "publish",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	for _, option := range options {
		option(&settings)
	}

	return gobreaker.NewCircuitBreaker(settings)
}
