// Package transport предоставляет абстракции для работы с message bus.
package transport

import "context"

// Стандартные заголовки сообщений
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderReplyTo       = "X-Reply-To"
	HeaderMessageKey    = "X-Message-Key"
	HeaderContentType   = "Content-Type"
)

// Message представляет сообщение в очереди
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// Header возвращает значение заголовка или пустую строку
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// Key возвращает ключ сообщения (partition key для брокеров, которые его поддерживают)
func (m *Message) Key() string {
	return m.Header(HeaderMessageKey)
}

// MessageHandler обработчик сообщений
type MessageHandler func(ctx context.Context, msg *Message) error

// MessageSerializer интерфейс для сериализации сообщений
type MessageSerializer interface {
	// Serialize сериализует сообщение
	Serialize(msg interface{}) ([]byte, error)
	// Deserialize десериализует сообщение
	Deserialize(data []byte, msg interface{}) error
	// ContentType возвращает MIME-тип формата
	ContentType() string
}

// Subscriber подписчик на сообщения
type Subscriber interface {
	// Subscribe подписывается на subject и вызывает handler при получении сообщения
	Subscribe(ctx context.Context, subject string, handler MessageHandler) error
	// Unsubscribe отписывается от subject
	Unsubscribe(subject string) error
}

// Publisher публикатор сообщений
type Publisher interface {
	// Publish публикует сообщение в subject
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// MessageBus объединяет возможности публикации и подписки
type MessageBus interface {
	Publisher
	Subscriber
}

// CopyHeaders возвращает копию заголовков
func CopyHeaders(headers map[string]string) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		result[k] = v
	}
	return result
}
