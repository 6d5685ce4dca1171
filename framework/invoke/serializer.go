// Package invoke предоставляет реализации сериализаторов для модуля Invoke.
package invoke

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/akriventsev/potter-commerce/framework/transport"
)

// JSONSerializer реализация JSON сериализатора
type JSONSerializer struct{}

// NewJSONSerializer создает новый JSON сериализатор
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

// Serialize сериализует сообщение в JSON
func (s *JSONSerializer) Serialize(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// Deserialize десериализует JSON в сообщение
func (s *JSONSerializer) Deserialize(data []byte, msg interface{}) error {
	return json.Unmarshal(data, msg)
}

// ContentType возвращает MIME-тип
func (s *JSONSerializer) ContentType() string {
	return "application/json"
}

// MessagePackSerializer реализация MessagePack сериализатора.
// Использует json-теги структур, чтобы контракты были общими для обоих форматов.
type MessagePackSerializer struct{}

// NewMessagePackSerializer создает новый MessagePack сериализатор
func NewMessagePackSerializer() *MessagePackSerializer {
	return &MessagePackSerializer{}
}

// Serialize сериализует сообщение в MessagePack
func (s *MessagePackSerializer) Serialize(msg interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize десериализует MessagePack в сообщение
func (s *MessagePackSerializer) Deserialize(data []byte, msg interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(msg)
}

// ContentType возвращает MIME-тип
func (s *MessagePackSerializer) ContentType() string {
	return "application/msgpack"
}

// DefaultSerializer возвращает сериализатор по умолчанию (JSON)
func DefaultSerializer() transport.MessageSerializer {
	return NewJSONSerializer()
}

// SerializerByName возвращает сериализатор по имени формата
func SerializerByName(name string) (transport.MessageSerializer, error) {
	switch name {
	case "", "json":
		return NewJSONSerializer(), nil
	case "msgpack":
		return NewMessagePackSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer: %s", name)
	}
}
