package invoke

import (
	"time"
)

// RawPayload закодированный payload, вложенный в конверт.
// В JSON встраивается как есть, в MessagePack передается как bin.
type RawPayload []byte

// MarshalJSON встраивает payload без повторного кодирования
func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON сохраняет payload как есть
func (p *RawPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

// IsEmpty проверяет отсутствие payload
func (p RawPayload) IsEmpty() bool {
	return len(p) == 0 || string(p) == "null"
}

// RequestEnvelope конверт исходящего запроса
type RequestEnvelope struct {
	CorrelationID string     `json:"correlationId"`
	ReplyTo       string     `json:"replyTo,omitempty"`
	Payload       RawPayload `json:"payload"`
	IssuedAt      time.Time  `json:"issuedAt"`
}

// ReplyEnvelope конверт ответа
type ReplyEnvelope struct {
	CorrelationID string     `json:"correlationId"`
	Success       bool       `json:"success"`
	Payload       RawPayload `json:"payload,omitempty"`
	ErrorMessage  string     `json:"errorMessage,omitempty"`
	CompletedAt   time.Time  `json:"completedAt"`
}
