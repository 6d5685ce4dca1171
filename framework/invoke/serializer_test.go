package invoke

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializerByName(t *testing.T) {
	s, err := SerializerByName("")
	require.NoError(t, err)
	assert.Equal(t, "application/json", s.ContentType())

	s, err = SerializerByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "application/msgpack", s.ContentType())

	_, err = SerializerByName("avro")
	assert.Error(t, err)
}

func TestJSONEnvelope_EmbedsPayloadVerbatim(t *testing.T) {
	s := NewJSONSerializer()

	data, err := s.Serialize(ReplyEnvelope{
		CorrelationID: "c-1",
		Success:       true,
		Payload:       RawPayload(`{"discount":5}`),
		CompletedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"correlationId":"c-1","success":true,"payload":{"discount":5},"completedAt":"2024-01-01T00:00:00Z"}`,
		string(data))

	var env ReplyEnvelope
	require.NoError(t, s.Deserialize(data, &env))
	assert.JSONEq(t, `{"discount":5}`, string(env.Payload))
}

func TestMessagePackEnvelope_UsesJSONFieldNames(t *testing.T) {
	s := NewMessagePackSerializer()

	body, err := s.Serialize(echoRequest{Text: "hi"})
	require.NoError(t, err)

	data, err := s.Serialize(RequestEnvelope{CorrelationID: "c-1", ReplyTo: "replies", Payload: body})
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, s.Deserialize(data, &generic))
	assert.Equal(t, "c-1", generic["correlationId"])
	assert.Equal(t, "replies", generic["replyTo"])

	var env RequestEnvelope
	require.NoError(t, s.Deserialize(data, &env))

	var req echoRequest
	require.NoError(t, s.Deserialize(env.Payload, &req))
	assert.Equal(t, "hi", req.Text)
}

func TestRawPayload_IsEmpty(t *testing.T) {
	assert.True(t, RawPayload(nil).IsEmpty())
	assert.True(t, RawPayload("null").IsEmpty())
	assert.False(t, RawPayload("{}").IsEmpty())
}
