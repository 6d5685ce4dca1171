package invoke

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/akriventsev/potter-commerce/framework/observability"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// HandlerFunc обработчик запроса на стороне отвечающего сервиса
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Serve подписывает handler на topic и отвечает конвертом ReplyEnvelope в топик X-Reply-To.
// Ошибка handler превращается в ответ success=false.
func Serve[Req, Resp any](
	ctx context.Context,
	bus transport.MessageBus,
	serializer transport.MessageSerializer,
	topic string,
	handler HandlerFunc[Req, Resp],
) error {
	return bus.Subscribe(ctx, topic, observability.TracedHandler("potter-commerce/invoke", func(ctx context.Context, msg *transport.Message) error {
		var env RequestEnvelope
		if err := serializer.Deserialize(msg.Data, &env); err != nil {
			return fmt.Errorf("invalid request envelope on %s: %w", topic, err)
		}

		replyTo := env.ReplyTo
		if replyTo == "" {
			replyTo = msg.Header(transport.HeaderReplyTo)
		}
		if replyTo == "" {
			return fmt.Errorf("request %s on %s has no reply topic", env.CorrelationID, topic)
		}

		reply := ReplyEnvelope{CorrelationID: env.CorrelationID, Success: true}

		var req Req
		if err := serializer.Deserialize(env.Payload, &req); err != nil {
			reply.Success = false
			reply.ErrorMessage = "malformed request: " + err.Error()
		} else if resp, err := handler(ctx, req); err != nil {
			reply.Success = false
			reply.ErrorMessage = err.Error()
		} else if reply.Payload, err = serializer.Serialize(resp); err != nil {
			reply.Success = false
			reply.ErrorMessage = "cannot encode reply: " + err.Error()
		}
		reply.CompletedAt = time.Now().UTC()

		data, err := serializer.Serialize(reply)
		if err != nil {
			return fmt.Errorf("cannot encode reply envelope: %w", err)
		}

		headers := map[string]string{
			transport.HeaderCorrelationID: env.CorrelationID,
			transport.HeaderMessageKey:    env.CorrelationID,
			transport.HeaderContentType:   serializer.ContentType(),
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
		return bus.Publish(ctx, replyTo, data, headers)
	}))
}
