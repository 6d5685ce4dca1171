// Package persistence предоставляет интеграцию gorm с шиной сообщений.
package persistence

import (
	"context"
	"reflect"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// PublishCallbackName имя callback в цепочке create
const PublishCallbackName = "potter:publish_after_create"

// Publishable модель, о создании которой публикуется событие
type Publishable interface {
	// EventSubject возвращает топик события
	EventSubject() string
	// EventPayload возвращает тело события
	EventPayload() interface{}
}

// PublishHook публикует событие после успешного создания Publishable модели
type PublishHook struct {
	publisher  transport.Publisher
	serializer transport.MessageSerializer
	logger     *zap.Logger
}

// NewPublishHook создает новый PublishHook
func NewPublishHook(publisher transport.Publisher, serializer transport.MessageSerializer, log *zap.Logger) *PublishHook {
	return &PublishHook{
		publisher:  publisher,
		serializer: serializer,
		logger:     logger.OrNop(log).Named("persistence"),
	}
}

// Register регистрирует hook после фиксации транзакции create, чтобы событие не ушло
// для откаченной записи. Внутри явной db.Transaction публикация происходит до внешнего commit.
func (h *PublishHook) Register(db *gorm.DB) error {
	return db.Callback().Create().
		After("gorm:commit_or_rollback_transaction").
		Register(PublishCallbackName, h.afterCreate)
}

// RegisterPublishCallback регистрирует публикацию событий для db через переданный publisher
func RegisterPublishCallback(db *gorm.DB, publisher transport.Publisher, serializer transport.MessageSerializer, log *zap.Logger) error {
	return NewPublishHook(publisher, serializer, log).Register(db)
}

func (h *PublishHook) afterCreate(db *gorm.DB) {
	if db.Error != nil || db.Statement == nil {
		return
	}

	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}

	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			h.publish(ctx, rv.Index(i))
		}
	case reflect.Struct:
		h.publish(ctx, rv)
	}
}

// publish ошибки публикации не откатывают запись, только логируются
func (h *PublishHook) publish(ctx context.Context, rv reflect.Value) {
	model, ok := asPublishable(rv)
	if !ok {
		return
	}

	data, err := h.serializer.Serialize(model.EventPayload())
	if err != nil {
		h.logger.Error("failed to encode model event",
			zap.String("topic", model.EventSubject()),
			zap.Error(err))
		return
	}

	headers := map[string]string{
		transport.HeaderContentType: h.serializer.ContentType(),
	}
	if err := h.publisher.Publish(ctx, model.EventSubject(), data, headers); err != nil {
		h.logger.Error("failed to publish model event",
			zap.String("topic", model.EventSubject()),
			zap.Error(err))
	}
}

func asPublishable(rv reflect.Value) (Publishable, bool) {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
	} else if rv.CanAddr() {
		rv = rv.Addr()
	}
	if !rv.CanInterface() {
		return nil, false
	}
	model, ok := rv.Interface().(Publishable)
	return model, ok
}
