// Package testing предоставляет тестовую среду request/reply поверх in-memory шины.
package testing

import (
	"context"
	"testing"
	"time"

	"github.com/akriventsev/potter-commerce/framework/adapters/messagebus"
	"github.com/akriventsev/potter-commerce/framework/container"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// InMemoryTestEnvironment запущенные шина, пул, реестр, шлюз и диспетчер ответов
type InMemoryTestEnvironment struct {
	Bus        *messagebus.InMemoryAdapter
	Pool       *invoke.WorkerPool
	Registry   *invoke.Registry
	Gateway    *invoke.Gateway
	Dispatcher *invoke.ReplyDispatcher
	Serializer transport.MessageSerializer
	ReplyTopic string
	Container  *container.Container
}

// NewInMemoryTestEnvironment создает и запускает тестовую среду.
// Остановка регистрируется через t.Cleanup.
func NewInMemoryTestEnvironment(t testing.TB, replyTopic string) *InMemoryTestEnvironment {
	t.Helper()

	env := &InMemoryTestEnvironment{
		Bus:        messagebus.NewInMemoryAdapter(messagebus.DefaultInMemoryConfig()),
		Pool:       invoke.NewWorkerPool(4, 64, nil),
		Registry:   invoke.NewRegistry(),
		Serializer: invoke.NewJSONSerializer(),
		ReplyTopic: replyTopic,
		Container:  container.NewContainer(&container.Config{ShutdownTimeout: time.Second}),
	}
	env.Gateway = invoke.NewGateway(env.Bus, env.Registry, env.Pool, replyTopic)
	env.Dispatcher = invoke.NewReplyDispatcher(env.Bus, env.Registry, env.Pool)

	env.Container.MustRegister(
		env.Bus,
		env.Pool,
		container.NewHook("dispatcher",
			func(ctx context.Context) error { return env.Dispatcher.Start(ctx, replyTopic) },
			func(ctx context.Context) error {
				err := env.Dispatcher.Stop(ctx)
				env.Registry.Close()
				return err
			}),
	)

	if err := env.Container.Start(context.Background()); err != nil {
		t.Fatalf("failed to start test environment: %v", err)
	}
	t.Cleanup(func() {
		_ = env.Container.Shutdown(context.Background())
	})

	return env
}

// Serve подписывает тестовый upstream обработчик на topic
func Serve[Req, Resp any](t testing.TB, env *InMemoryTestEnvironment, topic string, handler invoke.HandlerFunc[Req, Resp]) {
	t.Helper()
	if err := invoke.Serve(context.Background(), env.Bus, env.Serializer, topic, handler); err != nil {
		t.Fatalf("failed to serve %s: %v", topic, err)
	}
}
