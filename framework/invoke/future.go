package invoke

import (
	"context"
	"fmt"
	"sync"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Future ожидаемый результат вызова Call. Await можно вызывать из нескольких горутин.
type Future[T any] struct {
	correlationID string
	pending       *PendingReply
	cancel        func(id string) bool

	// ready закрывается после записи result
	ready   chan struct{}
	mu      sync.Mutex
	settled bool
	result  core.Result[T]
}

// newFuture создает Future, связанный с ожидающим слотом
func newFuture[T any](pending *PendingReply, cancel func(id string) bool) *Future[T] {
	return &Future[T]{
		correlationID: pending.CorrelationID,
		pending:       pending,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}
}

// failedFuture создает уже завершенный с ошибкой Future
func failedFuture[T any](correlationID string, err error) *Future[T] {
	f := &Future[T]{
		correlationID: correlationID,
		ready:         make(chan struct{}),
	}
	f.complete(core.Err[T](err))
	return f
}

// CorrelationID возвращает correlation ID вызова
func (f *Future[T]) CorrelationID() string {
	return f.correlationID
}

// Await ждет ответа, таймаута или отмены контекста.
// Отмена контекста снимает регистрацию, поздний ответ будет отброшен диспетчером.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.ready:
		return f.result.Unpack()
	default:
	}

	select {
	case <-f.ready:
	case res := <-f.pending.Done():
		f.complete(f.convert(res))
	case <-ctx.Done():
		if f.cancel != nil && f.cancel(f.correlationID) {
			// Слот получил TimeoutError от Expire, забираем его, если другой Await не успел
			select {
			case <-f.pending.Done():
				f.complete(core.Err[T](ctx.Err()))
			case <-f.ready:
			}
			var zero T
			return zero, ctx.Err()
		}
		// Ответ уже пришел, отдаем его
		select {
		case res := <-f.pending.Done():
			f.complete(f.convert(res))
		case <-f.ready:
		}
	}

	return f.result.Unpack()
}

// complete записывает результат один раз и будит всех ожидающих
func (f *Future[T]) complete(result core.Result[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.settled = true
	f.result = result
	close(f.ready)
}

func (f *Future[T]) convert(res core.Result[any]) core.Result[T] {
	if res.IsErr() {
		return core.Err[T](res.Error)
	}
	value, ok := res.Value.(T)
	if !ok {
		var zero T
		return core.Err[T](NewDeserializationError(
			f.correlationID,
			fmt.Sprintf("%T", zero),
			fmt.Errorf("unexpected result type %T", res.Value),
		))
	}
	return core.Ok(value)
}
