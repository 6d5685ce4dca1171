package invoke

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
)

// WorkerPool небольшой фиксированный пул фоновых задач:
// публикация запросов и разбор ответов выполняются здесь, а не в потоках транспорта.
type WorkerPool struct {
	size    int
	queue   chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	logger  *zap.Logger
}

// NewWorkerPool создает пул с size воркерами и очередью queueSize
func NewWorkerPool(size, queueSize int, log *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		size:   size,
		queue:  make(chan func(), queueSize),
		logger: logger.OrNop(log).Named("worker-pool"),
	}
}

// Start запускает воркеры (реализация core.Lifecycle)
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(i + 1)
	}
	p.running = true
	return nil
}

// Stop дожидается выполнения поставленных задач и останавливает воркеры
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning проверяет, запущен ли пул
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Name возвращает имя компонента
func (p *WorkerPool) Name() string {
	return "worker-pool"
}

// Type возвращает тип компонента
func (p *WorkerPool) Type() core.ComponentType {
	return core.ComponentTypeModule
}

// Submit ставит задачу в очередь и никогда не блокируется:
// при заполненной очереди возвращает POOL_SATURATED.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return NewPoolStoppedError()
	}
	// Отправка неблокирующая, поэтому RLock не задерживает Stop
	select {
	case p.queue <- task:
		return nil
	default:
		return NewPoolSaturatedError(cap(p.queue))
	}
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(id, task)
	}
}

func (p *WorkerPool) run(id int, task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Int("worker", id), zap.Any("panic", r))
		}
	}()
	task()
}
