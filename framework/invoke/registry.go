package invoke

import (
	"sync"
	"time"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Decoder декодирует payload ответа в ожидаемый тип
type Decoder func(payload []byte) (any, error)

// Outcome итог ожидания ответа
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeRejected Outcome = "rejected"
	OutcomeExpired  Outcome = "expired"
)

// PendingReply слот ожидания ответа для одного correlation ID.
// Принадлежит реестру от регистрации до первого settle.
type PendingReply struct {
	CorrelationID string
	Topic         string
	ExpectedType  string
	Deadline      time.Time
	RegisteredAt  time.Time

	decode Decoder
	slot   chan core.Result[any]
	timer  *time.Timer
}

// Done возвращает канал, в который будет записан ровно один результат
func (p *PendingReply) Done() <-chan core.Result[any] {
	return p.slot
}

// Decode декодирует payload в ожидаемый тип
func (p *PendingReply) Decode(payload []byte) (any, error) {
	if p.decode == nil {
		return payload, nil
	}
	return p.decode(payload)
}

// PendingOption опция регистрации ожидания
type PendingOption func(*PendingReply)

// ForTopic запоминает топик запроса (для логов и метрик)
func ForTopic(topic string) PendingOption {
	return func(p *PendingReply) {
		p.Topic = topic
	}
}

// ExpectType задает ожидаемый тип ответа и его декодер
func ExpectType(name string, decode Decoder) PendingOption {
	return func(p *PendingReply) {
		p.ExpectedType = name
		p.decode = decode
	}
}

// SettleHook вызывается после того, как слот получил результат
type SettleHook func(p *PendingReply, outcome Outcome)

// Registry реестр ожидающих ответов.
// Resolve, Reject и Expire конкурируют за удаление записи из map;
// ровно один из них выигрывает, остальные возвращают false.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*PendingReply
	closed  bool
	hooks   []SettleHook
	now     func() time.Time
}

// NewRegistry создает новый реестр
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]*PendingReply),
		now:     time.Now,
	}
}

// OnSettle добавляет хук, вызываемый при каждом settle
func (r *Registry) OnSettle(hook SettleHook) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
	return r
}

// Register регистрирует ожидание ответа и запускает таймер дедлайна
func (r *Registry) Register(id string, deadline time.Time, opts ...PendingOption) (*PendingReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, NewRegistryClosedError()
	}
	if _, exists := r.pending[id]; exists {
		return nil, NewDuplicateCorrelationIDError(id)
	}

	p := &PendingReply{
		CorrelationID: id,
		Deadline:      deadline,
		RegisteredAt:  r.now(),
		slot:          make(chan core.Result[any], 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	r.pending[id] = p

	// Колбэк блокируется на r.mu до выхода из Register, поэтому timer уже присвоен
	p.timer = time.AfterFunc(time.Until(deadline), func() {
		r.Expire(id)
	})

	return p, nil
}

// Lookup возвращает ожидающий слот без изменения реестра
func (r *Registry) Lookup(id string) (*PendingReply, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[id]
	return p, ok
}

// Resolve завершает ожидание успешным результатом.
// Возвращает false, если id неизвестен или уже завершен.
func (r *Registry) Resolve(id string, value any) bool {
	p := r.take(id)
	if p == nil {
		return false
	}
	p.timer.Stop()
	p.slot <- core.Ok(value)
	r.notify(p, OutcomeResolved)
	return true
}

// Reject завершает ожидание ошибкой
func (r *Registry) Reject(id string, err error) bool {
	p := r.take(id)
	if p == nil {
		return false
	}
	p.timer.Stop()
	p.slot <- core.Err[any](err)
	r.notify(p, OutcomeRejected)
	return true
}

// Expire завершает ожидание ошибкой TimeoutError.
// Возвращает false, если ответ уже был получен.
func (r *Registry) Expire(id string) bool {
	p := r.take(id)
	if p == nil {
		return false
	}
	p.timer.Stop()
	p.slot <- core.Err[any](&TimeoutError{
		CorrelationID: id,
		Timeout:       p.Deadline.Sub(p.RegisteredAt),
	})
	r.notify(p, OutcomeExpired)
	return true
}

// Pending возвращает количество ожидающих ответов
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close отклоняет все ожидающие вызовы и запрещает новые регистрации
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Reject(id, NewRegistryClosedError())
	}
}

// take атомарно извлекает и удаляет запись (compare-and-remove)
func (r *Registry) take(id string) *PendingReply {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return p
}

func (r *Registry) notify(p *PendingReply, outcome Outcome) {
	r.mu.Lock()
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(p, outcome)
	}
}
