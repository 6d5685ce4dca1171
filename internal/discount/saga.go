package discount

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/fsm"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/metrics"
)

// Состояния саги
const (
	StateInit             = "INIT"
	StateCouponValidation = "COUPON_VALIDATION"
	StateTierDiscount     = "TIER_DISCOUNT"
	StateFinalized        = "FINALIZED"
	StateFailed           = "FAILED"
)

// События саги
const (
	EventValidateCoupons = "validate_coupons"
	EventApplyTier       = "apply_tier"
	EventFinalize        = "finalize"
	EventFail            = "fail"
)

// Saga один запуск расчета скидки.
// Ожидание ответов выполняется вне переходов автомата: действие перехода только отправляет запрос.
type Saga struct {
	id      string
	request DiscountRequest
	coupons []string
	policy  Policy
	topics  invoke.TopicResolver
	gateway *invoke.Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics

	machine *fsm.FSM
	state   *DiscountContext
	partial *PartialCouponFailure

	couponCall *invoke.Future[CouponValidationReply]
	tierCall   *invoke.Future[TierDiscountReply]
}

func newSaga(req DiscountRequest, gateway *invoke.Gateway, policy Policy, topics invoke.TopicResolver, log *zap.Logger, m *metrics.Metrics) (*Saga, error) {
	s := &Saga{
		id:      invoke.GenerateCorrelationID(),
		request: req,
		coupons: req.uniqueCoupons(),
		policy:  policy.withDefaults(),
		topics:  topics,
		gateway: gateway,
		metrics: m,
		state:   NewDiscountContext(req.OriginalAmount, req.ProductDiscount, req.OrderLevelDiscount),
	}
	s.logger = log.With(zap.String("saga_id", s.id), zap.String("order_id", req.OrderID))

	machine, err := s.build()
	if err != nil {
		return nil, err
	}
	s.machine = machine
	return s, nil
}

// build строит автомат саги: по одному переходу на ребро графа
func (s *Saga) build() (*fsm.FSM, error) {
	initial := fsm.NewBaseState(StateInit)
	couponValidation := fsm.NewBaseState(StateCouponValidation)
	tierDiscount := fsm.NewBaseState(StateTierDiscount)
	finalized := fsm.NewStateWithActions(fsm.NewTerminalState(StateFinalized),
		[]fsm.Action{fsm.NewNamedAction("log_finalized", s.logFinalized)}, nil)
	failed := fsm.NewStateWithActions(fsm.NewTerminalState(StateFailed),
		[]fsm.Action{fsm.NewNamedAction("log_failure", s.logFailure)}, nil)

	machine := fsm.NewFSM(initial, fsm.Config{ID: s.id, MaxHistory: 8})
	for _, state := range []fsm.State{couponValidation, tierDiscount, finalized, failed} {
		if err := machine.AddState(state); err != nil {
			return nil, err
		}
	}

	transitions := []fsm.Transition{
		fsm.NewTransition(initial, couponValidation, EventValidateCoupons).
			WithActions(fsm.NewConditionalAction("request_coupons", s.hasCoupons,
				fsm.NewNamedAction("call_coupon_service", s.requestCoupons))),
		fsm.NewTransition(couponValidation, tierDiscount, EventApplyTier).
			WithActions(
				fsm.NewNamedAction("apply_coupons", s.applyCoupons),
				fsm.NewNamedAction("call_tier_service", s.requestTier),
			),
		fsm.NewTransition(tierDiscount, finalized, EventFinalize).
			WithActions(fsm.NewNamedAction("apply_tier", s.applyTier)),
		fsm.NewTransition(couponValidation, failed, EventFail),
		fsm.NewTransition(tierDiscount, failed, EventFail),
	}
	for _, t := range transitions {
		if err := machine.AddTransition(t); err != nil {
			return nil, fmt.Errorf("failed to add transition %s: %w", t.EventName(), err)
		}
	}
	return machine, nil
}

// ID возвращает идентификатор саги
func (s *Saga) ID() string {
	return s.id
}

// State возвращает текущее состояние автомата
func (s *Saga) State() string {
	return s.machine.CurrentState().Name()
}

// History возвращает пройденные переходы
func (s *Saga) History() []fsm.StateHistory {
	return s.machine.History()
}

// Run проводит сагу до FINALIZED или FAILED
func (s *Saga) Run(ctx context.Context) (*DiscountResult, error) {
	start := time.Now()

	if err := s.machine.Trigger(ctx, fsm.NewEvent(EventValidateCoupons, nil)); err != nil {
		return nil, s.fail(ctx, start, StateInit, err)
	}

	var couponReply *CouponValidationReply
	if s.couponCall != nil {
		reply, err := s.couponCall.Await(ctx)
		if err != nil {
			return nil, s.fail(ctx, start, StateCouponValidation, err)
		}
		if len(reply.Errors) > 0 {
			s.partial = &PartialCouponFailure{Invalid: reply.Errors}
			if s.policy.StrictCoupons {
				return nil, s.fail(ctx, start, StateCouponValidation, s.partial)
			}
			s.logger.Info("some coupons rejected, continuing",
				zap.String("stage", StateCouponValidation),
				zap.Int("invalid", len(reply.Errors)))
		}
		couponReply = &reply
	}

	if err := s.machine.Trigger(ctx, fsm.NewEvent(EventApplyTier, couponReply)); err != nil {
		return nil, s.fail(ctx, start, StateCouponValidation, err)
	}

	tierReply, err := s.tierCall.Await(ctx)
	if err != nil {
		return nil, s.fail(ctx, start, StateTierDiscount, err)
	}

	if err := s.machine.Trigger(ctx, fsm.NewEvent(EventFinalize, tierReply)); err != nil {
		return nil, s.fail(ctx, start, StateTierDiscount, err)
	}

	s.metrics.RecordSaga(ctx, StateFinalized, "", time.Since(start))
	return newDiscountResult(s.id, s.request.OrderID, s.state, s.partial), nil
}

// fail переводит автомат в FAILED и возвращает DiscountError с частичным контекстом
func (s *Saga) fail(ctx context.Context, start time.Time, stage string, cause error) error {
	derr := newDiscountError(s.id, stage, s.state, cause)
	if !s.machine.IsTerminal() {
		// Переход в FAILED не должен зависеть от отмененного контекста вызывающего
		if err := s.machine.Trigger(context.WithoutCancel(ctx), fsm.NewEvent(EventFail, derr)); err != nil {
			s.logger.Error("saga cannot enter failed state",
				zap.String("stage", stage),
				zap.Error(err))
		}
	}
	s.metrics.RecordSaga(ctx, StateFailed, stage, time.Since(start))
	return derr
}

func (s *Saga) hasCoupons(ctx context.Context, event fsm.Event) bool {
	return len(s.coupons) > 0
}

func (s *Saga) requestCoupons(ctx context.Context, event fsm.Event) error {
	callID := invoke.GenerateCorrelationID()
	req := CouponValidationRequest{
		CorrelationID: callID,
		UserID:        s.request.UserID,
		CouponCodes:   s.coupons,
		Amount:        s.state.RunningAmount,
	}
	s.couponCall = invoke.Call[CouponValidationReply](ctx, s.gateway,
		s.topics.RequestTopic(OperationValidateCoupons), req, s.callOptions(callID, s.policy.CouponTimeout)...)

	s.logger.Debug("coupon validation requested",
		zap.String("stage", StateCouponValidation),
		zap.String("correlation_id", callID),
		zap.Strings("coupons", s.coupons))
	return nil
}

func (s *Saga) applyCoupons(ctx context.Context, event fsm.Event) error {
	reply, _ := event.Data().(*CouponValidationReply)
	if reply == nil {
		return nil
	}
	s.state.ApplyCoupons(reply.TotalDiscount, reply.ValidCoupons)
	return nil
}

func (s *Saga) requestTier(ctx context.Context, event fsm.Event) error {
	callID := invoke.GenerateCorrelationID()
	req := TierDiscountRequest{
		CorrelationID: callID,
		UserID:        s.request.UserID,
		Amount:        s.state.RunningAmount,
		ContextTotals: ContextTotals{
			OriginalAmount:     s.state.OriginalAmount,
			ProductDiscount:    s.state.ProductDiscount,
			OrderLevelDiscount: s.state.OrderLevelDiscount,
			CouponDiscount:     s.state.CouponDiscount,
		},
	}
	s.tierCall = invoke.Call[TierDiscountReply](ctx, s.gateway,
		s.topics.RequestTopic(OperationTierDiscount), req, s.callOptions(callID, s.policy.TierTimeout)...)

	s.logger.Debug("tier discount requested",
		zap.String("stage", StateTierDiscount),
		zap.String("correlation_id", callID),
		zap.Float64("amount", req.Amount))
	return nil
}

func (s *Saga) applyTier(ctx context.Context, event fsm.Event) error {
	reply, ok := event.Data().(TierDiscountReply)
	if !ok {
		return fmt.Errorf("unexpected tier reply %T", event.Data())
	}
	s.state.ApplyTier(reply.TierDiscount, reply.MembershipTier)
	return nil
}

func (s *Saga) logFinalized(ctx context.Context, event fsm.Event) error {
	s.logger.Info("discount computed",
		zap.Float64("total_discount", s.state.TotalDiscount()),
		zap.Float64("final_amount", s.state.FinalAmount()),
		zap.String("membership_tier", s.state.MembershipTier))
	return nil
}

func (s *Saga) logFailure(ctx context.Context, event fsm.Event) error {
	if derr, ok := event.Data().(*DiscountError); ok {
		s.logger.Warn("discount saga failed",
			zap.String("stage", derr.Stage),
			zap.String("kind", string(derr.Kind)),
			zap.Error(derr.Cause))
	}
	return nil
}

func (s *Saga) callOptions(callID string, timeout time.Duration) []invoke.InvokeOption {
	return []invoke.InvokeOption{
		invoke.WithCorrelationIDOption(callID),
		invoke.WithTimeout(timeout),
		invoke.WithKey(s.id),
		invoke.WithHeaders(map[string]string{HeaderSagaID: s.id}),
	}
}
