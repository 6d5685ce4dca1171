package discount

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/fsm"
)

func historyEvents(s *Saga) []string {
	events := make([]string, 0, 4)
	for _, h := range s.History() {
		events = append(events, h.Event)
	}
	return events
}

func TestSaga_FinalizedPath(t *testing.T) {
	env := newDiscountEnv(t)
	env.serveCoupons(t)
	env.serveTiers(t)

	saga, err := newSaga(newRequest("gold", "SAVE10"), env.Gateway, DefaultPolicy(), DefaultTopics(), zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateInit, saga.State())

	result, err := saga.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, saga.ID(), result.SagaID)
	assert.Equal(t, StateFinalized, saga.State())
	assert.Equal(t, []string{EventValidateCoupons, EventApplyTier, EventFinalize}, historyEvents(saga))

	err = saga.machine.Trigger(context.Background(), fsm.NewEvent(EventFail, nil))
	assert.True(t, core.HasCode(err, fsm.ErrTerminalState))
}

func TestSaga_FailedPathFromCouponStage(t *testing.T) {
	env := newDiscountEnv(t)
	env.serveCoupons(t)

	policy := DefaultPolicy()
	policy.StrictCoupons = true

	saga, err := newSaga(newRequest("gold", "BOGUS"), env.Gateway, policy, DefaultTopics(), zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = saga.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, saga.State())
	assert.Equal(t, []string{EventValidateCoupons, EventFail}, historyEvents(saga))
}

func TestSaga_SkippedCouponStageStillTransitions(t *testing.T) {
	env := newDiscountEnv(t)
	env.serveTiers(t)

	saga, err := newSaga(newRequest("basic"), env.Gateway, DefaultPolicy(), DefaultTopics(), zap.NewNop(), nil)
	require.NoError(t, err)

	_, err = saga.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, saga.couponCall)
	assert.Equal(t, []string{EventValidateCoupons, EventApplyTier, EventFinalize}, historyEvents(saga))
}
