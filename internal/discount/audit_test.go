package discount

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/akriventsev/potter-commerce/framework/adapters/messagebus"
	"github.com/akriventsev/potter-commerce/framework/adapters/persistence"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

func TestGormAuditRecorder_PublishesComputedEvent(t *testing.T) {
	ctx := context.Background()

	bus := messagebus.NewInMemoryAdapter(messagebus.InMemoryConfig{EnableOrdering: true})
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { _ = bus.Stop(context.Background()) })

	var (
		mu     sync.Mutex
		events []DiscountComputedEvent
	)
	require.NoError(t, bus.Subscribe(ctx, DiscountComputedSubject, func(ctx context.Context, msg *transport.Message) error {
		var event DiscountComputedEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			return err
		}
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
		return nil
	}))

	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "potter:potter@tcp(127.0.0.1:3306)/potter?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true, SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, persistence.RegisterPublishCallback(db, bus, invoke.NewJSONSerializer(), nil))

	result := &DiscountResult{
		SagaID:        "saga-1",
		TotalDiscount: 56,
		FinalAmount:   144,
		Breakdown:     []BreakdownEntry{{Type: DiscountTypeTier, Amount: 56, Source: SourceTierService}},
	}
	audit := newAudit("saga-1", newRequest("gold"), result, nil)
	require.NoError(t, NewGormAuditRecorder(db).Record(ctx, audit))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, DiscountComputedEvent{
		SagaID:        "saga-1",
		OrderID:       "order-1",
		UserID:        "gold",
		State:         StateFinalized,
		TotalDiscount: 56,
		FinalAmount:   144,
	}, events[0])
}

func TestNewAudit_FromDiscountError(t *testing.T) {
	partial := NewDiscountContext(200, 20, 0)
	derr := &DiscountError{
		SagaID:  "saga-2",
		Stage:   StateTierDiscount,
		Kind:    KindTimeout,
		Context: partial,
	}

	audit := newAudit("saga-2", newRequest("gold"), nil, derr)
	assert.Equal(t, StateFailed, audit.State)
	assert.Equal(t, StateTierDiscount, audit.FailedStage)
	assert.Equal(t, string(KindTimeout), audit.FailureKind)
	assert.Equal(t, 20.0, audit.TotalDiscount)
	assert.Equal(t, 180.0, audit.FinalAmount)
	assert.Equal(t, "discount_audits", audit.TableName())
}
