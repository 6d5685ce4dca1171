package invoke

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-commerce/framework/core"
)

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("c-1", time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = r.Register("c-1", time.Now().Add(time.Minute))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, ErrDuplicateCorrelationID))
	assert.Equal(t, 1, r.Pending())
}

func TestRegistry_ResolveDeliversOnce(t *testing.T) {
	r := NewRegistry()

	p, err := r.Register("c-1", time.Now().Add(time.Minute), ForTopic("coupon.validate"))
	require.NoError(t, err)
	assert.Equal(t, "coupon.validate", p.Topic)

	assert.True(t, r.Resolve("c-1", "ok"))
	assert.False(t, r.Resolve("c-1", "again"))
	assert.False(t, r.Reject("c-1", errors.New("late")))
	assert.False(t, r.Expire("c-1"))

	res := <-p.Done()
	require.NoError(t, res.Error)
	assert.Equal(t, "ok", res.Value)
	assert.Equal(t, 0, r.Pending())

	_, ok := r.Lookup("c-1")
	assert.False(t, ok)
}

func TestRegistry_ExpireOnDeadline(t *testing.T) {
	r := NewRegistry()

	var outcomes []Outcome
	var mu sync.Mutex
	r.OnSettle(func(p *PendingReply, outcome Outcome) {
		mu.Lock()
		outcomes = append(outcomes, outcome)
		mu.Unlock()
	})

	p, err := r.Register("c-1", time.Now().Add(30*time.Millisecond))
	require.NoError(t, err)

	select {
	case res := <-p.Done():
		require.Error(t, res.Error)
		assert.True(t, errors.Is(res.Error, &TimeoutError{}))
	case <-time.After(time.Second):
		t.Fatal("deadline timer did not fire")
	}

	assert.False(t, r.Resolve("c-1", "late"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Outcome{OutcomeExpired}, outcomes)
}

func TestRegistry_ResolveStopsTimer(t *testing.T) {
	r := NewRegistry()

	var expired atomic.Int32
	r.OnSettle(func(p *PendingReply, outcome Outcome) {
		if outcome == OutcomeExpired {
			expired.Add(1)
		}
	})

	_, err := r.Register("c-1", time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)
	require.True(t, r.Resolve("c-1", 1))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), expired.Load())
}

func TestRegistry_ConcurrentSettleHasSingleWinner(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 200; i++ {
		id := GenerateCorrelationID()
		p, err := r.Register(id, time.Now().Add(time.Millisecond))
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(3)
			go func() {
				defer wg.Done()
				if r.Resolve(id, "v") {
					wins.Add(1)
				}
			}()
			go func() {
				defer wg.Done()
				if r.Reject(id, errors.New("x")) {
					wins.Add(1)
				}
			}()
			go func() {
				defer wg.Done()
				if r.Expire(id) {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		// Таймер мог выиграть гонку сам
		select {
		case <-p.Done():
		case <-time.After(time.Second):
			t.Fatal("slot was never settled")
		}
		assert.LessOrEqual(t, wins.Load(), int32(1))
		assert.Empty(t, p.Done())
	}

	assert.Equal(t, 0, r.Pending())
}

func TestRegistry_Close(t *testing.T) {
	r := NewRegistry()

	p1, err := r.Register("c-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	p2, err := r.Register("c-2", time.Now().Add(time.Minute))
	require.NoError(t, err)

	r.Close()

	for _, p := range []*PendingReply{p1, p2} {
		res := <-p.Done()
		assert.True(t, core.HasCode(res.Error, ErrRegistryClosed))
	}

	_, err = r.Register("c-3", time.Now().Add(time.Minute))
	assert.True(t, core.HasCode(err, ErrRegistryClosed))
	assert.Equal(t, 0, r.Pending())
}

func TestPendingReply_DecodeWithoutDecoder(t *testing.T) {
	r := NewRegistry()
	p, err := r.Register("c-1", time.Now().Add(time.Minute))
	require.NoError(t, err)
	defer r.Expire("c-1")

	value, err := p.Decode([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), value)
}
