package invoke

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-commerce/framework/core"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	pool := NewWorkerPool(3, 32, nil)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))

	var done atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(func() { done.Add(1) }))
	}

	require.NoError(t, pool.Stop(ctx))
	assert.Equal(t, int32(20), done.Load())
	assert.False(t, pool.IsRunning())
}

func TestWorkerPool_SubmitAfterStop(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)

	err := pool.Submit(func() {})
	assert.True(t, core.HasCode(err, ErrPoolStopped))

	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	require.NoError(t, pool.Stop(ctx))

	err = pool.Submit(func() {})
	assert.True(t, core.HasCode(err, ErrPoolStopped))
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool := NewWorkerPool(1, 4, nil)
	ctx := context.Background()
	require.NoError(t, pool.Start(ctx))
	defer func() { _ = pool.Stop(ctx) }()

	require.NoError(t, pool.Submit(func() { panic("boom") }))

	ran := make(chan struct{})
	require.NoError(t, pool.Submit(func() { close(ran) }))

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestWorkerPool_StopRespectsContext(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	require.NoError(t, pool.Start(context.Background()))

	release := make(chan struct{})
	require.NoError(t, pool.Submit(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)

	close(release)
}

func TestWorkerPool_SubmitDoesNotBlockWhenSaturated(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	require.NoError(t, pool.Start(context.Background()))

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, pool.Submit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, pool.Submit(func() {}))

	returned := make(chan error, 1)
	go func() { returned <- pool.Submit(func() {}) }()

	select {
	case err := <-returned:
		assert.True(t, core.HasCode(err, ErrPoolSaturated))
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	// Stop не ждет заблокированных Submit
	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop(context.Background()) }()
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop hung after saturation")
	}
}
