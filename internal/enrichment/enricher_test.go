package enrichment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	pottertest "github.com/akriventsev/potter-commerce/framework/testing"
)

const replyTopic = "replies.enrichment.test"

var catalogue = map[string]ProductInfo{
	"p1": {ID: "p1", Name: "Keyboard", Price: 49.9, Category: "input"},
	"p2": {ID: "p2", Name: "Mouse", Price: 19.5, Category: "input"},
	"p4": {ID: "p4", Name: "Monitor", Price: 199, Category: "display"},
}

type fanoutEnv struct {
	*pottertest.InMemoryTestEnvironment

	mu             sync.Mutex
	productBatches [][]string
	stockBatches   [][]string
}

func newFanoutEnv(t *testing.T) *fanoutEnv {
	t.Helper()
	return &fanoutEnv{InMemoryTestEnvironment: pottertest.NewInMemoryTestEnvironment(t, replyTopic)}
}

func (e *fanoutEnv) serveCatalogue(t *testing.T, fail bool) {
	t.Helper()
	pottertest.Serve(t, e.InMemoryTestEnvironment, OperationProductLookup,
		func(ctx context.Context, req ProductLookupRequest) (ProductLookupReply, error) {
			e.mu.Lock()
			e.productBatches = append(e.productBatches, req.ProductIDs)
			e.mu.Unlock()
			if fail {
				return ProductLookupReply{}, errors.New("catalogue unavailable")
			}

			reply := ProductLookupReply{Products: []ProductInfo{}}
			for _, id := range req.ProductIDs {
				if info, ok := catalogue[id]; ok {
					reply.Products = append(reply.Products, info)
				}
			}
			return reply, nil
		})
}

func (e *fanoutEnv) serveStock(t *testing.T, fail bool) {
	t.Helper()
	pottertest.Serve(t, e.InMemoryTestEnvironment, OperationStockLookup,
		func(ctx context.Context, req StockLookupRequest) (StockLookupReply, error) {
			e.mu.Lock()
			e.stockBatches = append(e.stockBatches, req.ProductIDs)
			e.mu.Unlock()
			if fail {
				return StockLookupReply{}, errors.New("inventory unavailable")
			}

			reply := StockLookupReply{}
			for i, id := range req.ProductIDs {
				reply.Items = append(reply.Items, StockInfo{ProductID: id, Quantity: i * 3, Warehouse: "main"})
			}
			return reply, nil
		})
}

func TestEnricher_MissingProductMarkedUnavailable(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	env.serveStock(t, false)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	views, err := enricher.Lookup(context.Background(), []string{"p2", "p1", "p3"})
	require.NoError(t, err)
	require.Len(t, views, 3)

	assert.Equal(t, "p2", views[0].ID)
	assert.Equal(t, "Mouse", views[0].Name)
	assert.True(t, views[0].Available)
	assert.True(t, views[0].StockKnown)
	assert.False(t, views[0].InStock)

	assert.Equal(t, "p1", views[1].ID)
	assert.True(t, views[1].Available)
	assert.Equal(t, 3, views[1].Quantity)
	assert.True(t, views[1].InStock)

	assert.Equal(t, "p3", views[2].ID)
	assert.False(t, views[2].Available)
	assert.Equal(t, ReasonNotFound, views[2].Reason)
}

func TestEnricher_DuplicateIDsRequestedOnce(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	env.serveStock(t, false)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	views, err := enricher.Lookup(context.Background(), []string{"p1", "p2", "p1"})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, views[0], views[2])

	env.mu.Lock()
	defer env.mu.Unlock()
	require.Len(t, env.productBatches, 1)
	assert.Equal(t, []string{"p1", "p2"}, env.productBatches[0])
	require.Len(t, env.stockBatches, 1)
	assert.Equal(t, []string{"p1", "p2"}, env.stockBatches[0])
}

func TestEnricher_CachedProductsNotRequested(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	env.serveStock(t, false)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	_, err := enricher.Lookup(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 2, enricher.CacheLen())

	views, err := enricher.Lookup(context.Background(), []string{"p1", "p4"})
	require.NoError(t, err)
	assert.True(t, views[0].Available)
	assert.Equal(t, "Monitor", views[1].Name)

	_, err = enricher.Lookup(context.Background(), []string{"p2", "p4"})
	require.NoError(t, err)

	env.mu.Lock()
	defer env.mu.Unlock()
	// Третий запрос обслужен кэшем, каталог не вызывался
	require.Len(t, env.productBatches, 2)
	assert.Equal(t, []string{"p4"}, env.productBatches[1])
	assert.Len(t, env.stockBatches, 3)
}

func TestEnricher_ProductBranchFailure(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, true)
	env.serveStock(t, false)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	views, err := enricher.Lookup(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)

	for _, view := range views {
		assert.False(t, view.Available)
		assert.Equal(t, ReasonProductLookupFailed, view.Reason)
		assert.True(t, view.StockKnown)
	}
}

func TestEnricher_StockBranchFailure(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	env.serveStock(t, true)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	views, err := enricher.Lookup(context.Background(), []string{"p1"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Available)
	assert.False(t, views[0].StockKnown)
}

func TestEnricher_AllBranchesFail(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, true)
	env.serveStock(t, true)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	_, err := enricher.Lookup(context.Background(), []string{"p1"})
	require.Error(t, err)
	assert.True(t, core.HasCode(err, ErrEnrichmentFailed))
	assert.True(t, core.HasCode(err, invoke.ErrUpstreamFailure))
}

func TestEnricher_BarrierTimeoutReturnsPartialResults(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	// Склад не отвечает

	cfg := DefaultConfig()
	cfg.BarrierTimeout = 100 * time.Millisecond
	cfg.CallTimeout = 5 * time.Second
	enricher := NewEnricher(env.Gateway, cfg)

	start := time.Now()
	views, err := enricher.Lookup(context.Background(), []string{"p1", "p3"})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, time.Second)
	require.Len(t, views, 2)
	assert.True(t, views[0].Available)
	assert.False(t, views[0].StockKnown)
	assert.Equal(t, ReasonNotFound, views[1].Reason)
	assert.Equal(t, 0, env.Gateway.Registry().Pending())
}

func TestEnricher_CancelledContext(t *testing.T) {
	env := newFanoutEnv(t)

	enricher := NewEnricher(env.Gateway, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	_, err := enricher.Lookup(ctx, []string{"p1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnricher_CancelWhileBranchPending(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	// Склад не отвечает, ветка каталога уже завершилась

	cfg := DefaultConfig()
	cfg.BarrierTimeout = 5 * time.Second
	cfg.CallTimeout = 5 * time.Second
	enricher := NewEnricher(env.Gateway, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	views, err := enricher.Lookup(ctx, []string{"p1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, views)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, env.Gateway.Registry().Pending())
	assert.Zero(t, enricher.CacheLen())
}

func TestEnricher_EmptyInput(t *testing.T) {
	enricher := NewEnricher(nil, DefaultConfig())
	views, err := enricher.Lookup(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestEnricher_ServeOverBus(t *testing.T) {
	env := newFanoutEnv(t)
	env.serveCatalogue(t, false)
	env.serveStock(t, false)

	ctx := context.Background()
	enricher := NewEnricher(env.Gateway, DefaultConfig())
	require.NoError(t, enricher.Serve(ctx, env.Bus, env.Serializer, ""))

	reply, err := invoke.Call[EnrichReply](ctx, env.Gateway, OperationEnrichProducts,
		EnrichRequest{ProductIDs: []string{"p4", "p9"}}, invoke.WithTimeout(2*time.Second)).Await(ctx)
	require.NoError(t, err)
	require.Len(t, reply.Products, 2)
	assert.Equal(t, "Monitor", reply.Products[0].Name)
	assert.False(t, reply.Products[1].Available)
}
