package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// ErrEnrichmentFailed все ветки запроса завершились ошибкой
const ErrEnrichmentFailed = "ENRICHMENT_FAILED"

// Config конфигурация Enricher
type Config struct {
	// BarrierTimeout общее время ожидания всех веток
	BarrierTimeout time.Duration
	CallTimeout    time.Duration
	CacheSize      int
	CacheTTL       time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		BarrierTimeout: 2 * time.Second,
		CallTimeout:    2 * time.Second,
		CacheSize:      1024,
		CacheTTL:       5 * time.Minute,
	}
}

// Enricher параллельно запрашивает каталог и склад и собирает ProductView
type Enricher struct {
	gateway *invoke.Gateway
	topics  invoke.TopicResolver
	config  Config
	cache   *expirable.LRU[string, ProductInfo]
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEnricher создает новый Enricher
func NewEnricher(gateway *invoke.Gateway, config Config) *Enricher {
	def := DefaultConfig()
	if config.BarrierTimeout <= 0 {
		config.BarrierTimeout = def.BarrierTimeout
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = config.BarrierTimeout
	}
	if config.CacheSize <= 0 {
		config.CacheSize = def.CacheSize
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}

	return &Enricher{
		gateway: gateway,
		topics:  invoke.NewPrefixTopicResolver(""),
		config:  config,
		cache:   expirable.NewLRU[string, ProductInfo](config.CacheSize, nil, config.CacheTTL),
		logger:  zap.NewNop(),
	}
}

// WithTopics устанавливает резолвер топиков
func (e *Enricher) WithTopics(topics invoke.TopicResolver) *Enricher {
	if topics != nil {
		e.topics = topics
	}
	return e
}

// WithLogger устанавливает логгер
func (e *Enricher) WithLogger(l *zap.Logger) *Enricher {
	e.logger = logger.OrNop(l).Named("enrichment")
	return e
}

// WithMetrics устанавливает метрики
func (e *Enricher) WithMetrics(m *metrics.Metrics) *Enricher {
	e.metrics = m
	return e
}

// CacheLen возвращает количество товаров в кэше
func (e *Enricher) CacheLen() int {
	return e.cache.Len()
}

// Lookup возвращает по одному ProductView на каждый входной id в исходном порядке.
// Ошибки веток не прерывают запрос: затронутые товары помечаются недоступными.
// Ошибка возвращается только при отмене ctx или если все ветки завершились ошибкой.
func (e *Enricher) Lookup(ctx context.Context, productIDs []string) ([]ProductView, error) {
	if len(productIDs) == 0 {
		return []ProductView{}, nil
	}

	ids := unique(productIDs)
	products := make(map[string]ProductInfo, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if info, ok := e.cache.Get(id); ok {
			products[id] = info
			continue
		}
		missing = append(missing, id)
	}

	barrierCtx, cancel := context.WithTimeout(ctx, e.config.BarrierTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(barrierCtx)

	var (
		productErr error
		stockErr   error
		found      []ProductInfo
		stock      []StockInfo
	)

	// Ошибка upstream остается в своей ветке, группу прерывает только отмена ctx вызывающего
	branchResult := func(err error, slot *error) error {
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		*slot = err
		return nil
	}

	if len(missing) > 0 {
		g.Go(func() error {
			reply, err := fetch[ProductLookupReply](gctx, e, OperationProductLookup, func(id string) any {
				return ProductLookupRequest{CorrelationID: id, ProductIDs: missing}
			})
			if err == nil {
				found = reply.Products
			}
			return branchResult(err, &productErr)
		})
	}

	g.Go(func() error {
		reply, err := fetch[StockLookupReply](gctx, e, OperationStockLookup, func(id string) any {
			return StockLookupRequest{CorrelationID: id, ProductIDs: ids}
		})
		if err == nil {
			stock = reply.Items
		}
		return branchResult(err, &stockErr)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if productErr != nil {
		e.logger.Warn("product lookup failed", zap.Int("ids", len(missing)), zap.Error(productErr))
	}
	if stockErr != nil {
		e.logger.Warn("stock lookup failed", zap.Int("ids", len(ids)), zap.Error(stockErr))
	}
	if stockErr != nil && productErr != nil && len(products) == 0 {
		return nil, core.Wrap(errors.Join(productErr, stockErr), ErrEnrichmentFailed, "all lookups failed")
	}

	for _, info := range found {
		products[info.ID] = info
		e.cache.Add(info.ID, info)
	}

	quantities := make(map[string]int, len(stock))
	for _, item := range stock {
		quantities[item.ProductID] += item.Quantity
	}

	views := make([]ProductView, 0, len(productIDs))
	available := 0
	for _, id := range productIDs {
		view := ProductView{ID: id}
		if qty, ok := quantities[id]; ok {
			view.Quantity = qty
			view.InStock = qty > 0
			view.StockKnown = true
		}

		if info, ok := products[id]; ok {
			view.Name = info.Name
			view.Price = info.Price
			view.Category = info.Category
			view.Available = true
			available++
		} else if productErr != nil {
			view.Reason = ReasonProductLookupFailed
		} else {
			view.Reason = ReasonNotFound
		}
		views = append(views, view)
	}

	e.metrics.RecordEnrichment(ctx, available, len(views)-available)
	return views, nil
}

// Serve отвечает на запросы product.enrich через шину
func (e *Enricher) Serve(ctx context.Context, bus transport.MessageBus, serializer transport.MessageSerializer, topic string) error {
	if topic == "" {
		topic = OperationEnrichProducts
	}
	return invoke.Serve(ctx, bus, serializer, topic, func(ctx context.Context, req EnrichRequest) (EnrichReply, error) {
		views, err := e.Lookup(ctx, req.ProductIDs)
		if err != nil {
			return EnrichReply{}, err
		}
		return EnrichReply{Products: views}, nil
	})
}

// fetch выполняет один пакетный round trip с собственным correlation ID
func fetch[T any](ctx context.Context, e *Enricher, operation string, build func(correlationID string) any) (T, error) {
	id := invoke.GenerateCorrelationID()
	future := invoke.Call[T](ctx, e.gateway, e.topics.RequestTopic(operation), build(id),
		invoke.WithCorrelationIDOption(id),
		invoke.WithTimeout(e.config.CallTimeout))
	return future.Await(ctx)
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
