package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/akriventsev/potter-commerce/framework/adapters/messagebus"
	"github.com/akriventsev/potter-commerce/framework/adapters/persistence"
	"github.com/akriventsev/potter-commerce/framework/config"
	"github.com/akriventsev/potter-commerce/framework/container"
	"github.com/akriventsev/potter-commerce/framework/invoke"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/observability"
	"github.com/akriventsev/potter-commerce/framework/transport"
	"github.com/akriventsev/potter-commerce/internal/discount"
	"github.com/akriventsev/potter-commerce/internal/enrichment"
)

// App собранный сервис расчета скидок
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	meterProvider *sdkmetric.MeterProvider
	metrics       *metrics.Metrics
	tracing       *observability.TracingManager

	bus        messagebus.Bus
	serializer transport.MessageSerializer
	pool       *invoke.WorkerPool
	registry   *invoke.Registry
	gateway    *invoke.Gateway
	dispatcher *invoke.ReplyDispatcher
	replyTopic string

	calculator *discount.Calculator
	enricher   *enrichment.Enricher
	audit      *discount.GormAuditRecorder
	db         *gorm.DB

	health    *observability.HealthRegistry
	server    *http.Server
	listener  net.Listener
	errs      chan error
	container *container.Container
}

// newApp собирает компоненты без подключения к брокеру
func newApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	app := &App{
		cfg:    cfg,
		logger: log,
		health: observability.NewHealthRegistry(),
		errs:   make(chan error, 1),
	}

	if err := app.setupTelemetry(); err != nil {
		return nil, err
	}
	if err := app.setupMessaging(); err != nil {
		return nil, err
	}
	if err := app.setupDatabase(); err != nil {
		return nil, err
	}
	app.setupServices()
	app.setupHTTP()
	app.setupLifecycle()

	return app, nil
}

func (a *App) setupTelemetry() error {
	provider, err := metrics.SetupMetrics(&metrics.MetricsConfig{
		ExporterType: a.cfg.Metrics.Exporter,
		ResourceAttrs: map[string]string{
			"service.name":    a.cfg.Service.Name,
			"service.version": a.cfg.Service.Version,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to setup metrics: %w", err)
	}
	a.meterProvider = provider

	if a.metrics, err = metrics.NewMetrics(); err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	a.tracing, err = observability.NewTracingManager(observability.TracingConfig{
		Enabled:          a.cfg.Tracing.Enabled,
		ServiceName:      a.cfg.Service.Name,
		ServiceVersion:   a.cfg.Service.Version,
		Exporter:         a.cfg.Tracing.Exporter,
		ExporterEndpoint: a.cfg.Tracing.Endpoint,
		SamplingRate:     a.cfg.Tracing.SamplingRate,
		Environment:      a.cfg.Service.Environment,
	})
	return err
}

func (a *App) setupMessaging() error {
	busType, busConfig := busSettings(a.cfg.Bus, a.cfg.Service.Name)
	bus, err := messagebus.NewMessageBusFactory().Create(busType, busConfig, messagebus.Dependencies{
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return err
	}
	a.bus = bus

	if a.serializer, err = invoke.SerializerByName(a.cfg.Gateway.Serializer); err != nil {
		return err
	}

	gw := a.cfg.Gateway
	a.replyTopic = invoke.InstanceReplyTopic(gw.ReplyPrefix, a.cfg.Service.Name, instanceID(a.cfg.Service.Instance))
	a.pool = invoke.NewWorkerPool(gw.PoolSize, gw.QueueSize, a.logger)
	a.registry = invoke.NewRegistry()

	breaker := invoke.NewPublishBreaker(
		invoke.WithBreakerName(a.cfg.Service.Name+"-publish"),
		invoke.WithBreakerMaxFailures(gw.BreakerFailures),
		invoke.WithBreakerTimeout(gw.BreakerOpenFor),
		invoke.WithBreakerStateChange(func(name string, from, to gobreaker.State) {
			a.logger.Warn("publish breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}),
	)

	a.gateway = invoke.NewGateway(a.bus, a.registry, a.pool, a.replyTopic).
		WithSerializer(a.serializer).
		WithBreaker(breaker).
		WithDefaultTimeout(gw.DefaultTimeout).
		WithLogger(a.logger).
		WithMetrics(a.metrics)
	a.dispatcher = invoke.NewReplyDispatcher(a.bus, a.registry, a.pool).
		WithSerializer(a.serializer).
		WithLogger(a.logger).
		WithMetrics(a.metrics)

	a.health.RegisterHealthCheck(observability.NewComponentHealthCheck(a.pool))
	a.health.RegisterReadinessCheck(observability.NewComponentHealthCheck(a.bus))
	a.health.RegisterReadinessCheck(observability.NewComponentHealthCheck(a.dispatcher))
	return nil
}

func (a *App) setupDatabase() error {
	dbCfg := a.cfg.Database
	if !dbCfg.Enabled {
		return nil
	}

	db, err := gorm.Open(mysql.Open(dbCfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(dbCfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(dbCfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	if err := persistence.RegisterPublishCallback(db, a.bus, a.serializer, a.logger); err != nil {
		return err
	}

	a.db = db
	a.audit = discount.NewGormAuditRecorder(db)
	a.health.RegisterReadinessCheck(observability.NewDatabaseHealthCheck(sqlDB))
	return nil
}

func (a *App) setupServices() {
	prefix := invoke.NewPrefixTopicResolver(a.cfg.Gateway.TopicPrefix)

	a.calculator = discount.NewCalculator(a.gateway, discount.Policy{
		StrictCoupons: a.cfg.Saga.StrictCoupons,
		CouponTimeout: a.cfg.Saga.CouponTimeout,
		TierTimeout:   a.cfg.Saga.TierTimeout,
	}).
		WithTopics(invoke.NewStaticTopicResolver(map[string]string{
			discount.OperationValidateCoupons: a.cfg.Saga.CouponTopic,
			discount.OperationTierDiscount:    a.cfg.Saga.TierTopic,
		}, prefix)).
		WithLogger(a.logger).
		WithMetrics(a.metrics)
	if a.audit != nil {
		a.calculator.WithAuditRecorder(a.audit)
	}

	a.enricher = enrichment.NewEnricher(a.gateway, enrichment.Config{
		BarrierTimeout: a.cfg.Enrichment.BarrierTimeout,
		CallTimeout:    a.cfg.Enrichment.CallTimeout,
		CacheSize:      a.cfg.Enrichment.CacheSize,
		CacheTTL:       a.cfg.Enrichment.CacheTTL,
	}).
		WithTopics(invoke.NewStaticTopicResolver(map[string]string{
			enrichment.OperationProductLookup: a.cfg.Enrichment.ProductTopic,
			enrichment.OperationStockLookup:   a.cfg.Enrichment.StockTopic,
		}, prefix)).
		WithLogger(a.logger).
		WithMetrics(a.metrics)
}

func (a *App) setupHTTP() {
	if a.cfg.Log.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), observability.HTTPTracingMiddleware(a.cfg.Service.Name))
	a.health.RegisterRoutes(router, a.cfg.HTTP.EnablePprof)
	if a.cfg.Metrics.Exporter == "prometheus" {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	a.server = &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupLifecycle регистрирует компоненты в порядке запуска, остановка идет в обратном
func (a *App) setupLifecycle() {
	a.container = container.NewContainer(&container.Config{ShutdownTimeout: a.cfg.Gateway.ShutdownDeadline}).
		WithLogger(a.logger)

	a.container.MustRegister(
		container.NewHook("metrics", nil, func(ctx context.Context) error {
			return metrics.ShutdownMetrics(ctx, a.meterProvider)
		}),
		a.tracing,
		a.bus,
		a.pool,
		container.NewHook("dispatcher",
			func(ctx context.Context) error { return a.dispatcher.Start(ctx, a.replyTopic) },
			func(ctx context.Context) error {
				err := a.dispatcher.Stop(ctx)
				a.registry.Close()
				return err
			}),
	)

	if a.db != nil {
		a.container.MustRegister(container.NewHook("database",
			func(ctx context.Context) error {
				if !a.cfg.Database.AutoMigrate {
					return nil
				}
				return a.audit.Migrate(ctx)
			},
			func(ctx context.Context) error {
				sqlDB, err := a.db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			}))
	}

	prefix := invoke.NewPrefixTopicResolver(a.cfg.Gateway.TopicPrefix)
	discountTopic := prefix.RequestTopic(discount.OperationComputeDiscount)
	enrichTopic := prefix.RequestTopic(enrichment.OperationEnrichProducts)

	a.container.MustRegister(
		container.NewHook("handlers",
			func(ctx context.Context) error {
				if err := a.calculator.Serve(ctx, a.bus, a.serializer, discountTopic); err != nil {
					return err
				}
				return a.enricher.Serve(ctx, a.bus, a.serializer, enrichTopic)
			},
			func(ctx context.Context) error {
				return errors.Join(a.bus.Unsubscribe(discountTopic), a.bus.Unsubscribe(enrichTopic))
			}),
		container.NewHook("http", a.startHTTP, a.server.Shutdown),
	)
}

func (a *App) startHTTP(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
	}
	a.listener = listener

	go func() {
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.errs <- err
		}
	}()
	return nil
}

// Start запускает компоненты. При ошибке уже запущенные останавливаются.
func (a *App) Start(ctx context.Context) error {
	if err := a.container.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("discount service started",
		zap.String("bus", a.bus.Name()),
		zap.String("reply_topic", a.replyTopic),
		zap.String("http_addr", a.HTTPAddr()),
		zap.Strings("components", a.container.Components()))
	return nil
}

// Errors канал фатальных ошибок HTTP сервера
func (a *App) Errors() <-chan error {
	return a.errs
}

// HTTPAddr фактический адрес HTTP сервера после Start
func (a *App) HTTPAddr() string {
	if a.listener == nil {
		return a.server.Addr
	}
	return a.listener.Addr().String()
}

// Stop останавливает компоненты в обратном порядке. Незавершенные вызовы истекают.
func (a *App) Stop(ctx context.Context) error {
	return a.container.Shutdown(ctx)
}

// instanceID имя инстанса для топика ответов: из конфигурации, hostname или случайное
func instanceID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return invoke.GenerateCorrelationID()[:8]
}
