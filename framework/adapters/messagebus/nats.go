// Package messagebus предоставляет адаптеры для различных message brokers.
package messagebus

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akriventsev/potter-commerce/framework/core"
	"github.com/akriventsev/potter-commerce/framework/logger"
	"github.com/akriventsev/potter-commerce/framework/metrics"
	"github.com/akriventsev/potter-commerce/framework/transport"
)

// NATSConfig конфигурация для NATS адаптера
type NATSConfig struct {
	URL               string
	Name              string
	QueueGroup        string // если задан, подписки балансируются между инстансами
	MaxReconnects     int
	ReconnectWait     time.Duration
	ConnectionTimeout time.Duration
	TLS               *tls.Config
	Token             string
	Username          string
	Password          string
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               nats.DefaultURL,
		Name:              "potter-commerce",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		ConnectionTimeout: 5 * time.Second,
	}
}

// NATSAdapter реализация MessageBus через NATS
type NATSAdapter struct {
	config  NATSConfig
	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	mu      sync.RWMutex
	running bool
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NATSAdapterBuilder построитель для NATS адаптера
type NATSAdapterBuilder struct {
	config  NATSConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewNATSAdapterBuilder создает новый построитель NATS адаптера
func NewNATSAdapterBuilder() *NATSAdapterBuilder {
	return &NATSAdapterBuilder{
		config: DefaultNATSConfig(),
	}
}

// WithConfig устанавливает конфигурацию целиком
func (b *NATSAdapterBuilder) WithConfig(config NATSConfig) *NATSAdapterBuilder {
	b.config = config
	return b
}

// WithURL устанавливает URL NATS сервера
func (b *NATSAdapterBuilder) WithURL(url string) *NATSAdapterBuilder {
	b.config.URL = url
	return b
}

// WithQueueGroup устанавливает queue group для подписок
func (b *NATSAdapterBuilder) WithQueueGroup(group string) *NATSAdapterBuilder {
	b.config.QueueGroup = group
	return b
}

// WithCredentials устанавливает username и password
func (b *NATSAdapterBuilder) WithCredentials(username, password string) *NATSAdapterBuilder {
	b.config.Username = username
	b.config.Password = password
	return b
}

// WithMetrics устанавливает метрики
func (b *NATSAdapterBuilder) WithMetrics(m *metrics.Metrics) *NATSAdapterBuilder {
	b.metrics = m
	return b
}

// WithLogger устанавливает логгер
func (b *NATSAdapterBuilder) WithLogger(l *zap.Logger) *NATSAdapterBuilder {
	b.logger = l
	return b
}

// Build создает NATS адаптер
func (b *NATSAdapterBuilder) Build() (*NATSAdapter, error) {
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid nats config: %w", err)
	}

	return &NATSAdapter{
		config:  b.config,
		subs:    make(map[string]*nats.Subscription),
		metrics: b.metrics,
		logger:  logger.OrNop(b.logger).Named("nats-bus"),
	}, nil
}

// NewNATSAdapterFromConn создает NATS адаптер из существующего подключения
func NewNATSAdapterFromConn(conn *nats.Conn) *NATSAdapter {
	return &NATSAdapter{
		conn:    conn,
		subs:    make(map[string]*nats.Subscription),
		running: true,
		config:  DefaultNATSConfig(),
		logger:  zap.NewNop(),
	}
}

// Start подключается к NATS (реализация core.Lifecycle)
func (n *NATSAdapter) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	opts := []nats.Option{
		nats.Name(n.config.Name),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(n.config.ConnectionTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				n.logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	if n.config.TLS != nil {
		opts = append(opts, nats.Secure(n.config.TLS))
	}
	if n.config.Token != "" {
		opts = append(opts, nats.Token(n.config.Token))
	}
	if n.config.Username != "" && n.config.Password != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n.conn = conn
	n.running = true
	return nil
}

// Stop отписывается и закрывает соединение с drain (реализация core.Lifecycle)
func (n *NATSAdapter) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	for subject, sub := range n.subs {
		_ = sub.Unsubscribe()
		delete(n.subs, subject)
	}

	if n.conn != nil && n.conn.IsConnected() {
		_ = n.conn.Drain()
	}
	if n.conn != nil {
		n.conn.Close()
	}

	n.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (n *NATSAdapter) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// Name возвращает имя компонента (реализация core.Component)
func (n *NATSAdapter) Name() string {
	return "nats-adapter"
}

// Type возвращает тип компонента (реализация core.Component)
func (n *NATSAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

func (n *NATSAdapter) connection() *nats.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn
}

// Publish публикует сообщение в subject
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()
	conn := n.connection()
	if conn == nil {
		return core.NewError(core.ErrNotRunning, "nats adapter is not connected")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := conn.PublishMsg(msg); err != nil {
		n.metrics.RecordTransport(ctx, "nats", time.Since(start), false)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	n.metrics.RecordTransport(ctx, "nats", time.Since(start), true)
	return nil
}

// Subscribe подписывается на subject
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	conn := n.connection()
	if conn == nil {
		return core.NewError(core.ErrNotRunning, "nats adapter is not connected")
	}

	callback := func(msg *nats.Msg) {
		mbMsg := &transport.Message{
			Subject: msg.Subject,
			Data:    msg.Data,
			Headers: make(map[string]string, len(msg.Header)),
		}
		for k, vals := range msg.Header {
			if len(vals) > 0 {
				mbMsg.Headers[k] = vals[0]
			}
		}

		if err := handler(ctx, mbMsg); err != nil {
			n.logger.Warn("handler failed", zap.String("subject", msg.Subject), zap.Error(err))
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if n.config.QueueGroup != "" {
		sub, err = conn.QueueSubscribe(subject, n.config.QueueGroup, callback)
	} else {
		sub, err = conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.mu.Lock()
	n.subs[subject] = sub
	n.mu.Unlock()

	return nil
}

// Unsubscribe отписывается от subject
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub, exists := n.subs[subject]
	if !exists {
		return nil
	}

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	delete(n.subs, subject)
	return nil
}
