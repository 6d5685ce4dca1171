package observability

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/potter-commerce/framework/core"
)

// Статусы проверок
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthCheck интерфейс для health checks
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckResult результат health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult результат отдельной проверки
type CheckResult struct {
	Status   string        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// HealthRegistry хранит проверки живости и готовности и отдает их через gin
type HealthRegistry struct {
	healthChecks    []HealthCheck
	readinessChecks []HealthCheck
	timeout         time.Duration
	mu              sync.RWMutex
}

// NewHealthRegistry создает новый HealthRegistry
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{timeout: 5 * time.Second}
}

// RegisterHealthCheck регистрирует health check
func (r *HealthRegistry) RegisterHealthCheck(check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healthChecks = append(r.healthChecks, check)
}

// RegisterReadinessCheck регистрирует readiness check
func (r *HealthRegistry) RegisterReadinessCheck(check HealthCheck) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readinessChecks = append(r.readinessChecks, check)
}

// RegisterRoutes добавляет /healthz, /readyz и при необходимости /debug/pprof
func (r *HealthRegistry) RegisterRoutes(router gin.IRouter, enablePprof bool) {
	router.GET("/healthz", r.HealthCheckHandler())
	router.GET("/readyz", r.ReadinessCheckHandler())

	if enablePprof {
		debug := router.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		debug.GET("/:profile", func(c *gin.Context) {
			pprof.Handler(c.Param("profile")).ServeHTTP(c.Writer, c.Request)
		})
	}
}

// HealthCheckHandler возвращает Gin handler для health check
func (r *HealthRegistry) HealthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r.mu.RLock()
		checks := r.healthChecks
		r.mu.RUnlock()

		result := r.run(c.Request.Context(), checks)
		if result.Status != StatusHealthy {
			c.JSON(http.StatusServiceUnavailable, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// ReadinessCheckHandler возвращает Gin handler для readiness check
func (r *HealthRegistry) ReadinessCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r.mu.RLock()
		checks := r.readinessChecks
		r.mu.RUnlock()

		result := r.run(c.Request.Context(), checks)
		if result.Status != StatusHealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": result.Checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func (r *HealthRegistry) run(ctx context.Context, checks []HealthCheck) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := HealthCheckResult{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)

		res := CheckResult{Status: StatusHealthy, Duration: time.Since(start)}
		if err != nil {
			res.Status = StatusUnhealthy
			res.Message = err.Error()
			result.Status = StatusUnhealthy
		}
		result.Checks[check.Name()] = res
	}

	return result
}

// RunningComponent компонент с жизненным циклом
type RunningComponent interface {
	core.Component
	IsRunning() bool
}

// ComponentHealthCheck проверяет, что компонент запущен
type ComponentHealthCheck struct {
	component RunningComponent
}

// NewComponentHealthCheck создает новый ComponentHealthCheck
func NewComponentHealthCheck(component RunningComponent) *ComponentHealthCheck {
	return &ComponentHealthCheck{component: component}
}

// Name возвращает имя проверки
func (h *ComponentHealthCheck) Name() string {
	return h.component.Name()
}

// Check выполняет проверку
func (h *ComponentHealthCheck) Check(ctx context.Context) error {
	if !h.component.IsRunning() {
		return core.NewError(core.ErrNotRunning, fmt.Sprintf("%s is not running", h.component.Name()))
	}
	if hc, ok := h.component.(core.HealthCheckable); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// DatabaseHealthCheck проверка подключения к БД
type DatabaseHealthCheck struct {
	db *sql.DB
}

// NewDatabaseHealthCheck создает новый DatabaseHealthCheck
func NewDatabaseHealthCheck(db *sql.DB) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{db: db}
}

// Name возвращает имя проверки
func (h *DatabaseHealthCheck) Name() string {
	return "database"
}

// Check выполняет проверку
func (h *DatabaseHealthCheck) Check(ctx context.Context) error {
	if h.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// FuncHealthCheck проверка на основе функции
type FuncHealthCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncHealthCheck создает новый FuncHealthCheck
func NewFuncHealthCheck(name string, check func(ctx context.Context) error) *FuncHealthCheck {
	return &FuncHealthCheck{name: name, check: check}
}

// Name возвращает имя проверки
func (h *FuncHealthCheck) Name() string {
	return h.name
}

// Check выполняет проверку
func (h *FuncHealthCheck) Check(ctx context.Context) error {
	if h.check == nil {
		return fmt.Errorf("check function is nil")
	}
	return h.check(ctx)
}
