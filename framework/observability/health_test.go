package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/potter-commerce/framework/core"
)

type fakeComponent struct {
	running bool
}

func (f *fakeComponent) Name() string             { return "fake-bus" }
func (f *fakeComponent) Type() core.ComponentType { return core.ComponentTypeTransport }
func (f *fakeComponent) IsRunning() bool          { return f.running }

func newRouter(registry *HealthRegistry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	registry.RegisterRoutes(router, true)
	return router
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthRegistry_Healthy(t *testing.T) {
	registry := NewHealthRegistry()
	registry.RegisterHealthCheck(NewFuncHealthCheck("ok", func(ctx context.Context) error { return nil }))

	rec := get(t, newRouter(registry), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var result HealthCheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, StatusHealthy, result.Checks["ok"].Status)
}

func TestHealthRegistry_Unhealthy(t *testing.T) {
	registry := NewHealthRegistry()
	registry.RegisterHealthCheck(NewFuncHealthCheck("ok", func(ctx context.Context) error { return nil }))
	registry.RegisterHealthCheck(NewFuncHealthCheck("broken", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	rec := get(t, newRouter(registry), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var result HealthCheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "connection refused", result.Checks["broken"].Message)
}

func TestHealthRegistry_ReadinessFollowsComponent(t *testing.T) {
	component := &fakeComponent{}
	registry := NewHealthRegistry()
	registry.RegisterReadinessCheck(NewComponentHealthCheck(component))
	router := newRouter(registry)

	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/readyz").Code)

	component.running = true
	assert.Equal(t, http.StatusOK, get(t, router, "/readyz").Code)
}

func TestComponentHealthCheck_NotRunningCode(t *testing.T) {
	err := NewComponentHealthCheck(&fakeComponent{}).Check(context.Background())
	assert.True(t, core.HasCode(err, core.ErrNotRunning))
}

func TestDatabaseHealthCheck_NilDB(t *testing.T) {
	assert.Error(t, NewDatabaseHealthCheck(nil).Check(context.Background()))
}

func TestHealthRegistry_PprofRoutes(t *testing.T) {
	rec := get(t, newRouter(NewHealthRegistry()), "/debug/pprof/cmdline")
	assert.Equal(t, http.StatusOK, rec.Code)
}
