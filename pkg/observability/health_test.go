package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthRegistry(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("empty registry is healthy", func(t *testing.T) {
		assert.Equal(t, HealthStatusHealthy, NewHealthRegistry().Check(context.Background()).Status)
	})

	t.Run("non-critical failure degrades", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("database", PingChecker("database", true, ok))
		r.Register("redis", PingChecker("redis", false, down))

		health := r.Check(context.Background())

		assert.Equal(t, HealthStatusDegraded, health.Status)
		assert.Equal(t, HealthStatusHealthy, health.Checks["database"].Status)
		assert.Contains(t, health.Checks["redis"].Message, "connection refused")
	})

	t.Run("critical failure is unhealthy and served as 503", func(t *testing.T) {
		r := NewHealthRegistry()
		r.Register("database", PingChecker("database", true, down))

		rec := httptest.NewRecorder()
		r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body OverallHealth
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, HealthStatusUnhealthy, body.Status)
	})
}
