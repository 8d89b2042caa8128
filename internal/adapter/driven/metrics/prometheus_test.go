package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

func TestPrometheus_ObserveFallback(t *testing.T) {
	p := NewPrometheus()

	p.ObserveFallback(model.FallbackMethodRotation, "success", 2)
	p.ObserveFallback("", "exhausted-disabled", 2)
	p.ObserveFallback("", "exhausted-disabled", 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.fallbackTotal.WithLabelValues("rotation", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.fallbackTotal.WithLabelValues("none", "exhausted-disabled")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.fallbackAttempts))
}

func TestPrometheus_ObserveProbe(t *testing.T) {
	p := NewPrometheus()

	p.ObserveProbe(model.CredentialStatusBlocked)
	p.ObserveProbe(model.CredentialStatusBlocked)
	p.ObserveProbe(model.CredentialStatusActive)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.probeTotal.WithLabelValues("blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.probeTotal.WithLabelValues("active")))
}

func TestPrometheus_SetPoolStats(t *testing.T) {
	p := NewPrometheus()

	p.SetPoolStats(model.PoolStats{Total: 4, Active: 2, Blocked: 1, Expired: 1, FallbackEnabled: true, FallbackUsageCount: 7})

	assert.Equal(t, 2.0, testutil.ToFloat64(p.credentials.WithLabelValues("active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.credentials.WithLabelValues("blocked")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.credentials.WithLabelValues("untested")))
	assert.Equal(t, 7.0, testutil.ToFloat64(p.fallbackUsage))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.fallbackEnabled))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.ObserveProbe(model.CredentialStatusExpired)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cookiepool_probe_total{status="expired"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
