package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := New()

	c.IncMessage(ResultTransferred)
	c.IncMessage(ResultTransferred)
	c.IncMessage(ResultDiscarded)
	c.ObserveCopy(2048, 3*time.Second)
	c.ObserveCycle(true)
	c.ObserveCycle(false)
	c.ObserveCycle(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues(ResultTransferred)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.messagesTotal.WithLabelValues(ResultDiscarded)))
	assert.Equal(t, 2048.0, testutil.ToFloat64(c.bytesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cyclesTotal.WithLabelValues("failed")))
	assert.Greater(t, testutil.ToFloat64(c.lastCycle), 0.0)
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.IncMessage(ResultRetained)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.messagesTotal.WithLabelValues(ResultRetained)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.messagesTotal.WithLabelValues(ResultRetained)))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveCycle(true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `queue2blob_cycles_total{outcome="success"} 1`)
}
