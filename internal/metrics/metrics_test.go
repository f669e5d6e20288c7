package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.RecordModelCall("openai", OutcomeSuccess, 1500*time.Millisecond)
	m.RecordModelCall("openai", OutcomeSuccess, 500*time.Millisecond)
	m.RecordModelCall("openai", OutcomeRetryable, time.Second)
	m.RecordBatch("generate", "ok")
	m.RecordElements("accepted", 27)
	m.RecordElements("failed", 0)
	m.RecordSchema("processed")
	m.RecordSchema("processed")
	m.RecordSchema("up_to_date")
	m.SetCoverage("orders-value", 0.25, 1)
	m.ObserveRun(3*time.Second, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("openai", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelCallsTotal.WithLabelValues("openai", OutcomeRetryable)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ModelCallDuration))
	assert.Equal(t, 27.0, testutil.ToFloat64(m.ElementsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ElementsTotal), "zero counts are not recorded")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SchemasTotal.WithLabelValues("processed")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.Coverage.WithLabelValues("orders-value", "before")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Coverage.WithLabelValues("orders-value", "after")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunErrors))
}

func TestMetrics_PrivateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordSchema("skipped")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SchemasTotal.WithLabelValues("skipped")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordModelCall("openai", OutcomeSuccess, time.Second)
		m.RecordBatch("generate", "ok")
		m.RecordElements("accepted", 1)
		m.RecordSchema("processed")
		m.SetCoverage("s", 0, 1)
		m.ObserveRun(time.Second, 0)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.Push(context.Background(), "http://unused", "job", nil))
}

func TestMetrics_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.RecordSchema("processed")

	err := m.Push(context.Background(), srv.URL, "schemadoc", map[string]string{"run_id": "r1"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/schemadoc"), path)
	assert.Contains(t, path, "run_id/r1")
	assert.NotEmpty(t, body)
}

func TestMetrics_PushErrors(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Push(context.Background(), "", "job", nil), ErrNoPushgateway)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := m.Push(context.Background(), srv.URL, "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), srv.URL)
}
