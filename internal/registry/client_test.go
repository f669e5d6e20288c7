package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fyrsmithlabs/schemadoc/internal/retry"
	"github.com/fyrsmithlabs/schemadoc/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		URL:      srv.URL + "/",
		Username: "svc",
		Password: "s3cret",
		Retry:    retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	return c, &calls
}

func TestClient_ListSubjects(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subjects", r.URL.Path)
		assert.Equal(t, contentType, r.Header.Get("Accept"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "s3cret", pass)
		_, _ = w.Write([]byte(`["user-events-value","order-created-value","audit-key"]`))
	})

	subjects, err := c.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"audit-key", "order-created-value", "user-events-value"}, subjects)
}

func TestClient_GetSchema(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subjects/order-created-value/versions/latest":
			_, _ = w.Write([]byte(`{"subject":"order-created-value","version":3,"id":42,"schema":"{\"type\":\"record\",\"name\":\"OrderCreated\",\"fields\":[]}"}`))
		case "/subjects/user-events-value/versions/latest":
			_, _ = w.Write([]byte(`{"subject":"user-events-value","version":1,"id":7,"schemaType":"JSON","schema":"{}"}`))
		case "/subjects/thrift-value/versions/latest":
			_, _ = w.Write([]byte(`{"subject":"thrift-value","version":1,"id":8,"schemaType":"THRIFT","schema":""}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error_code":40401,"message":"Subject 'x' not found."}`))
		}
	})
	ctx := context.Background()

	avro, err := c.GetSchema(ctx, "order-created-value")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatAvro, avro.Format, "absent schemaType means AVRO")
	assert.Equal(t, 3, avro.Version)
	assert.Equal(t, 42, avro.ID)
	assert.Contains(t, avro.Definition, "OrderCreated")

	js, err := c.GetSchema(ctx, "user-events-value")
	require.NoError(t, err)
	assert.Equal(t, schema.FormatJSONSchema, js.Format)

	_, err = c.GetSchema(ctx, "thrift-value")
	assert.ErrorIs(t, err, schema.ErrUnknownFormat)

	_, err = c.GetSchema(ctx, "missing-value")
	assert.ErrorIs(t, err, ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 40401, apiErr.ErrorCode)
}

func TestClient_AuthFailureIsNotRetried(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.ListSubjects(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestClient_RetriesTransientFailures(t *testing.T) {
	var n int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&n, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`["a"]`))
	})

	subjects, err := c.ListSubjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, subjects)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestClient_RetryExhaustion(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.ListSubjects(context.Background())
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "ftp://registry"})
	assert.Error(t, err)

	_, err = NewClient(Config{URL: "https://registry.example.com"})
	assert.NoError(t, err)
}

func TestClient_CancelAbortsInFlightRequest(t *testing.T) {
	release := make(chan struct{})
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := c.GetSchema(ctx, "orders-value")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls), "a cancelled request is not retried")
}

func TestClient_Ping(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/subjects", r.URL.Path)
			_, _ = w.Write([]byte(`[]`))
		})
		require.NoError(t, c.Ping(context.Background()))
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("unavailable is not retried", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		err := c.Ping(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
		assert.NotContains(t, err.Error(), "s3cret")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})
}
