package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL+"/api", opts...)
	require.NoError(t, err)
	return client
}

type testLogger struct {
	lastMsg atomic.Value
	count   int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) log(format string, args ...interface{}) {
	atomic.AddInt32(&l.count, 1)
	l.lastMsg.Store(fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Constructor Tests
// ---------------------------------------------------------------------------

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("http://upstream.example.com/api/")
	require.NoError(t, err)
	assert.Equal(t, "http://upstream.example.com/api", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Contains(t, c.userAgent, "commutemap-go-sdk/")
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	for _, u := range []string{"", "ftp://invalid", "invalid-url"} {
		_, err := NewClient(u)
		assert.ErrorIs(t, err, apperrors.ErrInvalidConfig, u)
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	logger := &testLogger{}
	c, err := NewClient("http://upstream.example.com",
		WithLogger(logger),
		WithTimeout(3*time.Second),
		WithUserAgent("custom/1"),
		WithAPIKey("k"),
	)
	require.NoError(t, err)
	assert.Equal(t, logger, c.logger)
	assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
	assert.Equal(t, "custom/1", c.userAgent)
	assert.Equal(t, "k", c.apiKey)
}

func TestWithTimeout_DoesNotMutateSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	_, err := NewClient("http://x.example", WithHTTPClient(shared), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, shared.Timeout)
}

// ---------------------------------------------------------------------------
// HTTP Execution Tests (do)
// ---------------------------------------------------------------------------

func TestClient_Do_RequestHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/listings", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("User-Agent"), "commutemap-go-sdk/")
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`[]`))
	})
	_, err := c.Listings(context.Background(), nil)
	require.NoError(t, err)
}

func TestClient_Do_RequestIDFunc(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-42", r.Header.Get("X-Request-ID"))
		w.Write([]byte(`[]`))
	}, WithRequestIDFunc(func(context.Context) string { return "req-42" }))
	_, err := c.Listings(context.Background(), nil)
	require.NoError(t, err)
}

func TestClient_Do_ErrorStatusNoRetry(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": "isoline provider down"}`))
	})

	_, err := c.Isolines(context.Background(), IsolineRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "requests are never retried")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUpstream))

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "isoline provider down", apiErr.Message)
	assert.True(t, apiErr.IsServerError())
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestClient_Do_ErrorBodyFallbacks(t *testing.T) {
	assert.Equal(t, "boom", errorMessage([]byte(`{"message":"boom"}`), "500"))
	assert.Equal(t, "plain text", errorMessage([]byte("plain text"), "500"))
	assert.Equal(t, "404 Not Found", errorMessage(nil, "404 Not Found"))
}

func TestClient_Do_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	logger := &testLogger{}
	c, err := NewClient(url, WithLogger(logger))
	require.NoError(t, err)

	_, err = c.ReverseGeocode(context.Background(), 59.9, 10.7)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeUpstream))
	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI)
	assert.Equal(t, int32(1), atomic.LoadInt32(&logger.count))
}

func TestClient_Do_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Routes(context.Background(), RouteRequest{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Do_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": []}`))
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Routes(ctx, RouteRequest{})
	assert.Error(t, err)
}

func TestClient_Do_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	_, err := c.Isolines(context.Background(), IsolineRequest{})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSerialization))
}

func TestClient_Do_Observer(t *testing.T) {
	type call struct {
		method, path string
		status       int
		err          error
	}
	var calls []call
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/routes" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"address": "Storgata 1"}`))
	}, WithObserver(func(method, path string, status int, _ time.Duration, err error) {
		calls = append(calls, call{method, path, status, err})
	}))

	_, _ = c.ReverseGeocode(context.Background(), 1, 2)
	_, _ = c.Routes(context.Background(), RouteRequest{})

	require.Len(t, calls, 2)
	assert.Equal(t, call{"GET", "/reverse_geocode", 200, nil}, calls[0])
	assert.Equal(t, "POST", calls[1].method)
	assert.Equal(t, http.StatusBadGateway, calls[1].status)
	assert.Error(t, calls[1].err)
}
