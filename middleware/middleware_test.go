package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tokmz/syncboard"
	"github.com/tokmz/syncboard/pkg/errors"
)

func newEngine(middlewares ...syncboard.HandlerFunc) *syncboard.Engine {
	e := syncboard.New(syncboard.WithMode("test"), syncboard.WithBanner(false))
	e.Use(middlewares...)
	e.RouterGroup().GET("/status", func(c *syncboard.Context) {
		c.JSON(http.StatusOK, map[string]string{"ping": "pong"})
	})
	e.RouterGroup().GET("/stats", func(c *syncboard.Context) {
		c.Success(map[string]int{"connections": 0})
	})
	return e
}

func do(e *syncboard.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, req)
	return w
}

func TestCORSAllowAll(t *testing.T) {
	e := newEngine(CORS())

	w := do(e, http.MethodGet, "/status", map[string]string{"Origin": "https://board.example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// 非跨域请求不设置 CORS 头
	w = do(e, http.MethodGet, "/status", nil)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWhitelist(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"https://board.example.com", "https://*.sync.example.com"}
	e := newEngine(CORS(cfg))

	w := do(e, http.MethodGet, "/status", map[string]string{"Origin": "https://team.sync.example.com"})
	assert.Equal(t, "https://team.sync.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = do(e, http.MethodGet, "/status", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = do(e, http.MethodOptions, "/status", map[string]string{"Origin": "https://board.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSCredentialsWithWildcardPanics(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true
	assert.Panics(t, func() { CORS(cfg) })
}

func TestMatchWildcard(t *testing.T) {
	assert.True(t, matchWildcard("https://a.example.com", "https://*.example.com"))
	assert.False(t, matchWildcard("https://.example.com", "https://*.example.com"))
	assert.False(t, matchWildcard("http://a.example.com", "https://*.example.com"))
}

func TestRateLimiter(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	e := newEngine(RateLimiter(&RateLimiterConfig{
		RequestsPerSecond: 0.001,
		Burst:             2,
		ExcludePaths:      []string{"/status"},
		Done:              done,
	}))

	for i := 0; i < 2; i++ {
		w := do(e, http.MethodGet, "/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(e, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var resp syncboard.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrTooManyRequests.Code, resp.Code)

	// 排除的路径不受限
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/status", nil).Code)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	b := newTokenBucket(1000, 1)
	assert.True(t, b.allow())
	assert.False(t, b.allow())
	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.allow())
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	e := newEngine(Tracing())

	w := do(e, http.MethodGet, "/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Traceparent"))

	var resp syncboard.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /stats", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), resp.TraceID)
}

func TestTracingExcludePaths(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	cfg := DefaultTracingConfig()
	cfg.ExcludePaths = []string{"/status"}
	e := newEngine(Tracing(cfg))

	do(e, http.MethodGet, "/status", nil)
	assert.Empty(t, sr.Ended())
}
