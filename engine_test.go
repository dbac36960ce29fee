package syncboard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tokmz/syncboard/pkg/errors"
	"github.com/tokmz/syncboard/pkg/logger"
)

func newTestEngine() *Engine {
	return Default(WithMode("test"), WithBanner(false))
}

func serve(e *Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSuccessResponse(t *testing.T) {
	e := newTestEngine()
	e.RouterGroup().GET("/stats", func(c *Context) {
		SetContextTraceID(c, "trace-1")
		c.Success(map[string]int{"rooms": 2})
	})

	w := serve(e, http.MethodGet, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "success", resp.Message)
	assert.Equal(t, "trace-1", resp.TraceID)
	assert.Equal(t, map[string]any{"rooms": float64(2)}, resp.Data)
}

func TestRespondError(t *testing.T) {
	e := newTestEngine()
	g := e.Group("/api")
	g.GET("/biz", func(c *Context) {
		c.RespondError(errors.ErrUnavailable.WithMessage("draining"))
	})
	g.GET("/plain", func(c *Context) {
		c.RespondError(context.DeadlineExceeded)
	})

	w := serve(e, http.MethodGet, "/api/biz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode(t, w)
	assert.Equal(t, errors.ErrUnavailable.Code, resp.Code)
	assert.Equal(t, "draining", resp.Message)

	w = serve(e, http.MethodGet, "/api/plain")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.ErrServer.Code, decode(t, w).Code)
}

func TestRecovery(t *testing.T) {
	e := newTestEngine()
	e.RouterGroup().GET("/panic", func(c *Context) {
		panic("boom")
	})

	w := serve(e, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, http.StatusInternalServerError, decode(t, w).Code)
}

func TestHandleOnlyAndQuery(t *testing.T) {
	type statsQuery struct {
		Room string `form:"room" binding:"required"`
	}
	type statsResp struct {
		Room    string `json:"room"`
		Members int    `json:"members"`
	}

	e := newTestEngine()
	rg := e.RouterGroup()
	HandleOnly[statsResp](rg.GET, "/all", func(c *Context) (*statsResp, error) {
		return &statsResp{Members: 3}, nil
	})
	HandleQuery[statsQuery, statsResp](rg.GET, "/room", func(c *Context, q *statsQuery) (*statsResp, error) {
		if q.Room == "missing" {
			return nil, errors.ErrNotFound
		}
		return &statsResp{Room: q.Room, Members: 1}, nil
	})

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/all").Code)

	w := serve(e, http.MethodGet, "/room?room=alpha")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"room": "alpha", "members": float64(1)}, decode(t, w).Data)

	w = serve(e, http.MethodGet, "/room")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest.Code, decode(t, w).Code)

	w = serve(e, http.MethodGet, "/room?room=missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// fieldHook 记录最后一条日志的字段
type fieldHook struct {
	mu     sync.Mutex
	fields map[string]string
}

func (h *fieldHook) OnWrite(_ zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fields = make(map[string]string)
	for k, v := range enc.Fields {
		if s, ok := v.(string); ok {
			h.fields[k] = s
		}
	}
	return nil
}

func (h *fieldHook) get(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fields[key]
}

func TestLoggerCarriesTraceID(t *testing.T) {
	hook := &fieldHook{}
	log, err := logger.NewWithOptions(logger.WithLevel(logger.DebugLevel), logger.WithConsoleOutput(), logger.WithHook(hook))
	require.NoError(t, err)

	e := New(WithMode("test"), WithBanner(false), WithLogger(log))
	e.Use(func(c *Context) {
		SetContextTraceID(c, "abc")
		c.Next()
	}, Logger(log))
	e.RouterGroup().GET("/stats", func(c *Context) {
		c.Nil()
	})

	w := serve(e, http.MethodGet, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", decode(t, w).TraceID)
	assert.Equal(t, "abc", hook.get("trace_id"))
	assert.Equal(t, "/stats", hook.get("path"))
}

func TestServeAndShutdown(t *testing.T) {
	e := New(WithMode("test"), WithBanner(false))
	e.RouterGroup().GET("/status", func(c *Context) {
		c.JSON(http.StatusOK, map[string]string{"ping": "pong"})
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Serve(ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.NoError(t, <-done)
}

func TestShutdownBeforeServe(t *testing.T) {
	e := New(WithMode("test"), WithBanner(false))
	assert.NoError(t, e.Shutdown(context.Background()))

	// 关闭之后再启动立即返回，不再监听
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.NoError(t, e.Serve(ln))
	_, err = net.Dial("tcp", ln.Addr().String())
	assert.Error(t, err)
}

func TestRunListensOnConfiguredAddr(t *testing.T) {
	// 占用端口后 Run 返回监听错误
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	e := New(WithMode("test"), WithBanner(false), WithAddr(busy.Addr().String()))
	assert.Error(t, e.Run())

	// 释放后 Run 正常服务并可关闭
	addr := busy.Addr().String()
	require.NoError(t, busy.Close())

	e = New(WithMode("test"), WithBanner(false), WithAddr(addr))
	e.RouterGroup().GET("/status", func(c *Context) {
		c.JSON(http.StatusOK, map[string]string{"ping": "pong"})
	})

	done := make(chan error, 1)
	go func() { done <- e.Run() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.NoError(t, <-done)
}
