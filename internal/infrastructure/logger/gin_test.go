package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("logs successful request at info", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(GinMiddleware(log))
		engine.GET("/products", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/products?page=2", nil)
		engine.ServeHTTP(w, req)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zap.InfoLevel, entry.Level)
		assert.Equal(t, "request completed", entry.Message)

		fields := entry.ContextMap()
		assert.Equal(t, "GET", fields["method"])
		assert.Equal(t, "/products", fields["path"])
		assert.Equal(t, "page=2", fields["query"])
		assert.EqualValues(t, http.StatusOK, fields["status"])
	})

	t.Run("logs client errors at warn", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(GinMiddleware(log))
		engine.GET("/bad", func(c *gin.Context) {
			c.String(http.StatusBadRequest, "bad")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)
	})

	t.Run("logs server errors at error", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(GinMiddleware(log))
		engine.GET("/boom", func(c *gin.Context) {
			c.String(http.StatusInternalServerError, "boom")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
	})

	t.Run("carries request ID set by upstream middleware", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(func(c *gin.Context) {
			c.Set("request_id", "req-42")
			c.Next()
		})
		engine.Use(GinMiddleware(log))
		engine.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "req-42", logs.All()[0].ContextMap()["request_id"])
	})

	t.Run("stores request scoped logger in context", func(t *testing.T) {
		log, _ := newObservedLogger()
		engine := gin.New()
		engine.Use(GinMiddleware(log))

		var scoped *zap.Logger
		engine.GET("/ping", func(c *gin.Context) {
			scoped = GetGinLogger(c)
			c.String(http.StatusOK, "pong")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		require.NotNil(t, scoped)
		assert.True(t, scoped.Core().Enabled(zap.InfoLevel))
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("recovers from panic and responds 500", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(Recovery(log))
		engine.GET("/panic", func(c *gin.Context) {
			panic("kaboom")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "panic recovered", entry.Message)
		assert.Equal(t, "kaboom", entry.ContextMap()["panic"])
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		log, logs := newObservedLogger()
		engine := gin.New()
		engine.Use(Recovery(log))
		engine.GET("/ok", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, logs.Len())
	})
}

func TestGetGinLogger_WithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	log := GetGinLogger(c)

	require.NotNil(t, log)
	assert.False(t, log.Core().Enabled(zap.ErrorLevel))
}
