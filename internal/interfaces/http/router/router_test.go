package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "/", r.basePath)
	assert.Empty(t, r.registrars)
}

func TestRouterWithBasePath(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithBasePath("/internal"))

	assert.Equal(t, "/internal", r.basePath)
}

func TestRouterRegister(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(pingRegistrar{})

	assert.Len(t, r.registrars, 1)
}

func TestRouterSetup(t *testing.T) {
	t.Run("mounts registrars at the root by default", func(t *testing.T) {
		engine := gin.New()
		r := NewRouter(engine)
		r.Register(pingRegistrar{})
		r.Setup()

		req := httptest.NewRequest("GET", "/ping", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", w.Body.String())
	})

	t.Run("mounts registrars under a base path", func(t *testing.T) {
		engine := gin.New()
		r := NewRouter(engine, WithBasePath("/internal"))
		r.Register(pingRegistrar{})
		r.Setup()

		req := httptest.NewRequest("GET", "/internal/ping", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
