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

func get(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("test", "/test").
		GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	NewRouter(engine, WithAPIVersion("v2")).Register(group).Setup()

	w := get(engine, http.MethodGet, "/api/v2/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, http.StatusNotFound, get(engine, http.MethodGet, "/api/v1/test/ping").Code)
}

func TestDomainGroup(t *testing.T) {
	var order []string
	mark := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) {
			order = append(order, name)
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	g := NewDomainGroup("orders", "/orders").Use(mark("group"))
	g.POST("/:id/status", ok)
	g.Group("buyer", "").Use(mark("buyer")).GET("/:id", ok).DELETE("/:id", ok).PUT("/:id", ok)

	assert.Equal(t, "orders", g.Name())
	assert.ElementsMatch(t, []string{
		"POST /orders/:id/status",
		"GET /orders/:id",
		"DELETE /orders/:id",
		"PUT /orders/:id",
	}, g.Paths())

	engine := gin.New()
	NewRouter(engine).Register(g).Setup()

	assert.Equal(t, http.StatusOK, get(engine, http.MethodPost, "/api/v1/orders/1/status").Code)
	assert.Equal(t, []string{"group"}, order)

	order = nil
	assert.Equal(t, http.StatusOK, get(engine, http.MethodGet, "/api/v1/orders/1").Code)
	assert.Equal(t, []string{"group", "buyer"}, order)
}
