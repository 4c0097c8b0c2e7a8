package middleware

import (
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine mounts mw in front of a GET/POST /api/v1/sessions/:id route that
// answers with status.
func newEngine(status int, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	h := func(c *gin.Context) { c.String(status, "ok") }
	r.GET("/api/v1/sessions/:id", h)
	r.POST("/api/v1/sessions/:id", h)
	r.GET("/healthz", h)
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
