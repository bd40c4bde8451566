package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues(http.MethodGet, "/ping", "204"))
	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	}
	after := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues(http.MethodGet, "/ping", "204"))
	if after-before != 3 {
		t.Fatalf("http_requests_total delta = %v, want 3", after-before)
	}

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	if got := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); got < 1 {
		t.Fatalf("unmatched requests = %v, want >= 1", got)
	}
}
