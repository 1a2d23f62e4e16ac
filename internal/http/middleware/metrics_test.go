package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/chats/:chat_id/subscriptions", func(c *gin.Context) { c.String(http.StatusOK, "[]") })
	r.DELETE("/chats/:chat_id/subscriptions/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	const route = "/chats/:chat_id/subscriptions"
	baseList := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))
	baseDel := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", route+"/:id", "204"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	serve(r, http.MethodGet, "/chats/1/subscriptions", nil)
	serve(r, http.MethodGet, "/chats/2/subscriptions", nil)
	serve(r, http.MethodDelete, "/chats/2/subscriptions/9", nil)
	serve(r, http.MethodGet, "/nope/123", nil)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != baseList+2 {
		t.Fatalf("list counter = %v; want %v", got, baseList+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("DELETE", route+"/:id", "204")); got != baseDel+1 {
		t.Fatalf("delete counter = %v; want %v", got, baseDel+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}
}
