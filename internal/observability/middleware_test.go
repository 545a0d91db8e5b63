package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/eventport/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestAdminRequestsSeparatesScrapesFromRealmQueries(t *testing.T) {
	testlog.Start(t)

	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	r := gin.New()
	r.Use(AdminRequests("node-a", logger))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/metrics", ok)
	r.GET("/realm", ok)

	for _, path := range []string{"/metrics", "/realm?name=worker", "/nope/123"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, httpRequests.WithLabelValues("node-a", KindScrape, "/metrics", "200")); got != 1 {
		t.Fatalf("expected one scrape counted, got=%v", got)
	}
	if got := counterValue(t, httpRequests.WithLabelValues("node-a", KindRealm, "/realm", "200")); got != 1 {
		t.Fatalf("expected one realm query counted, got=%v", got)
	}
	if got := counterValue(t, httpRequests.WithLabelValues("node-a", KindAdmin, unmatchedRoute, "404")); got != 1 {
		t.Fatalf("expected unmatched path folded into one route label, got=%v", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected scrape suppressed at debug level, got %d lines: %s", len(lines), buf.String())
	}
	var realmLine, missLine map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &realmLine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &missLine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if realmLine["realm"] != "worker" || realmLine["kind"] != KindRealm || realmLine["level"] != "debug" {
		t.Fatalf("unexpected realm log line: %v", realmLine)
	}
	if missLine["level"] != "warn" || missLine["route"] != unmatchedRoute {
		t.Fatalf("unexpected miss log line: %v", missLine)
	}
	testlog.Logf("observability/middleware: scrape=trace realm=%v miss=%v", realmLine["realm"], missLine["status"])
}
