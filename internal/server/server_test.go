package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/eventport/internal/eventport"
	"github.com/danmuck/eventport/internal/realm"
	"github.com/danmuck/eventport/internal/testutil/testlog"
	"github.com/danmuck/eventport/internal/worker"
)

func newAdmin(t *testing.T) (*Admin, *realm.Group) {
	t.Helper()
	g := realm.NewGroup()
	main := g.New("main", realm.WithBootstrap(eventport.Bootstrap))
	rt, _ := eventport.For(main)
	rt.CreateMirror(nil)
	worker.Spawn(main, "w", nil)
	g.New("bare")
	g.Settle()

	a := New("eventportd", ":0", g, nil)
	a.RegisterRoutes()
	return a, g
}

func get(t *testing.T, a *Admin, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	a.HTTPRouter().ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)

	a, _ := newAdmin(t)
	rr := get(t, a, "/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" || body["service"] != "eventportd" {
		t.Fatalf("unexpected response body: %#v", body)
	}

	rr = get(t, a, "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "eventport_mirror_created_total") {
		t.Fatalf("expected eventport metrics exposed, status=%d", rr.Code)
	}
	testlog.Logf("server/http: GET /health status=%d", rr.Code)
}

func TestRealmsReportsRuntimes(t *testing.T) {
	testlog.Start(t)

	a, _ := newAdmin(t)
	rr := get(t, a, "/realms")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body struct {
		Realms []RealmInfo `json:"realms"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Realms) != 3 {
		t.Fatalf("expected 3 realms, got %+v", body.Realms)
	}
	byName := make(map[string]RealmInfo)
	for _, info := range body.Realms {
		byName[info.Name] = info
	}
	main := byName["main"]
	if !main.Instrumented || main.Runtime == nil || main.Runtime.Mirrors != 1 {
		t.Fatalf("unexpected main realm: %+v", main)
	}
	if !byName["main/w"].Instrumented {
		t.Fatalf("expected worker realm instrumented")
	}
	if byName["bare"].Instrumented || byName["bare"].Runtime != nil {
		t.Fatalf("expected bare realm uninstrumented")
	}

	rr = get(t, a, "/realm?name=main/w")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected nested realm lookup, got %d", rr.Code)
	}
	rr = get(t, a, "/realm?name=missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRegistryRoute(t *testing.T) {
	testlog.Start(t)

	a, _ := newAdmin(t)
	rr := get(t, a, "/registry")
	var body struct {
		Version int                  `json:"version"`
		Kinds   []eventport.KindInfo `json:"kinds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Version != eventport.RegistryVersion || len(body.Kinds) != 5 {
		t.Fatalf("unexpected registry: %+v", body)
	}
}
