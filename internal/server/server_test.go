package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/internal/cache"
	"github.com/wardenlabs/hostwarden/internal/event"
	"github.com/wardenlabs/hostwarden/internal/inventory"
	"github.com/wardenlabs/hostwarden/internal/ratelimit"
	"github.com/wardenlabs/hostwarden/internal/registry"
	"github.com/wardenlabs/hostwarden/internal/scan"
	"github.com/wardenlabs/hostwarden/pkg/models"
)

type okProber struct{}

func (okProber) Probe(_ context.Context, addresses []string, _ int) (string, error) {
	return addresses[0], nil
}

type okExecutor struct{}

func (okExecutor) Execute(context.Context, string, string, time.Duration) (*scan.ExecResult, error) {
	return &scan.ExecResult{Stdout: "ok\n"}, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := zap.NewNop()

	src := inventory.NewStaticSource("test", models.SourceFile, []inventory.RawHostRecord{
		{Name: "web-01", Address: "10.0.0.5", Aliases: []string{"www"}, Groups: []string{"web"}, Environment: models.EnvProduction},
		{Name: "web-02", Address: "10.0.0.6", Groups: []string{"web"}, Environment: models.EnvProduction},
		{Name: "db-01", Address: "10.0.0.7", Groups: []string{"db"}, Environment: models.EnvStaging},
	})
	reg := registry.New([]inventory.Source{src}, 0, logger)
	reg.LoadAllSources(context.Background(), true)

	c := cache.NewManager(cache.Options{MaxEntries: 100, StaleMultiplier: 2}, logger)
	t.Cleanup(c.Stop)
	c.Start()

	limiter, err := ratelimit.New(1000, 1000)
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	orch := scan.NewOrchestrator(c, limiter, okProber{}, okExecutor{}, nil, scan.Options{
		ManagementPort: 22,
		CommandTimeout: time.Second,
		GroupSize:      2,
		Retry:          scan.RetryOptions{MaxAttempts: 1, BaseDelay: time.Millisecond},
	}, logger)

	bus := event.NewBus(logger)
	api := NewAPI(reg, orch, c, bus, logger)
	return New(Options{Addr: "127.0.0.1:0"}, api, logger, nil)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestValidate_endpoint_accepts_known_alias(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/hosts/validate", `{"hostname":"WWW"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	var res models.HostValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Valid || res.Host.Hostname != "web-01" {
		t.Errorf("got %+v, want alias resolved to web-01", res)
	}
}

func TestValidate_endpoint_returns_suggestions_for_near_miss(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/hosts/validate", `{"hostname":"web-0"}`)
	var res models.HostValidationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Valid || len(res.Suggestions) == 0 {
		t.Errorf("got %+v, want invalid with suggestions", res)
	}
}

func TestValidate_endpoint_rejects_bad_body(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/hosts/validate", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("got content type %q, want problem+json", ct)
	}
}

func TestListHosts_filters_by_environment(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/hosts?environment=production", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var hosts []*models.Host
	if err := json.Unmarshal(rec.Body.Bytes(), &hosts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("got %d hosts, want 2 production hosts", len(hosts))
	}
}

func TestRegisterHost_creates_manual_entry(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/hosts", `{"hostname":"edge-01","ip_address":"192.0.2.10","environment":"production"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("got status %d, want 201", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/hosts/edge-01", "")
	if rec.Code != http.StatusOK {
		t.Errorf("registered host not retrievable, status %d", rec.Code)
	}
}

func TestGetHost_unknown_returns_problem(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/v1/hosts/ghost-99", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Type != ProblemTypeNotFound {
		t.Errorf("got problem type %q, want not-found", p.Type)
	}
}

func TestScan_endpoint_runs_batch(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01","db-01"],"category":"basic"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var res ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BatchID == "" {
		t.Error("response missing batch id")
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(res.Results))
	}
	for _, r := range res.Results {
		if !r.Success {
			t.Errorf("host %s failed: %s", r.Hostname, r.Error)
		}
	}
}

func TestScan_endpoint_force_refreshes_cached_results(t *testing.T) {
	s := testServer(t)

	do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01"],"category":"basic"}`)

	// Without force the second scan is served from cache.
	rec := do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01"],"category":"basic"}`)
	var res ScanResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Results) != 1 || !res.Results[0].Cached {
		t.Fatal("repeat scan did not hit the cache")
	}

	rec = do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01"],"category":"basic","force":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(res.Results))
	}
	if res.Results[0].Cached {
		t.Error("forced scan returned the cached result")
	}
	if !res.Results[0].Success {
		t.Errorf("forced scan failed: %s", res.Results[0].Error)
	}
}

func TestScan_endpoint_rejects_unknown_host_with_suggestions(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01","web-0x"],"category":"basic"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422", rec.Code)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if p.Type != ProblemTypeUnknownHost || len(p.Suggestions) == 0 {
		t.Errorf("got %+v, want unknown-host problem with suggestions", p)
	}
}

func TestScan_endpoint_rejects_unknown_category(t *testing.T) {
	s := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01"],"category":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", rec.Code)
	}
}

func TestCache_endpoints_report_and_clear(t *testing.T) {
	s := testServer(t)

	// Populate the cache through a scan.
	do(t, s, http.MethodPost, "/api/v1/scan", `{"hostnames":["web-01"],"category":"basic"}`)

	rec := do(t, s, http.MethodGet, "/api/v1/cache/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
	var stats cache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalEntries != 1 {
		t.Errorf("got %d entries, want 1 after scan", stats.TotalEntries)
	}

	if rec := do(t, s, http.MethodDelete, "/api/v1/cache?category=basic", ""); rec.Code != http.StatusNoContent {
		t.Errorf("got status %d, want 204", rec.Code)
	}
	if rec := do(t, s, http.MethodDelete, "/api/v1/cache?category=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("got status %d for bad category, want 400", rec.Code)
	}
}

func TestServer_operational_endpoints(t *testing.T) {
	s := testServer(t)

	if rec := do(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Hostwarden-Version") == "" {
		t.Error("version header missing")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}

func TestReadyz_reports_not_ready(t *testing.T) {
	s := testServer(t)
	s.ready = func(context.Context) error { return context.DeadlineExceeded }

	if rec := do(t, s, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503 when readiness fails", rec.Code)
	}
}
