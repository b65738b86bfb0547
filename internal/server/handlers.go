package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wardenlabs/hostwarden/internal/cache"
	"github.com/wardenlabs/hostwarden/internal/event"
	"github.com/wardenlabs/hostwarden/internal/registry"
	"github.com/wardenlabs/hostwarden/internal/scan"
	"github.com/wardenlabs/hostwarden/pkg/models"
)

// API bundles the domain handlers mounted under /api/v1.
type API struct {
	registry     *registry.Registry
	orchestrator *scan.Orchestrator
	cache        *cache.Manager
	bus          *event.Bus
	logger       *zap.Logger
}

// NewAPI wires the domain components into HTTP handlers.
func NewAPI(reg *registry.Registry, orch *scan.Orchestrator, c *cache.Manager, bus *event.Bus, logger *zap.Logger) *API {
	return &API{
		registry:     reg,
		orchestrator: orch,
		cache:        c,
		bus:          bus,
		logger:       logger,
	}
}

// RegisterRoutes mounts the API endpoints.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/hosts/validate", a.handleValidate)
	mux.HandleFunc("GET /api/v1/hosts", a.handleListHosts)
	mux.HandleFunc("POST /api/v1/hosts", a.handleRegisterHost)
	mux.HandleFunc("GET /api/v1/hosts/{hostname}", a.handleGetHost)
	mux.HandleFunc("POST /api/v1/registry/reload", a.handleReload)
	mux.HandleFunc("GET /api/v1/registry/stats", a.handleRegistryStats)
	mux.HandleFunc("POST /api/v1/scan", a.handleScan)
	mux.HandleFunc("GET /api/v1/cache/stats", a.handleCacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", a.handleClearCache)
}

// ValidateRequest is the body for POST /api/v1/hosts/validate.
type ValidateRequest struct {
	Hostname string `json:"hostname"`
}

// handleValidate resolves a proposed hostname against the registry. The
// result is always 200; validity and suggestions live in the body.
func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	if req.Hostname == "" {
		BadRequest(w, "hostname is required", r.URL.Path)
		return
	}

	writeJSON(w, http.StatusOK, a.registry.Validate(req.Hostname))
}

// handleListHosts filters the registry by query parameters.
func (a *API) handleListHosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hosts, err := a.registry.Filter(registry.FilterOptions{
		Environment: models.Environment(q.Get("environment")),
		Group:       q.Get("group"),
		Source:      models.SourceType(q.Get("source")),
		Pattern:     q.Get("pattern"),
	})
	if err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

// RegisterHostRequest is the body for POST /api/v1/hosts.
type RegisterHostRequest struct {
	Hostname    string             `json:"hostname"`
	IPAddress   string             `json:"ip_address"`
	Environment models.Environment `json:"environment"`
}

// handleRegisterHost adds a manual host that survives source reloads.
func (a *API) handleRegisterHost(w http.ResponseWriter, r *http.Request) {
	var req RegisterHostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	if req.Hostname == "" {
		BadRequest(w, "hostname is required", r.URL.Path)
		return
	}

	host := a.registry.RegisterManualHost(req.Hostname, req.IPAddress, req.Environment)
	writeJSON(w, http.StatusCreated, host)
}

// handleGetHost returns one host by name or alias.
func (a *API) handleGetHost(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("hostname")
	res := a.registry.Validate(name)
	if !res.Valid {
		NotFound(w, "host not in inventory: "+name, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, res.Host)
}

// handleReload refreshes all inventory sources. ?force=true bypasses the
// reload window.
func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	count := a.registry.LoadAllSources(r.Context(), force)

	stats := a.registry.GetStats()
	a.bus.PublishAsync(r.Context(), event.Event{
		Topic:  event.TopicRegistryReloaded,
		Source: "registry",
		Payload: event.RegistryReloadedPayload{
			Hosts:   count,
			Sources: stats.LoadedSources,
		},
	})
	writeJSON(w, http.StatusOK, map[string]int{"hosts": count})
}

// handleRegistryStats reports inventory composition.
func (a *API) handleRegistryStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.GetStats())
}

// ScanRequest is the body for POST /api/v1/scan. Force bypasses cached
// results and refreshes every host's facts.
type ScanRequest struct {
	Hostnames []string            `json:"hostnames"`
	Category  models.ScanCategory `json:"category"`
	Force     bool                `json:"force,omitempty"`
}

// ScanResponse is the body returned by POST /api/v1/scan.
type ScanResponse struct {
	BatchID string               `json:"batch_id"`
	Results []*models.ScanResult `json:"results"`
}

// handleScan validates every hostname, then runs the batch. A single
// unknown hostname rejects the whole request; commands never run against
// unvalidated names.
func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body", r.URL.Path)
		return
	}
	if len(req.Hostnames) == 0 {
		BadRequest(w, "hostnames is required", r.URL.Path)
		return
	}
	if !req.Category.Valid() {
		BadRequest(w, "unknown scan category: "+string(req.Category), r.URL.Path)
		return
	}

	hosts := make([]*models.Host, 0, len(req.Hostnames))
	for _, name := range req.Hostnames {
		res := a.registry.Validate(name)
		if !res.Valid {
			suggestions := make([]string, 0, len(res.Suggestions))
			for _, s := range res.Suggestions {
				suggestions = append(suggestions, s.Hostname)
			}
			UnknownHost(w, "host not in inventory: "+name, r.URL.Path, suggestions)
			return
		}
		hosts = append(hosts, res.Host)
	}

	batchID := uuid.NewString()
	ctx := r.Context()
	start := time.Now()

	a.bus.PublishAsync(ctx, event.Event{
		Topic:  event.TopicScanStarted,
		Source: "scan",
		Payload: event.ScanStartedPayload{
			BatchID:  batchID,
			Category: string(req.Category),
			Total:    len(hosts),
		},
	})

	results := a.orchestrator.ScanHosts(ctx, hosts, req.Category, req.Force, func(completed, total int, hostname string) {
		a.bus.PublishAsync(ctx, event.Event{
			Topic:  event.TopicScanProgress,
			Source: "scan",
			Payload: event.ScanProgressPayload{
				BatchID:   batchID,
				Completed: completed,
				Total:     total,
				Hostname:  hostname,
			},
		})
	})

	succeeded := 0
	for _, res := range results {
		if res != nil && res.Success {
			succeeded++
		}
	}
	a.bus.PublishAsync(ctx, event.Event{
		Topic:  event.TopicScanCompleted,
		Source: "scan",
		Payload: event.ScanCompletedPayload{
			BatchID:   batchID,
			Succeeded: succeeded,
			Failed:    len(results) - succeeded,
			Duration:  time.Since(start),
		},
	})

	writeJSON(w, http.StatusOK, ScanResponse{BatchID: batchID, Results: results})
}

// handleCacheStats reports cache health.
func (a *API) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cache.GetStats())
}

// handleClearCache drops cached facts, optionally scoped to ?category=.
func (a *API) handleClearCache(w http.ResponseWriter, r *http.Request) {
	category := models.ScanCategory(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		BadRequest(w, "unknown scan category: "+string(category), r.URL.Path)
		return
	}
	a.cache.Clear(category)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
