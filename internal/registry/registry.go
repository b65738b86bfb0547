// Package registry maintains the canonical host table: the single source of
// truth for which hosts exist. It merges records from configured inventory
// sources and answers validate/filter/suggest queries. Nothing outside this
// package may declare a hostname "real".
package registry

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wardenlabs/hostwarden/internal/inventory"
	"github.com/wardenlabs/hostwarden/pkg/models"
	"go.uber.org/zap"
)

// DefaultReloadTTL is the window within which LoadAllSources is a no-op
// unless forced.
const DefaultReloadTTL = 15 * time.Minute

// SimilarityThreshold is the minimum normalized similarity for a hostname
// to appear among suggestions.
const SimilarityThreshold = 0.4

// MaxSuggestions caps the suggestion list on an invalid target.
const MaxSuggestions = 5

// Registry is the canonical host table. Reads are concurrent; merges during
// a load cycle are exclusive.
type Registry struct {
	mu            sync.RWMutex
	hosts         map[string]*models.Host // canonical key -> host
	aliases       map[string]string       // lowercased alias -> canonical key
	manual        map[string]*models.Host // operator overrides, survive resets
	sources       []inventory.Source
	reloadTTL     time.Duration
	lastLoaded    time.Time
	loadedSources []string
	logger        *zap.Logger
	nowFunc       func() time.Time
}

// New creates a registry over the given inventory sources. A reloadTTL of
// zero falls back to DefaultReloadTTL.
func New(sources []inventory.Source, reloadTTL time.Duration, logger *zap.Logger) *Registry {
	if reloadTTL <= 0 {
		reloadTTL = DefaultReloadTTL
	}
	return &Registry{
		hosts:     make(map[string]*models.Host),
		aliases:   make(map[string]string),
		manual:    make(map[string]*models.Host),
		sources:   sources,
		reloadTTL: reloadTTL,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// LoadAllSources loads every configured source and rebuilds the table.
// Within the reload window the call is a no-op unless forced. A failing
// source is logged and contributes zero hosts; it never aborts the load.
// Returns the number of hosts in the table after the cycle.
func (r *Registry) LoadAllSources(ctx context.Context, force bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if !force && !r.lastLoaded.IsZero() && now.Sub(r.lastLoaded) < r.reloadTTL {
		return len(r.hosts)
	}

	// Full reset: a load cycle is the only point where stale entries drop.
	r.hosts = make(map[string]*models.Host)
	r.aliases = make(map[string]string)
	r.loadedSources = r.loadedSources[:0]

	for _, src := range r.sources {
		records, err := src.Parse(ctx)
		if err != nil {
			r.logger.Warn("inventory source unavailable, skipping",
				zap.String("source", src.Name()),
				zap.String("type", string(src.Type())),
				zap.Error(err),
			)
			continue
		}
		for i := range records {
			r.mergeLocked(recordToHost(&records[i], src.Type(), now))
		}
		r.loadedSources = append(r.loadedSources, src.Name())
		r.logger.Info("inventory source loaded",
			zap.String("source", src.Name()),
			zap.String("type", string(src.Type())),
			zap.Int("records", len(records)),
		)
	}

	// Operator overrides merge last so their fields win where the merge
	// rules allow.
	for _, h := range r.manual {
		r.mergeLocked(h.Clone())
	}

	r.lastLoaded = now
	r.logger.Info("registry loaded",
		zap.Int("hosts", len(r.hosts)),
		zap.Int("sources", len(r.loadedSources)),
	)
	return len(r.hosts)
}

// Validate checks whether query names a known host. Local/loopback literals
// validate without a table lookup. Unknown names are a normal result, not
// an error: the result carries ranked suggestions instead.
func (r *Registry) Validate(query string) *models.HostValidationResult {
	result := &models.HostValidationResult{Query: query}
	key := strings.ToLower(strings.TrimSpace(query))
	if key == "" {
		return result
	}

	if isLocalTarget(key) {
		result.Valid = true
		result.Host = r.localHost(key)
		return result
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.hosts[key]; ok {
		result.Valid = true
		result.Host = h.Clone()
		return result
	}
	if canonical, ok := r.aliases[key]; ok {
		if h, ok := r.hosts[canonical]; ok {
			result.Valid = true
			result.Host = h.Clone()
			return result
		}
	}

	result.Suggestions = r.suggestLocked(key)
	return result
}

// Get returns the host for a canonical name or alias, or nil.
func (r *Registry) Get(name string) *models.Host {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.hosts[key]; ok {
		return h.Clone()
	}
	if canonical, ok := r.aliases[key]; ok {
		if h, ok := r.hosts[canonical]; ok {
			return h.Clone()
		}
	}
	return nil
}

// FilterOptions compose predicates for Filter. Zero values match everything.
type FilterOptions struct {
	Environment models.Environment
	Group       string
	Source      models.SourceType
	Pattern     string // case-insensitive regexp on hostname
}

// Filter returns hosts matching every set predicate. An invalid pattern is
// a caller error and returns it.
func (r *Registry) Filter(opts FilterOptions) ([]*models.Host, error) {
	var re *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		re, err = regexp.Compile("(?i)" + opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid hostname pattern %q: %w", opts.Pattern, err)
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Host
	for _, h := range r.hosts {
		if opts.Environment != models.EnvUnknown && h.Environment != opts.Environment {
			continue
		}
		if opts.Group != "" && !hasGroup(h, opts.Group) {
			continue
		}
		if opts.Source != "" && h.Source != opts.Source {
			continue
		}
		if re != nil && !re.MatchString(h.Hostname) {
			continue
		}
		out = append(out, h.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Hostname < out[j].Hostname })
	return out, nil
}

// RegisterManualHost records an explicit operator override. Manual hosts
// survive load cycles and merge last, so a manually set IP sticks unless a
// source had already claimed one.
func (r *Registry) RegisterManualHost(hostname, ip string, env models.Environment) *models.Host {
	h := &models.Host{
		Hostname:      hostname,
		IPAddress:     ip,
		Source:        models.SourceManual,
		Environment:   env,
		LastSeen:      r.nowFunc(),
		Accessibility: models.AccessUnknown,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.manual[h.Key()] = h.Clone()
	r.mergeLocked(h.Clone())

	r.logger.Info("manual host registered",
		zap.String("hostname", hostname),
		zap.String("ip", ip),
	)
	return r.hosts[h.Key()].Clone()
}

// Stats summarizes registry state.
type Stats struct {
	TotalHosts    int                        `json:"total_hosts"`
	ByEnvironment map[models.Environment]int `json:"by_environment"`
	BySource      map[models.SourceType]int  `json:"by_source"`
	LoadedSources []string                   `json:"loaded_sources"`
	LastRefresh   time.Time                  `json:"last_refresh"`
}

// GetStats returns counts by environment and source plus load metadata.
func (r *Registry) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalHosts:    len(r.hosts),
		ByEnvironment: make(map[models.Environment]int),
		BySource:      make(map[models.SourceType]int),
		LoadedSources: append([]string(nil), r.loadedSources...),
		LastRefresh:   r.lastLoaded,
	}
	for _, h := range r.hosts {
		s.ByEnvironment[h.Environment]++
		s.BySource[h.Source]++
	}
	return s
}

// mergeLocked merges incoming into the table. Alias and group sets union,
// metadata overlays with the newer record winning on conflict, and an IP is
// kept unless previously unset. Caller holds the write lock.
func (r *Registry) mergeLocked(incoming *models.Host) {
	key := incoming.Key()
	existing, ok := r.hosts[key]
	if !ok {
		r.hosts[key] = incoming
		r.indexAliasesLocked(incoming)
		return
	}

	existing.Aliases = unionFold(existing.Aliases, incoming.Aliases)
	existing.Groups = unionFold(existing.Groups, incoming.Groups)

	if existing.IPAddress == "" {
		existing.IPAddress = incoming.IPAddress
	}
	if incoming.Environment != models.EnvUnknown {
		existing.Environment = incoming.Environment
	}
	for k, v := range incoming.Metadata {
		if existing.Metadata == nil {
			existing.Metadata = make(map[string]string)
		}
		existing.Metadata[k] = v
	}
	if incoming.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = incoming.LastSeen
	}
	if incoming.Accessibility != models.AccessUnknown {
		existing.Accessibility = incoming.Accessibility
	}

	r.indexAliasesLocked(existing)
}

// indexAliasesLocked maps each alias (lowercased) to its canonical key.
// An alias already claimed by another host keeps its first mapping.
func (r *Registry) indexAliasesLocked(h *models.Host) {
	key := h.Key()
	for _, alias := range h.Aliases {
		ak := strings.ToLower(alias)
		if ak == key {
			continue
		}
		if owner, ok := r.aliases[ak]; ok && owner != key {
			r.logger.Debug("alias already mapped, keeping first owner",
				zap.String("alias", alias),
				zap.String("owner", owner),
				zap.String("rejected", key),
			)
			continue
		}
		r.aliases[ak] = key
	}
}

// suggestLocked ranks every hostname and alias against the query and keeps
// the best-scoring canonical hosts above the threshold. Caller holds at
// least the read lock.
func (r *Registry) suggestLocked(query string) []models.Suggestion {
	best := make(map[string]float64) // canonical hostname -> best score

	consider := func(candidate, hostname string) {
		score := Similarity(query, candidate)
		if score < SimilarityThreshold {
			return
		}
		if score > best[hostname] {
			best[hostname] = score
		}
	}

	for _, h := range r.hosts {
		consider(h.Hostname, h.Hostname)
		for _, alias := range h.Aliases {
			consider(alias, h.Hostname)
		}
	}

	suggestions := make([]models.Suggestion, 0, len(best))
	for hostname, score := range best {
		suggestions = append(suggestions, models.Suggestion{Hostname: hostname, Similarity: score})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Similarity != suggestions[j].Similarity {
			return suggestions[i].Similarity > suggestions[j].Similarity
		}
		return suggestions[i].Hostname < suggestions[j].Hostname
	})
	if len(suggestions) > MaxSuggestions {
		suggestions = suggestions[:MaxSuggestions]
	}
	return suggestions
}

// localHost returns the host record for a loopback target: the registry
// entry if one exists, a synthetic loopback record otherwise.
func (r *Registry) localHost(key string) *models.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.hosts[key]; ok {
		return h.Clone()
	}
	return &models.Host{
		Hostname:      key,
		IPAddress:     "127.0.0.1",
		Source:        models.SourceManual,
		LastSeen:      r.nowFunc(),
		Accessibility: models.AccessReachable,
	}
}

// isLocalTarget reports whether the (lowercased) target is a local literal
// that needs no registry lookup.
func isLocalTarget(key string) bool {
	if key == "local" || key == "localhost" {
		return true
	}
	if ip := net.ParseIP(key); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// recordToHost converts a raw source record into a host tagged with the
// source type.
func recordToHost(rec *inventory.RawHostRecord, source models.SourceType, now time.Time) *models.Host {
	h := &models.Host{
		Hostname:      rec.Name,
		IPAddress:     rec.Address,
		Aliases:       append([]string(nil), rec.Aliases...),
		Source:        source,
		Environment:   rec.Environment,
		Groups:        append([]string(nil), rec.Groups...),
		LastSeen:      now,
		Accessibility: models.AccessUnknown,
	}
	if len(rec.Metadata) > 0 {
		h.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			h.Metadata[k] = v
		}
	}
	return h
}

// unionFold unions two string slices case-insensitively, preserving first
// occurrence order and casing.
func unionFold(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		k := strings.ToLower(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		k := strings.ToLower(s)
		if !seen[k] {
			seen[k] = true
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// hasGroup reports whether the host carries the group tag (case-insensitive).
func hasGroup(h *models.Host, group string) bool {
	for _, g := range h.Groups {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}
