package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/wardenlabs/hostwarden/internal/inventory"
	"github.com/wardenlabs/hostwarden/pkg/models"
	"go.uber.org/zap"
)

// failingSource always errors, standing in for an unreadable inventory file.
type failingSource struct{}

func (failingSource) Name() string            { return "broken" }
func (failingSource) Type() models.SourceType { return models.SourceFile }
func (failingSource) Parse(context.Context) ([]inventory.RawHostRecord, error) {
	return nil, errors.New("permission denied")
}

func testRegistry(t *testing.T, records ...inventory.RawHostRecord) *Registry {
	t.Helper()
	src := inventory.NewStaticSource("test", models.SourceFile, records)
	r := New([]inventory.Source{src}, 0, zap.NewNop())
	r.LoadAllSources(context.Background(), true)
	return r
}

func webRecords() []inventory.RawHostRecord {
	return []inventory.RawHostRecord{
		{Name: "web-01", Address: "10.0.0.5", Aliases: []string{"www"}, Groups: []string{"web"}, Environment: models.EnvProduction},
		{Name: "web-02", Address: "10.0.0.6", Groups: []string{"web"}, Environment: models.EnvProduction},
		{Name: "db-01", Address: "10.0.0.7", Groups: []string{"db"}, Environment: models.EnvStaging},
	}
}

func TestValidate_exact_and_uppercase_resolve_same_host(t *testing.T) {
	r := testRegistry(t, webRecords()...)

	lower := r.Validate("web-01")
	upper := r.Validate("WEB-01")

	if !lower.Valid || !upper.Valid {
		t.Fatalf("got valid=%v/%v, want both true", lower.Valid, upper.Valid)
	}
	if lower.Host.Hostname != upper.Host.Hostname {
		t.Errorf("case variants resolved to %q and %q, want same canonical host",
			lower.Host.Hostname, upper.Host.Hostname)
	}
}

func TestValidate_alias_resolves_to_canonical(t *testing.T) {
	r := testRegistry(t, webRecords()...)

	res := r.Validate("WWW")
	if !res.Valid {
		t.Fatal("alias lookup failed, want valid")
	}
	if res.Host.Hostname != "web-01" {
		t.Errorf("alias resolved to %q, want web-01", res.Host.Hostname)
	}
}

func TestValidate_near_miss_suggests_close_hosts(t *testing.T) {
	r := testRegistry(t, webRecords()...)

	res := r.Validate("web-0")
	if res.Valid {
		t.Fatal("got valid for unknown host, want invalid")
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("got no suggestions, want web-01 among them")
	}
	found := false
	for _, s := range res.Suggestions {
		if s.Hostname == "web-01" {
			found = true
			if s.Similarity <= SimilarityThreshold {
				t.Errorf("got similarity %v for web-01, want > %v", s.Similarity, SimilarityThreshold)
			}
		}
	}
	if !found {
		t.Errorf("web-01 missing from suggestions %v", res.Suggestions)
	}
	for i := 1; i < len(res.Suggestions); i++ {
		if res.Suggestions[i].Similarity > res.Suggestions[i-1].Similarity {
			t.Error("suggestions not ordered best-first")
		}
	}
}

func TestValidate_distant_query_has_no_suggestions(t *testing.T) {
	r := testRegistry(t, webRecords()...)

	res := r.Validate("zzzzzzzzzzzzzzzzzzzzzz")
	if res.Valid {
		t.Fatal("got valid, want invalid")
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("got suggestions %v for a distant query, want none", res.Suggestions)
	}
}

func TestValidate_suggestions_capped_at_five(t *testing.T) {
	records := make([]inventory.RawHostRecord, 8)
	for i := range records {
		records[i] = inventory.RawHostRecord{Name: "node-0" + string(rune('1'+i))}
	}
	r := testRegistry(t, records...)

	res := r.Validate("node-0")
	if len(res.Suggestions) > MaxSuggestions {
		t.Errorf("got %d suggestions, want at most %d", len(res.Suggestions), MaxSuggestions)
	}
}

func TestValidate_local_literals_skip_lookup(t *testing.T) {
	r := testRegistry(t) // empty registry

	for _, q := range []string{"local", "localhost", "LOCALHOST", "127.0.0.1", "::1"} {
		res := r.Validate(q)
		if !res.Valid {
			t.Errorf("Validate(%q) = invalid, want valid", q)
		}
	}
}

func TestValidate_empty_query_is_invalid(t *testing.T) {
	r := testRegistry(t, webRecords()...)
	if res := r.Validate("   "); res.Valid {
		t.Error("blank query validated, want invalid")
	}
}

func TestLoadAllSources_failing_source_does_not_abort_others(t *testing.T) {
	good := inventory.NewStaticSource("good", models.SourceFile, webRecords())
	r := New([]inventory.Source{failingSource{}, good}, 0, zap.NewNop())

	count := r.LoadAllSources(context.Background(), true)
	if count != 3 {
		t.Errorf("got %d hosts, want 3 from the healthy source", count)
	}
	stats := r.GetStats()
	if len(stats.LoadedSources) != 1 || stats.LoadedSources[0] != "good" {
		t.Errorf("got loaded sources %v, want [good]", stats.LoadedSources)
	}
}

func TestLoadAllSources_is_idempotent_within_window(t *testing.T) {
	src := inventory.NewStaticSource("test", models.SourceFile, webRecords())
	r := New([]inventory.Source{src}, time.Hour, zap.NewNop())

	now := time.Now()
	r.nowFunc = func() time.Time { return now }

	r.LoadAllSources(context.Background(), false)
	first := r.GetStats().LastRefresh

	now = now.Add(time.Minute)
	r.LoadAllSources(context.Background(), false)
	if got := r.GetStats().LastRefresh; !got.Equal(first) {
		t.Error("reload within window refreshed the table, want no-op")
	}

	r.LoadAllSources(context.Background(), true)
	if got := r.GetStats().LastRefresh; got.Equal(first) {
		t.Error("forced reload did not refresh the table")
	}
}

func TestMerge_is_idempotent(t *testing.T) {
	a := inventory.RawHostRecord{Name: "app-01", Address: "10.0.1.1", Aliases: []string{"app"}, Groups: []string{"apps"}, Metadata: map[string]string{"rack": "a1"}}
	b := inventory.RawHostRecord{Name: "APP-01", Aliases: []string{"frontend"}, Groups: []string{"web"}, Metadata: map[string]string{"rack": "b2", "owner": "core"}}

	once := testRegistry(t, a, b)
	twice := testRegistry(t, a, b, b)

	h1 := once.Get("app-01")
	h2 := twice.Get("app-01")
	if h1 == nil || h2 == nil {
		t.Fatal("merged host missing")
	}
	h1.LastSeen, h2.LastSeen = time.Time{}, time.Time{}
	if !reflect.DeepEqual(h1, h2) {
		t.Errorf("merge not idempotent:\n once: %+v\ntwice: %+v", h1, h2)
	}
	if h1.IPAddress != "10.0.1.1" {
		t.Errorf("got IP %q, want existing IP kept", h1.IPAddress)
	}
	if h1.Metadata["rack"] != "b2" {
		t.Errorf("got rack %q, want newer record to win overlay", h1.Metadata["rack"])
	}
	if len(h1.Aliases) != 2 || len(h1.Groups) != 2 {
		t.Errorf("got aliases %v groups %v, want unions of both records", h1.Aliases, h1.Groups)
	}
}

func TestFilter_composes_predicates(t *testing.T) {
	r := testRegistry(t, webRecords()...)

	hosts, err := r.Filter(FilterOptions{Environment: models.EnvProduction, Group: "web"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(hosts) != 2 {
		t.Fatalf("got %d hosts, want 2", len(hosts))
	}

	hosts, err = r.Filter(FilterOptions{Pattern: "^WEB-0[12]$"})
	if err != nil {
		t.Fatalf("Filter with pattern: %v", err)
	}
	if len(hosts) != 2 {
		t.Errorf("case-insensitive pattern matched %d hosts, want 2", len(hosts))
	}
}

func TestFilter_invalid_pattern_returns_error(t *testing.T) {
	r := testRegistry(t, webRecords()...)
	if _, err := r.Filter(FilterOptions{Pattern: "("}); err == nil {
		t.Error("expected error for invalid regexp, got nil")
	}
}

func TestRegisterManualHost_survives_reload(t *testing.T) {
	src := inventory.NewStaticSource("test", models.SourceFile, webRecords())
	r := New([]inventory.Source{src}, 0, zap.NewNop())
	r.LoadAllSources(context.Background(), true)

	r.RegisterManualHost("edge-01", "192.0.2.10", models.EnvProduction)
	r.LoadAllSources(context.Background(), true)

	h := r.Get("edge-01")
	if h == nil {
		t.Fatal("manual host dropped by reload")
	}
	if h.IPAddress != "192.0.2.10" || h.Source != models.SourceManual {
		t.Errorf("got %+v, want manual host with its IP intact", h)
	}
}

func TestGetStats_counts_by_environment_and_source(t *testing.T) {
	r := testRegistry(t, webRecords()...)
	s := r.GetStats()

	if s.TotalHosts != 3 {
		t.Errorf("got %d total hosts, want 3", s.TotalHosts)
	}
	if s.ByEnvironment[models.EnvProduction] != 2 {
		t.Errorf("got %d production hosts, want 2", s.ByEnvironment[models.EnvProduction])
	}
	if s.BySource[models.SourceFile] != 3 {
		t.Errorf("got %d file-sourced hosts, want 3", s.BySource[models.SourceFile])
	}
	if s.LastRefresh.IsZero() {
		t.Error("LastRefresh not set after load")
	}
}

func TestSimilarity_bounds_and_symmetry(t *testing.T) {
	cases := []struct {
		a, b string
	}{
		{"web-01", "web-01"},
		{"web-01", "WEB-01"},
		{"web-01", "web-02"},
		{"web-01", "database"},
		{"", "web-01"},
	}
	for _, c := range cases {
		got := Similarity(c.a, c.b)
		if got < 0 || got > 1 {
			t.Errorf("Similarity(%q, %q) = %v, want within [0,1]", c.a, c.b, got)
		}
		if rev := Similarity(c.b, c.a); rev != got {
			t.Errorf("Similarity not symmetric for %q/%q: %v vs %v", c.a, c.b, got, rev)
		}
	}
	if Similarity("web-01", "WEB-01") != 1 {
		t.Error("case variants should score 1")
	}
}
