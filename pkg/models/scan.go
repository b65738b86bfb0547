package models

import (
	"encoding/json"
	"time"
)

// ScanCategory selects which facts a scan gathers and which cache TTL
// applies. The set is closed: adding a category means extending the TTL
// table and the inspection command table alongside it.
type ScanCategory string

const (
	// CategoryBasic covers cheap identity facts (hostname, kernel, uptime).
	CategoryBasic ScanCategory = "basic"
	// CategorySystem covers slow-changing identity facts (OS, kernel).
	CategorySystem ScanCategory = "system"
	// CategoryServices covers listening services and units.
	CategoryServices ScanCategory = "services"
	// CategoryMetrics covers fast-changing load/memory figures.
	CategoryMetrics ScanCategory = "host_metrics"
)

// Categories lists every known scan category.
var Categories = []ScanCategory{
	CategoryBasic,
	CategorySystem,
	CategoryServices,
	CategoryMetrics,
}

// Valid reports whether c is a known category.
func (c ScanCategory) Valid() bool {
	switch c {
	case CategoryBasic, CategorySystem, CategoryServices, CategoryMetrics:
		return true
	}
	return false
}

// ScanResult records the outcome of one scan attempt for one host.
// Immutable once returned.
type ScanResult struct {
	Hostname  string            `json:"hostname"`
	Category  ScanCategory      `json:"category"`
	Success   bool              `json:"success"`
	Data      map[string]string `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
	Cached    bool              `json:"cached"`
	Duration  time.Duration     `json:"-"`
	Retries   int               `json:"retries"`
	Timestamp time.Time         `json:"timestamp"`
}

// scanResultJSON carries Duration as integer milliseconds on the wire;
// raw time.Duration would serialize as nanoseconds.
type scanResultJSON struct {
	Hostname   string            `json:"hostname"`
	Category   ScanCategory      `json:"category"`
	Success    bool              `json:"success"`
	Data       map[string]string `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
	Cached     bool              `json:"cached"`
	DurationMS int64             `json:"duration_ms"`
	Retries    int               `json:"retries"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (r ScanResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(scanResultJSON{
		Hostname:   r.Hostname,
		Category:   r.Category,
		Success:    r.Success,
		Data:       r.Data,
		Error:      r.Error,
		Cached:     r.Cached,
		DurationMS: r.Duration.Milliseconds(),
		Retries:    r.Retries,
		Timestamp:  r.Timestamp,
	})
}

func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var aux scanResultJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ScanResult{
		Hostname:  aux.Hostname,
		Category:  aux.Category,
		Success:   aux.Success,
		Data:      aux.Data,
		Error:     aux.Error,
		Cached:    aux.Cached,
		Duration:  time.Duration(aux.DurationMS) * time.Millisecond,
		Retries:   aux.Retries,
		Timestamp: aux.Timestamp,
	}
	return nil
}
