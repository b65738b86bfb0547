package inventory

import (
	"context"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// StaticSource yields a fixed set of records. It backs operator-supplied
// extra hosts from configuration and serves as a test double for the
// plain "list of hosts" contract that cloud inventory plugins satisfy.
type StaticSource struct {
	name       string
	sourceType models.SourceType
	records    []RawHostRecord
}

// NewStaticSource creates a source that always returns the given records.
func NewStaticSource(name string, sourceType models.SourceType, records []RawHostRecord) *StaticSource {
	return &StaticSource{name: name, sourceType: sourceType, records: records}
}

func (s *StaticSource) Name() string            { return s.name }
func (s *StaticSource) Type() models.SourceType { return s.sourceType }

func (s *StaticSource) Parse(_ context.Context) ([]RawHostRecord, error) {
	out := make([]RawHostRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}
