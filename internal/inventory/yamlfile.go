package inventory

import (
	"context"
	"fmt"
	"os"

	"github.com/wardenlabs/hostwarden/pkg/models"
	"gopkg.in/yaml.v3"
)

// yamlInventory is the on-disk shape of a HostWarden host file.
type yamlInventory struct {
	Hosts []yamlHost `yaml:"hosts"`
}

type yamlHost struct {
	Hostname    string            `yaml:"hostname"`
	IP          string            `yaml:"ip,omitempty"`
	Aliases     []string          `yaml:"aliases,omitempty"`
	Environment string            `yaml:"environment,omitempty"`
	Groups      []string          `yaml:"groups,omitempty"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
}

// YAMLSource reads hosts from a HostWarden YAML host file.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a source backed by the given file path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Name() string            { return s.path }
func (s *YAMLSource) Type() models.SourceType { return models.SourceFile }

// Parse reads and decodes the host file. Entries without a hostname are
// skipped rather than failing the whole file.
func (s *YAMLSource) Parse(_ context.Context) ([]RawHostRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read host file %q: %w", s.path, err)
	}

	var inv yamlInventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse host file %q: %w", s.path, err)
	}

	records := make([]RawHostRecord, 0, len(inv.Hosts))
	for _, h := range inv.Hosts {
		if h.Hostname == "" {
			continue
		}
		records = append(records, RawHostRecord{
			Name:        h.Hostname,
			Address:     h.IP,
			Aliases:     h.Aliases,
			Groups:      h.Groups,
			Environment: normalizeEnvironment(h.Environment),
			Metadata:    h.Metadata,
		})
	}
	return records, nil
}
