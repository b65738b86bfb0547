package inventory

import (
	"context"
	"fmt"
	"os"

	"github.com/wardenlabs/hostwarden/pkg/models"
	"gopkg.in/yaml.v3"
)

// ansibleInventory mirrors the YAML layout of an Ansible inventory:
// an "all" group with optional children, each carrying hosts and vars.
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string         `yaml:"ansible_host,omitempty"`
	Vars        map[string]any `yaml:",inline"`
}

// AnsibleSource reads hosts from an Ansible-style YAML inventory.
type AnsibleSource struct {
	path string
}

// NewAnsibleSource creates a source backed by an Ansible inventory file.
func NewAnsibleSource(path string) *AnsibleSource {
	return &AnsibleSource{path: path}
}

func (s *AnsibleSource) Name() string            { return s.path }
func (s *AnsibleSource) Type() models.SourceType { return models.SourceAnsible }

// Parse reads the inventory. Hosts listed in multiple groups produce one
// record per occurrence; the registry's merge unions the group tags.
func (s *AnsibleSource) Parse(_ context.Context) ([]RawHostRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read ansible inventory %q: %w", s.path, err)
	}

	var inv ansibleInventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse ansible inventory %q: %w", s.path, err)
	}

	var records []RawHostRecord
	for groupName, group := range inv.All.Children {
		for name, h := range group.Hosts {
			records = append(records, hostRecord(name, groupName, h))
		}
	}
	for name, h := range inv.All.Hosts {
		records = append(records, hostRecord(name, "", h))
	}
	return records, nil
}

// hostRecord converts one Ansible host entry. ansible_host becomes the
// address; the env/environment var becomes the environment hint; remaining
// string vars carry over as metadata.
func hostRecord(name, group string, h ansibleHost) RawHostRecord {
	rec := RawHostRecord{
		Name:    name,
		Address: h.AnsibleHost,
	}
	if group != "" {
		rec.Groups = []string{group}
	}

	for key, value := range h.Vars {
		str, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "ansible_host":
			// Already captured.
		case "env", "environment":
			rec.Environment = normalizeEnvironment(str)
		default:
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]string)
			}
			rec.Metadata[key] = str
		}
	}
	if rec.Environment == models.EnvUnknown {
		rec.Environment = normalizeEnvironment(group)
	}
	return rec
}
