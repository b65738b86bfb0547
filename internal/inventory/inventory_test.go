package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestYAMLSource_parses_hosts(t *testing.T) {
	path := writeFile(t, "hosts.yaml", `
hosts:
  - hostname: web-01
    ip: 10.0.0.5
    aliases: [www]
    environment: production
    groups: [web]
    metadata:
      rack: a3
  - hostname: db-01
    environment: prod
  - ip: 10.0.0.9
`)

	records, err := NewYAMLSource(path).Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (nameless entry skipped)", len(records))
	}

	web := records[0]
	if web.Name != "web-01" || web.Address != "10.0.0.5" {
		t.Errorf("got %q/%q, want web-01/10.0.0.5", web.Name, web.Address)
	}
	if len(web.Aliases) != 1 || web.Aliases[0] != "www" {
		t.Errorf("got aliases %v, want [www]", web.Aliases)
	}
	if web.Environment != models.EnvProduction {
		t.Errorf("got environment %q, want production", web.Environment)
	}
	if web.Metadata["rack"] != "a3" {
		t.Errorf("got metadata %v, want rack=a3", web.Metadata)
	}
	if records[1].Environment != models.EnvProduction {
		t.Errorf("env hint %q not normalized, got %q", "prod", records[1].Environment)
	}
}

func TestYAMLSource_malformed_returns_error(t *testing.T) {
	path := writeFile(t, "bad.yaml", "hosts: [unclosed")

	records, err := NewYAMLSource(path).Parse(context.Background())
	if err == nil {
		t.Fatal("expected error for malformed YAML, got nil")
	}
	if len(records) != 0 {
		t.Errorf("got %d records from malformed file, want 0", len(records))
	}
}

func TestYAMLSource_missing_file_returns_error(t *testing.T) {
	_, err := NewYAMLSource("/nonexistent/hosts.yaml").Parse(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAnsibleSource_parses_groups_and_vars(t *testing.T) {
	path := writeFile(t, "inventory.yaml", `
all:
  hosts:
    bastion:
      ansible_host: 192.0.2.1
  children:
    web:
      hosts:
        web-01:
          ansible_host: 10.0.0.5
          env: production
          role: frontend
    db:
      hosts:
        db-01: {}
`)

	records, err := NewAnsibleSource(path).Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	byName := make(map[string]RawHostRecord)
	for _, r := range records {
		byName[r.Name] = r
	}

	web := byName["web-01"]
	if web.Address != "10.0.0.5" {
		t.Errorf("got address %q, want 10.0.0.5", web.Address)
	}
	if len(web.Groups) != 1 || web.Groups[0] != "web" {
		t.Errorf("got groups %v, want [web]", web.Groups)
	}
	if web.Environment != models.EnvProduction {
		t.Errorf("got environment %q, want production", web.Environment)
	}
	if web.Metadata["role"] != "frontend" {
		t.Errorf("got metadata %v, want role=frontend", web.Metadata)
	}
	if _, ok := web.Metadata["ansible_host"]; ok {
		t.Error("ansible_host should not leak into metadata")
	}

	if bastion := byName["bastion"]; bastion.Address != "192.0.2.1" {
		t.Errorf("got bastion address %q, want 192.0.2.1", bastion.Address)
	}
}

func TestAnsibleSource_malformed_returns_error(t *testing.T) {
	path := writeFile(t, "bad.yaml", "all: [not a map")
	if _, err := NewAnsibleSource(path).Parse(context.Background()); err == nil {
		t.Fatal("expected error for malformed inventory, got nil")
	}
}

func TestSSHConfigSource_parses_host_blocks(t *testing.T) {
	path := writeFile(t, "config", `
# jump host
Host bastion jump
    HostName 192.0.2.1
    User ops
    Port 2222

Host web-01
    HostName 10.0.0.5

Host *
    ForwardAgent no
`)

	records, err := NewSSHConfigSource(path).Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (wildcard block skipped)", len(records))
	}

	bastion := records[0]
	if bastion.Name != "bastion" {
		t.Errorf("got name %q, want bastion", bastion.Name)
	}
	if len(bastion.Aliases) != 1 || bastion.Aliases[0] != "jump" {
		t.Errorf("got aliases %v, want [jump]", bastion.Aliases)
	}
	if bastion.Address != "192.0.2.1" {
		t.Errorf("got address %q, want 192.0.2.1", bastion.Address)
	}
	if bastion.Metadata["user"] != "ops" || bastion.Metadata["port"] != "2222" {
		t.Errorf("got metadata %v, want user=ops port=2222", bastion.Metadata)
	}
}

func TestSSHConfigSource_missing_file_returns_error(t *testing.T) {
	if _, err := NewSSHConfigSource("/nonexistent/config").Parse(context.Background()); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestStaticSource_returns_copies(t *testing.T) {
	src := NewStaticSource("extra", models.SourceManual, []RawHostRecord{
		{Name: "cache-01", Address: "10.0.0.7"},
	})

	records, err := src.Parse(context.Background())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	records[0].Name = "mutated"

	again, _ := src.Parse(context.Background())
	if again[0].Name != "cache-01" {
		t.Error("caller mutation leaked into source records")
	}
}
