package inventory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// SSHConfigSource reads hosts from an OpenSSH client configuration file.
// Each Host block contributes one record: the first pattern is the name,
// remaining patterns are aliases, HostName is the address, and User/Port
// carry over as metadata. Wildcard patterns are skipped.
type SSHConfigSource struct {
	path string
}

// NewSSHConfigSource creates a source backed by an ssh_config-style file.
func NewSSHConfigSource(path string) *SSHConfigSource {
	return &SSHConfigSource{path: path}
}

func (s *SSHConfigSource) Name() string            { return s.path }
func (s *SSHConfigSource) Type() models.SourceType { return models.SourceSSHConfig }

// Parse scans the file line by line. Unknown directives are ignored; this
// parser only needs names, addresses, and connection metadata.
func (s *SSHConfigSource) Parse(_ context.Context) ([]RawHostRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open ssh config %q: %w", s.path, err)
	}
	defer f.Close()

	var records []RawHostRecord
	var current *RawHostRecord

	flush := func() {
		if current != nil && current.Name != "" {
			records = append(records, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := strings.ToLower(fields[0])
		args := fields[1:]

		switch key {
		case "host":
			flush()
			patterns := concretePatterns(args)
			if len(patterns) == 0 {
				continue
			}
			current = &RawHostRecord{Name: patterns[0]}
			if len(patterns) > 1 {
				current.Aliases = patterns[1:]
			}
		case "hostname":
			if current != nil {
				current.Address = args[0]
			}
		case "user", "port":
			if current != nil {
				if current.Metadata == nil {
					current.Metadata = make(map[string]string)
				}
				current.Metadata[key] = args[0]
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ssh config %q: %w", s.path, err)
	}
	return records, nil
}

// concretePatterns filters out wildcard host patterns, which describe
// match rules rather than real hosts.
func concretePatterns(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if strings.ContainsAny(p, "*?!") {
			continue
		}
		out = append(out, p)
	}
	return out
}
