// Package models defines the shared domain types for HostWarden: hosts,
// validation results, and scan results.
package models

import (
	"strings"
	"time"
)

// SourceType identifies where a host record originated.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceSSHConfig SourceType = "ssh-config"
	SourceAnsible   SourceType = "ansible"
	SourceCloud     SourceType = "cloud"
	SourceManual    SourceType = "manual"
)

// Environment classifies a host's deployment environment.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
	EnvUnknown     Environment = ""
)

// Accessibility is the tri-state reachability of a host.
type Accessibility string

const (
	AccessUnknown     Accessibility = "unknown"
	AccessReachable   Accessibility = "reachable"
	AccessUnreachable Accessibility = "unreachable"
)

// Host is one canonical host record in the registry. The registry key is
// the lowercased hostname; every alias maps (lowercased) to exactly one
// canonical key.
type Host struct {
	Hostname      string            `json:"hostname"`
	IPAddress     string            `json:"ip_address,omitempty"`
	Aliases       []string          `json:"aliases,omitempty"`
	Source        SourceType        `json:"source"`
	Environment   Environment       `json:"environment,omitempty"`
	Groups        []string          `json:"groups,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastSeen      time.Time         `json:"last_seen"`
	Accessibility Accessibility     `json:"accessibility"`
}

// Key returns the canonical registry key for this host.
func (h *Host) Key() string {
	return strings.ToLower(h.Hostname)
}

// HasAlias reports whether the host carries the given alias (case-insensitive).
func (h *Host) HasAlias(alias string) bool {
	alias = strings.ToLower(alias)
	for _, a := range h.Aliases {
		if strings.ToLower(a) == alias {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the host. Validation results hand out copies
// so callers cannot mutate registry state through them.
func (h *Host) Clone() *Host {
	c := *h
	c.Aliases = append([]string(nil), h.Aliases...)
	c.Groups = append([]string(nil), h.Groups...)
	if h.Metadata != nil {
		c.Metadata = make(map[string]string, len(h.Metadata))
		for k, v := range h.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
