// Package inventory provides pluggable host inventory sources. Each source
// parses one backing file or endpoint into raw host records for the registry
// to merge. A malformed or unreadable source yields zero records and an
// error; it never panics and never prevents sibling sources from loading.
package inventory

import (
	"context"

	"github.com/wardenlabs/hostwarden/pkg/models"
)

// RawHostRecord is one host as yielded by a source, before merging.
type RawHostRecord struct {
	Name        string
	Address     string
	Aliases     []string
	Groups      []string
	Environment models.Environment
	Metadata    map[string]string
}

// Source yields raw host records from one inventory backend.
type Source interface {
	// Name identifies the source instance for logging and stats.
	Name() string
	// Type tags the records this source produces.
	Type() models.SourceType
	// Parse reads the backend and returns its host records.
	Parse(ctx context.Context) ([]RawHostRecord, error)
}

// normalizeEnvironment maps free-form environment hints onto the closed
// Environment set. Unrecognized hints stay unknown rather than inventing
// a classification.
func normalizeEnvironment(hint string) models.Environment {
	switch hint {
	case "production", "prod", "prd":
		return models.EnvProduction
	case "staging", "stage", "stg":
		return models.EnvStaging
	case "development", "dev", "devel":
		return models.EnvDevelopment
	}
	return models.EnvUnknown
}
