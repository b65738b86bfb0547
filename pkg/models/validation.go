package models

// Suggestion is one fuzzy-match candidate returned for an invalid target.
type Suggestion struct {
	Hostname   string  `json:"hostname"`
	Similarity float64 `json:"similarity"`
}

// HostValidationResult is the outcome of validating a target name against
// the registry. Suggestions are populated only when the target is invalid,
// ordered best-first, scored >= the registry's similarity threshold, and
// capped at five entries. Results are produced fresh per call and never
// persisted.
type HostValidationResult struct {
	Valid       bool         `json:"valid"`
	Host        *Host        `json:"host,omitempty"`
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
}
