package event

import "time"

// ScanStartedPayload announces a batch scan.
type ScanStartedPayload struct {
	BatchID  string `json:"batch_id"`
	Category string `json:"category"`
	Total    int    `json:"total"`
}

// ScanProgressPayload is emitted after each host completes, cache hits
// included.
type ScanProgressPayload struct {
	BatchID   string `json:"batch_id"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Hostname  string `json:"hostname"`
}

// ScanCompletedPayload closes out a batch.
type ScanCompletedPayload struct {
	BatchID   string        `json:"batch_id"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// RegistryReloadedPayload reports an inventory refresh.
type RegistryReloadedPayload struct {
	Hosts   int      `json:"hosts"`
	Sources []string `json:"sources"`
}
