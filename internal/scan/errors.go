// Package scan runs the inspection pipeline against validated hosts:
// cache check, address resolution, shared rate limiting, reachability
// probe, SSH inspection, and retry with exponential backoff. Only
// successful results are cached.
package scan

import "errors"

// Sentinel failures of the pipeline. Both are retryable; everything else
// (context cancellation, unknown category) aborts the attempt loop.
var (
	ErrHostUnreachable  = errors.New("host unreachable")
	ErrInspectionFailed = errors.New("inspection failed")

	ErrUnknownCategory = errors.New("unknown scan category")
)
