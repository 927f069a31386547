// Package apperr defines the error taxonomy shared by the Runner and
// Controller. Internal layers return sentinel-wrapped errors; only the
// HTTP handler boundary translates them into status codes.
package apperr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Sentinel) to attach
// context and still satisfy errors.Is at the handler boundary.
var (
	// ErrCapacity means the submit was denied because max_concurrent_scans
	// running+pending scans are already in flight.
	ErrCapacity = errors.New("capacity: max concurrent scans reached")

	// ErrConfigInvalid means the ScanConfig failed validation or argv
	// construction.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrEngineUnavailable means the ENGINE binary could not be located
	// or pre-flight checked.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNotFound means the scan, artifact, or report entry is unknown.
	ErrNotFound = errors.New("not found")

	// ErrUpstream means a Runner HTTP call failed (non-2xx, or SSE
	// connect failed after retries).
	ErrUpstream = errors.New("upstream error")

	// ErrCancelDisallowed means DELETE was called on an already-terminal
	// scan.
	ErrCancelDisallowed = errors.New("cancel disallowed: scan already terminal")

	// ErrStorageTransient means a blob-store read or write failed and
	// may succeed on retry.
	ErrStorageTransient = errors.New("storage transient error")
)

// Is reports whether err wraps target somewhere in its chain. Thin
// wrapper kept so call sites read "apperr.Is(err, apperr.ErrNotFound)"
// without importing both apperr and errors.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
