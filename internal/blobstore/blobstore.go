// Package blobstore defines the capability interface artifact storage
// backends implement, plus the key-layout helpers shared by every
// caller that addresses a scan's artifacts.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrKeyNotFound is returned by Get/GetStream when key does not exist.
var ErrKeyNotFound = errors.New("blobstore: key not found")

// Store is the capability set both concrete backends (local filesystem,
// S3-compatible object store) implement. Callers select one backend at
// startup and never branch on its concrete type.
type Store interface {
	// Get returns the full contents of key.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetStream returns a reader over key's contents; the caller must
	// Close it.
	GetStream(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes data to key, content-typed as contentType.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// PutFile uploads the local file at path to key, content-typed as
	// contentType.
	PutFile(ctx context.Context, key string, path string, contentType string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// ContentType returns the MIME type to use for one of the three
// artifact suffixes, following report_uploader.py's content-type map.
func ContentType(suffix string) string {
	switch suffix {
	case "jsonl", "hitlog":
		return "application/jsonl"
	case "html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}

// ReportKey returns the blob-store key for scanID's report.jsonl,
// hitlog.jsonl, or report.html artifact, matching the layout
// "{scan_id}/garak.{scan_id}.report.<suffix>" from spec.md §6.
func ReportKey(scanID, suffix string) string {
	switch suffix {
	case "hitlog":
		return scanID + "/garak." + scanID + ".hitlog.jsonl"
	default:
		return scanID + "/garak." + scanID + ".report." + suffix
	}
}

// Prefix returns the key prefix owning every blob belonging to scanID,
// used by DELETE /scans/{id} to sweep all of a scan's artifacts.
func Prefix(scanID string) string {
	return scanID + "/"
}
