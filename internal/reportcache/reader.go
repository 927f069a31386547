package reportcache

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/garak-ctl/garak-ctl/internal/blobstore"
)

// RecordLookup is the subset of the Controller's scan registry the
// reader needs: the locally-known report path (if the scan ran on this
// host) and the upstream Runner's original filename for a scan (ENGINE
// names artifacts by its own UUID, not scan_id), plus a hook to persist
// the object-store key once a write-through completes.
type RecordLookup interface {
	LocalReportPath(ctx context.Context, scanID string) (path string, ok bool)
	OriginalFilename(ctx context.Context, scanID string) (filename string, ok bool)
	PersistJSONLKey(ctx context.Context, scanID, key string) error
}

// Reader implements the four-layer lookup from spec.md §4.5: immutable
// cache, object store, local filesystem with mtime+TTL, upstream Runner
// HTTP with write-through.
type Reader struct {
	cache      *cache
	blobs      blobstore.Store
	records    RecordLookup
	runnerBase string
	httpClient *http.Client
}

// NewReader builds a Reader. ttl governs the local-filesystem layer's
// ttl in addition to mtime invalidation; pass 0 for DefaultTTL.
func NewReader(blobs blobstore.Store, records RecordLookup, runnerBaseURL string, ttl time.Duration) *Reader {
	return &Reader{
		cache:      newCache(ttl),
		blobs:      blobs,
		records:    records,
		runnerBase: runnerBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Entries returns the parsed report entries for scanID, or (nil, false)
// if no layer has them.
func (r *Reader) Entries(ctx context.Context, scanID string) ([]Entry, bool, error) {
	if entries, ok := r.cache.getImmutable(scanID); ok {
		return entries, true, nil
	}

	objectKey := blobstore.ReportKey(scanID, "jsonl")
	if data, err := r.blobs.Get(ctx, objectKey); err == nil {
		entries := ParseJSONL(bytes.NewReader(data))
		r.cache.putImmutable(scanID, entries)
		return entries, true, nil
	}

	if path, ok := r.records.LocalReportPath(ctx, scanID); ok {
		if info, err := os.Stat(path); err == nil {
			if cached, hit := r.cache.getFresh(scanID, info.ModTime()); hit {
				return cached, true, nil
			}
			if f, err := os.Open(path); err == nil {
				defer f.Close()
				entries := ParseJSONL(f)
				r.cache.putMtime(scanID, entries, info.ModTime())
				return entries, true, nil
			}
		}
	}

	return r.fetchFromRunner(ctx, scanID)
}

// fetchFromRunner is layer 4: download the artifact from the Runner's
// spool directory under ENGINE's own filename, write it through to the
// object store byte-for-byte, and persist the resulting key on the
// scan record.
func (r *Reader) fetchFromRunner(ctx context.Context, scanID string) ([]Entry, bool, error) {
	filename, ok := r.records.OriginalFilename(ctx, scanID)
	if !ok || r.runnerBase == "" {
		return nil, false, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.runnerBase+"/reports/"+filename, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, false, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}

	entries := ParseJSONL(bytes.NewReader(raw))

	objectKey := blobstore.ReportKey(scanID, "jsonl")
	if err := r.blobs.Put(ctx, objectKey, raw, blobstore.ContentType("jsonl")); err == nil {
		_ = r.records.PersistJSONLKey(ctx, scanID, objectKey)
	}

	r.cache.putImmutable(scanID, entries)
	return entries, true, nil
}

// Invalidate drops scanID from the cache, used by DELETE /scans/{id}.
func (r *Reader) Invalidate(scanID string) {
	r.cache.invalidate(scanID)
}

// GC sweeps expired mtime-provenance cache entries, returning the
// number removed. Intended to run on a periodic reaper job so the
// cache doesn't grow unbounded across a long-lived process.
func (r *Reader) GC() int {
	return r.cache.sweepExpired()
}
