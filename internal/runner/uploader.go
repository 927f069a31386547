package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garak-ctl/garak-ctl/internal/blobstore"
)

const uploadRetries = 3

// artifactSuffixes are the three files produced by a scan, in the
// order they are uploaded.
var artifactSuffixes = []string{"jsonl", "hitlog", "html"}

// resolveLocalPath returns the local path for one of a scan's
// artifacts, preferring the explicit path the parser observed (from a
// `report` event) and falling back to ENGINE's default naming
// convention under spoolDir.
func resolveLocalPath(spoolDir, scanID, suffix, jsonlPath, htmlPath string) string {
	switch suffix {
	case "jsonl":
		if jsonlPath != "" {
			return jsonlPath
		}
	case "html":
		if htmlPath != "" {
			return htmlPath
		}
	}
	ext := suffix
	if suffix == "hitlog" {
		ext = "hitlog.jsonl"
	} else {
		ext = "report." + suffix
	}
	return filepath.Join(spoolDir, fmt.Sprintf("garak.%s.%s", scanID, ext))
}

// uploadArtifacts uploads every artifact that exists on disk for
// scanID, retrying each upload up to uploadRetries times with linear
// backoff, and returns the keys that were successfully written
// (missing or failed artifacts are simply absent from the map — a
// scan run with --no_report legitimately has none).
func uploadArtifacts(ctx context.Context, blobs blobstore.Store, spoolDir, scanID, jsonlPath, htmlPath string) map[string]string {
	keys := map[string]string{}
	for _, suffix := range artifactSuffixes {
		local := resolveLocalPath(spoolDir, scanID, suffix, jsonlPath, htmlPath)
		if _, err := os.Stat(local); err != nil {
			continue
		}

		key := blobstore.ReportKey(scanID, suffix)
		contentType := blobstore.ContentType(suffix)

		var uploadErr error
		for attempt := 1; attempt <= uploadRetries; attempt++ {
			uploadErr = blobs.PutFile(ctx, key, local, contentType)
			if uploadErr == nil {
				keys[suffix] = key
				break
			}
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}
	}
	return keys
}
