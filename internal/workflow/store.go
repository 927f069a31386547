package workflow

import (
	"context"

	"github.com/garak-ctl/garak-ctl/internal/reportcache"
)

// Store is the Controller-facing facade over Analyzer: it prefers a
// live-built graph (already populated by the SSE consumer's
// live-analysis hook) and falls back to building one from the
// completed report's entries on first request, caching the result for
// subsequent calls — mirroring the report reader's own write-once
// shape.
type Store struct {
	analyzer *Analyzer
	reader   *reportcache.Reader
}

// NewStore returns a Store backed by analyzer and reader.
func NewStore(analyzer *Analyzer, reader *reportcache.Reader) *Store {
	return &Store{analyzer: analyzer, reader: reader}
}

// Graph returns scanID's workflow graph, building it from the
// completed report if nothing has been built live yet.
func (s *Store) Graph(ctx context.Context, scanID string) (*Graph, bool, error) {
	if g, ok := s.analyzer.Graph(scanID); ok && len(g.Nodes) > 0 {
		return g, true, nil
	}

	entries, found, err := s.reader.Entries(ctx, scanID)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	return s.analyzer.BuildFromEntries(scanID, entries), true, nil
}

// Clear discards scanID's graph so the next Graph call rebuilds it.
func (s *Store) Clear(scanID string) {
	s.analyzer.Clear(scanID)
}
