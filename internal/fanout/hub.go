// Package fanout fans ScanRecord snapshots out to WebSocket subscribers,
// adapting pkg/events/manager.go's ConnectionManager — a
// map[key]set-of-connections guarded by a mutex, with publish taking a
// read lock and connections holding their own buffered channel — from
// per-session event fan-out to per-scan snapshot fan-out.
package fanout

import (
	"sync"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// Connection is one subscriber's snapshot channel.
type Connection struct {
	ch     chan scanmodel.ScanRecord
	scanID string
}

// Snapshots returns the channel to range over for scan snapshots. It is
// closed once Unsubscribe runs.
func (c *Connection) Snapshots() <-chan scanmodel.ScanRecord {
	return c.ch
}

// Hub fans scan snapshots out to WebSocket subscribers. Each
// Connection's channel holds only the single latest unconsumed
// snapshot: a slow subscriber never blocks Publish, and since a
// snapshot fully supersedes the previous one, dropping an intermediate
// snapshot loses no information a subscriber cares about — only the
// terminal snapshot must never be dropped, which holds here because
// nothing publishes after it.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*Connection]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Connection]struct{})}
}

// Subscribe registers a new Connection for scanID.
func (h *Hub) Subscribe(scanID string) *Connection {
	c := &Connection{ch: make(chan scanmodel.ScanRecord, 1), scanID: scanID}
	h.mu.Lock()
	if h.conns[scanID] == nil {
		h.conns[scanID] = make(map[*Connection]struct{})
	}
	h.conns[scanID][c] = struct{}{}
	h.mu.Unlock()
	return c
}

// Unsubscribe removes c from its scan's subscriber set and closes its
// channel. Safe to call exactly once per Connection.
func (h *Hub) Unsubscribe(c *Connection) {
	h.mu.Lock()
	if set, ok := h.conns[c.scanID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.scanID)
		}
	}
	h.mu.Unlock()
	close(c.ch)
}

// Publish pushes snap to every current subscriber of snap.ScanID. A
// full channel (an unconsumed prior snapshot) is drained and replaced
// rather than blocking the publisher.
func (h *Hub) Publish(snap scanmodel.ScanRecord) {
	h.mu.RLock()
	set := h.conns[snap.ScanID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.ch <- snap:
		default:
			select {
			case <-c.ch:
			default:
			}
			select {
			case c.ch <- snap:
			default:
			}
		}
	}
}
