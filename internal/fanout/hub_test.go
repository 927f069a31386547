package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

func TestHub_PublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	conn := h.Subscribe("scan-1")
	defer h.Unsubscribe(conn)

	h.Publish(scanmodel.ScanRecord{ScanID: "scan-1", Status: scanmodel.StatusRunning, Progress: 50})

	select {
	case snap := <-conn.Snapshots():
		assert.Equal(t, 50, snap.Progress)
	case <-time.After(time.Second):
		t.Fatal("snapshot never delivered")
	}
}

func TestHub_PublishToUnrelatedScanIsIgnored(t *testing.T) {
	h := NewHub()
	conn := h.Subscribe("scan-1")
	defer h.Unsubscribe(conn)

	h.Publish(scanmodel.ScanRecord{ScanID: "scan-2", Status: scanmodel.StatusRunning})

	select {
	case <-conn.Snapshots():
		t.Fatal("received snapshot meant for a different scan")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowSubscriberGetsLatestNotOldest(t *testing.T) {
	h := NewHub()
	conn := h.Subscribe("scan-1")
	defer h.Unsubscribe(conn)

	h.Publish(scanmodel.ScanRecord{ScanID: "scan-1", Progress: 10})
	h.Publish(scanmodel.ScanRecord{ScanID: "scan-1", Progress: 20})
	h.Publish(scanmodel.ScanRecord{ScanID: "scan-1", Progress: 30})

	snap := <-conn.Snapshots()
	assert.Equal(t, 30, snap.Progress)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	conn := h.Subscribe("scan-1")
	h.Unsubscribe(conn)

	_, ok := <-conn.Snapshots()
	require.False(t, ok)
}

func TestHub_MultipleSubscribersAllReceive(t *testing.T) {
	h := NewHub()
	a := h.Subscribe("scan-1")
	b := h.Subscribe("scan-1")
	defer h.Unsubscribe(a)
	defer h.Unsubscribe(b)

	h.Publish(scanmodel.ScanRecord{ScanID: "scan-1", Progress: 75})

	snapA := <-a.Snapshots()
	snapB := <-b.Snapshots()
	assert.Equal(t, 75, snapA.Progress)
	assert.Equal(t, 75, snapB.Progress)
}
