package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garak-ctl/garak-ctl/internal/parser"
)

func TestEventQueue_FIFOOrderPreserved(t *testing.T) {
	q := NewEventQueue()
	q.enqueue(parser.Event{Kind: parser.KindOutput, RawLine: "one"})
	q.enqueue(parser.Event{Kind: parser.KindOutput, RawLine: "two"})

	ev, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "one", ev.RawLine)

	ev, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "two", ev.RawLine)
}

func TestEventQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewEventQueue()
	done := make(chan *parser.Event, 1)
	go func() {
		ev, _ := q.Dequeue()
		done <- ev
	}()

	time.Sleep(20 * time.Millisecond)
	q.enqueue(parser.Event{Kind: parser.KindOutput, RawLine: "later"})

	select {
	case ev := <-done:
		assert.Equal(t, "later", ev.RawLine)
	case <-time.After(time.Second):
		t.Fatal("dequeue never unblocked")
	}
}

func TestEventQueue_CloseDrainsThenReturnsFalse(t *testing.T) {
	q := NewEventQueue()
	q.enqueue(parser.Event{Kind: parser.KindOutput, RawLine: "x"})
	q.closeQueue()

	_, ok := q.Dequeue()
	assert.True(t, ok)

	_, ok = q.Dequeue()
	assert.False(t, ok)
}

func TestEventQueue_EnqueueAfterCloseIsNoOp(t *testing.T) {
	q := NewEventQueue()
	q.closeQueue()
	q.enqueue(parser.Event{Kind: parser.KindOutput, RawLine: "dropped"})

	_, ok := q.Dequeue()
	assert.False(t, ok)
}
