package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(16)

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(TypeExecuteStarted, map[string]string{"call_id": "1-0001"})

	ev := <-ch
	assert.Equal(t, TypeExecuteStarted, ev.Type)
	assert.JSONEq(t, `{"call_id":"1-0001"}`, string(ev.Data))
	assert.Equal(t, int64(1), ev.ID)
}

func TestSnapshotSince(t *testing.T) {
	h := NewHub(4)

	for i := 0; i < 6; i++ {
		h.Publish(TypeMockSet, nil)
	}

	// Ring holds the last 4 events only.
	all := h.SnapshotSince(0)
	require.Len(t, all, 4)
	assert.Equal(t, int64(3), all[0].ID)
	assert.Equal(t, int64(6), all[3].ID)

	tail := h.SnapshotSince(5)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(6), tail[0].ID)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	h := NewHub(8)

	_, cancel := h.Subscribe()
	defer cancel()

	// Publish more than the subscriber buffer without draining; must not hang.
	for i := 0; i < 300; i++ {
		h.Publish(TypeExecuteCompleted, nil)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := NewHub(8)
	_, cancel := h.Subscribe()
	cancel()
	cancel()
	h.Publish(TypeSessionAttached, nil)
}
