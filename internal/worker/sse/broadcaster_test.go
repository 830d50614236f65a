package sse

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkback/internal/events"
)

func TestBroadcaster_AddRemoveClient(t *testing.T) {
	b := NewBroadcaster()
	assert.Zero(t, b.ClientCount())

	w := httptest.NewRecorder()
	client, err := b.AddClient(w)
	require.NoError(t, err)
	assert.Equal(t, 1, b.ClientCount())

	b.RemoveClient(client)
	assert.Zero(t, b.ClientCount())

	// Removing twice is harmless.
	b.RemoveClient(client)
	assert.Zero(t, b.ClientCount())
}

func TestBroadcaster_BroadcastFormat(t *testing.T) {
	b := NewBroadcaster()
	w := httptest.NewRecorder()
	client, err := b.AddClient(w)
	require.NoError(t, err)
	defer b.RemoveClient(client)

	b.Broadcast(events.ConfigError{Message: "bad pattern"})

	body := w.Body.String()
	assert.Contains(t, body, "event: config-error\n")
	assert.Contains(t, body, `data: {"message":"bad pattern"}`)
	assert.Contains(t, body, "\n\n")
}

func TestBroadcaster_StatusChangedPayload(t *testing.T) {
	b := NewBroadcaster()
	w := httptest.NewRecorder()
	client, err := b.AddClient(w)
	require.NoError(t, err)
	defer b.RemoveClient(client)

	id := int64(42)
	b.Broadcast(events.StatusChanged{Playing: true, PlayingID: &id})

	body := w.Body.String()
	assert.Contains(t, body, "event: status-changed\n")
	assert.Contains(t, body, `"playing":true`)
	assert.Contains(t, body, `"playingId":42`)
}

func TestBroadcaster_NoClientsIsNoop(t *testing.T) {
	b := NewBroadcaster()
	b.Broadcast(events.ConfigError{Message: "nobody listening"})
	assert.Zero(t, b.ClientCount())
}

func TestBroadcaster_ClosedClientSkipped(t *testing.T) {
	b := NewBroadcaster()
	w := httptest.NewRecorder()
	client, err := b.AddClient(w)
	require.NoError(t, err)

	b.RemoveClient(client)
	b.Broadcast(events.ConfigError{Message: "late"})
	assert.Empty(t, w.Body.String())
}
