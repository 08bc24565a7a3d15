package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsNotifications(t *testing.T) {
	t.Parallel()

	pub := New()
	_, ok := pub.Last()
	assert.False(t, ok)

	id, err := pub.Publish(context.Background(), "ebook.built", map[string]int{"articles": 1})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	id, err = pub.Publish(context.Background(), "ebook.built", "second")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id)

	last, ok := pub.Last()
	require.True(t, ok)
	assert.Equal(t, "second", last.Payload)

	sent := pub.Notifications()
	require.Len(t, sent, 2)
	sent[0].Event = "modified"
	assert.Equal(t, "ebook.built", pub.Notifications()[0].Event, "Notifications returns a copy")
}
