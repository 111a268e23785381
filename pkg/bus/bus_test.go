package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilBus(t *testing.T) {
	var b *Bus
	ctx := context.Background()

	assert.False(t, b.Connected())
	assert.Error(t, b.PublishEvent(ctx, ArtifactsFiledSubject, ArtifactEvent{}))
	assert.Error(t, b.EnsureStream(ctx, ArtifactsStream, ArtifactsFiledSubject))
	_, err := b.Subscribe(ctx, ArtifactsFiledSubject, "d", func(context.Context, []byte) error { return nil })
	assert.Error(t, err)
	b.Close()
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(" ", "test")
	assert.Error(t, err)
}

func TestArtifactEventJSON(t *testing.T) {
	evt := ArtifactEvent{
		EventID: uuid.MustParse("6f1c1c7e-8f57-4b0b-9a55-0d3f0f6f8c11"),
		File:    "a.cotcot",
		Action:  "discarded",
		Size:    3,
		SHA256:  "abc",
		At:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(evt)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, "6f1c1c7e-8f57-4b0b-9a55-0d3f0f6f8c11", fields["event_id"])
	assert.NotContains(t, fields, "folder")
	assert.NotContains(t, fields, "destination")
	assert.Equal(t, "2024-05-01T12:00:00Z", fields["at"])
}
