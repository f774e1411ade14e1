package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	m, err := s.Find(ctx, "event_summary")
	require.NoError(t, err)
	assert.Nil(t, m)

	fp := []byte{1, 2, 3}
	require.NoError(t, s.Update(ctx, "event_summary", 4, fp))
	fp[0] = 9

	m, err = s.Find(ctx, "event_summary")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "event_summary", m.IndexName)
	assert.Equal(t, 4, m.SchemaVersion)
	assert.Equal(t, []byte{1, 2, 3}, m.ConfigFingerprint)

	require.NoError(t, s.Update(ctx, "event_summary", 5, nil))
	m, err = s.Find(ctx, "event_summary")
	require.NoError(t, err)
	assert.Equal(t, 5, m.SchemaVersion)
	assert.Nil(t, m.ConfigFingerprint)
}

func TestIndexMetadata_Matches(t *testing.T) {
	m := &IndexMetadata{SchemaVersion: 4, ConfigFingerprint: []byte{1}}
	assert.True(t, m.Matches(4, []byte{1}))
	assert.False(t, m.Matches(5, []byte{1}))
	assert.False(t, m.Matches(4, []byte{2}))
	assert.False(t, m.Matches(4, nil))

	empty := &IndexMetadata{SchemaVersion: 4}
	assert.True(t, empty.Matches(4, nil))
	assert.True(t, empty.Matches(4, []byte{}), "nil and empty fingerprints are the same")
}
