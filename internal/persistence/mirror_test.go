package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/village-mind/internal/engine"
)

func TestMirrorSavesEverywhere(t *testing.T) {
	db := openTestDB(t)
	rdb, _ := newTestRedis(t)
	m := Mirror{db, rdb}
	ctx := context.Background()

	_, err := m.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, engine.ErrNoSnapshot)

	require.NoError(t, m.SaveSnapshot(ctx, fixtureSnapshot(300)))
	for _, a := range m {
		s, err := a.LoadSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(300), s.Tick)
	}
}

func TestMirrorFallsThroughEmptyArchive(t *testing.T) {
	db := openTestDB(t)
	rdb, _ := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, rdb.SaveSnapshot(ctx, fixtureSnapshot(42)))

	s, err := Mirror{db, rdb}.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s.Tick)
}
