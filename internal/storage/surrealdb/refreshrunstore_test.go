package surrealdb

import (
	"context"
	"testing"

	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshRunStore_SaveAndGet(t *testing.T) {
	db := testDB(t)
	store := NewRefreshRunStore(db, testLogger())
	ctx := context.Background()

	run := &models.RefreshRun{RunID: "run1", UKHash: "abc123", UKRowCount: 100}
	require.NoError(t, store.Save(ctx, run))

	got, err := store.Get(ctx, "run1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.UKHash)
}

func TestRefreshRunStore_LastUKHash(t *testing.T) {
	db := testDB(t)
	store := NewRefreshRunStore(db, testLogger())
	ctx := context.Background()

	hash, err := store.LastUKHash(ctx)
	require.NoError(t, err)
	assert.Empty(t, hash)

	require.NoError(t, store.Save(ctx, &models.RefreshRun{RunID: "run2", UKHash: "xyz789"}))
	hash, err = store.LastUKHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "xyz789", hash)
}
