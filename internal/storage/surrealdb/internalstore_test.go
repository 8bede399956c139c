package surrealdb

import (
	"context"
	"testing"

	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternalStore_SaveAndGetUser(t *testing.T) {
	db := testDB(t)
	store := NewInternalStore(db, testLogger())
	ctx := context.Background()

	user := &models.InternalUser{UserID: "u1", Email: "analyst@example.com", Role: models.RoleAnalyst}
	require.NoError(t, store.SaveUser(ctx, user))

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "analyst@example.com", got.Email)
}

func TestInternalStore_GetUserByEmail(t *testing.T) {
	db := testDB(t)
	store := NewInternalStore(db, testLogger())
	ctx := context.Background()

	user := &models.InternalUser{UserID: "u2", Email: "Admin@Example.com", Role: models.RoleAdmin}
	require.NoError(t, store.SaveUser(ctx, user))

	got, err := store.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
}

func TestInternalStore_SystemKV(t *testing.T) {
	db := testDB(t)
	store := NewInternalStore(db, testLogger())
	ctx := context.Background()

	val, err := store.GetSystemKV(ctx, "missing_key")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, store.SetSystemKV(ctx, "last_uk_refresh", "2026-07-01"))
	val, err = store.GetSystemKV(ctx, "last_uk_refresh")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-01", val)
}

func TestInternalStore_ListUsers(t *testing.T) {
	db := testDB(t)
	store := NewInternalStore(db, testLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, &models.InternalUser{UserID: "u3", Email: "a@b.com", Role: models.RoleAnalyst}))
	require.NoError(t, store.SaveUser(ctx, &models.InternalUser{UserID: "u4", Email: "c@d.com", Role: models.RoleAnalyst}))

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(users), 2)
}
