package settings

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blindscan/scanhost/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewStoreDefaultsAndPersisted(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// A persisted value wins over the startup default for the same key.
	require.NoError(t, database.Settings.Set(ctx, KeySharedFolder, "/persisted", false))

	store, err := NewStore(ctx, database, map[string]string{
		KeySharedFolder:   "/default",
		KeyAutoSaveShared: "true",
	})
	require.NoError(t, err)

	v, ok := store.Get(KeySharedFolder)
	require.True(t, ok)
	assert.Equal(t, "/persisted", v)
	assert.True(t, store.GetBool(KeyAutoSaveShared))

	_, ok = store.Get("unknown")
	assert.False(t, ok)
}

func TestSetPersistsAndCaches(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	store, err := NewStore(ctx, database, nil)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, KeyDefaultDPI, "600"))

	v, ok := store.Get(KeyDefaultDPI)
	require.True(t, ok)
	assert.Equal(t, "600", v)

	// The value survives a fresh store built on the same database.
	reloaded, err := NewStore(ctx, database, nil)
	require.NoError(t, err)
	v, ok = reloaded.Get(KeyDefaultDPI)
	require.True(t, ok)
	assert.Equal(t, "600", v)
}

func TestSecretsBypassCache(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	store, err := NewStore(ctx, database, nil)
	require.NoError(t, err)

	_, err = store.GetSecret(ctx, KeyAdminPasswordHash)
	assert.Equal(t, sql.ErrNoRows, err)

	require.NoError(t, store.SetSecret(ctx, KeyAdminPasswordHash, "hash-value"))

	secret, err := store.GetSecret(ctx, KeyAdminPasswordHash)
	require.NoError(t, err)
	assert.Equal(t, "hash-value", secret)

	// Secrets never show up in the cached snapshot.
	_, ok := store.Get(KeyAdminPasswordHash)
	assert.False(t, ok)
	assert.NotContains(t, store.Snapshot(), KeyAdminPasswordHash)
}

func TestSharedFolderPolicy(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	store, err := NewStore(ctx, database, map[string]string{
		KeySharedFolder: "/mnt/share",
	})
	require.NoError(t, err)

	dir, enabled := store.SharedFolder()
	assert.Equal(t, "/mnt/share", dir)
	assert.False(t, enabled)

	require.NoError(t, store.Set(ctx, KeyAutoSaveShared, "true"))

	dir, enabled = store.SharedFolder()
	assert.Equal(t, "/mnt/share", dir)
	assert.True(t, enabled)
}

func TestGetBoolBadValue(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	store, err := NewStore(ctx, database, map[string]string{
		KeyAutoSaveShared: "definitely",
	})
	require.NoError(t, err)

	assert.False(t, store.GetBool(KeyAutoSaveShared))
}
