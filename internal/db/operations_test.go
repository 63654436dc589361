package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSettingsRoundTrip(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := database.Settings.Get(ctx, "missing")
	assert.Equal(t, sql.ErrNoRows, err)

	require.NoError(t, database.Settings.Set(ctx, "shared_folder", "/mnt/share", false))

	s, err := database.Settings.Get(ctx, "shared_folder")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/share", s.Value)
	assert.False(t, s.Encrypted)

	// Upsert replaces the value in place.
	require.NoError(t, database.Settings.Set(ctx, "shared_folder", "/srv/scans", false))
	s, err = database.Settings.Get(ctx, "shared_folder")
	require.NoError(t, err)
	assert.Equal(t, "/srv/scans", s.Value)

	all, err := database.Settings.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, database.Settings.Delete(ctx, "shared_folder"))
	_, err = database.Settings.Get(ctx, "shared_folder")
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestWebhookCRUD(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	hook := &Webhook{
		Name:       "notify",
		URL:        "http://example.com/hook",
		Secret:     "s3cret",
		EventsJSON: `["scan_completed","scan_failed"]`,
		Enabled:    true,
	}
	require.NoError(t, database.Webhooks.Create(ctx, hook))
	assert.NotZero(t, hook.ID)

	got, err := database.Webhooks.GetByID(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, "notify", got.Name)
	assert.Equal(t, `["scan_completed","scan_failed"]`, got.EventsJSON)

	got.URL = "http://example.com/hook2"
	got.Enabled = false
	require.NoError(t, database.Webhooks.Update(ctx, got))

	updated, err := database.Webhooks.GetByID(ctx, hook.ID)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/hook2", updated.URL)
	assert.False(t, updated.Enabled)

	require.NoError(t, database.Webhooks.Delete(ctx, hook.ID))
	_, err = database.Webhooks.GetByID(ctx, hook.ID)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestListActiveForEvent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	completed := &Webhook{
		Name:       "on-complete",
		URL:        "http://example.com/a",
		EventsJSON: `["scan_completed"]`,
		Enabled:    true,
	}
	failed := &Webhook{
		Name:       "on-fail",
		URL:        "http://example.com/b",
		EventsJSON: `["scan_failed"]`,
		Enabled:    true,
	}
	disabled := &Webhook{
		Name:       "disabled",
		URL:        "http://example.com/c",
		EventsJSON: `["scan_completed"]`,
		Enabled:    false,
	}
	for _, w := range []*Webhook{completed, failed, disabled} {
		require.NoError(t, database.Webhooks.Create(ctx, w))
	}

	hooks, err := database.Webhooks.ListActiveForEvent(ctx, "scan_completed")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "on-complete", hooks[0].Name)

	hooks, err = database.Webhooks.ListActiveForEvent(ctx, "scan_started")
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Settings.Set(context.Background(), "k", "v", false))
	require.NoError(t, first.Close())

	// Reopening must not re-run applied migrations or lose data.
	second, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer second.Close()

	s, err := second.Settings.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", s.Value)
}
