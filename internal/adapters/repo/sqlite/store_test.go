package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open("  ")
	require.Error(t, err)
	assert.ErrorContains(t, err, "storage path is required")
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	edit := ""
	session := domain.Session{
		ID:           "abc12345",
		SavedContent: "local x = 1\n",
		PendingEdit:  &edit,
		CreatedAt:    created,
		LastActivity: created.Add(time.Minute),
	}
	require.NoError(t, store.Save(ctx, session))

	got, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session, got)
	require.NotNil(t, got.PendingEdit, "an empty pending edit is still an edit")
}

func TestStoreSaveUpsertsAndClearsPendingEdit(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	edit := "pending"
	require.NoError(t, store.Save(ctx, domain.Session{ID: "abc12345", SavedContent: "v1", PendingEdit: &edit}))
	require.NoError(t, store.Save(ctx, domain.Session{ID: "abc12345", SavedContent: "v1"}))

	got, err := store.Load(ctx, "abc12345")
	require.NoError(t, err)
	assert.Nil(t, got.PendingEdit)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestStoreLoadMissingSession(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, err := store.Load(context.Background(), "abc12345")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Session{ID: "abc12345", SavedContent: "x"}))
	require.NoError(t, store.Delete(ctx, "abc12345"))
	require.NoError(t, store.Delete(ctx, "abc12345"))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestOpenIsRepeatable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.db")
	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), domain.Session{ID: "abc12345", SavedContent: "kept"}))
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.Load(context.Background(), "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.SavedContent)
}
