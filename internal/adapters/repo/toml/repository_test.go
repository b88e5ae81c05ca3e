package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/editor-relay/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()

	config := viper.New()
	config.Set("store.path", path)

	store, err := NewStore(config)
	require.NoError(t, err)
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "sessions.toml"))
	ctx := context.Background()

	created := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	edit := "line one\nline \"two\""
	first := domain.Session{
		ID:           "abc12345",
		SavedContent: "print('hello')\n",
		PendingEdit:  &edit,
		CreatedAt:    created,
		LastActivity: created.Add(5 * time.Minute),
	}
	second := domain.Session{
		ID:           "zz99zz99",
		SavedContent: "other",
		CreatedAt:    created,
		LastActivity: created,
	}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	got, err := store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Session{first, second}, sessions)
}

func TestStoreSaveReplacesExistingSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "sessions.toml"))
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

func TestStoreDeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "sessions.toml"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, domain.Session{ID: "abc12345", SavedContent: "x"}))
	require.NoError(t, store.Delete(ctx, "abc12345"))
	require.NoError(t, store.Delete(ctx, "abc12345"))

	_, err := store.Load(ctx, "abc12345")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestStoreDefaultPathAndPermissions(t *testing.T) {
	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	store, err := NewStore(viper.New())
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), domain.Session{ID: "abc12345", SavedContent: "x"}))

	sessionsPath := filepath.Join(homeDir, ".local", "share", "editor-relay", "sessions.toml")
	assert.Equal(t, sessionsPath, store.Path())
	info, err := os.Stat(sessionsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStoreMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "missing", "sessions.toml"))

	sessions, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = store.Load(context.Background(), "abc12345")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, store.Delete(context.Background(), "abc12345"))
}

func TestStoreMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	sessionsPath := filepath.Join(t.TempDir(), "sessions.toml")
	require.NoError(t, os.WriteFile(sessionsPath, []byte("sessions = ["), 0o600))

	store := newTestStore(t, sessionsPath)

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode sessions file")
}

func TestStoreFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	sessionsPath := filepath.Join(t.TempDir(), "sessions.toml")
	require.NoError(t, os.WriteFile(sessionsPath, []byte(strings.Join([]string{
		"version = 999",
		"",
		"sessions = []",
		"",
	}, "\n")), 0o600))

	store := newTestStore(t, sessionsPath)

	_, err := store.Load(context.Background(), "abc12345")
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported sessions schema version")
}

func TestStoreCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "sessions.toml"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Save(ctx, domain.Session{ID: "abc12345"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestStoreConcurrentSavesAcrossInstancesPreserveAllSessions(t *testing.T) {
	t.Parallel()

	sessionsPath := filepath.Join(t.TempDir(), "sessions.toml")
	storeA := newTestStore(t, sessionsPath)
	storeB := newTestStore(t, sessionsPath)

	const perStoreWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perStoreWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	write := func(store *Store, prefix byte) {
		defer wg.Done()
		<-start
		for i := 0; i < perStoreWrites; i++ {
			id := domain.SessionID([]byte{prefix, 'a', 'a', 'a', 'a', 'a', byte('a' + i/26), byte('a' + i%26)})
			errCh <- store.Save(context.Background(), domain.Session{ID: id, SavedContent: "x"})
		}
	}

	go write(storeA, 'a')
	go write(storeB, 'b')

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	sessions, err := storeA.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, perStoreWrites*2)
}
