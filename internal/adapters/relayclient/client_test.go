package relayclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/editor-relay/internal/adapters/httpapi"
	"github.com/bnema/editor-relay/internal/application"
	"github.com/bnema/editor-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayServer(t *testing.T, waitTimeout time.Duration) (*Client, *application.Relay) {
	t.Helper()

	relay := application.NewRelay(nil, nil, nil, application.Config{WaitTimeout: waitTimeout})
	server := httptest.NewServer(httpapi.NewRouter(relay, httpapi.Options{}))
	t.Cleanup(func() {
		relay.Close()
		server.Close()
	})
	return New(server.URL), relay
}

func TestClientSessionLifecycle(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, 50*time.Millisecond)
	ctx := context.Background()

	id, err := client.Create(ctx, "print('hi')")
	require.NoError(t, err)
	assert.True(t, id.Valid())

	content, err := client.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", content)

	require.NoError(t, client.Push(ctx, id, "print('bye')"))

	edit, err := client.WaitOnce(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "print('bye')", edit)

	_, err = client.WaitOnce(ctx, id)
	require.ErrorIs(t, err, domain.ErrNoContentYet)

	require.NoError(t, client.Delete(ctx, id))

	_, err = client.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestClientWaitForEditPollsAgainOnEmpty(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, 30*time.Millisecond)
	ctx := context.Background()

	id, err := client.Create(ctx, "x")
	require.NoError(t, err)

	var empties atomic.Int32
	done := make(chan string, 1)
	go func() {
		edit, waitErr := client.WaitForEdit(ctx, id, func() { empties.Add(1) })
		if waitErr != nil {
			done <- "error: " + waitErr.Error()
			return
		}
		done <- edit
	}()

	require.Eventually(t, func() bool { return empties.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, client.Push(ctx, id, "y"))

	select {
	case got := <-done:
		assert.Equal(t, "y", got)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForEdit did not return the pushed edit")
	}
}

func TestClientWaitForEditStopsOnDeletedSession(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, 20*time.Millisecond)
	ctx := context.Background()

	id, err := client.Create(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, client.Delete(ctx, id))

	_, err = client.WaitForEdit(ctx, id, nil)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestClientWaitForEditHonorsCancel(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, 10*time.Second)

	id, err := client.Create(context.Background(), "x")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.WaitForEdit(ctx, id, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientWaitConflict(t *testing.T) {
	t.Parallel()

	client, relay := newRelayServer(t, 10*time.Second)
	ctx := context.Background()

	id, err := client.Create(ctx, "x")
	require.NoError(t, err)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _, _ = client.WaitOnce(waitCtx, id) }()
	require.Eventually(t, func() bool { return relay.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	_, err = client.WaitOnce(ctx, id)
	require.ErrorIs(t, err, domain.ErrWaitConflict)
}

func TestClientHealth(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, time.Second)
	ctx := context.Background()

	_, err := client.Create(ctx, "x")
	require.NoError(t, err)

	stats, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, application.DefaultIdleTimeout, stats.IdleTimeout)
}

func TestClientInvalidIDIsReported(t *testing.T) {
	t.Parallel()

	client, _ := newRelayServer(t, time.Second)

	_, err := client.Get(context.Background(), "NOT-AN-ID")
	require.ErrorIs(t, err, domain.ErrInvalidSessionID)
}

func TestClientUnexpectedStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL).Create(context.Background(), "x")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
	assert.Equal(t, "Service unavailable", statusErr.Body)
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		want    string
		wantErr string
	}{
		{name: "root", base: "http://localhost:8787", want: "http://localhost:8787/session/abc12345"},
		{name: "mounted under prefix", base: "https://relay.example.com/api", want: "https://relay.example.com/api/session/abc12345"},
		{name: "empty", base: "", wantErr: "required"},
		{name: "bad scheme", base: "ftp://relay.example.com", wantErr: "http or https"},
		{name: "no host", base: "http://", wantErr: "host is required"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := buildURL(tc.base, sessionPath("abc12345"))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
