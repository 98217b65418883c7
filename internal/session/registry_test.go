package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
	sessionmock "github.com/hoppermq/streamly-console/internal/session/mock"
)

func TestRegistry_Open(t *testing.T) {
	ctx := t.Context()
	repo := sessionmock.NewInMemRepository(
		sessionmock.WithSnapshot("known", session.Snapshot{User: testUser("abc"), IsAuthenticated: true}),
	)

	var opened []string
	r := session.NewRegistry(repo, time.Hour, session.WithOpenHook(func(_ context.Context, s *session.Store) {
		opened = append(opened, s.ClientID())
	}))

	known := r.Open(ctx, "known")
	assert.True(t, known.IsAuthenticated())
	assert.Same(t, known, r.Open(ctx, "known"), "the live store is reused")

	unknown := r.Open(ctx, "unknown")
	assert.False(t, unknown.IsAuthenticated())

	assert.Equal(t, []string{"known", "unknown"}, opened)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_Forget(t *testing.T) {
	ctx := t.Context()
	repo := sessionmock.NewInMemRepository()

	var evicted []string
	r := session.NewRegistry(repo, time.Hour, session.WithEvictHook(func(s *session.Store) {
		evicted = append(evicted, s.ClientID())
	}))

	s := r.Open(ctx, "client")
	s.SetUser(ctx, testUser("abc"))
	r.Forget("client")

	assert.Equal(t, []string{"client"}, evicted)
	assert.Equal(t, 0, r.Len())

	restored := r.Open(ctx, "client")
	assert.NotSame(t, s, restored)
	assert.True(t, restored.IsAuthenticated(), "Forget keeps the persisted session")
}

func TestRegistry_Discard(t *testing.T) {
	ctx := t.Context()
	repo := sessionmock.NewInMemRepository(
		sessionmock.WithSnapshot("persisted", session.Snapshot{User: testUser("def"), IsAuthenticated: true}),
	)

	var evicted []string
	r := session.NewRegistry(repo, time.Hour, session.WithEvictHook(func(s *session.Store) {
		evicted = append(evicted, s.ClientID())
	}))

	live := r.Open(ctx, "live")
	live.SetUser(ctx, testUser("abc"))
	live.SetLoading(ctx, true)

	r.Discard(ctx, "live")
	r.Discard(ctx, "persisted")
	r.Discard(ctx, "unknown")

	assert.False(t, live.IsAuthenticated(), "holders of the discarded store see it signed out")
	assert.False(t, live.IsLoading())
	assert.Equal(t, []string{"live"}, evicted)
	assert.Equal(t, 0, r.Len())

	for _, id := range []string{"live", "persisted"} {
		_, err := repo.LoadSnapshot(ctx, id)
		require.ErrorIs(t, err, serviceerr.ErrNotFound, id)
		assert.False(t, r.Open(ctx, id).IsAuthenticated(), id)
	}
}

func TestRegistry_Sweep(t *testing.T) {
	now := time.Now()
	expired := testUser("expired")
	expired.ExpiresAt = now.Add(-time.Minute)
	expired.RefreshToken = ""
	refreshable := testUser("refreshable")
	refreshable.ExpiresAt = now.Add(-time.Minute)

	tests := []struct {
		name        string
		repo        *sessionmock.Repository
		wantDeleted int
		wantLeft    []string
		assertErr   assert.ErrorAssertionFunc
	}{
		{
			name: "deletes anonymous and expired sessions",
			repo: sessionmock.NewInMemRepository(
				sessionmock.WithSnapshot("valid", session.Snapshot{User: testUser("valid"), IsAuthenticated: true}),
				sessionmock.WithSnapshot("refreshable", session.Snapshot{User: refreshable, IsAuthenticated: true}),
				sessionmock.WithSnapshot("expired", session.Snapshot{User: expired, IsAuthenticated: true}),
				sessionmock.WithSnapshot("anonymous", session.Snapshot{}),
			),
			wantDeleted: 2,
			wantLeft:    []string{"refreshable", "valid"},
			assertErr:   assert.NoError,
		},
		{
			name: "delete failures are skipped",
			repo: sessionmock.NewInMemRepository(
				sessionmock.WithSnapshot("anonymous", session.Snapshot{}),
				sessionmock.WithDeleteSnapshotError(errors.New("boom")),
			),
			wantLeft:  []string{"anonymous"},
			assertErr: assert.NoError,
		},
		{
			name:      "list failure",
			repo:      sessionmock.NewInMemRepository(sessionmock.WithListSnapshotsError(serviceerr.ErrTemporarilyUnavailable)),
			assertErr: assert.Error,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := session.NewRegistry(tt.repo, time.Hour)

			deleted, err := r.Sweep(t.Context(), now)
			if !tt.assertErr(t, err) || err != nil {
				return
			}

			assert.Equal(t, tt.wantDeleted, deleted)

			left, err := tt.repo.ListSnapshots(t.Context())
			require.NoError(t, err)
			keys := make([]string, 0, len(left))
			for k := range left {
				keys = append(keys, k)
			}
			assert.ElementsMatch(t, tt.wantLeft, keys)
		})
	}
}
