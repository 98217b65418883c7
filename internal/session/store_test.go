package session_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppermq/streamly-console/internal/session"
	sessionmock "github.com/hoppermq/streamly-console/internal/session/mock"
)

func testUser(sub string) *session.User {
	return &session.User{
		AccessToken:  "secret-access-token",
		RefreshToken: "secret-refresh-token",
		IDToken:      "secret-id-token",
		TokenType:    "Bearer",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Profile:      session.Profile{Subject: sub, Name: "Jane Doe", Email: "jane@example.com"},
	}
}

func TestStore_SetUser(t *testing.T) {
	tests := []struct {
		name     string
		calls    []*session.User
		wantAuth bool
		wantSub  string
	}{
		{name: "user", calls: []*session.User{testUser("abc")}, wantAuth: true, wantSub: "abc"},
		{name: "user then nil", calls: []*session.User{testUser("abc"), nil}},
		{name: "nil then user", calls: []*session.User{nil, testUser("def")}, wantAuth: true, wantSub: "def"},
		{name: "replaced user", calls: []*session.User{testUser("abc"), testUser("def")}, wantAuth: true, wantSub: "def"},
		{name: "user without subject", calls: []*session.User{testUser("abc"), testUser("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.NewStore("client", nil)
			s.SetLoading(t.Context(), true)

			for _, u := range tt.calls {
				s.SetUser(t.Context(), u)
			}

			snapshot := s.Snapshot()
			assert.Equal(t, tt.wantAuth, snapshot.IsAuthenticated)
			assert.False(t, snapshot.IsLoading, "SetUser clears the loading flag")
			if !tt.wantAuth {
				assert.Nil(t, snapshot.User)
				return
			}
			require.NotNil(t, snapshot.User)
			assert.Equal(t, tt.wantSub, snapshot.User.Profile.Subject)
		})
	}
}

func TestStore_Logout(t *testing.T) {
	for _, loading := range []bool{true, false} {
		s := session.NewStore("client", nil)
		s.SetUser(t.Context(), testUser("abc"))
		s.SetLoading(t.Context(), loading)

		s.Logout(t.Context())

		assert.False(t, s.IsAuthenticated())
		assert.Nil(t, s.User())
		assert.Equal(t, loading, s.IsLoading(), "Logout leaves the loading flag untouched")
	}

	s := session.NewStore("client", nil)
	s.Logout(t.Context())
	assert.False(t, s.IsAuthenticated(), "Logout of an anonymous store")
}

func TestStore_ReplaceUser(t *testing.T) {
	renewed := testUser("abc")
	renewed.AccessToken = "renewed-access-token"

	tests := []struct {
		name         string
		prepare      func(t *testing.T, s *session.Store)
		user         *session.User
		wantReplaced bool
		wantToken    string
		wantNotified int
	}{
		{
			name: "session still holds the token",
			prepare: func(t *testing.T, s *session.Store) {
				s.SetUser(t.Context(), testUser("abc"))
				s.SetLoading(t.Context(), true)
			},
			user:         renewed,
			wantReplaced: true,
			wantToken:    "renewed-access-token",
			wantNotified: 1,
		},
		{
			name: "logged out in between",
			prepare: func(t *testing.T, s *session.Store) {
				s.SetUser(t.Context(), testUser("abc"))
				s.SetLoading(t.Context(), true)
				s.Logout(t.Context())
			},
			user:         renewed,
			wantNotified: 1,
		},
		{
			name: "signed in again in between",
			prepare: func(t *testing.T, s *session.Store) {
				other := testUser("def")
				other.AccessToken = "other-access-token"
				s.SetUser(t.Context(), other)
			},
			user:      renewed,
			wantToken: "other-access-token",
		},
		{
			name: "user without subject",
			prepare: func(t *testing.T, s *session.Store) {
				s.SetUser(t.Context(), testUser("abc"))
			},
			user:      testUser(""),
			wantToken: "secret-access-token",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.NewStore("client", nil)
			tt.prepare(t, s)

			var notified int
			s.Subscribe(func(session.Snapshot) { notified++ })

			replaced := s.ReplaceUser(t.Context(), "secret-access-token", tt.user)

			assert.Equal(t, tt.wantReplaced, replaced)
			assert.False(t, s.IsLoading())
			assert.Equal(t, tt.wantNotified, notified)
			if tt.wantToken == "" {
				assert.False(t, s.IsAuthenticated())
				assert.Nil(t, s.User())
				return
			}
			require.NotNil(t, s.User())
			assert.Equal(t, tt.wantToken, s.User().AccessToken)
		})
	}
}

func TestStore_SetLoadingKeepsIdentity(t *testing.T) {
	s := session.NewStore("client", nil)
	s.SetUser(t.Context(), testUser("abc"))

	s.SetLoading(t.Context(), true)

	assert.True(t, s.IsLoading())
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, "abc", s.User().Profile.Subject)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := session.NewStore("client", nil)
	u := testUser("abc")
	s.SetUser(t.Context(), u)

	u.Profile.Subject = "changed"
	s.User().Profile.Subject = "changed"

	assert.Equal(t, "abc", s.User().Profile.Subject)
}

func TestStore_Subscribe(t *testing.T) {
	s := session.NewStore("client", nil)

	var got []session.Snapshot
	unsubscribe := s.Subscribe(func(snapshot session.Snapshot) {
		got = append(got, snapshot)
	})

	s.SetLoading(t.Context(), true)
	s.SetUser(t.Context(), testUser("abc"))
	unsubscribe()
	s.Logout(t.Context())
	unsubscribe()

	require.Len(t, got, 2)
	assert.True(t, got[0].IsLoading)
	assert.False(t, got[0].IsAuthenticated)
	assert.False(t, got[1].IsLoading)
	assert.True(t, got[1].IsAuthenticated)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	ctx := t.Context()
	repo := sessionmock.NewInMemRepository()

	before := session.NewStore("client", repo)
	before.SetLoading(ctx, true)
	before.SetUser(ctx, testUser("abc"))
	before.SetLoading(ctx, true)

	after := session.OpenStore(ctx, "client", repo)

	assert.Equal(t, before.IsAuthenticated(), after.IsAuthenticated())
	assert.Equal(t, before.User(), after.User())
	assert.False(t, after.IsLoading(), "the loading flag is not restored")

	before.Logout(ctx)
	after = session.OpenStore(ctx, "client", repo)
	assert.False(t, after.IsAuthenticated())
	assert.Nil(t, after.User())
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name     string
		repo     session.Repository
		wantAuth bool
	}{
		{
			name:     "restores an authenticated session",
			repo:     sessionmock.NewInMemRepository(sessionmock.WithSnapshot("client", session.Snapshot{User: testUser("abc"), IsAuthenticated: true})),
			wantAuth: true,
		},
		{
			name: "repairs a session flagged authenticated without a user",
			repo: sessionmock.NewInMemRepository(sessionmock.WithSnapshot("client", session.Snapshot{IsAuthenticated: true})),
		},
		{
			name: "drops a user without a subject",
			repo: sessionmock.NewInMemRepository(sessionmock.WithSnapshot("client", session.Snapshot{User: testUser(""), IsAuthenticated: true})),
		},
		{
			name: "missing session",
			repo: sessionmock.NewInMemRepository(),
		},
		{
			name: "load failure starts anonymous",
			repo: sessionmock.NewInMemRepository(sessionmock.WithLoadSnapshotError(errors.New("boom"))),
		},
		{
			name: "no repository",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := session.OpenStore(t.Context(), "client", tt.repo)

			assert.Equal(t, tt.wantAuth, s.IsAuthenticated())
			assert.Equal(t, tt.wantAuth, s.User() != nil)
			assert.Equal(t, "client", s.ClientID())
		})
	}
}

func TestStore_PersistenceFailureDoesNotFail(t *testing.T) {
	repo := sessionmock.NewInMemRepository(sessionmock.WithStoreSnapshotError(errors.New("boom")))
	s := session.NewStore("client", repo)

	s.SetUser(t.Context(), testUser("abc"))

	assert.True(t, s.IsAuthenticated())
}

func TestUser_LogValueRedactsTokens(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("signed in", "user", testUser("abc"))

	assert.Contains(t, buf.String(), `"sub":"abc"`)
	assert.NotContains(t, buf.String(), "secret")
}

func TestUser_Expired(t *testing.T) {
	now := time.Now()

	var anonymous *session.User
	assert.True(t, anonymous.Expired(now))
	assert.False(t, (&session.User{}).Expired(now), "unknown expiry")
	assert.False(t, (&session.User{ExpiresAt: now.Add(time.Second)}).Expired(now))
	assert.True(t, (&session.User{ExpiresAt: now}).Expired(now))
}
