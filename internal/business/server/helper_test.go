package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/hoppermq/streamly-console/internal/config"
	streamlyoidc "github.com/hoppermq/streamly-console/internal/oidc"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/preferences/preferencesmock"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
	sessionmock "github.com/hoppermq/streamly-console/internal/session/mock"
)

const (
	testClientID    = "3f6c1d2e-8b4a-4f7e-9c5d-1a2b3c4d5e6f"
	testNewClientID = "b7e4a9c2-5d1f-4e8a-a3b6-7c9d0e1f2a3b"
	testAuthURL     = "https://auth.example.com/oauth/v2/authorize?state=state-one"
	testEndSession  = "https://auth.example.com/oidc/v1/end_session?client_id=console"
	testUserAgent   = "Mozilla/5.0 (X11; Linux x86_64)"
)

var testCSRFSecret = []byte("12345678901234567890123456789012")

type beginCall struct {
	clientID    string
	fingerprint string
	returnTo    string
	silent      bool
}

type fakeAuth struct {
	mu sync.Mutex

	begun []beginCall

	beginErr      error
	result        streamlyoidc.SignInResult
	completeErr   error
	onComplete    func()
	endSessionErr error
	hints         []string
}

func (f *fakeAuth) BeginSignIn(_ context.Context, clientID, fingerprint, returnTo string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.begun = append(f.begun, beginCall{clientID: clientID, fingerprint: fingerprint, returnTo: returnTo})

	return testAuthURL, f.beginErr
}

func (f *fakeAuth) BeginSilentRenewal(_ context.Context, clientID, fingerprint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.begun = append(f.begun, beginCall{clientID: clientID, fingerprint: fingerprint, silent: true})

	return testAuthURL + "&prompt=none", f.beginErr
}

func (f *fakeAuth) CompleteSignIn(_ context.Context, _, _, _ string) (streamlyoidc.SignInResult, error) {
	if f.onComplete != nil {
		f.onComplete()
	}

	return f.result, f.completeErr
}

func (f *fakeAuth) CompleteSilentRenewal(ctx context.Context, stateID, code, fp string) (streamlyoidc.SignInResult, error) {
	return f.CompleteSignIn(ctx, stateID, code, fp)
}

func (f *fakeAuth) EndSessionURL(_ context.Context, idTokenHint string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hints = append(f.hints, idTokenHint)
	if f.endSessionErr != nil {
		return "", f.endSessionErr
	}

	return testEndSession, nil
}

type fakeUserInfo struct {
	forgotten []string
}

func (f *fakeUserInfo) Get(_ context.Context, user *session.User) (*oidc.UserInfo, error) {
	if user == nil {
		return nil, serviceerr.ErrUnauthenticated
	}

	info := &oidc.UserInfo{Subject: user.Profile.Subject}
	info.Email = user.Profile.Email

	return info, nil
}

func (f *fakeUserInfo) Forget(subject string) {
	f.forgotten = append(f.forgotten, subject)
}

type testConsole struct {
	handler  http.Handler
	auth     *fakeAuth
	userInfo *fakeUserInfo
	sessions *session.Registry
	prefs    *preferencesmock.Repository
}

func newTestConsole(t *testing.T, prefOpts ...preferencesmock.RepositoryOption) *testConsole {
	t.Helper()

	tc := &testConsole{
		auth:     &fakeAuth{},
		userInfo: &fakeUserInfo{},
		sessions: session.NewRegistry(sessionmock.NewInMemRepository(), time.Hour),
		prefs:    preferencesmock.NewInMemRepository(prefOpts...),
	}

	cfg := testAppConfig()
	cfg.Session.ClientCookie = config.CookieTemplate{Name: "client", HTTPOnly: true}
	cfg.Session.CSRFCookie = config.CookieTemplate{Name: "csrf"}

	handler, err := newHandler(cfg, Deps{
		Sessions:    tc.sessions,
		Auth:        tc.auth,
		UserInfo:    tc.userInfo,
		Preferences: preferences.NewService(tc.prefs),
		CSRFSecret:  testCSRFSecret,
		NewClientID: func() string { return testNewClientID },
	})
	require.NoError(t, err)

	tc.handler = handler

	return tc
}

func (tc *testConsole) signIn(t *testing.T) *session.Store {
	t.Helper()

	store := tc.sessions.Open(t.Context(), testClientID)
	store.SetUser(t.Context(), testUser())

	return store
}

func testUser() *session.User {
	return &session.User{
		AccessToken:  "access-secret",
		RefreshToken: "refresh-secret",
		IDToken:      "id-token",
		Scope:        "openid profile email",
		ExpiresAt:    time.Now().Add(time.Hour),
		Profile: session.Profile{
			Subject: "abc",
			Name:    "Ada Lovelace",
			Email:   "ada@example.com",
		},
	}
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withoutClient() requestOption {
	return func(r *http.Request) {
		r.Header.Del("Cookie")
	}
}

func (tc *testConsole) do(t *testing.T, method, target, body string, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequestWithContext(t.Context(), method, target, reader)
	req.Header.Set("User-Agent", testUserAgent)
	req.AddCookie(&http.Cookie{Name: "client", Value: testClientID})
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	tc.handler.ServeHTTP(rec, req)

	return rec
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}

	return nil
}
