package oidc_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"

	"github.com/hoppermq/streamly-console/internal/oidc"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
	sessionmock "github.com/hoppermq/streamly-console/internal/session/mock"
)

type auditSink struct {
	*httptest.Server

	mu     sync.Mutex
	events []string
}

func (s *auditSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.events...)
}

func startAuditServer(t *testing.T) *auditSink {
	t.Helper()

	sink := &auditSink{}
	sink.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			sink.mu.Lock()
			sink.events = append(sink.events, string(body))
			sink.mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"success": true}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.Close)

	return sink
}

func TestManager_AuditsSignIn(t *testing.T) {
	auditServer := startAuditServer(t)
	auditLogger, err := otlpaudit.NewLogger(&commoncfg.Audit{Endpoint: auditServer.URL})
	require.NoError(t, err)

	p := startProvider(t)
	repo := sessionmock.NewInMemRepository()
	m := newManager(t, p, repo, oidc.WithAuditLogger(auditLogger))

	_, state := beginSignIn(t, m, repo, "/")
	p.issueCode("code", state.PKCEVerifier)
	res, err := m.CompleteSignIn(t.Context(), state.ID, "code", "fingerprint-one")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.User.Profile.Subject)

	_, state = beginSignIn(t, m, repo, "/")
	_, err = m.CompleteSignIn(t.Context(), state.ID, "code", "another-browser")
	require.ErrorIs(t, err, serviceerr.ErrFingerprintMismatch)

	events := auditServer.Events()
	require.Len(t, events, 2)

	assert.Contains(t, events[0], otlpaudit.UserLoginSuccessEvent)
	assert.Contains(t, events[0], `"abc"`)

	assert.Contains(t, events[1], otlpaudit.UserLoginFailureEvent)
	assert.Contains(t, events[1], string(otlpaudit.FAILREASON_TOKENINVALID))
	assert.NotContains(t, events[1], `"key":"value"`, "a failed sign-in names no user")
}
