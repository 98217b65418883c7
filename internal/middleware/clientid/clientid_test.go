package clientid_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/middleware/clientid"
)

const (
	knownID     = "5f0c8a8e-3b1d-4c7a-9f2e-6d4b1a0c9e77"
	generatedID = "0d7e2c4b-8a1f-4e6d-b3c5-9f2a7e1d4c60"
)

var cookie = config.CookieTemplate{
	Name:     "streamly-client",
	Path:     "/",
	HTTPOnly: true,
	SameSite: config.CookieSameSiteLax,
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		cookieValue   string
		wantClientID  string
		wantSetCookie bool
	}{
		{
			name:          "new client",
			wantClientID:  generatedID,
			wantSetCookie: true,
		},
		{
			name:         "known client",
			cookieValue:  knownID,
			wantClientID: knownID,
		},
		{
			name:          "planted id",
			cookieValue:   "attacker-known-id",
			wantClientID:  generatedID,
			wantSetCookie: true,
		},
		{
			name:          "non canonical uuid",
			cookieValue:   "{" + knownID + "}",
			wantClientID:  generatedID,
			wantSetCookie: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				var err error
				got, err = clientid.FromContext(r.Context())
				require.NoError(t, err)
			})

			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: cookie.Name, Value: tt.cookieValue})
			}
			rec := httptest.NewRecorder()

			clientid.Middleware(cookie, func() string { return generatedID })(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantClientID, got)

			cookies := rec.Result().Cookies()
			if !tt.wantSetCookie {
				assert.Empty(t, cookies)
				return
			}

			require.Len(t, cookies, 1)
			assert.Equal(t, cookie.Name, cookies[0].Name)
			assert.Equal(t, generatedID, cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
}

func TestFromContext(t *testing.T) {
	_, err := clientid.FromContext(t.Context())
	require.Error(t, err)

	id, err := clientid.FromContext(clientid.NewContext(t.Context(), "client-one"))
	require.NoError(t, err)
	assert.Equal(t, "client-one", id)
}

func TestValid(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: knownID, want: true},
		{id: ""},
		{id: "client-one"},
		{id: "urn:uuid:" + knownID},
		{id: "5F0C8A8E-3B1D-4C7A-9F2E-6D4B1A0C9E77"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, clientid.Valid(tt.id))
		})
	}
}
