package oidc_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/hoppermq/streamly-console/internal/pkce"
)

const (
	testClientID = "streamly-console"
	testKeyID    = "test-key"
)

// provider is a minimal identity provider for the authorization code and refresh grants.
type provider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu sync.Mutex
	// codes maps an authorization code onto its PKCE challenge
	codes           map[string]string
	subject         string
	omitIDToken     bool
	badAtHash       bool
	tokenStatus     int
	tokenError      string
	discoveryIssuer string
	endSession      bool
	requests        map[string]int
	lastForm        map[string][]string
}

func startProvider(t *testing.T) *provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &provider{
		t:          t,
		key:        key,
		codes:      make(map[string]string),
		subject:    "abc",
		endSession: true,
		requests:   make(map[string]int),
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	t.Cleanup(p.server.Close)

	return p
}

func (p *provider) URL() string {
	return p.server.URL
}

// issueCode registers an authorization code bound to the verifier.
func (p *provider) issueCode(code, verifier string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.codes[code] = pkce.Challenge(verifier)
}

// set changes the provider behaviour.
func (p *provider) set(fn func(p *provider)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fn(p)
}

// form returns a value of the last token request.
func (p *provider) form(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.lastForm[key]) == 0 {
		return ""
	}

	return p.lastForm[key][0]
}

func (p *provider) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.requests[path]
}

func (p *provider) serveHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests[r.URL.Path]++

	switch r.URL.Path {
	case oidc.DiscoveryEndpoint:
		issuer := p.server.URL
		if p.discoveryIssuer != "" {
			issuer = p.discoveryIssuer
		}
		disc := oidc.DiscoveryConfiguration{
			Issuer:                           issuer,
			AuthorizationEndpoint:            p.server.URL + "/oauth/v2/authorize",
			TokenEndpoint:                    p.server.URL + "/oauth/v2/token",
			UserinfoEndpoint:                 p.server.URL + "/oidc/v1/userinfo",
			JwksURI:                          p.server.URL + "/oauth/v2/keys",
			IDTokenSigningAlgValuesSupported: []string{"RS256"},
		}
		if p.endSession {
			disc.EndSessionEndpoint = p.server.URL + "/oidc/v1/end_session"
		}
		writeJSON(w, http.StatusOK, disc)
	case "/oauth/v2/keys":
		writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &p.key.PublicKey,
			KeyID:     testKeyID,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}}})
	case "/oauth/v2/token":
		p.token(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	p.lastForm = r.PostForm

	if p.tokenStatus != 0 {
		writeJSON(w, p.tokenStatus, map[string]string{"error": p.tokenError, "error_description": "rejected by the test provider"})
		return
	}

	if r.PostForm.Get("client_id") != testClientID {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		challenge, ok := p.codes[r.PostForm.Get("code")]
		delete(p.codes, r.PostForm.Get("code"))
		if !ok || challenge != pkce.Challenge(r.PostForm.Get("code_verifier")) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "code or verifier mismatch"})
			return
		}
	case "refresh_token":
		if r.PostForm.Get("refresh_token") == "revoked" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "refresh token revoked"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	accessToken := "access-" + rand.Text()
	resp := map[string]any{
		"access_token":  accessToken,
		"refresh_token": "refresh-" + rand.Text(),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"scope":         r.PostForm.Get("scope"),
	}
	if !p.omitIDToken {
		atHash := accessToken
		if p.badAtHash {
			atHash = "another-access-token"
		}
		resp["id_token"] = p.idToken(atHash)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (p *provider) idToken(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                p.server.URL,
		"sub":                p.subject,
		"aud":                []string{testClientID, "356531635715399939"},
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
		"name":               "Jane Doe",
		"preferred_username": "jane",
		"email":              "jane@example.com",
		"email_verified":     true,
		"at_hash":            base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2]),
	})
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(p.key)
	require.NoError(p.t, err)

	return signed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
