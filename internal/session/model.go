package session

import (
	"log/slog"
	"time"
)

// Namespace is the key space the session snapshots are persisted under.
const Namespace = "streamly-auth"

// Profile holds the identity claims of the signed-in user.
type Profile struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
}

// User is the principal returned by a successful sign-in or renewal.
// The tokens are secrets and must never reach a log record, see LogValue.
type User struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Profile      Profile   `json:"profile"`
}

// Expired reports whether the access token is expired at now.
// A user without a known expiry never expires.
func (u *User) Expired(now time.Time) bool {
	if u == nil {
		return true
	}

	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

func (u *User) CanRefresh() bool {
	return u != nil && u.RefreshToken != ""
}

func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.StringValue("anonymous")
	}

	return slog.GroupValue(
		slog.String("sub", u.Profile.Subject),
		slog.Time("expires_at", u.ExpiresAt),
		slog.Bool("refreshable", u.CanRefresh()),
	)
}

// Snapshot is the observable state of a Store.
type Snapshot struct {
	User            *User `json:"user"`
	IsAuthenticated bool  `json:"isAuthenticated"`
	IsLoading       bool  `json:"-"`
}

// LoginState binds an authorization request to its callback.
type LoginState struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	Fingerprint  string    `json:"fingerprint"`
	PKCEVerifier string    `json:"pkce_verifier"`
	RequestURI   string    `json:"request_uri"`
	Silent       bool      `json:"silent,omitempty"`
	Expiry       time.Time `json:"expiry"`
}
