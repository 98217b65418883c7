package oidc

import (
	"context"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

type profileClaims struct {
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	AtHash            string `json:"at_hash,omitempty"`
}

// userFromToken verifies the ID token of the token response and builds the
// user. previous is the user being renewed, if any: a refresh response
// without an ID token keeps its identity.
func (m *Manager) userFromToken(ctx context.Context, disc *oidc.DiscoveryConfiguration, token *oauth2.Token, previous *session.User) (*session.User, error) {
	user := &session.User{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		user.Scope = scope
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		if previous == nil {
			return nil, serviceerr.New(serviceerr.CodeInvalidIDToken, "token response carries no id_token")
		}

		user.IDToken = previous.IDToken
		user.Profile = previous.Profile
		if user.RefreshToken == "" {
			user.RefreshToken = previous.RefreshToken
		}
		if user.Scope == "" {
			user.Scope = previous.Scope
		}

		return user, nil
	}

	std, profile, err := m.verifyIDToken(ctx, disc, rawIDToken, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if previous != nil {
		if std.Subject != previous.Profile.Subject {
			return nil, serviceerr.New(serviceerr.CodeInvalidIDToken, "the renewed id token belongs to another subject")
		}
		if user.RefreshToken == "" {
			user.RefreshToken = previous.RefreshToken
		}
	}

	user.IDToken = rawIDToken
	user.Profile = session.Profile{
		Subject:           std.Subject,
		Name:              profile.Name,
		PreferredUsername: profile.PreferredUsername,
		Email:             profile.Email,
		EmailVerified:     profile.EmailVerified,
	}

	return user, nil
}

func (m *Manager) verifyIDToken(ctx context.Context, disc *oidc.DiscoveryConfiguration, rawIDToken, accessToken string) (jwt.Claims, profileClaims, error) {
	algs := make([]jose.SignatureAlgorithm, 0, len(disc.IDTokenSigningAlgValuesSupported))
	for _, alg := range disc.IDTokenSigningAlgValuesSupported {
		algs = append(algs, jose.SignatureAlgorithm(alg))
	}
	if len(algs) == 0 {
		algs = append(algs, jose.RS256)
	}

	idToken, err := jwt.ParseSigned(rawIDToken, algs)
	if err != nil {
		return jwt.Claims{}, profileClaims{}, serviceerr.New(serviceerr.CodeInvalidIDToken, fmt.Sprintf("parsing id token: %v", err))
	}

	var std jwt.Claims
	var profile profileClaims
	if err := m.tokenClaims(ctx, disc, idToken, &std, &profile); err != nil {
		return jwt.Claims{}, profileClaims{}, err
	}

	expected := jwt.Expected{
		Issuer:      disc.Issuer,
		AnyAudience: jwt.Audience{m.cfg.ClientID},
		Time:        m.now(),
	}
	if err := std.ValidateWithLeeway(expected, jwt.DefaultLeeway); err != nil {
		return jwt.Claims{}, profileClaims{}, serviceerr.New(serviceerr.CodeInvalidIDToken, fmt.Sprintf("validating id token claims: %v", err))
	}

	if std.Subject == "" {
		return jwt.Claims{}, profileClaims{}, serviceerr.New(serviceerr.CodeInvalidIDToken, "id token has no subject")
	}

	if profile.AtHash != "" {
		if err := verifyAccessToken(accessToken, profile.AtHash, idToken); err != nil {
			return jwt.Claims{}, profileClaims{}, err
		}
	}

	return std, profile, nil
}

// tokenClaims verifies the signature with the cached key set, refetching it
// once when the signing key is unknown to support key rotation.
func (m *Manager) tokenClaims(ctx context.Context, disc *oidc.DiscoveryConfiguration, idToken *jwt.JSONWebToken, dest ...any) error {
	keySet, err := m.keySet(ctx, disc, false)
	if err != nil {
		return fmt.Errorf("getting jwks for the provider: %w", err)
	}

	if err := idToken.Claims(keySet, dest...); err == nil {
		return nil
	}

	slogctx.Debug(ctx, "Verifying the id token with the cached key set failed, refetching it")

	keySet, err = m.keySet(ctx, disc, true)
	if err != nil {
		return fmt.Errorf("getting jwks for the provider: %w", err)
	}

	if err := idToken.Claims(keySet, dest...); err != nil {
		return serviceerr.New(serviceerr.CodeInvalidIDToken, fmt.Sprintf("verifying id token signature: %v", err))
	}

	return nil
}

func verifyAccessToken(accessToken, atHash string, idToken *jwt.JSONWebToken) error {
	var h hash.Hash
	switch alg := idToken.Headers[0].Algorithm; alg {
	case "RS256", "ES256", "PS256":
		h = sha256.New()
	case "RS384", "ES384", "PS384":
		h = sha512.New384()
	case "RS512", "ES512", "PS512", "EdDSA":
		h = sha512.New()
	default:
		return fmt.Errorf("oidc: unsupported signing algorithm %q", alg)
	}

	h.Write([]byte(accessToken)) // NOSONAR
	sum := h.Sum(nil)[:h.Size()/2]
	if base64.RawURLEncoding.EncodeToString(sum) != atHash {
		return serviceerr.ErrInvalidAtHash
	}

	return nil
}
