package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

const (
	discoveryCachePrefix = "wkoc_"
	jwksCachePrefix      = "jwks_"
	userinfoPath         = "/oidc/v1/userinfo"
)

// Discover returns the provider metadata of the configured issuer.
func (m *Manager) Discover(ctx context.Context) (*oidc.DiscoveryConfiguration, error) {
	// first check the cache for a recent configuration of the issuer
	cacheKey := discoveryCachePrefix + m.cfg.IssuerURL
	if v, ok := m.cache.Get(cacheKey); ok {
		//nolint:forcetypeassert
		return v.(*oidc.DiscoveryConfiguration), nil
	}

	var disc oidc.DiscoveryConfiguration
	if err := m.getJSON(ctx, m.cfg.IssuerURL+oidc.DiscoveryEndpoint, &disc); err != nil {
		return nil, fmt.Errorf("fetching the openid configuration: %w", err)
	}

	if strings.TrimSuffix(disc.Issuer, "/") != m.cfg.IssuerURL {
		return nil, serviceerr.New(serviceerr.CodeInvalidOIDCProvider,
			fmt.Sprintf("issuer %q does not match the configured issuer %q", disc.Issuer, m.cfg.IssuerURL))
	}

	if disc.AuthorizationEndpoint == "" || disc.TokenEndpoint == "" {
		return nil, serviceerr.New(serviceerr.CodeInvalidOIDCProvider, "authorization or token endpoint missing")
	}

	m.cache.SetDefault(cacheKey, &disc)

	return &disc, nil
}

// UserinfoEndpoint returns the userinfo endpoint advertised by the provider,
// falling back to the zitadel default path.
func (m *Manager) UserinfoEndpoint(ctx context.Context) (string, error) {
	disc, err := m.Discover(ctx)
	if err != nil {
		return "", err
	}

	if disc.UserinfoEndpoint != "" {
		return disc.UserinfoEndpoint, nil
	}

	return m.cfg.IssuerURL + userinfoPath, nil
}

func (m *Manager) keySet(ctx context.Context, disc *oidc.DiscoveryConfiguration, fresh bool) (*jose.JSONWebKeySet, error) {
	if disc.JwksURI == "" {
		return nil, serviceerr.New(serviceerr.CodeInvalidOIDCProvider, "jwks_uri missing")
	}

	cacheKey := jwksCachePrefix + disc.JwksURI
	if v, ok := m.cache.Get(cacheKey); ok && !fresh {
		//nolint:forcetypeassert
		return v.(*jose.JSONWebKeySet), nil
	}

	var keySet jose.JSONWebKeySet
	if err := m.getJSON(ctx, disc.JwksURI, &keySet); err != nil {
		return nil, fmt.Errorf("fetching the key set: %w", err)
	}

	m.cache.SetDefault(cacheKey, &keySet)

	return &keySet, nil
}

func (m *Manager) getJSON(ctx context.Context, uri string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("creating a new HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing an http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, uri)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}
