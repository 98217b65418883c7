package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"

	slogctx "github.com/veqryn/slog-context"
)

// ErrConfigurationMissing marks a configuration value that was not provided
// and has been replaced by its default.
var ErrConfigurationMissing = errors.New("configuration missing")

const (
	DefaultIssuerURL   = "http://auth.localhost:8080"
	DefaultAPIURL      = "http://localhost:8080"
	DefaultEnvironment = "development"
	DefaultOrigin      = "http://localhost:3000"

	CallbackPath       = "/auth/callback"
	SilentCallbackPath = "/auth/silent-callback"
)

// Resolve overlays the environment onto f and fills the missing values with
// their defaults. Every missing value is logged as a warning and its key is
// returned. environ replaces the process environment when it is not nil.
func (f Frontend) Resolve(ctx context.Context, environ map[string]string) (Frontend, []string, error) {
	if err := env.ParseWithOptions(&f, env.Options{Environment: environ}); err != nil {
		return Frontend{}, nil, fmt.Errorf("parsing frontend environment: %w", err)
	}

	var missing []string
	for _, v := range []struct {
		key   string
		value *string
		def   string
	}{
		{key: "STREAMLY_ZITADEL_ISSUER", value: &f.IssuerURL, def: DefaultIssuerURL},
		{key: "STREAMLY_ZITADEL_CLIENT_ID", value: &f.ClientID},
		{key: "STREAMLY_ZITADEL_PROJECT_ID", value: &f.ProjectID},
		{key: "STREAMLY_API_URL", value: &f.APIURL, def: DefaultAPIURL},
		{key: "STREAMLY_APP_ENV", value: &f.Environment, def: DefaultEnvironment},
		{key: "STREAMLY_ORIGIN", value: &f.Origin, def: DefaultOrigin},
	} {
		if strings.TrimSpace(*v.value) != "" {
			continue
		}

		slogctx.Warn(ctx, "Configuration value is not set, falling back to the default",
			"key", v.key, "default", v.def, "error", ErrConfigurationMissing)
		*v.value = v.def
		missing = append(missing, v.key)
	}

	f.IssuerURL = strings.TrimSuffix(f.IssuerURL, "/")
	f.Origin = strings.TrimSuffix(f.Origin, "/")

	return f, missing, nil
}

// CallbackURL is the redirect URI of the interactive sign-in.
func (f Frontend) CallbackURL() (string, error) {
	return f.joinOrigin(CallbackPath)
}

// SilentCallbackURL is the redirect URI of the silent renewal.
func (f Frontend) SilentCallbackURL() (string, error) {
	return f.joinOrigin(SilentCallbackPath)
}

// PostLogoutURL is where the identity provider sends the browser after the end of the session.
func (f Frontend) PostLogoutURL() (string, error) {
	u, err := url.Parse(f.Origin)
	if err != nil {
		return "", fmt.Errorf("parsing origin: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q is not an absolute URL", f.Origin)
	}

	return u.String(), nil
}

func (f Frontend) joinOrigin(path string) (string, error) {
	origin, err := f.PostLogoutURL()
	if err != nil {
		return "", err
	}

	return url.JoinPath(origin, path)
}
