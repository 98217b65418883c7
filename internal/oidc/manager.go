// Package oidc drives the authorization code flow with PKCE against the
// identity provider, the silent renewal and the end of the session.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"

	otlpaudit "github.com/openkcm/common-sdk/pkg/otlp/audit"
	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/pkce"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
	fp "github.com/hoppermq/streamly-console/pkg/fingerprint"
)

const (
	opSignIn  = "sign-in"
	opSilent  = "silent renewal"
	opRefresh = "refresh"

	defaultLoginStateTTL = 10 * time.Minute
	defaultCacheTTL      = time.Hour
)

// Config is the resolved client configuration.
type Config struct {
	IssuerURL             string
	ClientID              string
	ProjectID             string
	RedirectURL           string
	SilentRedirectURL     string
	PostLogoutRedirectURL string
	LoginStateTTL         time.Duration
}

// ConfigFromFrontend derives the client configuration from the frontend surface.
func ConfigFromFrontend(f config.Frontend, loginStateTTL time.Duration) (Config, error) {
	callback, err := f.CallbackURL()
	if err != nil {
		return Config{}, fmt.Errorf("making the callback url: %w", err)
	}

	silent, err := f.SilentCallbackURL()
	if err != nil {
		return Config{}, fmt.Errorf("making the silent callback url: %w", err)
	}

	postLogout, err := f.PostLogoutURL()
	if err != nil {
		return Config{}, fmt.Errorf("making the post logout url: %w", err)
	}

	return Config{
		IssuerURL:             f.IssuerURL,
		ClientID:              f.ClientID,
		ProjectID:             f.ProjectID,
		RedirectURL:           callback,
		SilentRedirectURL:     silent,
		PostLogoutRedirectURL: postLogout,
		LoginStateTTL:         loginStateTTL,
	}, nil
}

// SignInResult is the outcome of a completed authorization response.
type SignInResult struct {
	User       *session.User
	ClientID   string
	RequestURI string
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

func WithAuditLogger(l *otlpaudit.AuditLogger) Option {
	return func(m *Manager) { m.audit = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCacheTTL sets how long the discovery document and the key set are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.cache = cache.New(ttl, ttl) }
}

type Manager struct {
	cfg        Config
	scope      string
	states     session.Repository
	pkce       pkce.Source
	httpClient *http.Client
	audit      *otlpaudit.AuditLogger
	cache      *cache.Cache
	now        func() time.Time
}

func NewManager(cfg Config, states session.Repository, opts ...Option) (*Manager, error) {
	if states == nil {
		return nil, errors.New("a login state repository is required")
	}

	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing issuer URL: %w", err)
	}
	if issuer.Scheme == "" || issuer.Host == "" {
		return nil, fmt.Errorf("issuer URL %q is not absolute", cfg.IssuerURL)
	}

	cfg.IssuerURL = strings.TrimSuffix(cfg.IssuerURL, "/")
	if cfg.LoginStateTTL <= 0 {
		cfg.LoginStateTTL = defaultLoginStateTTL
	}

	m := &Manager{
		cfg:        cfg,
		scope:      Scope(cfg.ProjectID),
		states:     states,
		httpClient: http.DefaultClient,
		cache:      cache.New(defaultCacheTTL, defaultCacheTTL),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m, nil
}

func (m *Manager) Scope() string {
	return m.scope
}

func (m *Manager) IssuerURL() string {
	return m.cfg.IssuerURL
}

// BeginSignIn stores a login state for the browser client and returns the
// authorization URL the browser must be sent to. returnTo is replayed after
// the callback.
func (m *Manager) BeginSignIn(ctx context.Context, clientID, fingerprint, returnTo string) (string, error) {
	return m.begin(ctx, clientID, fingerprint, returnTo, false)
}

// BeginSilentRenewal returns an authorization URL asking the provider not to
// interact with the user. The response lands on the silent callback.
func (m *Manager) BeginSilentRenewal(ctx context.Context, clientID, fingerprint string) (string, error) {
	return m.begin(ctx, clientID, fingerprint, "", true)
}

func (m *Manager) begin(ctx context.Context, clientID, fingerprint, returnTo string, silent bool) (string, error) {
	if m.cfg.ClientID == "" {
		return "", serviceerr.New(serviceerr.CodeConfigurationMissing, "the OIDC client id is not configured")
	}

	disc, err := m.Discover(ctx)
	if err != nil {
		return "", fmt.Errorf("getting an openid config: %w", err)
	}

	oauthCfg, err := m.oauth2Config(disc, silent)
	if err != nil {
		return "", err
	}

	challenge := m.pkce.PKCE()
	state := session.LoginState{
		ID:           m.pkce.State(),
		ClientID:     clientID,
		Fingerprint:  fingerprint,
		PKCEVerifier: challenge.Verifier,
		RequestURI:   returnTo,
		Silent:       silent,
		Expiry:       m.now().Add(m.cfg.LoginStateTTL),
	}

	if err := m.states.StoreState(ctx, state); err != nil {
		return "", fmt.Errorf("storing login state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", challenge.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", challenge.Method),
	}
	if silent {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", oidc.PromptNone))
	}

	return oauthCfg.AuthCodeURL(state.ID, opts...), nil
}

// CompleteSignIn exchanges the authorization code of an interactive sign-in.
// Every failure is an *AuthExchangeError.
func (m *Manager) CompleteSignIn(ctx context.Context, stateID, code, fingerprint string) (SignInResult, error) {
	res, err := m.complete(ctx, stateID, code, fingerprint, false)
	return res, exchangeError(opSignIn, err)
}

// CompleteSilentRenewal exchanges the authorization code of a silent renewal.
// Every failure is an *AuthExchangeError.
func (m *Manager) CompleteSilentRenewal(ctx context.Context, stateID, code, fingerprint string) (SignInResult, error) {
	res, err := m.complete(ctx, stateID, code, fingerprint, true)
	return res, exchangeError(opSilent, err)
}

func (m *Manager) complete(ctx context.Context, stateID, code, fingerprint string, silent bool) (SignInResult, error) {
	state, err := m.states.LoadState(ctx, stateID)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return SignInResult{}, serviceerr.ErrStateMismatch
	}
	if err != nil {
		return SignInResult{}, fmt.Errorf("loading state from the storage: %w", err)
	}

	// a login state is single use
	if err := m.states.DeleteState(ctx, stateID); err != nil {
		slogctx.Warn(ctx, "Could not delete the login state", "error", err)
	}

	ctx = slogctx.With(ctx, "client_id", state.ClientID, "silent", silent)
	audit := m.newAudit(ctx, state.ClientID)

	if m.now().After(state.Expiry) {
		audit.failure(ctx, otlpaudit.FAILREASON_SESSIONEXPIRED, "state expired")
		return SignInResult{}, serviceerr.ErrStateExpired
	}

	if !fp.Equal(state.Fingerprint, fingerprint) {
		audit.failure(ctx, otlpaudit.FAILREASON_TOKENINVALID, "fingerprint mismatch")
		return SignInResult{}, serviceerr.ErrFingerprintMismatch
	}

	if state.Silent != silent {
		audit.failure(ctx, otlpaudit.FAILREASON_TOKENINVALID, "state mismatch")
		return SignInResult{}, serviceerr.ErrStateMismatch
	}

	if code == "" {
		audit.failure(ctx, otlpaudit.FAILREASON_TOKENINVALID, "missing code")
		return SignInResult{}, serviceerr.New(serviceerr.CodeInvalidRequest, "authorization response carries no code")
	}

	disc, err := m.Discover(ctx)
	if err != nil {
		audit.failure(ctx, "", "failed to get openid configuration")
		return SignInResult{}, fmt.Errorf("getting openid configuration: %w", err)
	}

	oauthCfg, err := m.oauth2Config(disc, silent)
	if err != nil {
		audit.failure(ctx, "", "invalid configuration")
		return SignInResult{}, err
	}

	token, err := oauthCfg.Exchange(m.clientContext(ctx), code, oauth2.VerifierOption(state.PKCEVerifier))
	if err != nil {
		audit.failure(ctx, otlpaudit.FAILREASON_TOKENINVALID, "failed to exchange code for tokens")
		return SignInResult{}, fmt.Errorf("exchanging code for tokens: %w", tokenError(err))
	}

	slogctx.Info(ctx, "Exchanged the auth code for tokens")

	user, err := m.userFromToken(ctx, disc, token, nil)
	if err != nil {
		audit.failure(ctx, otlpaudit.FAILREASON_TOKENINVALID, "invalid id token")
		return SignInResult{}, err
	}

	audit.success(ctx, user.Profile.Subject)

	return SignInResult{
		User:       user,
		ClientID:   state.ClientID,
		RequestURI: state.RequestURI,
	}, nil
}

// Refresh renews the tokens of user with its refresh token. A missing refresh
// token or a rejected grant is unrecoverable, other failures are transient.
func (m *Manager) Refresh(ctx context.Context, user *session.User) (*session.User, error) {
	if !user.CanRefresh() {
		return nil, exchangeError(opRefresh, serviceerr.New(serviceerr.CodeRenewalUnrecoverable, "no refresh token"))
	}

	disc, err := m.Discover(ctx)
	if err != nil {
		return nil, exchangeError(opRefresh, fmt.Errorf("getting openid configuration: %w", err))
	}

	oauthCfg, err := m.oauth2Config(disc, false)
	if err != nil {
		return nil, exchangeError(opRefresh, err)
	}

	// an empty access token forces the token source to use the refresh grant
	source := oauthCfg.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: user.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, exchangeError(opRefresh, fmt.Errorf("refreshing tokens: %w", tokenError(err)))
	}

	refreshed, err := m.userFromToken(ctx, disc, token, user)
	if err != nil {
		return nil, exchangeError(opRefresh, err)
	}

	slogctx.Debug(ctx, "Refreshed the session tokens", "user", refreshed)

	return refreshed, nil
}

// EndSessionURL returns the provider URL ending the session of the user.
func (m *Manager) EndSessionURL(ctx context.Context, idTokenHint string) (string, error) {
	disc, err := m.Discover(ctx)
	if err != nil {
		return "", fmt.Errorf("getting openid configuration: %w", err)
	}

	if disc.EndSessionEndpoint == "" {
		return "", serviceerr.ErrEndSessionNotSupported
	}

	u, err := url.Parse(disc.EndSessionEndpoint)
	if err != nil {
		return "", fmt.Errorf("parsing end session endpoint url: %w", err)
	}

	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	q.Set("client_id", m.cfg.ClientID)
	q.Set("post_logout_redirect_uri", m.cfg.PostLogoutRedirectURL)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (m *Manager) oauth2Config(disc *oidc.DiscoveryConfiguration, silent bool) (*oauth2.Config, error) {
	redirectURL := m.cfg.RedirectURL
	if silent {
		redirectURL = m.cfg.SilentRedirectURL
	}

	if _, err := url.ParseRequestURI(redirectURL); err != nil {
		return nil, fmt.Errorf("parsing redirect url: %w", err)
	}

	return &oauth2.Config{
		ClientID: m.cfg.ClientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:   disc.AuthorizationEndpoint,
			TokenURL:  disc.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      strings.Fields(m.scope),
	}, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// tokenError maps the token endpoint errors onto the service errors.
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return err
	}

	switch serviceerr.Code(retrieveErr.ErrorCode) {
	case serviceerr.CodeInvalidGrant:
		return errors.Join(serviceerr.ErrRenewalUnrecoverable, serviceerr.New(serviceerr.CodeInvalidGrant, retrieveErr.ErrorDescription))
	case "":
		return err
	default:
		return serviceerr.New(serviceerr.Code(retrieveErr.ErrorCode), retrieveErr.ErrorDescription)
	}
}

type loginAudit struct {
	logger   *otlpaudit.AuditLogger
	metadata otlpaudit.EventMetadata
	objectID string
}

func (m *Manager) newAudit(ctx context.Context, clientID string) *loginAudit {
	if m.audit == nil {
		return nil
	}

	metadata, err := otlpaudit.NewEventMetadata("streamly console", m.cfg.ClientID, uuid.NewString())
	if err != nil {
		slogctx.Error(ctx, "Failed to create audit metadata", "error", err)
		return nil
	}

	return &loginAudit{logger: m.audit, metadata: metadata, objectID: clientID}
}

func (a *loginAudit) success(ctx context.Context, subject string) {
	if a == nil {
		return
	}

	event, err := otlpaudit.NewUserLoginSuccessEvent(a.metadata, a.objectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, otlpaudit.MFATYPE_NONE, otlpaudit.USERTYPE_BUSINESS, subject)
	if err != nil {
		slogctx.Error(ctx, "Failed to create audit log for user login success", "error", err)
		return
	}

	if err := a.logger.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login success", "error", err)
	}
}

// failure records a sign-in that failed before any user was known, so the
// event carries no user. An empty reason is reported as unspecified.
func (a *loginAudit) failure(ctx context.Context, reason otlpaudit.FailReason, detail string) {
	slogctx.Warn(ctx, "Sign-in failed", "reason", detail)

	if a == nil {
		return
	}

	event, err := otlpaudit.NewUserLoginFailureEvent(a.metadata, a.objectID, otlpaudit.LOGINMETHOD_OPENIDCONNECT, reason, "")
	if err != nil {
		slogctx.Error(ctx, "Failed to create audit log for user login failure", "error", err)
		return
	}

	if err := a.logger.SendEvent(ctx, event); err != nil {
		slogctx.Error(ctx, "Failed to send audit log for user login failure", "error", err)
	}
}
