package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/zitadel/oidc/v3/pkg/oidc"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/guard"
	"github.com/hoppermq/streamly-console/internal/middleware/clientid"
	"github.com/hoppermq/streamly-console/internal/navigator"
	streamlyoidc "github.com/hoppermq/streamly-console/internal/oidc"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/session"
	"github.com/hoppermq/streamly-console/pkg/fingerprint"
)

const (
	defaultClientCookieName = "streamly_client"
	defaultCSRFCookieName   = "streamly_csrf"

	csrfFormField = "csrf_token"
	csrfHeader    = "X-CSRF-Token"
)

// AuthManager drives the sign-in, the silent renewal and the end of the session.
type AuthManager interface {
	BeginSignIn(ctx context.Context, clientID, fingerprint, returnTo string) (string, error)
	CompleteSignIn(ctx context.Context, stateID, code, fingerprint string) (streamlyoidc.SignInResult, error)
	BeginSilentRenewal(ctx context.Context, clientID, fingerprint string) (string, error)
	CompleteSilentRenewal(ctx context.Context, stateID, code, fingerprint string) (streamlyoidc.SignInResult, error)
	EndSessionURL(ctx context.Context, idTokenHint string) (string, error)
}

// UserInfoSource serves the userinfo of the signed-in user.
type UserInfoSource interface {
	Get(ctx context.Context, user *session.User) (*oidc.UserInfo, error)
	Forget(subject string)
}

// Deps are the collaborators of the console handlers.
type Deps struct {
	Sessions    *session.Registry
	Auth        AuthManager
	UserInfo    UserInfoSource
	Preferences *preferences.Service
	Guard       *guard.Guard
	CSRFSecret  []byte
	NewClientID func() string
}

func (d Deps) validate() error {
	var errs []error
	if d.Sessions == nil {
		errs = append(errs, errors.New("session registry is required"))
	}
	if d.Auth == nil {
		errs = append(errs, errors.New("auth manager is required"))
	}
	if d.UserInfo == nil {
		errs = append(errs, errors.New("userinfo source is required"))
	}
	if d.Preferences == nil {
		errs = append(errs, errors.New("preferences service is required"))
	}
	if d.NewClientID == nil {
		errs = append(errs, errors.New("client id source is required"))
	}

	return errors.Join(errs...)
}

type console struct {
	Deps

	nav          *navigator.Navigator
	clientCookie config.CookieTemplate
	csrfCookie   config.CookieTemplate
}

// newHandler mounts the views and the auth and API endpoints of the console.
func newHandler(cfg *config.Config, deps Deps) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	if deps.Guard == nil {
		deps.Guard = guard.New()
	}

	c := &console{
		Deps:         deps,
		clientCookie: withDefaultName(cfg.Session.ClientCookie, defaultClientCookieName),
		csrfCookie:   withDefaultName(cfg.Session.CSRFCookie, defaultCSRFCookieName),
	}

	nav, err := navigator.New(navigator.Route{
		Path: "/",
		Name: "Home",
		View: c.page("Home", c.home),
		Children: []navigator.Route{
			{Path: "login", View: http.HandlerFunc(c.login), Hidden: true},
			{Path: "dashboard", Name: "Dashboard", View: c.page("Dashboard", c.dashboard), Protected: true},
			{Path: "events", Name: "Events", View: c.page("Events", c.events), Protected: true},
		},
	}, deps.Guard)
	if err != nil {
		return nil, err
	}
	c.nav = nav

	mux := http.NewServeMux()
	nav.Mount(mux)

	mux.HandleFunc("GET /auth/login", c.beginSignIn)
	mux.HandleFunc("GET /auth/callback", c.completeSignIn)
	mux.HandleFunc("GET /auth/silent", c.beginSilentRenewal)
	mux.HandleFunc("GET /auth/silent-callback", c.completeSilentRenewal)
	mux.HandleFunc("POST /auth/logout", c.logout)

	mux.HandleFunc("GET /api/session", c.getSession)
	mux.Handle("GET /api/userinfo", deps.Guard.RequireAPI(http.HandlerFunc(c.getUserInfo)))
	mux.HandleFunc("GET /api/preferences/sidebar", c.getSidebar)
	mux.HandleFunc("PUT /api/preferences/sidebar", c.putSidebar)
	mux.HandleFunc("POST /api/preferences/sidebar/toggle", c.toggleSidebar)
	mux.HandleFunc("GET /api/preferences/theme", c.getTheme)
	mux.HandleFunc("PUT /api/preferences/theme", c.putTheme)

	handler := newTraceMiddleware(cfg)(mux)
	handler = sessionMiddleware(deps.Sessions)(handler)
	handler = clientid.Middleware(c.clientCookie, deps.NewClientID)(handler)
	handler = fingerprint.Middleware(handler)

	return handler, nil
}

// sessionMiddleware opens the store of the request's client and puts it into the context.
func sessionMiddleware(sessions *session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := clientid.FromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			store := sessions.Open(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), store)))
		})
	}
}

// store returns the store of the request's client. The session middleware
// always sets it, a missing store is a wiring bug.
func (c *console) store(r *http.Request) *session.Store {
	store, ok := session.FromContext(r.Context())
	if !ok {
		slogctx.Error(r.Context(), "No session store in the request context")
		id, _ := clientid.FromContext(r.Context())
		return c.Sessions.Open(r.Context(), id)
	}

	return store
}

func withDefaultName(ct config.CookieTemplate, name string) config.CookieTemplate {
	if ct.Name == "" {
		ct.Name = name
	}
	if ct.Path == "" {
		ct.Path = "/"
	}

	return ct
}
