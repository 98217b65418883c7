// Package guard gates the protected views behind an authenticated session.
package guard

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

const (
	// LoginPath is the view anonymous clients are sent to.
	LoginPath = "/login"
	// RedirectParam carries the intended destination through the sign-in.
	RedirectParam = "redirect"
)

// Redirect aborts a navigation and sends the client to the login view.
// It is a control flow signal, not a failure.
type Redirect struct {
	LoginPath   string
	Destination string
}

func (r *Redirect) Error() string {
	return "guard: redirect to " + r.Location()
}

// Location returns the login URL carrying the intended destination.
func (r *Redirect) Location() string {
	if r.Destination == "" {
		return r.LoginPath
	}

	return r.LoginPath + "?" + url.Values{RedirectParam: {r.Destination}}.Encode()
}

// Check returns nil when the snapshot holds an authenticated user whose token
// is not expired at now, and a *Redirect to the login view otherwise.
func Check(snapshot session.Snapshot, now time.Time, destination string) error {
	if snapshot.IsAuthenticated && snapshot.User != nil && !snapshot.User.Expired(now) {
		return nil
	}

	return &Redirect{LoginPath: LoginPath, Destination: destination}
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard evaluates the session of the request's client, see session.NewContext.
type Guard struct {
	now func() time.Time
}

func New(opts ...Option) *Guard {
	g := &Guard{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Allow checks whether the client of r may navigate to destination.
func (g *Guard) Allow(r *http.Request, destination string) error {
	var snapshot session.Snapshot
	if store, ok := session.FromContext(r.Context()); ok {
		snapshot = store.Snapshot()
	}

	return Check(snapshot, g.now(), destination)
}

// Require wraps a protected view. Anonymous clients are redirected to the
// login view before next runs.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := g.Allow(r, r.URL.RequestURI())

		var redirect *Redirect
		if errors.As(err, &redirect) {
			slogctx.Debug(r.Context(), "Redirecting an anonymous client to the login view", "path", r.URL.Path)
			http.Redirect(w, r, redirect.Location(), http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireAPI wraps a protected API endpoint. Anonymous clients get a 401.
func (g *Guard) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.Allow(r, ""); err != nil {
			serviceerr.WriteJSON(w, serviceerr.ErrUnauthenticated)
			return
		}

		next.ServeHTTP(w, r)
	})
}
