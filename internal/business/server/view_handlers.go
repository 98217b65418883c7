package server

import (
	"net/http"

	"github.com/a-h/templ"
	"github.com/openkcm/common-sdk/pkg/csrf"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/guard"
	"github.com/hoppermq/streamly-console/internal/middleware/clientid"
	"github.com/hoppermq/streamly-console/internal/navigator"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/session"
	"github.com/hoppermq/streamly-console/internal/views"
)

// page renders content inside the shell of the client.
func (c *console) page(title string, content func(r *http.Request, profile *session.Profile) templ.Component) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := c.profile(r)
		c.render(w, r, http.StatusOK, title, profile, content(r, profile))
	})
}

func (c *console) home(_ *http.Request, profile *session.Profile) templ.Component {
	return views.Home(profile)
}

func (c *console) dashboard(_ *http.Request, profile *session.Profile) templ.Component {
	return views.Dashboard(profile)
}

func (c *console) events(r *http.Request, _ *session.Profile) templ.Component {
	return views.Events(r.URL.Query().Get("q"))
}

// login renders the login view. Signed-in clients are sent on to their destination.
func (c *console) login(w http.ResponseWriter, r *http.Request) {
	redirect, _ := navigator.SafeDestination(r.URL.Query().Get(guard.RedirectParam))

	if c.Guard.Allow(r, redirect) == nil {
		c.nav.Navigate(w, r, redirect)
		return
	}

	c.renderLogin(w, r, http.StatusOK, redirect, false)
}

func (c *console) renderLogin(w http.ResponseWriter, r *http.Request, status int, redirect string, failed bool) {
	c.render(w, r, status, "Sign in", nil, views.Login(redirect, failed))
}

func (c *console) render(w http.ResponseWriter, r *http.Request, status int, title string, profile *session.Profile, content templ.Component) {
	ctx := r.Context()
	id, _ := clientid.FromContext(ctx)

	p := views.Page{
		Title:   title,
		Theme:   preferences.ThemeSystem,
		Links:   c.nav.Links(r.URL.Path),
		Sidebar: preferences.DefaultSidebar(),
		Profile: profile,
		Content: content,
	}

	if theme, err := c.Preferences.Theme(ctx, id); err != nil {
		slogctx.Warn(ctx, "Rendering with the default theme", "error", err)
	} else {
		p.Theme = theme
	}
	p.Theme = p.Theme.Resolve(r.Header.Get(preferences.ColorSchemeHint))
	w.Header().Add("Vary", preferences.ColorSchemeHint)

	if profile != nil {
		p.Sidebar = c.selectPath(r, id)
		p.CSRFToken = c.csrfToken(w, r, id)
	}

	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(views.Shell(p), templ.WithStatus(status)).ServeHTTP(w, r)
}

// selectPath remembers the view being rendered when it is a navigation entry.
func (c *console) selectPath(r *http.Request, id string) preferences.Sidebar {
	ctx := r.Context()

	var (
		sidebar preferences.Sidebar
		err     error
	)

	if route, ok := c.nav.Lookup(r.URL.Path); ok && !route.Hidden && route.Name != "" {
		sidebar, err = c.Preferences.SelectPath(ctx, id, route.Path)
	} else {
		sidebar, err = c.Preferences.Sidebar(ctx, id)
	}

	if err != nil {
		slogctx.Warn(ctx, "Rendering with the default sidebar", "error", err)
		return preferences.DefaultSidebar()
	}

	return sidebar
}

// csrfToken returns the token of the CSRF cookie, issuing a new one when the
// cookie is gone or does not belong to the client.
func (c *console) csrfToken(w http.ResponseWriter, r *http.Request, id string) string {
	if cookie, err := r.Cookie(c.csrfCookie.Name); err == nil && csrf.Validate(cookie.Value, id, c.CSRFSecret) {
		return cookie.Value
	}

	token := csrf.NewToken(id, c.CSRFSecret)
	http.SetCookie(w, c.csrfCookie.ToCookie(token))

	return token
}

func (c *console) profile(r *http.Request) *session.Profile {
	if c.Guard.Allow(r, "") != nil {
		return nil
	}

	user := c.store(r).User()
	if user == nil {
		return nil
	}

	return &user.Profile
}
