// Package views renders the console pages.
package views

import (
	"net/url"

	"github.com/a-h/templ"

	"github.com/hoppermq/streamly-console/internal/navigator"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/session"
)

//go:generate templ generate

const appName = "streamly"

// Page is the root shell every view is rendered in.
type Page struct {
	Title   string
	Theme   preferences.Theme
	Links   []navigator.Link
	Sidebar preferences.Sidebar
	// Profile is nil for anonymous clients.
	Profile   *session.Profile
	CSRFToken string
	Content   templ.Component
}

// shellTheme is the theme class of the document. The system theme renders
// light until the client hints otherwise.
func shellTheme(theme preferences.Theme) string {
	if !theme.Valid() || theme == preferences.ThemeSystem {
		return string(preferences.ThemeLight)
	}

	return string(theme)
}

func pageTitle(title string) string {
	if title == "" {
		return appName
	}

	return title + " | " + appName
}

func sidebarClass(sidebar preferences.Sidebar) string {
	if !sidebar.Expanded {
		return "sidebar collapsed"
	}

	return "sidebar"
}

func current(l navigator.Link, sidebar preferences.Sidebar) bool {
	return l.Active || l.Path == sidebar.SelectedPath
}

func loginAction(redirect string) templ.SafeURL {
	action := "/auth/login"
	if redirect != "" {
		action += "?" + url.Values{"redirect": {redirect}}.Encode()
	}

	return templ.URL(action)
}

func displayName(p *session.Profile) string {
	switch {
	case p == nil:
		return ""
	case p.Name != "":
		return p.Name
	case p.PreferredUsername != "":
		return p.PreferredUsername
	case p.Email != "":
		return p.Email
	default:
		return p.Subject
	}
}
