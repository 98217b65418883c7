// Package navigator maps the console paths onto their views and performs the
// guarded transitions between them.
package navigator

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hoppermq/streamly-console/internal/guard"
)

// DefaultDestination is where a client lands after sign-in without an intended destination.
const DefaultDestination = "/"

// Route binds a path to its view. Children are mounted below the path of
// their parent and inherit its protection.
type Route struct {
	Path      string
	Name      string
	View      http.Handler
	Protected bool
	// Hidden routes are mounted but not listed by Links.
	Hidden   bool
	Children []Route
}

// Link is a navigation entry rendered by the shell.
type Link struct {
	Path   string
	Name   string
	Active bool
}

type Navigator struct {
	guard  *guard.Guard
	routes []Route
	byPath map[string]Route
}

// New flattens the route tree of the root shell.
func New(root Route, g *guard.Guard) (*Navigator, error) {
	if g == nil {
		return nil, errors.New("guard is required")
	}

	n := &Navigator{
		guard:  g,
		byPath: make(map[string]Route),
	}

	if err := n.add(root, "/", false); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *Navigator) add(r Route, parent string, protected bool) error {
	if r.Path == "" {
		return fmt.Errorf("route %q has no path", r.Name)
	}

	p := path.Join(parent, r.Path)
	if _, ok := n.byPath[p]; ok {
		return fmt.Errorf("duplicate route %s", p)
	}

	r.Path = p
	r.Protected = r.Protected || protected
	children := r.Children
	r.Children = nil

	n.byPath[p] = r
	n.routes = append(n.routes, r)

	for _, child := range children {
		if err := n.add(child, p, r.Protected); err != nil {
			return err
		}
	}

	return nil
}

// Mount registers every route with a view on mux. Protected views are
// wrapped by the guard.
func (n *Navigator) Mount(mux *http.ServeMux) {
	for _, r := range n.routes {
		if r.View == nil {
			continue
		}

		view := r.View
		if r.Protected {
			view = n.guard.Require(view)
		}

		pattern := "GET " + r.Path
		if r.Path == "/" {
			pattern = "GET /{$}"
		}

		mux.Handle(pattern, view)
	}
}

// Lookup returns the route mounted at p.
func (n *Navigator) Lookup(p string) (Route, bool) {
	r, ok := n.byPath[p]
	return r, ok
}

// Navigate sends the client to dest with a single redirect. A protected
// destination the client may not enter sends it to the login view instead.
func (n *Navigator) Navigate(w http.ResponseWriter, r *http.Request, dest string) {
	dest, ok := SafeDestination(dest)
	if !ok {
		dest = DefaultDestination
	}

	location := dest
	if route, ok := n.Lookup(pathOf(dest)); ok && route.Protected {
		var redirect *guard.Redirect
		if err := n.guard.Allow(r, dest); errors.As(err, &redirect) {
			location = redirect.Location()
		}
	}

	http.Redirect(w, r, location, http.StatusSeeOther)
}

// Links returns the visible navigation entries, marking the one matching current.
func (n *Navigator) Links(current string) []Link {
	links := make([]Link, 0, len(n.routes))
	for _, r := range n.routes {
		if r.Hidden || r.Name == "" {
			continue
		}

		links = append(links, Link{
			Path:   r.Path,
			Name:   r.Name,
			Active: r.Path == current,
		})
	}

	return links
}

// SafeDestination accepts only local absolute paths as replay destinations.
func SafeDestination(dest string) (string, bool) {
	if dest == "" || dest[0] != '/' || strings.HasPrefix(dest, "//") {
		return "", false
	}

	// browsers drop control characters and read backslashes as slashes,
	// either can turn a path into a protocol relative url
	for i := 0; i < len(dest); i++ {
		if c := dest[i]; c < 0x20 || c == 0x7f || c == '\\' {
			return "", false
		}
	}

	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}

	return dest, true
}

func pathOf(dest string) string {
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		return dest[:i]
	}

	return dest
}
