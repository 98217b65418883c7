// Package clientid identifies the browser client of a request by its client
// cookie and injects the client id into the context.
package clientid

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// ClientIDKey is the context key used to store the client id of the request.
const ClientIDKey contextKey = "client-id"

// Middleware returns an http.Handler middleware that reads the client id from
// the client cookie. A client without the cookie, or with an id that is not a
// canonical uuid, gets a new id from newID and the cookie is set on the response.
func Middleware(cookie config.CookieTemplate, newID func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientIDFromRequest(r, cookie.Name)
			if id == "" {
				id = newID()
				http.SetCookie(w, cookie.ToCookie(id))
			}

			ctx := NewContext(r.Context(), id)
			ctx = slogctx.With(ctx, "client_id", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContext returns a copy of ctx carrying the client id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ClientIDKey, id)
}

// FromContext retrieves the client id from the context.
func FromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ClientIDKey).(string)
	if !ok || id == "" {
		return "", errors.New("client id not found in context")
	}

	return id, nil
}

func clientIDFromRequest(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}

	if !Valid(c.Value) {
		slogctx.Warn(r.Context(), "Ignoring a malformed client id")
		return ""
	}

	return c.Value
}

// Valid reports whether id has the canonical form of the ids the console issues.
func Valid(id string) bool {
	parsed, err := uuid.Parse(id)

	return err == nil && parsed.String() == id
}
