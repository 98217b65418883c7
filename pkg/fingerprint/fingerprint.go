// Package fingerprint binds a login state to the browser that started it.
//
// A fingerprint is a digest of request headers that stay the same across the
// navigations of one browser, the hidden silent renewal frame included. It is
// not a secret and identifies nobody on its own.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net/http"
)

// HeaderKeys are the request headers that make up a fingerprint.
var HeaderKeys = []string{"User-Agent", "Accept-Language"}

type contextKey struct{}

// Of digests the HeaderKeys of r. Every value is length prefixed, so moving
// bytes from one header to the next changes the fingerprint.
func Of(r *http.Request) string {
	h := sha256.New()

	var size [4]byte
	for _, key := range HeaderKeys {
		val := r.Header.Get(key)
		binary.BigEndian.PutUint32(size[:], uint32(len(val)))
		h.Write(size[:])
		h.Write([]byte(val))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether two fingerprints match in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Middleware puts the fingerprint of every request into its context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), Of(r))))
	})
}

// NewContext returns a copy of ctx carrying fp.
func NewContext(ctx context.Context, fp string) context.Context {
	return context.WithValue(ctx, contextKey{}, fp)
}

// FromContext retrieves the fingerprint stored by Middleware.
func FromContext(ctx context.Context) (string, error) {
	fp, ok := ctx.Value(contextKey{}).(string)
	if !ok {
		return "", errors.New("fingerprint not found in context")
	}

	return fp, nil
}
