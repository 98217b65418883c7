// Package pkce generates the random values of the authorization code flow.
package pkce

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/oauth2"
)

const MethodS256 = "S256"

// stateBytes gives a state of 256 bits, like the verifier.
const stateBytes = 32

type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// Source is the zero value source of verifiers and states.
type Source struct{}

// PKCE returns a fresh verifier with its S256 challenge.
func (Source) PKCE() PKCE {
	verifier := oauth2.GenerateVerifier()

	return PKCE{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}
}

// State returns an unguessable url safe state parameter.
func (Source) State() string {
	b := make([]byte, stateBytes)
	_, _ = rand.Read(b) // never fails, see crypto/rand.Read

	return base64.RawURLEncoding.EncodeToString(b)
}

// Challenge returns the S256 code challenge of verifier.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
