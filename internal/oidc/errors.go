package oidc

import "fmt"

// AuthExchangeError reports a failed code exchange or renewal.
// Callers must not retry an interactive sign-in automatically.
type AuthExchangeError struct {
	Op  string
	Err error
}

func (e *AuthExchangeError) Error() string {
	return fmt.Sprintf("oidc %s: %v", e.Op, e.Err)
}

func (e *AuthExchangeError) Unwrap() error {
	return e.Err
}

func exchangeError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &AuthExchangeError{Op: op, Err: err}
}
