package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/csrf"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/guard"
	"github.com/hoppermq/streamly-console/internal/middleware/clientid"
	"github.com/hoppermq/streamly-console/internal/navigator"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
	"github.com/hoppermq/streamly-console/pkg/fingerprint"
)

// beginSignIn sends the client to the authorization endpoint. The intended
// destination travels in the login state.
func (c *console) beginSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, fp, ok := c.identify(w, r)
	if !ok {
		return
	}

	returnTo, _ := navigator.SafeDestination(r.URL.Query().Get(guard.RedirectParam))

	authURL, err := c.Auth.BeginSignIn(ctx, id, fp, returnTo)
	if err != nil {
		slogctx.Error(ctx, "Failed to begin the sign-in", "error", err)
		c.renderLogin(w, r, http.StatusBadGateway, returnTo, true)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// completeSignIn handles the redirect back from the identity provider. A
// failed sign-in is logged and the client is sent back to the login view.
func (c *console) completeSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, fp, ok := c.identify(w, r)
	if !ok {
		return
	}

	store := c.store(r)
	store.SetLoading(ctx, true)

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		slogctx.Warn(ctx, "The identity provider rejected the sign-in", "error", providerErr, "description", query.Get("error_description"))
		store.SetLoading(ctx, false)
		c.nav.Navigate(w, r, guard.LoginPath)
		return
	}

	result, err := c.Auth.CompleteSignIn(ctx, query.Get("state"), query.Get("code"), fp)

	// the request is gone, the results belong to nobody
	if ctx.Err() != nil {
		store.SetLoading(context.WithoutCancel(ctx), false)
		slogctx.Info(ctx, "Discarding the sign-in of a cancelled request")
		return
	}

	if err == nil && result.ClientID != id {
		err = serviceerr.ErrStateMismatch
	}

	if err != nil {
		slogctx.Error(ctx, "Failed to complete the sign-in", "error", err)
		store.SetLoading(ctx, false)
		c.nav.Navigate(w, r, guard.LoginPath)
		return
	}

	r = c.rotateClient(w, r, id, result.User)

	slogctx.Info(r.Context(), "Signed in", "user", result.User)

	dest := result.RequestURI
	if dest == "" {
		dest = navigator.DefaultDestination
	}

	c.nav.Navigate(w, r, dest)
}

// rotateClient moves the signed-in user to a fresh client id, so an id known
// before the sign-in never carries an authenticated session. It returns the
// request bound to the new client.
func (c *console) rotateClient(w http.ResponseWriter, r *http.Request, oldID string, user *session.User) *http.Request {
	ctx := r.Context()
	newID := c.NewClientID()

	store := c.Sessions.Open(ctx, newID)
	store.SetUser(ctx, user)
	c.Sessions.Discard(ctx, oldID)

	if err := c.Preferences.Move(ctx, oldID, newID); err != nil {
		slogctx.Warn(ctx, "Could not carry the preferences over to the new client id", "error", err)
	}

	http.SetCookie(w, c.clientCookie.ToCookie(newID))
	http.SetCookie(w, c.csrfCookie.ToCookie(csrf.NewToken(newID, c.CSRFSecret)))

	ctx = clientid.NewContext(ctx, newID)
	ctx = session.NewContext(ctx, store)
	ctx = slogctx.With(ctx, "client_id", newID)

	return r.WithContext(ctx)
}

// beginSilentRenewal is loaded in a hidden frame and sends it to the
// authorization endpoint without any prompt.
func (c *console) beginSilentRenewal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, fp, ok := c.identify(w, r)
	if !ok {
		return
	}

	authURL, err := c.Auth.BeginSilentRenewal(ctx, id, fp)
	if err != nil {
		slogctx.Warn(ctx, "Failed to begin the silent renewal", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// completeSilentRenewal applies the renewed user. The frame is invisible, so
// it always answers 204 and failures are only logged.
func (c *console) completeSilentRenewal(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusNoContent)

	ctx := r.Context()

	id, fp, ok := c.identifyQuiet(r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		slogctx.Warn(ctx, "The identity provider rejected the silent renewal", "error", providerErr)
		return
	}

	store := c.store(r)
	current := store.User()
	if current == nil {
		slogctx.Debug(ctx, "No session to renew silently")
		return
	}

	result, err := c.Auth.CompleteSilentRenewal(ctx, query.Get("state"), query.Get("code"), fp)
	if ctx.Err() != nil {
		return
	}

	if err == nil && result.ClientID != id {
		err = serviceerr.ErrStateMismatch
	}

	if err != nil {
		slogctx.Warn(ctx, "Failed to complete the silent renewal", "error", err)
		return
	}

	// a logout during the exchange wins
	if !store.ReplaceUser(ctx, current.AccessToken, result.User) {
		slogctx.Info(ctx, "Discarding a silent renewal the session moved past")
		return
	}
	slogctx.Debug(ctx, "Silently renewed the session", "user", result.User)
}

// logout requires the CSRF token issued at sign-in. It clears the session and
// sends the client to the end session endpoint of the provider.
func (c *console) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := clientid.FromContext(ctx)
	if err != nil {
		serviceerr.WriteJSON(w, serviceerr.ErrUnauthenticated)
		return
	}

	if !c.validCSRF(r, id) {
		slogctx.Warn(ctx, "Rejected a logout with an invalid CSRF token")
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidCSRFToken)
		return
	}

	store := c.store(r)
	user := store.User()
	store.Logout(ctx)

	var idTokenHint string
	if user != nil {
		c.UserInfo.Forget(user.Profile.Subject)
		idTokenHint = user.IDToken
	}

	http.SetCookie(w, c.csrfCookie.ToExpiredCookie())
	slogctx.Info(ctx, "Signed out", "user", user)

	endSession, err := c.Auth.EndSessionURL(ctx, idTokenHint)
	if err != nil {
		if !errors.Is(err, serviceerr.ErrEndSessionNotSupported) {
			slogctx.Warn(ctx, "Failed to build the end session url", "error", err)
		}
		c.nav.Navigate(w, r, guard.LoginPath)
		return
	}

	http.Redirect(w, r, endSession, http.StatusSeeOther)
}

// validCSRF reports whether the request carries the CSRF token of the client,
// in the header or in the form.
func (c *console) validCSRF(r *http.Request, id string) bool {
	token := r.Header.Get(csrfHeader)
	if token == "" {
		token = r.PostFormValue(csrfFormField)
	}

	return csrf.Validate(token, id, c.CSRFSecret)
}

// identify returns the client id and the fingerprint of the request. Both are
// set by the middlewares, the client is answered when one is missing.
func (c *console) identify(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	id, fp, ok := c.identifyQuiet(r)
	if !ok {
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidRequest)
	}

	return id, fp, ok
}

func (c *console) identifyQuiet(r *http.Request) (string, string, bool) {
	ctx := r.Context()

	id, err := clientid.FromContext(ctx)
	if err != nil {
		slogctx.Error(ctx, "No client id in the request context", "error", err)
		return "", "", false
	}

	fp, err := fingerprint.FromContext(ctx)
	if err != nil {
		slogctx.Error(ctx, "No fingerprint in the request context", "error", err)
		return "", "", false
	}

	return id, fp, true
}
