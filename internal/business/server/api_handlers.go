package server

import (
	"encoding/json"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/middleware/clientid"
	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

const maxBodyBytes = 4 << 10

// sessionModel is the session as seen by the dashboard. It never carries tokens.
type sessionModel struct {
	IsAuthenticated bool             `json:"isAuthenticated"`
	IsLoading       bool             `json:"isLoading"`
	Profile         *session.Profile `json:"profile,omitempty"`
	ExpiresAt       *time.Time       `json:"expiresAt,omitempty"`
	Scope           string           `json:"scope,omitempty"`
}

type themeModel struct {
	Theme    preferences.Theme `json:"theme"`
	Resolved preferences.Theme `json:"resolved"`
}

func (c *console) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot := c.store(r).Snapshot()

	model := sessionModel{
		IsAuthenticated: snapshot.IsAuthenticated,
		IsLoading:       snapshot.IsLoading,
	}

	if u := snapshot.User; snapshot.IsAuthenticated && u != nil {
		profile := u.Profile
		model.Profile = &profile
		model.Scope = u.Scope
		if !u.ExpiresAt.IsZero() {
			expiresAt := u.ExpiresAt
			model.ExpiresAt = &expiresAt
		}
	}

	writeJSON(w, r, http.StatusOK, model)
}

func (c *console) getUserInfo(w http.ResponseWriter, r *http.Request) {
	info, err := c.UserInfo.Get(r.Context(), c.store(r).User())
	if err != nil {
		slogctx.Warn(r.Context(), "Failed to get the userinfo", "error", err)
		serviceerr.WriteJSON(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, info)
}

func (c *console) getSidebar(w http.ResponseWriter, r *http.Request) {
	id, ok := c.clientID(w, r)
	if !ok {
		return
	}

	sidebar, err := c.Preferences.Sidebar(r.Context(), id)
	if err != nil {
		c.preferencesError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, sidebar)
}

func (c *console) putSidebar(w http.ResponseWriter, r *http.Request) {
	id, ok := c.clientID(w, r)
	if !ok {
		return
	}

	var sidebar preferences.Sidebar
	if !readJSON(w, r, &sidebar) {
		return
	}

	sidebar, err := c.Preferences.SetSidebar(r.Context(), id, sidebar)
	if err != nil {
		c.preferencesError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, sidebar)
}

// toggleSidebar is posted by the shell form and requires the CSRF token of
// the client. Browsers are sent back to the view they toggled from, API
// clients get the new state.
func (c *console) toggleSidebar(w http.ResponseWriter, r *http.Request) {
	id, ok := c.clientID(w, r)
	if !ok {
		return
	}

	if !c.validCSRF(r, id) {
		slogctx.Warn(r.Context(), "Rejected a sidebar toggle with an invalid CSRF token")
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidCSRFToken)
		return
	}

	sidebar, err := c.Preferences.ToggleSidebar(r.Context(), id)
	if err != nil {
		c.preferencesError(w, r, err)
		return
	}

	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, r, http.StatusOK, sidebar)
		return
	}

	c.nav.Navigate(w, r, sidebar.SelectedPath)
}

func (c *console) getTheme(w http.ResponseWriter, r *http.Request) {
	id, ok := c.clientID(w, r)
	if !ok {
		return
	}

	theme, err := c.Preferences.Theme(r.Context(), id)
	if err != nil {
		c.preferencesError(w, r, err)
		return
	}

	w.Header().Add("Vary", preferences.ColorSchemeHint)
	writeJSON(w, r, http.StatusOK, themeModel{
		Theme:    theme,
		Resolved: theme.Resolve(r.Header.Get(preferences.ColorSchemeHint)),
	})
}

func (c *console) putTheme(w http.ResponseWriter, r *http.Request) {
	id, ok := c.clientID(w, r)
	if !ok {
		return
	}

	var body struct {
		Theme string `json:"theme"`
	}
	if !readJSON(w, r, &body) {
		return
	}

	theme, err := preferences.ParseTheme(body.Theme)
	if err != nil {
		serviceerr.WriteJSON(w, err)
		return
	}

	if err := c.Preferences.SetTheme(r.Context(), id, theme); err != nil {
		c.preferencesError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, themeModel{
		Theme:    theme,
		Resolved: theme.Resolve(r.Header.Get(preferences.ColorSchemeHint)),
	})
}

func (c *console) clientID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := clientid.FromContext(r.Context())
	if err != nil {
		serviceerr.WriteJSON(w, serviceerr.ErrInvalidRequest)
		return "", false
	}

	return id, true
}

func (c *console) preferencesError(w http.ResponseWriter, r *http.Request, err error) {
	slogctx.Error(r.Context(), "Preferences request failed", "error", err)
	serviceerr.WriteJSON(w, err)
}

func readJSON(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(into); err != nil {
		slogctx.Debug(r.Context(), "Rejected a malformed request body", "error", err)
		serviceerr.WriteJSON(w, serviceerr.New(serviceerr.CodeInvalidRequest, "malformed request body"))
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		slogctx.Error(r.Context(), "Failed to write the response", "error", err)
	}
}
