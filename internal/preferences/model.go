// Package preferences keeps the display preferences of a browser client.
package preferences

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

const (
	SidebarNamespace = "streamly-sidebar"
	ThemeNamespace   = "streamly-theme"
)

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ColorSchemeHint is the client hint carrying the colour scheme preferred by the browser.
const ColorSchemeHint = "Sec-CH-Prefers-Color-Scheme"

func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	default:
		return false
	}
}

// ParseTheme parses a theme name, case insensitively.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", serviceerr.New(serviceerr.CodeInvalidRequest, fmt.Sprintf("unknown theme %q", s))
	}

	return t, nil
}

// Resolve returns the concrete theme to render. The system theme follows the
// colour scheme hint of the browser and defaults to light.
func (t Theme) Resolve(hint string) Theme {
	if t != ThemeSystem && t.Valid() {
		return t
	}

	if strings.EqualFold(strings.TrimSpace(hint), string(ThemeDark)) {
		return ThemeDark
	}

	return ThemeLight
}

type Sidebar struct {
	Expanded     bool   `json:"expanded"`
	SelectedPath string `json:"selectedPath"`
}

func DefaultSidebar() Sidebar {
	return Sidebar{Expanded: true, SelectedPath: "/"}
}

// Repository persists a raw JSON value per client and namespace.
// A missing value returns serviceerr.ErrNotFound.
type Repository interface {
	Load(ctx context.Context, clientID, namespace string) ([]byte, error)
	Store(ctx context.Context, clientID, namespace string, value []byte) error
	Delete(ctx context.Context, clientID string) error
}
