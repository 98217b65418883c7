package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Sidebar returns the sidebar state of the client, or the default state when
// nothing usable is stored.
func (s *Service) Sidebar(ctx context.Context, clientID string) (Sidebar, error) {
	sidebar := DefaultSidebar()

	ok, err := s.load(ctx, clientID, SidebarNamespace, &sidebar)
	if err != nil {
		return Sidebar{}, err
	}
	if !ok {
		return DefaultSidebar(), nil
	}

	if !localPath(sidebar.SelectedPath) {
		sidebar.SelectedPath = DefaultSidebar().SelectedPath
	}

	return sidebar, nil
}

func (s *Service) SetSidebar(ctx context.Context, clientID string, sidebar Sidebar) (Sidebar, error) {
	if sidebar.SelectedPath == "" {
		sidebar.SelectedPath = DefaultSidebar().SelectedPath
	}

	if !localPath(sidebar.SelectedPath) {
		return Sidebar{}, serviceerr.New(serviceerr.CodeInvalidRequest, "the selected path must be a local path")
	}

	if err := s.store(ctx, clientID, SidebarNamespace, sidebar); err != nil {
		return Sidebar{}, err
	}

	return sidebar, nil
}

// ToggleSidebar flips the expanded state of the sidebar.
func (s *Service) ToggleSidebar(ctx context.Context, clientID string) (Sidebar, error) {
	sidebar, err := s.Sidebar(ctx, clientID)
	if err != nil {
		return Sidebar{}, err
	}

	sidebar.Expanded = !sidebar.Expanded

	return s.SetSidebar(ctx, clientID, sidebar)
}

// SelectPath remembers the navigation entry the client selected last.
func (s *Service) SelectPath(ctx context.Context, clientID, path string) (Sidebar, error) {
	sidebar, err := s.Sidebar(ctx, clientID)
	if err != nil {
		return Sidebar{}, err
	}

	if sidebar.SelectedPath == path {
		return sidebar, nil
	}

	sidebar.SelectedPath = path

	return s.SetSidebar(ctx, clientID, sidebar)
}

// Theme returns the theme of the client. Unknown stored values fall back to
// the system theme.
func (s *Service) Theme(ctx context.Context, clientID string) (Theme, error) {
	var stored string

	ok, err := s.load(ctx, clientID, ThemeNamespace, &stored)
	if err != nil {
		return "", err
	}
	if !ok {
		return ThemeSystem, nil
	}

	theme, err := ParseTheme(stored)
	if err != nil {
		slogctx.Warn(ctx, "Ignoring an unknown stored theme", "theme", stored)
		return ThemeSystem, nil
	}

	return theme, nil
}

func (s *Service) SetTheme(ctx context.Context, clientID string, theme Theme) error {
	if !theme.Valid() {
		return serviceerr.New(serviceerr.CodeInvalidRequest, fmt.Sprintf("unknown theme %q", theme))
	}

	return s.store(ctx, clientID, ThemeNamespace, theme)
}

// Forget deletes every preference of the client.
func (s *Service) Forget(ctx context.Context, clientID string) error {
	err := s.repo.Delete(ctx, clientID)
	if err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		return fmt.Errorf("deleting preferences: %w", err)
	}

	return nil
}

// Move hands the preferences of one client id over to another.
func (s *Service) Move(ctx context.Context, fromClientID, toClientID string) error {
	for _, namespace := range []string{SidebarNamespace, ThemeNamespace} {
		data, err := s.repo.Load(ctx, fromClientID, namespace)
		if errors.Is(err, serviceerr.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", namespace, err)
		}

		if err := s.repo.Store(ctx, toClientID, namespace, data); err != nil {
			return fmt.Errorf("storing %s: %w", namespace, err)
		}
	}

	return s.Forget(ctx, fromClientID)
}

func (s *Service) load(ctx context.Context, clientID, namespace string, into any) (bool, error) {
	data, err := s.repo.Load(ctx, clientID, namespace)
	if errors.Is(err, serviceerr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", namespace, err)
	}

	if err := json.Unmarshal(data, into); err != nil {
		slogctx.Warn(ctx, "Ignoring a corrupted preference", "namespace", namespace, "error", err)
		return false, nil
	}

	return true, nil
}

func (s *Service) store(ctx context.Context, clientID, namespace string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", namespace, err)
	}

	if err := s.repo.Store(ctx, clientID, namespace, data); err != nil {
		return fmt.Errorf("storing %s: %w", namespace, err)
	}

	return nil
}

func localPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}

	return !strings.ContainsFunc(p, func(r rune) bool {
		return r < 0x20 || r == 0x7f || r == '\\'
	})
}
