package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
	"github.com/hoppermq/streamly-console/internal/session"
	sessionvalkey "github.com/hoppermq/streamly-console/internal/session/valkey"
)

// HousekeeperMain starts the house keeping jobs
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	valkeyClient, err := newValkeyClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialise the session registry: %w", err)
	}
	defer valkeyClient.Close()

	repo := sessionvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix, cfg.Session.Namespace)
	registry := session.NewRegistry(repo, cfg.Session.Duration)

	return housekeep(ctx, registry, cfg.Housekeeper.TriggerInterval)
}

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

func housekeep(ctx context.Context, s sweeper, interval time.Duration) error {
	c := time.Tick(interval)
	for {
		deleted, err := s.Sweep(ctx, time.Now())
		if err != nil {
			slogctx.Error(ctx, "Error during session housekeeping", "error", err)
		} else {
			slogctx.Info(ctx, "Completed session housekeeping", "deleted", deleted)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
