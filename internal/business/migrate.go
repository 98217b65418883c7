package business

import (
	"context"
	"fmt"

	"github.com/XSAM/otelsql"
	"github.com/samber/oops"

	// Register pgx driver
	_ "github.com/jackc/pgx/v5/stdlib"

	slogctx "github.com/veqryn/slog-context"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/hoppermq/streamly-console/internal/config"
	migrations "github.com/hoppermq/streamly-console/sql"
)

// MigrateMain brings the preferences schema up to date and exits.
func MigrateMain(ctx context.Context, cfg *config.Config) error {
	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making connection string from config: %w", err)
	}

	attrs := otelsql.WithAttributes(semconv.DBSystemNamePostgreSQL)

	db, err := otelsql.Open("pgx", connStr, attrs)
	if err != nil {
		return oops.In("migrate").Wrapf(err, "opening the preferences database")
	}
	defer db.Close()

	reg, err := otelsql.RegisterDBStatsMetrics(db, attrs)
	if err != nil {
		return fmt.Errorf("registering db stats metrics: %w", err)
	}
	defer func() {
		if err := reg.Unregister(); err != nil {
			slogctx.Error(ctx, "Failed to unregister the db stats metrics", "error", err)
		}
	}()

	version, results, err := migrations.Up(ctx, db)
	for _, res := range results {
		slogctx.Info(ctx, "Migration applied",
			"version", res.Source.Version,
			"duration", res.Duration,
			"error", res.Error)
	}
	if err != nil {
		return err
	}

	slogctx.Info(ctx, "Preferences schema is up to date", "version", version, "applied", len(results))

	return nil
}
