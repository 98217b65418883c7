// Package migrations embeds the goose migrations of the console database.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Up applies the pending migrations to db and returns the schema version it
// ends up at together with the migrations that ran.
func Up(ctx context.Context, db *sql.DB) (int64, []*goose.MigrationResult, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		return 0, nil, fmt.Errorf("creating the migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, results, fmt.Errorf("applying migrations: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, results, fmt.Errorf("reading the schema version: %w", err)
	}

	return version, results, nil
}
