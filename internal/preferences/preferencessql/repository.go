package preferencessql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = preferences.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Load(ctx context.Context, clientID, namespace string) ([]byte, error) {
	var value []byte

	err := r.db.QueryRow(ctx,
		`SELECT value FROM preferences WHERE client_id = $1 AND namespace = $2;`,
		clientID, namespace,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serviceerr.ErrNotFound
		}

		return nil, fmt.Errorf("scanning rows: %w", err)
	}

	return value, nil
}

func (r *Repository) Store(ctx context.Context, clientID, namespace string, value []byte) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO preferences (client_id, namespace, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (client_id, namespace) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;`,
		clientID, namespace, value,
	)
	if err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("upserting preference: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, clientID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `DELETE FROM preferences WHERE client_id = $1;`, clientID)
	if err != nil {
		return fmt.Errorf("executing sql query: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	err = tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}
