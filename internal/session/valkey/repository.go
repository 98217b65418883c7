// Package sessionvalkey persists sessions and login states in valkey.
package sessionvalkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/hoppermq/streamly-console/internal/session"
)

const objectTypeState = "loginState"

type Repository struct {
	store     *store
	namespace string
	now       func() time.Time
}

var _ = session.Repository(&Repository{})

// NewRepository returns a repository storing the snapshots under prefix:namespace:clientID.
// An empty namespace defaults to session.Namespace.
func NewRepository(valkeyClient valkey.Client, prefix, namespace string) *Repository {
	if namespace == "" {
		namespace = session.Namespace
	}

	return &Repository{
		store:     newStore(valkeyClient, prefix),
		namespace: namespace,
		now:       time.Now,
	}
}

func (r *Repository) LoadSnapshot(ctx context.Context, clientID string) (snapshot session.Snapshot, _ error) {
	if err := r.store.Get(ctx, r.namespace, clientID, &snapshot); err != nil {
		return session.Snapshot{}, fmt.Errorf("getting session from store: %w", err)
	}

	return snapshot, nil
}

func (r *Repository) StoreSnapshot(ctx context.Context, clientID string, snapshot session.Snapshot) error {
	if err := r.store.Set(ctx, r.namespace, clientID, snapshot, 0); err != nil {
		return fmt.Errorf("setting session into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteSnapshot(ctx context.Context, clientID string) error {
	if err := r.store.Destroy(ctx, r.namespace, clientID); err != nil {
		return fmt.Errorf("deleting session from store: %w", err)
	}

	return nil
}

func (r *Repository) ListSnapshots(ctx context.Context) (map[string]session.Snapshot, error) {
	snapshots := make(map[string]session.Snapshot)
	err := r.store.Scan(ctx, r.namespace, func(clientID string, data []byte) error {
		var snapshot session.Snapshot
		if err := r.store.decode(data, &snapshot); err != nil {
			return fmt.Errorf("decoding session %s: %w", clientID, err)
		}

		snapshots[clientID] = snapshot

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting sessions from store: %w", err)
	}

	return snapshots, nil
}

func (r *Repository) LoadState(ctx context.Context, stateID string) (state session.LoginState, _ error) {
	if err := r.store.Get(ctx, objectTypeState, stateID, &state); err != nil {
		return session.LoginState{}, fmt.Errorf("getting state from store: %w", err)
	}

	return state, nil
}

// StoreState stores the login state until its expiry.
func (r *Repository) StoreState(ctx context.Context, state session.LoginState) error {
	ttl := state.Expiry.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("state %s is already expired", state.ID)
	}

	if err := r.store.Set(ctx, objectTypeState, state.ID, state, ttl); err != nil {
		return fmt.Errorf("setting state into storage: %w", err)
	}

	return nil
}

func (r *Repository) DeleteState(ctx context.Context, stateID string) error {
	if err := r.store.Destroy(ctx, objectTypeState, stateID); err != nil {
		return fmt.Errorf("deleting state from store: %w", err)
	}

	return nil
}
