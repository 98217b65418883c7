package session

import "context"

// Repository persists session snapshots per client and the pending login states.
// Loading a missing object returns serviceerr.ErrNotFound.
type Repository interface {
	// Snapshot operations
	LoadSnapshot(ctx context.Context, clientID string) (Snapshot, error)
	StoreSnapshot(ctx context.Context, clientID string, snapshot Snapshot) error
	DeleteSnapshot(ctx context.Context, clientID string) error
	ListSnapshots(ctx context.Context) (map[string]Snapshot, error)
	// Login state operations
	LoadState(ctx context.Context, stateID string) (LoginState, error)
	StoreState(ctx context.Context, state LoginState) error
	DeleteState(ctx context.Context, stateID string) error
}
