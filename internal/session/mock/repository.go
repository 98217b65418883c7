package sessionmock

import (
	"context"
	"maps"
	"sync"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

type RepositoryOption func(*Repository)

// Repository is an in-memory session.Repository for tests.
type Repository struct {
	mu        sync.Mutex
	states    map[string]session.LoginState
	snapshots map[string]session.Snapshot

	loadStateErr, storeStateErr, deleteStateErr                            error
	loadSnapshotErr, storeSnapshotErr, deleteSnapshotErr, listSnapshotsErr error
}

func WithState(state session.LoginState) RepositoryOption {
	return func(r *Repository) { r.states[state.ID] = state }
}
func WithSnapshot(clientID string, snapshot session.Snapshot) RepositoryOption {
	return func(r *Repository) { r.snapshots[clientID] = snapshot }
}
func WithLoadStateError(err error) RepositoryOption {
	return func(r *Repository) { r.loadStateErr = err }
}
func WithStoreStateError(err error) RepositoryOption {
	return func(r *Repository) { r.storeStateErr = err }
}
func WithDeleteStateError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteStateErr = err }
}
func WithLoadSnapshotError(err error) RepositoryOption {
	return func(r *Repository) { r.loadSnapshotErr = err }
}
func WithStoreSnapshotError(err error) RepositoryOption {
	return func(r *Repository) { r.storeSnapshotErr = err }
}
func WithDeleteSnapshotError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteSnapshotErr = err }
}
func WithListSnapshotsError(err error) RepositoryOption {
	return func(r *Repository) { r.listSnapshotsErr = err }
}

var _ = session.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		states:    make(map[string]session.LoginState),
		snapshots: make(map[string]session.Snapshot),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Repository) LoadSnapshot(_ context.Context, clientID string) (session.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadSnapshotErr != nil {
		return session.Snapshot{}, r.loadSnapshotErr
	}
	if s, ok := r.snapshots[clientID]; ok {
		return s, nil
	}
	return session.Snapshot{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreSnapshot(_ context.Context, clientID string, snapshot session.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeSnapshotErr != nil {
		return r.storeSnapshotErr
	}
	// mirror the serialised form, the loading flag is not persisted
	snapshot.IsLoading = false
	r.snapshots[clientID] = snapshot
	return nil
}

func (r *Repository) DeleteSnapshot(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteSnapshotErr != nil {
		return r.deleteSnapshotErr
	}
	if _, ok := r.snapshots[clientID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.snapshots, clientID)
	return nil
}

func (r *Repository) ListSnapshots(_ context.Context) (map[string]session.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listSnapshotsErr != nil {
		return nil, r.listSnapshotsErr
	}
	return maps.Clone(r.snapshots), nil
}

func (r *Repository) LoadState(_ context.Context, stateID string) (session.LoginState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadStateErr != nil {
		return session.LoginState{}, r.loadStateErr
	}
	if state, ok := r.states[stateID]; ok {
		return state, nil
	}
	return session.LoginState{}, serviceerr.ErrNotFound
}

func (r *Repository) StoreState(_ context.Context, state session.LoginState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeStateErr != nil {
		return r.storeStateErr
	}
	if _, ok := r.states[state.ID]; ok {
		return serviceerr.ErrConflict
	}
	r.states[state.ID] = state
	return nil
}

func (r *Repository) DeleteState(_ context.Context, stateID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteStateErr != nil {
		return r.deleteStateErr
	}
	if _, ok := r.states[stateID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.states, stateID)
	return nil
}

// States returns a copy of the stored login states.
func (r *Repository) States() map[string]session.LoginState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return maps.Clone(r.states)
}
