package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

type RegistryOption func(*Registry)

// WithOpenHook sets a function called once for every store the registry opens.
func WithOpenHook(fn func(ctx context.Context, store *Store)) RegistryOption {
	return func(r *Registry) { r.onOpen = fn }
}

// WithEvictHook sets a function called when a store leaves the registry.
func WithEvictHook(fn func(store *Store)) RegistryOption {
	return func(r *Registry) { r.onEvict = fn }
}

// Registry keeps the live store of every browser client.
type Registry struct {
	repo  Repository
	ttl   time.Duration
	cache *cache.Cache

	mu      sync.Mutex
	onOpen  func(ctx context.Context, store *Store)
	onEvict func(store *Store)
}

// NewRegistry returns a registry whose stores stay live for ttl after their last use.
func NewRegistry(repo Repository, ttl time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		repo:  repo,
		ttl:   ttl,
		cache: cache.New(ttl, ttl/2+time.Second),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.cache.OnEvicted(func(_ string, v any) {
		store, ok := v.(*Store)
		if ok && r.onEvict != nil {
			r.onEvict(store)
		}
	})

	return r
}

// Open returns the live store of the client, restoring it from the repository when needed.
func (r *Registry) Open(ctx context.Context, clientID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(clientID); ok {
		//nolint:forcetypeassert
		store := v.(*Store)
		r.cache.Set(clientID, store, cache.DefaultExpiration)

		return store
	}

	store := OpenStore(ctx, clientID, r.repo)
	r.cache.Set(clientID, store, cache.DefaultExpiration)

	if r.onOpen != nil {
		r.onOpen(ctx, store)
	}

	return store
}

// Forget drops the live store of the client without touching its persisted snapshot.
func (r *Registry) Forget(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(clientID)
}

// Discard signs the client out, drops its live store and deletes its
// persisted snapshot. It is used when a client id is replaced.
func (r *Registry) Discard(ctx context.Context, clientID string) {
	r.mu.Lock()
	v, ok := r.cache.Get(clientID)
	r.mu.Unlock()

	if store, isStore := v.(*Store); ok && isStore {
		store.Logout(ctx)
		store.SetLoading(ctx, false)
	}

	r.Forget(clientID)

	if r.repo == nil {
		return
	}

	err := r.repo.DeleteSnapshot(context.WithoutCancel(ctx), clientID)
	if err != nil && !errors.Is(err, serviceerr.ErrNotFound) {
		slogctx.Warn(ctx, "Could not delete a discarded session", "client_id", clientID, "error", err)
	}
}

// Len returns the number of live stores.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Sweep deletes the persisted sessions that can no longer be used: anonymous
// ones and those whose token expired without a way to refresh it.
func (r *Registry) Sweep(ctx context.Context, now time.Time) (int, error) {
	snapshots, err := r.repo.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing sessions: %w", err)
	}

	var deleted int
	for clientID, snapshot := range snapshots {
		if !isDead(snapshot, now) {
			continue
		}

		if err := r.repo.DeleteSnapshot(ctx, clientID); err != nil {
			slogctx.Warn(ctx, "Could not delete a dead session", "client_id", clientID, "error", err)
			continue
		}

		r.Forget(clientID)
		deleted++
		slogctx.Debug(ctx, "Deleted a dead session", "client_id", clientID, "user", snapshot.User)
	}

	return deleted, nil
}

func isDead(snapshot Snapshot, now time.Time) bool {
	if !snapshot.IsAuthenticated || snapshot.User == nil {
		return true
	}

	return snapshot.User.Expired(now) && !snapshot.User.CanRefresh()
}
