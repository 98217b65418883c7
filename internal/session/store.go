package session

import (
	"context"
	"errors"
	"sync"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

// Store holds the session of one browser client.
//
// A store never fails: persistence errors are logged and the in-memory state
// stays authoritative. Observers are notified after every mutation, in order,
// and must not mutate the store from the callback.
type Store struct {
	clientID string
	repo     Repository

	// writeMu serialises mutations together with their notifications.
	writeMu sync.Mutex

	mu        sync.RWMutex
	snapshot  Snapshot
	observers map[int]func(Snapshot)
	nextID    int
}

// NewStore returns an anonymous store. The repository may be nil, in which case nothing is persisted.
func NewStore(clientID string, repo Repository) *Store {
	return &Store{
		clientID:  clientID,
		repo:      repo,
		observers: make(map[int]func(Snapshot)),
	}
}

// OpenStore returns a store initialised with the snapshot persisted for the client.
func OpenStore(ctx context.Context, clientID string, repo Repository) *Store {
	s := NewStore(clientID, repo)
	if repo == nil {
		return s
	}

	snapshot, err := repo.LoadSnapshot(ctx, clientID)
	switch {
	case errors.Is(err, serviceerr.ErrNotFound):
		return s
	case err != nil:
		slogctx.Warn(ctx, "Could not load the persisted session, starting anonymous", "client_id", clientID, "error", err)
		return s
	}

	user := snapshot.User
	if user != nil && user.Profile.Subject == "" {
		user = nil
	}

	s.snapshot = Snapshot{User: user, IsAuthenticated: user != nil}

	return s
}

func (s *Store) ClientID() string {
	return s.clientID
}

// SetUser replaces the session and clears the loading flag.
// A user without a subject id leaves the store anonymous.
func (s *Store) SetUser(ctx context.Context, user *User) {
	if user != nil && user.Profile.Subject == "" {
		slogctx.Warn(ctx, "Ignoring a user without a subject id", "client_id", s.clientID)
		user = nil
	}

	if user != nil {
		cp := *user
		user = &cp
	}

	s.mutate(ctx, func(snapshot *Snapshot) bool {
		snapshot.User = user
		snapshot.IsAuthenticated = user != nil
		snapshot.IsLoading = false
		return true
	})
}

// ReplaceUser sets user only while the session still holds the access token
// accessToken, and reports whether it did. A logout or a newer sign-in that
// landed in between wins; the loading flag is cleared either way.
func (s *Store) ReplaceUser(ctx context.Context, accessToken string, user *User) bool {
	if user == nil || user.Profile.Subject == "" {
		slogctx.Warn(ctx, "Ignoring a user without a subject id", "client_id", s.clientID)
		return false
	}

	cp := *user

	var replaced bool
	s.mutate(ctx, func(snapshot *Snapshot) bool {
		current := snapshot.User
		replaced = snapshot.IsAuthenticated && current != nil && current.AccessToken == accessToken
		if replaced {
			snapshot.User = &cp
		} else if !snapshot.IsLoading {
			return false
		}
		snapshot.IsLoading = false
		return true
	})

	return replaced
}

// SetLoading sets the loading flag independently of the identity.
func (s *Store) SetLoading(ctx context.Context, loading bool) {
	s.mutate(ctx, func(snapshot *Snapshot) bool {
		snapshot.IsLoading = loading
		return true
	})
}

// Logout clears the identity and leaves the loading flag untouched.
func (s *Store) Logout(ctx context.Context) {
	s.mutate(ctx, func(snapshot *Snapshot) bool {
		snapshot.User = nil
		snapshot.IsAuthenticated = false
		return true
	})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot.clone()
}

func (s *Store) User() *User {
	return s.Snapshot().User
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot.IsAuthenticated
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot.IsLoading
}

// Subscribe registers fn to be called with the new state after each mutation.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// mutate applies fn under the write lock. When fn reports no change nothing
// is persisted and no observer is notified.
func (s *Store) mutate(ctx context.Context, fn func(*Snapshot) bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !fn(&s.snapshot) {
		s.mu.Unlock()
		return
	}
	snapshot := s.snapshot.clone()
	observers := make([]func(Snapshot), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o)
	}
	s.mu.Unlock()

	s.persist(ctx, snapshot)

	for _, o := range observers {
		o(snapshot.clone())
	}
}

func (s *Store) persist(ctx context.Context, snapshot Snapshot) {
	if s.repo == nil {
		return
	}

	// the snapshot outlives the request that changed it
	if err := s.repo.StoreSnapshot(context.WithoutCancel(ctx), s.clientID, snapshot); err != nil {
		slogctx.Error(ctx, "Failed to persist the session", "client_id", s.clientID, "error", err)
	}
}

func (snapshot Snapshot) clone() Snapshot {
	if snapshot.User != nil {
		u := *snapshot.User
		snapshot.User = &u
	}

	return snapshot
}
