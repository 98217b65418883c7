package renewal

import (
	"context"
	"errors"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
	"github.com/hoppermq/streamly-console/internal/session"
)

const (
	defaultLead          = time.Minute
	defaultRetryInterval = 30 * time.Second
)

// Refresher renews the tokens of a user.
type Refresher interface {
	Refresh(ctx context.Context, user *session.User) (*session.User, error)
}

type Option func(*Scheduler)

// WithLead sets how long before the token expiry a renewal starts.
func WithLead(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.lead = d
		}
	}
}

// WithRetryInterval sets the pause between two attempts after a transient failure.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler renews the tokens of the tracked stores before they expire.
type Scheduler struct {
	refresher     Refresher
	lead          time.Duration
	retryInterval time.Duration
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tracked map[string]*tracking
	stopped bool
}

type tracking struct {
	unsubscribe func()
	task        *task
}

// task is the pending renewal of one access token.
type task struct {
	cancel      context.CancelFunc
	accessToken string
	expiresAt   time.Time
}

func NewScheduler(refresher Refresher, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		refresher:     refresher,
		lead:          defaultLead,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
		tracked:       make(map[string]*tracking),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Track starts renewing the session of the store whenever it is authenticated.
// Tracking the same client twice is a no-op.
func (s *Scheduler) Track(ctx context.Context, store *session.Store) {
	clientID := store.ClientID()

	s.mu.Lock()
	if _, ok := s.tracked[clientID]; ok || s.stopped {
		s.mu.Unlock()
		return
	}
	t := &tracking{}
	s.tracked[clientID] = t
	s.mu.Unlock()

	unsubscribe := store.Subscribe(func(snapshot session.Snapshot) {
		s.observe(store, snapshot)
	})

	s.mu.Lock()
	t.unsubscribe = unsubscribe
	s.mu.Unlock()

	slogctx.Debug(ctx, "Tracking the session for renewal", "client_id", clientID)

	s.observe(store, store.Snapshot())
}

// Untrack cancels the renewal of the client and stops observing its store.
func (s *Scheduler) Untrack(clientID string) {
	s.mu.Lock()
	t, ok := s.tracked[clientID]
	delete(s.tracked, clientID)
	s.mu.Unlock()

	if !ok {
		return
	}

	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	if t.task != nil {
		t.task.cancel()
	}
}

// Tracked reports whether a renewal is pending for the client.
func (s *Scheduler) Tracked(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracked[clientID]

	return ok && t.task != nil
}

// Stop cancels every pending renewal and waits for the running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for clientID, t := range s.tracked {
		if t.unsubscribe != nil {
			t.unsubscribe()
		}
		delete(s.tracked, clientID)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// observe reschedules the renewal whenever the tokens of the store change.
// It runs inside the store notification and must not mutate the store.
func (s *Scheduler) observe(store *session.Store, snapshot session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracked[store.ClientID()]
	if !ok {
		return
	}

	user := snapshot.User
	if !snapshot.IsAuthenticated || user == nil || user.ExpiresAt.IsZero() {
		if t.task != nil {
			t.task.cancel()
			t.task = nil
		}
		return
	}

	if t.task != nil && t.task.accessToken == user.AccessToken && t.task.expiresAt.Equal(user.ExpiresAt) {
		return
	}

	if t.task != nil {
		t.task.cancel()
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ctx = slogctx.With(ctx, "client_id", store.ClientID())
	t.task = &task{
		cancel:      cancel,
		accessToken: user.AccessToken,
		expiresAt:   user.ExpiresAt,
	}

	s.wg.Go(func() {
		defer cancel()
		s.run(ctx, store, user)
	})
}

func (s *Scheduler) run(ctx context.Context, store *session.Store, user *session.User) {
	wait := user.ExpiresAt.Add(-s.lead).Sub(s.now())

	for {
		if !sleep(ctx, wait) {
			return
		}

		store.SetLoading(ctx, true)
		refreshed, err := s.refresher.Refresh(ctx, user)

		// a logout or a shutdown happened during the exchange
		if ctx.Err() != nil {
			store.SetLoading(context.WithoutCancel(ctx), false)
			return
		}

		if err == nil {
			// applied only while the session still holds the renewed token
			if !store.ReplaceUser(ctx, user.AccessToken, refreshed) {
				slogctx.Info(ctx, "Discarding a renewal the session moved past", "user", refreshed)
				return
			}
			slogctx.Info(ctx, "Renewed the session", "user", refreshed)
			return
		}

		store.SetLoading(ctx, false)

		if errors.Is(err, serviceerr.ErrRenewalUnrecoverable) {
			slogctx.Warn(ctx, "Session renewal is not possible, signing out", "error", err)
			store.Logout(ctx)
			return
		}

		now := s.now()
		if user.Expired(now) {
			slogctx.Warn(ctx, "The session expired before it could be renewed, signing out", "error", err)
			store.Logout(ctx)
			return
		}

		slogctx.Warn(ctx, "Session renewal failed, retrying", "error", err, "retry_in", s.retryInterval)

		wait = s.retryInterval
		if untilExpiry := user.ExpiresAt.Sub(now); untilExpiry < wait {
			wait = untilExpiry
		}
	}
}

// sleep waits for d and reports whether the context is still alive.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
