package preferencesmock

import (
	"context"
	"sync"

	"github.com/hoppermq/streamly-console/internal/preferences"
	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

type RepositoryOption func(*Repository)

type Repository struct {
	mu     sync.Mutex
	values map[string]map[string][]byte

	loadErr, storeErr, deleteErr error
}

// WithValue stores a raw value for the client and namespace.
func WithValue(clientID, namespace, value string) RepositoryOption {
	return func(r *Repository) { r.set(clientID, namespace, []byte(value)) }
}
func WithLoadError(err error) RepositoryOption {
	return func(r *Repository) { r.loadErr = err }
}
func WithStoreError(err error) RepositoryOption {
	return func(r *Repository) { r.storeErr = err }
}
func WithDeleteError(err error) RepositoryOption {
	return func(r *Repository) { r.deleteErr = err }
}

var _ = preferences.Repository(&Repository{})

func NewInMemRepository(opts ...RepositoryOption) *Repository {
	r := &Repository{
		values: make(map[string]map[string][]byte),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Value returns the raw value stored for the client and namespace.
func (r *Repository) Value(clientID, namespace string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.values[clientID][namespace]
	return string(v), ok
}

func (r *Repository) Load(_ context.Context, clientID, namespace string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return nil, r.loadErr
	}

	v, ok := r.values[clientID][namespace]
	if !ok {
		return nil, serviceerr.ErrNotFound
	}

	return v, nil
}

func (r *Repository) Store(_ context.Context, clientID, namespace string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.storeErr != nil {
		return r.storeErr
	}

	r.set(clientID, namespace, value)

	return nil
}

func (r *Repository) Delete(_ context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	if _, ok := r.values[clientID]; !ok {
		return serviceerr.ErrNotFound
	}
	delete(r.values, clientID)

	return nil
}

func (r *Repository) set(clientID, namespace string, value []byte) {
	if r.values[clientID] == nil {
		r.values[clientID] = make(map[string][]byte)
	}
	r.values[clientID][namespace] = append([]byte(nil), value...)
}
