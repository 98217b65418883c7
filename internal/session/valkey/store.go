package sessionvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/hoppermq/streamly-console/internal/serviceerr"
)

// store is a JSON object store with keys of the form prefix:type:id.
type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *store) Get(ctx context.Context, objectType, objectID string, decodeInto any) error {
	return s.get(ctx, s.key(objectType, objectID), decodeInto)
}

// Set stores val. A positive ttl makes the object expire.
func (s *store) Set(ctx context.Context, objectType, id string, val any, ttl time.Duration) error {
	key := s.key(objectType, id)
	bytes, err := s.encode(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	value := s.valkey.B().Set().Key(key).Value(valkey.BinaryString(bytes))
	cmd := value.Build()
	if ttl > 0 {
		cmd = value.ExSeconds(max(int64(ttl/time.Second), 1)).Build()
	}

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Destroy(ctx context.Context, objectType, id string) error {
	deleted, err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(objectType, id)).Build()).AsInt64()
	if err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	if deleted == 0 {
		return serviceerr.ErrNotFound
	}

	return nil
}

// Scan calls fn with the id and the raw value of every object of the given type.
func (s *store) Scan(ctx context.Context, objectType string, fn func(id string, data []byte) error) error {
	match := s.key(objectType, "*")
	keyPrefix := s.key(objectType, "")

	var cursor uint64
	for {
		scan, err := s.valkey.Do(ctx, s.valkey.B().Scan().Cursor(cursor).Match(match).Count(100).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("executing scan command: %w", err)
		}

		for _, key := range scan.Elements {
			bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
			if isNil(err) {
				// expired between the scan and the get
				continue
			}
			if err != nil {
				return fmt.Errorf("executing get command: %w", err)
			}

			if err := fn(strings.TrimPrefix(key, keyPrefix), bytes); err != nil {
				return err
			}
		}

		cursor = scan.Cursor
		if cursor == 0 {
			return nil
		}
	}
}

func (s *store) get(ctx context.Context, key string, decodeInto any) error {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if isNil(err) {
			return serviceerr.ErrNotFound
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := s.decode(bytes, decodeInto); err != nil {
		return fmt.Errorf("decoding object: %w", err)
	}

	return nil
}

func (s *store) key(objectType string, objectID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, objectID)
}

func (s *store) encode(v any) ([]byte, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return bytes, nil
}

func (s *store) decode(data []byte, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}

func isNil(err error) bool {
	valkeyErr, ok := valkey.IsValkeyErr(err)
	return ok && valkeyErr.IsNil()
}
