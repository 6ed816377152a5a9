package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key is the fixed storage key every backend keeps the current record under.
const Key = "accessData"

// ErrBackendUnavailable wraps transport or I/O failures of a storage backend.
var ErrBackendUnavailable = errors.New("session store unavailable")

const minRecordTTL = time.Second

// Store persists at most one session record.
type Store interface {
	// Save replaces the stored record with r.
	Save(ctx context.Context, r *Record) error
	// Load returns the stored record. ok is false when nothing usable is stored.
	Load(ctx context.Context) (r *Record, ok bool, err error)
	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// TTLFunc reports how long a record stays useful. ok is false when unknown.
type TTLFunc func(r *Record) (ttl time.Duration, ok bool)

/*
====================================
MEMORY
====================================
*/

// MemoryStore keeps the encoded record in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFromBytes returns a store pre-populated with a raw blob, as if it had
// been written by an earlier process. The blob is not validated.
func NewMemoryStoreFromBytes(raw []byte) *MemoryStore {
	return &MemoryStore{data: append([]byte(nil), raw...)}
}

func (s *MemoryStore) Save(_ context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, false, nil
	}
	r, err := Decode(s.data)
	if err != nil {
		s.data = nil
		return nil, false, nil
	}
	return r, true, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = nil
	s.mu.Unlock()
	return nil
}

// Raw returns a copy of the stored blob, or nil.
func (s *MemoryStore) Raw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil
	}
	return append([]byte(nil), s.data...)
}

/*
====================================
REDIS
====================================
*/

// RedisStore keeps the record in Redis under "<prefix>:accessData".
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    TTLFunc
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL makes Save expire the key when the record stops being useful.
func WithTTL(fn TTLFunc) RedisOption {
	return func(s *RedisStore) {
		s.ttl = fn
	}
}

// NewRedisStore returns a RedisStore. An empty prefix defaults to "authsession".
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = "authsession"
	}
	s := &RedisStore{
		redis:  client,
		prefix: prefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key() string {
	return s.prefix + ":" + Key
}

// Save writes the record. When a TTLFunc is configured and knows the lifetime, the key
// expires with the credential; an already-expired credential gets a one second TTL.
//
//	Performance: 1 Redis SET.
func (s *RedisStore) Save(ctx context.Context, r *Record) error {
	data, err := Encode(r)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if s.ttl != nil {
		if d, ok := s.ttl(r); ok {
			ttl = max(d, minRecordTTL)
		}
	}

	if err := s.redis.Set(ctx, s.key(), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Load reads the record. Undecodable blobs are deleted and reported as absent.
//
//	Performance: 1 Redis GET, plus 1 DEL for a corrupt blob.
func (s *RedisStore) Load(ctx context.Context) (*Record, bool, error) {
	data, err := s.redis.Get(ctx, s.key()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	r, err := Decode(data)
	if err != nil {
		_ = s.redis.Del(ctx, s.key()).Err()
		return nil, false, nil
	}
	return r, true, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, s.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
