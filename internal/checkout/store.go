package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 30 * time.Minute

// SessionStore persists checkout sessions for their TTL. Save refreshes the TTL.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps sessions in process memory. Sessions are stored encoded
// so callers never share slices with the stored copy.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore constructs an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

// WithClock overrides the time source used for expiry.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
	return m
}

// Get loads a live session.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, id)
		return Session{}, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Save stores the session and refreshes its expiry.
func (m *MemoryStore) Save(_ context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.entries[s.ID] = memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Delete removes the session; deleting a missing session is not an error.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) sweepLocked() {
	now := m.now()
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
}

// RedisStore keeps sessions as JSON values with a TTL so any replica can
// serve any request.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisStore constructs a Redis-backed store.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl, prefix: "checkout:session:"}
}

// Get loads a live session.
func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	if r == nil || r.client == nil {
		return Session{}, errors.New("checkout: redis store not configured")
	}
	data, err := r.client.Get(ctx, r.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Save serialises the session and refreshes its TTL.
func (r *RedisStore) Save(ctx context.Context, s Session) error {
	if r == nil || r.client == nil {
		return errors.New("checkout: redis store not configured")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+s.ID, data, r.ttl).Err()
}

// Delete removes the session.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if r == nil || r.client == nil {
		return errors.New("checkout: redis store not configured")
	}
	return r.client.Del(ctx, r.prefix+id).Err()
}
