package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKey is the fixed key the cart is stored under inside a session.
const SessionKey = "cart"

// Store persists one serialized cart per session. Entries expire after the
// session has been idle for the configured timeout.
type Store interface {
	Load(ctx context.Context, sessionID string) (Cart, bool, error)
	Save(ctx context.Context, sessionID string, c Cart) error
}

// LoadOrCreate rehydrates the session's cart, creating and immediately
// persisting an empty one when the session has none.
func LoadOrCreate(ctx context.Context, s Store, sessionID string) (Cart, error) {
	c, ok, err := s.Load(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	if ok {
		return c, nil
	}

	c = New()
	if err := s.Save(ctx, sessionID, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

func encode(c Cart) ([]byte, error) {
	if c.Items == nil {
		c.Items = []Item{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode cart: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Cart, error) {
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	if c.Items == nil {
		c.Items = []Item{}
	}
	return c, nil
}

type RedisStore struct {
	client      redis.UniversalClient
	idleTimeout time.Duration
}

func NewRedisStore(client redis.UniversalClient, idleTimeout time.Duration) *RedisStore {
	return &RedisStore{client: client, idleTimeout: idleTimeout}
}

func redisKey(sessionID string) string {
	return "session:" + sessionID + ":" + SessionKey
}

// Load reads the cart and slides the idle expiry forward in one round trip.
func (r *RedisStore) Load(ctx context.Context, sessionID string) (Cart, bool, error) {
	data, err := r.client.GetEx(ctx, redisKey(sessionID), r.idleTimeout).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("load cart: %w", err)
	}

	c, err := decode(data)
	if err != nil {
		return Cart{}, false, err
	}
	return c, true, nil
}

func (r *RedisStore) Save(ctx context.Context, sessionID string, c Cart) error {
	data, err := encode(c)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, redisKey(sessionID), data, r.idleTimeout).Err(); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// MemoryStore keeps carts in process memory. It only suits a single server
// instance.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	idleTimeout time.Duration
	now         func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(idleTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]memoryEntry),
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context, sessionID string) (Cart, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[sessionID]
	if !ok {
		return Cart{}, false, nil
	}

	now := m.now()
	if !now.Before(entry.expiresAt) {
		delete(m.entries, sessionID)
		return Cart{}, false, nil
	}

	entry.expiresAt = now.Add(m.idleTimeout)
	m.entries[sessionID] = entry

	c, err := decode(entry.data)
	if err != nil {
		return Cart{}, false, err
	}
	return c, true, nil
}

func (m *MemoryStore) Save(ctx context.Context, sessionID string, c Cart) error {
	data, err := encode(c)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[sessionID] = memoryEntry{data: data, expiresAt: now.Add(m.idleTimeout)}
	m.sweepLocked(now)
	return nil
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
}
