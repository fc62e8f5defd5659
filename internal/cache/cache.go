// Package cache provides a small byte-oriented cache with TTL, backed either by
// process memory or by Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/VitalSync/health_layer/internal/app/metrics"
)

// Cache stores opaque values with an expiry. Get reports a miss with ok=false.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// GetJSON loads key into dest. The lookup is recorded under name.
func GetJSON(ctx context.Context, c Cache, name, key string, dest any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.RecordCacheLookup(name, false)
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// a corrupt entry counts as a miss and is dropped
		_ = c.Delete(ctx, key)
		metrics.RecordCacheLookup(name, false)
		return false, nil
	}
	metrics.RecordCacheLookup(name, true)
	return true, nil
}

// SetJSON stores value as JSON.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache. Expired entries are dropped lazily on access.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, exists := m.entries[key]
	m.mu.RUnlock()
	if !exists {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
