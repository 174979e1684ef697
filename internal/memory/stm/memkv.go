package stm

import (
	"context"
	"sync"
	"time"
)

// MemKV is an in-process KVStore test double, mirroring Redis list/hash
// semantics closely enough for unit tests.
type MemKV struct {
	mu       sync.Mutex
	lists    map[string][]string
	hashes   map[string]map[string]string
	expireAt map[string]time.Time
}

// NewMemKV builds an empty MemKV.
func NewMemKV() *MemKV {
	return &MemKV{
		lists:    map[string][]string{},
		hashes:   map[string]map[string]string{},
		expireAt: map[string]time.Time{},
	}
}

func (m *MemKV) expired(key string) bool {
	t, ok := m.expireAt[key]
	return ok && time.Now().After(t)
}

func (m *MemKV) RPush(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.lists, key)
		delete(m.expireAt, key)
	}
	m.lists[key] = append(m.lists[key], value)
	return nil
}

func (m *MemKV) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	vals := m.lists[key]
	n := int64(len(vals))
	if n == 0 {
		return nil, nil
	}
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, vals[start:stop+1])
	return out, nil
}

func (m *MemKV) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		delete(m.hashes, key)
		delete(m.expireAt, key)
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (m *MemKV) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *MemKV) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.lists, k)
		delete(m.hashes, k)
		delete(m.expireAt, k)
	}
	return nil
}

func (m *MemKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireAt[key] = time.Now().Add(ttl)
	return nil
}
