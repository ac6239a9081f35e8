//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memClient is an in-memory RedisClient; expirations are recorded, not enforced.
type memClient struct {
	mu      sync.Mutex
	kv      map[string]string
	ttl     map[string]time.Duration
	failing error
}

var _ RedisClient = (*memClient)(nil)

func newMemClient() *memClient {
	return &memClient{kv: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Ping(ctx context.Context) error { return m.failing }

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.failing != nil {
		return m.failing
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = toString(value)
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if m.failing != nil {
		return false, m.failing
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = toString(value)
	m.ttl[key] = expiration
	return true, nil
}

func (m *memClient) Get(ctx context.Context, key string) (string, error) {
	if m.failing != nil {
		return "", m.failing
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (m *memClient) Incr(ctx context.Context, key string) (int64, error) {
	if m.failing != nil {
		return 0, m.failing
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	fmt.Sscan(m.kv[key], &n)
	n++
	m.kv[key] = fmt.Sprint(n)
	return n, nil
}

func (m *memClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl[key] = expiration
	return nil
}

func (m *memClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
		delete(m.ttl, k)
	}
	return nil
}

func (m *memClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kv[key] != value {
		return false, nil
	}
	delete(m.kv, key)
	return true, nil
}

func (m *memClient) Close() error { return nil }

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
