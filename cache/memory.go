// Package cache provides caching implementations for Aegis check results.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/aegis"
)

// Compile-time interface check.
var _ aegis.Cache = (*Memory)(nil)

// Memory is an in-memory cache with TTL-based expiration, grouped by user
// so a user's results can be dropped without a scan.
type Memory struct {
	mu      sync.RWMutex
	users   map[string]map[string]*entry
	size    int
	ttl     time.Duration
	maxSize int
}

type entry struct {
	result    *aegis.CheckResult
	expiresAt time.Time
}

// MemoryOption configures the memory cache.
type MemoryOption func(*Memory)

// WithTTL sets the cache entry time-to-live.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// WithMaxSize sets the maximum number of cache entries.
func WithMaxSize(n int) MemoryOption {
	return func(m *Memory) { m.maxSize = n }
}

// NewMemory creates a new in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		users:   make(map[string]map[string]*entry),
		ttl:     30 * time.Second,
		maxSize: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of a cached check result.
func (m *Memory) Get(_ context.Context, req *aegis.CheckRequest) (*aegis.CheckResult, bool) {
	key, ok := requestKey(req)
	if !ok {
		return nil, false
	}
	m.mu.RLock()
	e, ok := m.users[req.UserID][key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		m.remove(req.UserID, key)
		m.mu.Unlock()
		return nil, false
	}
	return copyResult(e.result), true
}

// Set stores a copy of a check result.
func (m *Memory) Set(_ context.Context, req *aegis.CheckRequest, result *aegis.CheckResult) {
	if m.ttl <= 0 {
		return
	}
	key, ok := requestKey(req)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Evict if at capacity.
	if m.size >= m.maxSize {
		m.evictExpired()
		if m.size >= m.maxSize {
			m.evictOne()
		}
	}

	bucket, ok := m.users[req.UserID]
	if !ok {
		bucket = make(map[string]*entry)
		m.users[req.UserID] = bucket
	}
	if _, exists := bucket[key]; !exists {
		m.size++
	}
	bucket[key] = &entry{
		result:    copyResult(result),
		expiresAt: time.Now().Add(m.ttl),
	}
}

// InvalidateUser removes all cached results for a user.
func (m *Memory) InvalidateUser(_ context.Context, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.size -= len(m.users[userID])
	delete(m.users, userID)
}

// InvalidateAll removes every cached result.
func (m *Memory) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = make(map[string]map[string]*entry)
	m.size = 0
}

// Len returns the number of cached entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// remove deletes one entry. Must hold write lock.
func (m *Memory) remove(userID, key string) {
	bucket := m.users[userID]
	if _, ok := bucket[key]; !ok {
		return
	}
	delete(bucket, key)
	m.size--
	if len(bucket) == 0 {
		delete(m.users, userID)
	}
}

// evictExpired removes all expired entries. Must hold write lock.
func (m *Memory) evictExpired() {
	now := time.Now()
	for user, bucket := range m.users {
		for k, e := range bucket {
			if now.After(e.expiresAt) {
				m.remove(user, k)
			}
		}
	}
}

// evictOne removes one arbitrary entry. Must hold write lock.
func (m *Memory) evictOne() {
	for user, bucket := range m.users {
		for k := range bucket {
			m.remove(user, k)
			return
		}
	}
}
