package lockout

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store 记录登录失败次数，达到上限后在冷却期内锁定账号。
type Store interface {
	IsLocked(ctx context.Context, email string) (bool, time.Duration)
	RecordFailure(ctx context.Context, email string)
	RecordSuccess(ctx context.Context, email string)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type entry struct {
	failures    int
	windowEnds  time.Time
	lockedUntil time.Time
}

// MemoryStore 适合单实例部署；多实例请使用 RedisStore。
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]*entry
	max      int
	cooldown time.Duration
	now      func() time.Time
}

// NewMemoryStore maxAttempts 为 0 时关闭锁定。
func NewMemoryStore(maxAttempts int, cooldown time.Duration) *MemoryStore {
	if cooldown <= 0 {
		cooldown = 15 * time.Minute
	}
	return &MemoryStore{data: make(map[string]*entry), max: maxAttempts, cooldown: cooldown, now: time.Now}
}

func (s *MemoryStore) IsLocked(_ context.Context, email string) (bool, time.Duration) {
	if s.max <= 0 {
		return false, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[normalize(email)]
	if !ok {
		return false, 0
	}
	now := s.now()
	if now.Before(e.lockedUntil) {
		return true, e.lockedUntil.Sub(now)
	}
	return false, 0
}

func (s *MemoryStore) RecordFailure(_ context.Context, email string) {
	if s.max <= 0 {
		return
	}
	k := normalize(email)
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.data[k]
	if e == nil || now.After(e.windowEnds) {
		e = &entry{windowEnds: now.Add(s.cooldown)}
		s.data[k] = e
	}
	e.failures++
	if e.failures >= s.max {
		e.lockedUntil = now.Add(s.cooldown)
		e.windowEnds = e.lockedUntil
	}
}

func (s *MemoryStore) RecordSuccess(_ context.Context, email string) {
	if s.max <= 0 {
		return
	}
	s.mu.Lock()
	delete(s.data, normalize(email))
	s.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
