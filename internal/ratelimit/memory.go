package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 64

type window struct {
	start time.Time
	count int
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryStore is a lock-striped in-process fixed-window counter, the
// default store for single-instance deployments.
type MemoryStore struct {
	shards [shardCount]*shard
	clock  func() time.Time
}

// MemoryOption tweaks MemoryStore construction.
type MemoryOption func(*MemoryStore)

// WithClock injects the time source. Tests use it to elapse windows
// without sleeping.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// NewMemoryStore constructs the store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{clock: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{windows: make(map[string]*window)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Take implements Store. The shard mutex makes read-check-increment one
// operation per key; a count at the limit denies without incrementing,
// so the stored count never exceeds the limit.
func (s *MemoryStore) Take(_ context.Context, key string, limit int, windowDur time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: false, Limit: limit, RetryAfter: windowDur}, nil
	}

	now := s.clock()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	w, ok := sh.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		sh.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true, Limit: limit, Remaining: limit - 1, RetryAfter: windowDur}, nil
	}

	untilReset := w.start.Add(windowDur).Sub(now)
	if w.count < limit {
		w.count++
		return Decision{Allowed: true, Limit: limit, Remaining: limit - w.count, RetryAfter: untilReset}, nil
	}
	return Decision{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: untilReset}, nil
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}
