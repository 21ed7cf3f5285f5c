package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mirae-cloud/newsrag/internal/domain"
	"github.com/mirae-cloud/newsrag/internal/metrics"
)

// DefaultTTL is the answer cache entry lifetime.
const DefaultTTL = time.Hour

// DefaultCapacity bounds the number of cached answers.
const DefaultCapacity = 1000

// entry is one cached response. TTL is anchored to creation; a hit
// refreshes recency (the LRU order) but never the creation timestamp.
type entry struct {
	value      domain.Response
	createdAt  time.Time
	ttl        time.Duration
	lastAccess time.Time
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// Service is the request-level answer cache: an LRU bounded by capacity
// with per-entry TTL expiry. It is the only state shared across concurrent
// requests; all access is mutually exclusive.
type Service struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *entry]

	defaultTTL time.Duration
	now        func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates an answer cache. capacity <= 0 and ttl <= 0 select defaults.
func New(capacity int, defaultTTL time.Duration) (*Service, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	l, err := lru.New[string, *entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Service{lru: l, defaultTTL: defaultTTL, now: time.Now}, nil
}

// Key derives the stable cache fingerprint from the normalized query text
// and the conversation history. Identical normalized query plus identical
// history always produce the same key.
func Key(query string, history []domain.Turn) string {
	h := sha256.New()
	h.Write([]byte(domain.NormalizeQuery(query)))
	for _, turn := range history {
		// Length-prefix each field so turn boundaries cannot collide.
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(turn.Role)))
		h.Write(n[:])
		h.Write([]byte(turn.Role))
		binary.BigEndian.PutUint32(n[:], uint32(len(turn.Text)))
		h.Write(n[:])
		h.Write([]byte(turn.Text))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for a key. An entry past its TTL is
// removed and reported as a miss. A hit refreshes the entry's recency.
func (s *Service) Get(key string) (domain.Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lru.Get(key)
	if !ok {
		return s.miss()
	}
	if e.expired(s.now()) {
		s.lru.Remove(key)
		return s.miss()
	}

	e.lastAccess = s.now()
	s.hits.Add(1)
	metrics.CacheTotal.WithLabelValues("hit").Inc()

	resp := e.value
	resp.CacheHit = true
	return resp, true
}

// Put stores a response under the key. ttl <= 0 selects the default.
// Capacity overflow evicts the least-recently-accessed entry; expired
// entries are purged first so they never outlive fresh ones.
func (s *Service) Put(key string, value domain.Response, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, k := range s.lru.Keys() {
		if e, ok := s.lru.Peek(k); ok && e.expired(now) {
			s.lru.Remove(k)
		}
	}

	s.lru.Add(key, &entry{
		value:      value,
		createdAt:  now,
		ttl:        ttl,
		lastAccess: now,
	})
}

// Stats reports the process-wide hit/miss counters and current size.
func (s *Service) Stats() (hits, misses int64, size int) {
	s.mu.Lock()
	size = s.lru.Len()
	s.mu.Unlock()
	return s.hits.Load(), s.misses.Load(), size
}

func (s *Service) miss() (domain.Response, bool) {
	s.misses.Add(1)
	metrics.CacheTotal.WithLabelValues("miss").Inc()
	return domain.Response{}, false
}
