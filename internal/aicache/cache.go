package aicache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = time.Hour
)

type entry struct {
	Signature string    `json:"signature"`
	UserID    string    `json:"user_id"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

type Match struct {
	Signature  string
	Data       []byte
	Similarity float64
}

type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Cache holds AI responses per user and signature. One mutex guards all state.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	capacity   int
	evictBatch int
	ttl        time.Duration
	now        func() time.Time
	hits       int64
	misses     int64
}

type Option func(*Cache)

func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]*entry),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.evictBatch = c.capacity / 10
	if c.evictBatch < 1 {
		c.evictBatch = 1
	}
	return c
}

func storeKey(userID, signature string) string {
	return userID + "\x00" + signature
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) > c.ttl
}

// Get returns the payload cached for key and userID.
func (c *Cache) Get(key CacheKey, userID string) ([]byte, bool) {
	sig := key.Signature()

	c.mu.Lock()
	defer c.mu.Unlock()

	k := storeKey(userID, sig)
	e, ok := c.entries[k]
	if !ok || e.UserID != userID {
		c.misses++
		return nil, false
	}
	if c.expired(e, c.now()) {
		delete(c.entries, k)
		c.misses++
		return nil, false
	}
	c.hits++
	return clone(e.Data), true
}

// Set stores data for key and userID, replacing any previous payload.
func (c *Cache) Set(data []byte, key CacheKey, userID string) {
	sig := key.Signature()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[storeKey(userID, sig)] = &entry{
		Signature: sig,
		UserID:    userID,
		Data:      clone(data),
		CreatedAt: c.now(),
	}
	if len(c.entries) > c.capacity {
		c.evictOldest(len(c.entries) - c.capacity + c.evictBatch)
	}
}

// evictOldest drops the n entries with the oldest timestamps. Caller holds mu.
func (c *Cache) evictOldest(n int) {
	if n <= 0 {
		return
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}
}

// FindSimilar scans the user's live entries for the signature with the highest
// Jaccard similarity to key, excluding key itself. Only matches at or above
// threshold are returned.
func (c *Cache) FindSimilar(key CacheKey, userID string, threshold float64) (*Match, bool) {
	sig := key.Signature()
	want := tokens(sig)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var best *entry
	bestScore := -1.0
	for _, e := range c.entries {
		if e.UserID != userID || e.Signature == sig || c.expired(e, now) {
			continue
		}
		score := jaccard(want, tokens(e.Signature))
		if score < threshold {
			continue
		}
		if score > bestScore || (score == bestScore && e.CreatedAt.After(best.CreatedAt)) {
			best, bestScore = e, score
		}
	}
	if best == nil {
		c.misses++
		return nil, false
	}
	c.hits++
	return &Match{Signature: best.Signature, Data: clone(best.Data), Similarity: bestScore}, true
}

// Purge removes expired entries and reports how many were dropped.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Save writes live entries to path as JSON.
func (c *Cache) Save(path string) error {
	c.mu.Lock()
	now := c.now()
	snapshot := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		if !c.expired(e, now) {
			snapshot = append(snapshot, e)
		}
	}
	payload, err := json.Marshal(snapshot)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load merges a snapshot written by Save, skipping expired entries. A missing
// file is not an error.
func (c *Cache) Load(path string) (int, error) {
	payload, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var snapshot []*entry
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return 0, fmt.Errorf("failed to unmarshal cache snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	loaded := 0
	for _, e := range snapshot {
		if e == nil || c.expired(e, now) {
			continue
		}
		k := storeKey(e.UserID, e.Signature)
		if cur, ok := c.entries[k]; ok && cur.CreatedAt.After(e.CreatedAt) {
			continue
		}
		c.entries[k] = e
		loaded++
	}
	if len(c.entries) > c.capacity {
		c.evictOldest(len(c.entries) - c.capacity + c.evictBatch)
	}
	return loaded, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
