package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

var ErrEntryTooLarge = errors.New("cache entry exceeds single-entry size limit")

// Key identifies one cached lookup result. Query is normalized before
// hashing so formatting differences do not split the cache.
type Key struct {
	Category domain.ResearchCategory
	Query    string
	Language string
	Region   string
}

type Entry struct {
	Payload   json.RawMessage
	Priority  float64
	CreatedAt time.Time
	ExpiresAt time.Time

	hits         int
	lastAccessed time.Time
	size         int
}

type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Expired   int64
	Entries   int
	SizeBytes int
}

type Config struct {
	// TTLByCategory assigns each category its freshness window. Categories
	// absent from the map fall back to DefaultTTL.
	TTLByCategory map[domain.ResearchCategory]time.Duration
	DefaultTTL    time.Duration
	// RealTimeCategories get their effective TTL quartered.
	RealTimeCategories []domain.ResearchCategory
	// MaxBytes bounds total payload size, not entry count.
	MaxBytes int
	// MaxEntryFraction rejects single entries larger than this fraction of
	// MaxBytes. Zero means the default of 0.25.
	MaxEntryFraction float64
	SweepInterval    time.Duration
}

// ResearchCache is a category-aware TTL cache with size-bounded eviction,
// shared mutably across executor workers.
type ResearchCache struct {
	mu        sync.RWMutex
	entries   map[string]*Entry
	ttls      map[domain.ResearchCategory]time.Duration
	realTime  map[domain.ResearchCategory]bool
	defTTL    time.Duration
	maxBytes  int
	maxEntry  int
	sizeBytes int

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	now func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

func NewResearchCache(config Config) *ResearchCache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 30 * time.Minute
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 8 << 20
	}
	if config.MaxEntryFraction <= 0 || config.MaxEntryFraction > 1 {
		config.MaxEntryFraction = 0.25
	}

	ttls := make(map[domain.ResearchCategory]time.Duration, len(config.TTLByCategory))
	for category, ttl := range config.TTLByCategory {
		if ttl > 0 {
			ttls[category] = ttl
		}
	}
	realTime := make(map[domain.ResearchCategory]bool, len(config.RealTimeCategories))
	for _, category := range config.RealTimeCategories {
		realTime[category] = true
	}

	cache := &ResearchCache{
		entries:   make(map[string]*Entry),
		ttls:      ttls,
		realTime:  realTime,
		defTTL:    config.DefaultTTL,
		maxBytes:  config.MaxBytes,
		maxEntry:  int(float64(config.MaxBytes) * config.MaxEntryFraction),
		now:       func() time.Time { return time.Now().UTC() },
		sweepStop: make(chan struct{}),
	}

	if config.SweepInterval > 0 {
		go cache.sweepLoop(config.SweepInterval)
	}
	return cache
}

// Get returns the cached payload for key, or false on miss or expiry.
// A hit refreshes the entry's last-access time, protecting it from eviction.
func (c *ResearchCache) Get(key Key) (json.RawMessage, bool) {
	signature := c.signature(key)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[signature]
	if !exists {
		c.misses++
		return nil, false
	}
	if now.After(entry.ExpiresAt) {
		c.removeLocked(signature, entry)
		c.expired++
		c.misses++
		return nil, false
	}

	entry.hits++
	entry.lastAccessed = now
	c.hits++
	return append(json.RawMessage(nil), entry.Payload...), true
}

// Set stores payload under key with the category's effective TTL. Entries
// larger than the single-entry limit are rejected rather than stored.
func (c *ResearchCache) Set(key Key, payload json.RawMessage, priority float64) error {
	size := len(payload)
	if size > c.maxEntry {
		return ErrEntryTooLarge
	}
	if priority <= 0 {
		priority = 1
	}

	now := c.now()
	entry := &Entry{
		Payload:      append(json.RawMessage(nil), payload...),
		Priority:     priority,
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.EffectiveTTL(key.Category)),
		lastAccessed: now,
		size:         size,
	}
	signature := c.signature(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[signature]; ok {
		c.removeLocked(signature, existing)
	}
	for c.sizeBytes+size > c.maxBytes {
		if !c.evictOneLocked(now) {
			break
		}
	}

	c.entries[signature] = entry
	c.sizeBytes += size
	return nil
}

// EffectiveTTL resolves the category TTL, quartering it for real-time
// categories.
func (c *ResearchCache) EffectiveTTL(category domain.ResearchCategory) time.Duration {
	ttl, ok := c.ttls[category]
	if !ok {
		ttl = c.defTTL
	}
	if c.realTime[category] {
		ttl /= 4
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

func (c *ResearchCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		Entries:   len(c.entries),
		SizeBytes: c.sizeBytes,
	}
}

// Sweep removes every expired entry. Also runs periodically when a sweep
// interval is configured.
func (c *ResearchCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for signature, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			c.removeLocked(signature, entry)
			c.expired++
			removed++
		}
	}
	return removed
}

func (c *ResearchCache) Close() {
	c.sweepOnce.Do(func() { close(c.sweepStop) })
}

func (c *ResearchCache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// evictOneLocked drops the entry with the least protected composite score,
// (time since last access) / priority: old, low-priority entries go first.
func (c *ResearchCache) evictOneLocked(now time.Time) bool {
	if len(c.entries) == 0 {
		return false
	}

	var (
		victimKey   string
		victimEntry *Entry
		worstScore  float64
	)
	for signature, entry := range c.entries {
		idle := now.Sub(entry.lastAccessed).Seconds()
		if idle < 0 {
			idle = 0
		}
		score := idle / entry.Priority
		if victimEntry == nil || score > worstScore {
			victimKey = signature
			victimEntry = entry
			worstScore = score
		}
	}

	c.removeLocked(victimKey, victimEntry)
	c.evictions++
	return true
}

func (c *ResearchCache) removeLocked(signature string, entry *Entry) {
	delete(c.entries, signature)
	c.sizeBytes -= entry.size
	if c.sizeBytes < 0 {
		c.sizeBytes = 0
	}
}

func (c *ResearchCache) signature(key Key) string {
	parts := []string{
		string(key.Category),
		normalizeQuery(key.Query),
		strings.ToLower(strings.TrimSpace(key.Language)),
		strings.ToLower(strings.TrimSpace(key.Region)),
	}
	joined := strings.Join(parts, "||")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
