package suppression

import (
	"crypto/md5"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// Cache is a process-local bloom filter over suppressed addresses, used to
// short-circuit the durable store on the overwhelmingly common "not
// suppressed" case.
//
// Semantics are strictly one-sided: MayContain == false means the address
// is definitely not suppressed (provided every suppression has been Added
// since the cache was seeded); MayContain == true means the durable store
// must be consulted. False positives only cost a store read. Removals are
// not reflected -- an unsuppressed address keeps hitting the store, which
// answers correctly.
type Cache struct {
	mu        sync.RWMutex
	bits      []uint64
	size      uint64
	hashCount uint
	ready     atomic.Bool

	// Adds since the last snapshot, replayed into the next one so a
	// suppression landing mid-reseed is never lost.
	recent []addrHash

	// Metrics
	checks     atomic.Uint64
	shortCircs atomic.Uint64
}

// NewCache creates a bloom cache sized for the expected number of
// suppressed addresses at a 0.1% false positive rate.
func NewCache(expected uint64) *Cache {
	if expected == 0 {
		expected = 1000
	}
	const fpRate = 0.001

	// m = -n*ln(p)/(ln 2)^2, k = (m/n)*ln 2
	n := float64(expected)
	m := uint64(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 64 {
		m = 64
	}
	m = ((m + 63) / 64) * 64

	k := uint((float64(m) / n) * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}

	return &Cache{
		bits:      make([]uint64, m/64),
		size:      m,
		hashCount: k,
	}
}

// addrHash is the 16-byte MD5 of a normalized address. Fixed-size arrays
// avoid string-header overhead across millions of entries.
type addrHash [16]byte

func hashAddress(email string) addrHash {
	return md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
}

// Add marks an address as (possibly) suppressed.
func (c *Cache) Add(email string) {
	h := hashAddress(email)
	c.mu.Lock()
	c.setBits(c.bits, h)
	c.recent = append(c.recent, h)
	c.mu.Unlock()
}

// Seed replaces the cache contents with a full snapshot of suppressed
// addresses and marks the cache ready. Until first seeded, MayContain
// always reports true so every lookup falls through to the store.
// Re-seeding swaps the bit set in one step, so addresses removed from
// the store since the last snapshot stop matching and the filter does
// not saturate over time. Adds recorded since the previous snapshot are
// replayed on top in case the snapshot read predates their store write.
func (c *Cache) Seed(emails []string) {
	fresh := make([]uint64, c.size/64)
	for _, e := range emails {
		c.setBits(fresh, hashAddress(e))
	}
	c.mu.Lock()
	for _, h := range c.recent {
		c.setBits(fresh, h)
	}
	c.recent = c.recent[:0]
	c.bits = fresh
	c.mu.Unlock()
	c.ready.Store(true)
}

func (c *Cache) setBits(bits []uint64, h addrHash) {
	for i := uint(0); i < c.hashCount; i++ {
		pos := c.hash(h, i) % c.size
		bits[pos/64] |= 1 << (pos % 64)
	}
}

// Ready reports whether the cache holds a full snapshot.
func (c *Cache) Ready() bool { return c.ready.Load() }

// MayContain tests whether an address might be suppressed. A false return
// is authoritative once the cache is seeded.
func (c *Cache) MayContain(email string) bool {
	c.checks.Add(1)
	if !c.ready.Load() {
		return true
	}

	h := hashAddress(email)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := uint(0); i < c.hashCount; i++ {
		pos := c.hash(h, i) % c.size
		if c.bits[pos/64]&(1<<(pos%64)) == 0 {
			c.shortCircs.Add(1)
			return false
		}
	}
	return true
}

// Stats returns lookup counters for the health endpoint.
func (c *Cache) Stats() (checks, shortCircuits uint64) {
	return c.checks.Load(), c.shortCircs.Load()
}

// hash derives the i-th bit position via double hashing: the two 8-byte
// halves of the MD5 act as independent hashes, h_i = h1 + i*h2.
func (c *Cache) hash(h addrHash, i uint) uint64 {
	h1 := binary.LittleEndian.Uint64(h[:8])
	h2 := binary.LittleEndian.Uint64(h[8:])
	return h1 + uint64(i)*h2
}
