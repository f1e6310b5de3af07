package suppression

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheUnseededAlwaysMayContain(t *testing.T) {
	cache := NewCache(100)
	assert.False(t, cache.Ready())
	assert.True(t, cache.MayContain("anyone@example.edu"), "unseeded cache must fall through to the store")
}

func TestCacheSeedAndLookup(t *testing.T) {
	cache := NewCache(100)
	cache.Seed([]string{"a@example.edu", "b@example.edu"})

	assert.True(t, cache.Ready())
	assert.True(t, cache.MayContain("a@example.edu"))
	assert.True(t, cache.MayContain("b@example.edu"))
	assert.False(t, cache.MayContain("c@example.edu"))
}

func TestCacheAddAfterSeed(t *testing.T) {
	cache := NewCache(100)
	cache.Seed(nil)

	assert.False(t, cache.MayContain("new@example.edu"))
	cache.Add("new@example.edu")
	assert.True(t, cache.MayContain("new@example.edu"))
}

func TestCacheReseedSwapsSnapshot(t *testing.T) {
	cache := NewCache(100)
	cache.Seed([]string{"old@example.edu"})
	assert.True(t, cache.MayContain("old@example.edu"))

	// The address was removed from the store; the next snapshot no
	// longer carries it and the filter stops matching.
	cache.Seed([]string{"kept@example.edu"})
	assert.False(t, cache.MayContain("old@example.edu"))
	assert.True(t, cache.MayContain("kept@example.edu"))
}

func TestCacheReseedReplaysRecentAdds(t *testing.T) {
	cache := NewCache(100)
	cache.Seed(nil)
	cache.Add("late@example.edu")

	// A snapshot read that predates the add must not erase it.
	cache.Seed(nil)
	assert.True(t, cache.MayContain("late@example.edu"))

	// Once a snapshot includes the address the journal is drained; a
	// later snapshot without it clears the entry.
	cache.Seed(nil)
	assert.False(t, cache.MayContain("late@example.edu"))
}

func TestCacheNormalizesAddresses(t *testing.T) {
	cache := NewCache(100)
	cache.Seed([]string{"Parent@Example.EDU"})
	assert.True(t, cache.MayContain("  parent@example.edu "))
}

func TestCacheNoFalseNegatives(t *testing.T) {
	cache := NewCache(10_000)
	members := make([]string, 10_000)
	for i := range members {
		members[i] = fmt.Sprintf("user%d@example.edu", i)
	}
	cache.Seed(members)

	for _, m := range members {
		if !cache.MayContain(m) {
			t.Fatalf("false negative for seeded address %s", m)
		}
	}
}

func TestCacheFalsePositiveRate(t *testing.T) {
	cache := NewCache(10_000)
	members := make([]string, 10_000)
	for i := range members {
		members[i] = fmt.Sprintf("user%d@example.edu", i)
	}
	cache.Seed(members)

	falsePositives := 0
	const trials = 10_000
	for i := 0; i < trials; i++ {
		if cache.MayContain(fmt.Sprintf("absent%d@other.org", i)) {
			falsePositives++
		}
	}
	// Sized for 0.1%; allow generous slack to keep the test stable.
	assert.Less(t, falsePositives, trials/100)
}

func TestCacheStats(t *testing.T) {
	cache := NewCache(100)
	cache.Seed([]string{"a@example.edu"})

	cache.MayContain("a@example.edu")
	cache.MayContain("missing@example.edu")

	checks, shortCircuits := cache.Stats()
	assert.Equal(t, uint64(2), checks)
	assert.Equal(t, uint64(1), shortCircuits)
}
