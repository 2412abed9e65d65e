package indicators

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotCacheGetSet(t *testing.T) {
	c := NewSnapshotCache(4, time.Minute)

	key := Key("BTCUSDT", 1700000000000, "volume:range_validity")
	_, ok := c.GetFloat(key)
	assert.False(t, ok)

	c.Set(key, 72.5)
	got, ok := c.GetFloat(key)
	assert.True(t, ok)
	assert.Equal(t, 72.5, got)
}

func TestSnapshotCacheEvictsOldest(t *testing.T) {
	c := NewSnapshotCache(3, time.Minute)
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("k%d", i), float64(i))
	}
	assert.Equal(t, 3, c.Len())

	_, ok := c.GetFloat("k0")
	assert.False(t, ok)
	_, ok = c.GetFloat("k4")
	assert.True(t, ok)
}

func TestSnapshotCacheTTL(t *testing.T) {
	c := NewSnapshotCache(4, 10*time.Millisecond)
	c.Set("k", 1.0)
	time.Sleep(25 * time.Millisecond)
	_, ok := c.GetFloat("k")
	assert.False(t, ok)
}

func TestSnapshotCacheNilSafe(t *testing.T) {
	var c *SnapshotCache
	c.Set("k", 1.0)
	_, ok := c.GetFloat("k")
	assert.False(t, ok)
}
