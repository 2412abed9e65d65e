package signal

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/quantflux/confluence/internal/models"
)

// cooldownShards spreads the dedup table so hot symbols on different shards
// never contend on one lock.
const cooldownShards = 16

// CooldownStore remembers when each signal type was last dispatched per
// symbol so repeats inside the cooldown window can be suppressed. Entries
// are independent per type, which is what lets a BUY→SELL flip through
// while a repeat BUY stays suppressed.
type CooldownStore interface {
	// Last returns when the given type was last dispatched for the symbol,
	// and whether an entry exists.
	Last(ctx context.Context, symbol string, t models.SignalType) (time.Time, bool, error)
	// Record stores the dispatch time for the symbol and type.
	Record(ctx context.Context, symbol string, t models.SignalType, at time.Time) error
	Close() error
}

type cooldownShard struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// MemoryCooldownStore is the in-process sharded cooldown table.
type MemoryCooldownStore struct {
	shards [cooldownShards]*cooldownShard
}

// NewMemoryCooldownStore creates an empty in-process store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	s := &MemoryCooldownStore{}
	for i := range s.shards {
		s.shards[i] = &cooldownShard{entries: make(map[string]time.Time)}
	}
	return s
}

// Shard by symbol so both types of one symbol live behind the same lock.
func (s *MemoryCooldownStore) shard(symbol string) *cooldownShard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return s.shards[h.Sum32()%cooldownShards]
}

func cooldownKey(symbol string, t models.SignalType) string {
	return symbol + "|" + string(t)
}

// Last implements CooldownStore.
func (s *MemoryCooldownStore) Last(_ context.Context, symbol string, t models.SignalType) (time.Time, bool, error) {
	sh := s.shard(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	at, ok := sh.entries[cooldownKey(symbol, t)]
	if !ok {
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// Record implements CooldownStore.
func (s *MemoryCooldownStore) Record(_ context.Context, symbol string, t models.SignalType, at time.Time) error {
	sh := s.shard(symbol)
	sh.mu.Lock()
	sh.entries[cooldownKey(symbol, t)] = at
	sh.mu.Unlock()
	return nil
}

// Close implements CooldownStore.
func (s *MemoryCooldownStore) Close() error { return nil }

var _ CooldownStore = (*MemoryCooldownStore)(nil)
