package service

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/avvvet/balance-services/internal/balancesvc/models"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const shardCount = 32

// balanceCache has no eviction: an identity, once seen, stays cached for the
// life of the process. The entry count is watched instead of bounded.
//
// Each shard's mutex is also the exclusion lock for the identities that hash
// to it, and is held across the storage call that goes with a cache change.
type balanceCache struct {
	shards   [shardCount]cacheShard
	size     atomic.Int64
	warnSize int64
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]models.StoredBalance
}

func newBalanceCache(warnSize int) *balanceCache {
	c := &balanceCache{warnSize: int64(warnSize)}
	for i := range c.shards {
		c.shards[i].entries = make(map[uuid.UUID]models.StoredBalance)
	}
	return c
}

func (c *balanceCache) shardFor(id uuid.UUID) *cacheShard {
	h := fnv.New32a()
	h.Write(id[:])
	return &c.shards[h.Sum32()%shardCount]
}

// put stores b in a shard whose lock the caller holds.
func (c *balanceCache) put(sh *cacheShard, b models.StoredBalance) {
	if _, ok := sh.entries[b.User]; !ok {
		n := c.size.Add(1)
		if c.warnSize > 0 && n%c.warnSize == 0 {
			log.Warnf("balance cache holds %d players, entries are never evicted", n)
		}
	}
	sh.entries[b.User] = b
}

func (c *balanceCache) len() int {
	return int(c.size.Load())
}
