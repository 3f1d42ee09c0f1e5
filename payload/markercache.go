package payload

import "sync"

// MarkerCache tracks pending mempool transactions whose payload marker has
// been detected, so a later block-connect can recognize and clear them
// (spec §4.5: "on tx-added, if the payload marker is detected, the tx is
// remembered; on block connect, membership is cleared for included txs").
// Grounded on `blockdag`'s orphan-pool bookkeeping
// (`addOrphanBlock`/`removeOrphanBlock`: an in-memory map keyed by id,
// pruned on inclusion), adapted from orphan blocks to pending marker txs.
type MarkerCache struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewMarkerCache returns an empty cache.
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{pending: make(map[string]struct{})}
}

// TxAdded remembers txID if it carries a detected payload marker.
func (c *MarkerCache) TxAdded(txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[txID] = struct{}{}
}

// TxRemoved forgets txID (spec's `tx_removed` notification).
func (c *MarkerCache) TxRemoved(txID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, txID)
}

// IsPending reports whether txID is currently tracked.
func (c *MarkerCache) IsPending(txID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[txID]
	return ok
}

// ClearIncluded removes every id in included, called on block connect
// (spec: "membership is cleared for included txs").
func (c *MarkerCache) ClearIncluded(included []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range included {
		delete(c.pending, id)
	}
}

// Len reports how many transactions are currently pending.
func (c *MarkerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
