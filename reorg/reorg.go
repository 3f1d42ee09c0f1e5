// Package reorg implements the reorg controller (spec §4.9): when the
// host disconnects a block mid-processing, a pending-disconnect flag, the
// lowest disconnected height and whether any disconnected tx was
// freeze-related are remembered; the next block-connect decides whether
// that freeze flag forces a full rescan,
// or whether the most recent persisted checkpoint can be reloaded and
// replayed forward instead. Grounded on `blockdag`'s orphan/side-chain
// bookkeeping (`addOrphanBlock`/`removeOrphanBlock`/`IsKnownOrphan`):
// here the pending disconnect state accumulates much as `blockdag`
// accumulates pending orphans, and the decision tree is a direct analogue
// of its is-current/restore-UTXO duo deciding how far back state must be
// recomputed.
package reorg

import (
	"sync"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/feecache"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/logs"
	"github.com/omnilayer/omnicore/nft"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/pipeline"
	"github.com/omnilayer/omnicore/property"
	"github.com/omnilayer/omnicore/tally"
	"github.com/pkg/errors"
)

var log, _ = logs.Get(logs.Tags.RORG)

// Controller satisfies pipeline.ReorgHook. One Controller is shared by the
// host's disconnect callback and the block pipeline; its two halves never
// run concurrently since both are driven by the same single-goroutine
// block-processing loop (spec §5), so the mutex here only protects
// against OnBlockDisconnected firing from the host's own callback path.
type Controller struct {
	mu               sync.Mutex
	pending          bool
	disconnectHeight uint64
	freezeSeen       bool
}

// New returns an idle controller with no disconnect pending.
func New() *Controller {
	return &Controller{}
}

// OnBlockDisconnected records that block was disconnected at its height,
// remembering whether any of its transactions were freeze-related (spec
// §4.9's forced-full-rescan trigger). Safe to call multiple times before
// Reconcile runs; the lowest disconnected height and the freeze flag both
// accumulate across calls, covering a multi-block disconnect range.
func (c *Controller) OnBlockDisconnected(ictx *interpreter.Context, block host.Block, coins host.CoinView) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.pending || block.Height < c.disconnectHeight {
		c.disconnectHeight = block.Height
	}
	c.pending = true

	for i, tx := range block.Txs {
		mtx, err := parser.Parse(tx, block.Height, i, coins, ictx.Params)
		if err != nil {
			continue
		}
		if isFreezeRelated(mtx.Type) {
			c.freezeSeen = true
		}
	}
}

func isFreezeRelated(t uint16) bool {
	switch t {
	case interpreter.TypeEnableFreezing, interpreter.TypeDisableFreezing,
		interpreter.TypeFreezePropertyTokens, interpreter.TypeUnfreezePropertyTokens:
		return true
	}
	return false
}

// PendingDisconnect reports whether a disconnect is waiting to be
// reconciled (pipeline.ReorgHook).
func (c *Controller) PendingDisconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Reconcile runs the spec §4.9 decision tree and clears the pending state
// (pipeline.ReorgHook). The block pipeline calls this between
// transactions once PendingDisconnect reports true; after it returns, the
// host is expected to resume feeding blocks starting at whatever tip
// Reconcile left behind (genesis, or the reloaded checkpoint's height).
func (c *Controller) Reconcile(ictx *interpreter.Context) error {
	c.mu.Lock()
	height, freeze := c.disconnectHeight, c.freezeSeen
	c.pending = false
	c.disconnectHeight = 0
	c.freezeSeen = false
	c.mu.Unlock()

	if freeze {
		log.Warnf("freeze-related transaction in disconnected range, forcing full rescan")
		return fullRescan(ictx)
	}

	if height == 0 {
		return fullRescan(ictx)
	}

	cpHeight, _, snapshot, found, err := pipeline.LatestCheckpointAtOrBelow(ictx, height-1)
	if err != nil {
		return err
	}
	if !found {
		log.Warnf("no checkpoint at or below block %d, forcing full rescan", height-1)
		return fullRescan(ictx)
	}
	return restoreFromCheckpoint(ictx, cpHeight, snapshot)
}

// fullRescan implements spec §4.9's "drop everything and rescan from
// genesis": every persisted component is rolled back to empty and the
// in-memory tally is replaced with a fresh ledger.
func fullRescan(ictx *interpreter.Context) error {
	ictx.Tally = tally.New()
	return wipeComponentsAbove(ictx, 0)
}

// restoreFromCheckpoint implements spec §4.9's checkpoint-restore branch:
// reload the tally from its snapshot, then roll every persisted component
// back to the checkpoint height (everything strictly above it is
// discarded, to be replayed forward by the host).
func restoreFromCheckpoint(ictx *interpreter.Context, height uint64, snapshot []byte) error {
	restored, err := tally.Restore(snapshot)
	if err != nil {
		return err
	}
	ictx.Tally = restored
	log.Infof("restored from checkpoint at block %d, replaying forward", height)
	return wipeComponentsAbove(ictx, height+1)
}

// wipeComponentsAbove rolls the property registry, NFT range store, and
// fee cache back to block (their own RollbackAbove already restores the
// most recent historical record below block, or deletes entirely if none
// exists, spec §4.3/§4.4/§4.10), then drops the per-block query logs at
// or above the same height (spec §4.9 step 2's "delete all entries >
// checkpoint-height from the tx-list, trade-list, STO-list").
func wipeComponentsAbove(ictx *interpreter.Context, block uint64) error {
	if err := property.RollbackAbove(ictx.DB, block); err != nil {
		return err
	}
	if err := nft.RollbackAbove(ictx.DB, block); err != nil {
		return err
	}
	if err := feecache.RollbackAbove(ictx.DB, block); err != nil {
		return err
	}
	return dropLogsAbove(ictx, block)
}

func dropLogsAbove(ictx *interpreter.Context, block uint64) error {
	db := ictx.DB.Accessor()
	for _, bucket := range []database.Bucket{dbaccess.TxList, dbaccess.TradeList, dbaccess.STOList} {
		if err := dropDescendingAbove(db, bucket, block); err != nil {
			return err
		}
	}
	return nil
}

// dropDescendingAbove deletes every row in bucket whose leading
// DescendingUint64-encoded block number is >= block. Bucket keys sort in
// descending-height order, so a forward cursor visits candidates from
// highest to lowest and can stop at the first row below the threshold.
func dropDescendingAbove(db database.DataAccessor, bucket database.Bucket, block uint64) error {
	cur, err := db.Cursor(bucket.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	var toDelete [][]byte
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(key) < 8 {
			continue
		}
		height := database.DecodeDescendingUint64(key[:8])
		if height < block {
			break
		}
		toDelete = append(toDelete, append([]byte{}, key...))
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}

	for _, k := range toDelete {
		if err := db.Delete(bucket.Key(k)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
