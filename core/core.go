// Package core wires every subsystem into the handful of entry points the
// host drives (spec §5's "thread a single context through the entry
// points"): OnBlockConnected/OnBlockDisconnected advance or unwind the
// block pipeline, OnTxAdded/OnTxRemoved track pending mempool payloads,
// and ShutdownRequested/RequestShutdown implement the cooperative
// shutdown poll. Grounded on the top-level `kaspad` wrapper struct in
// `kaspad.go` (owns every subsystem, exposes idempotent `start`/`stop`
// guarded by atomic flags), here the "subsystems" are the tally,
// property registry, NFT store, fee cache and block pipeline instead of
// the p2p/RPC/mempool stack, so `start`/`stop` shrink to a shutdown
// latch with nothing externally long-running to launch.
package core

import (
	"sync/atomic"
	"time"

	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/logs"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/pipeline"
	"github.com/omnilayer/omnicore/reorg"
	"github.com/omnilayer/omnicore/util/locks"
	"github.com/omnilayer/omnicore/util/panics"
)

var log, _ = logs.Get(logs.Tags.CORE)
var spawn = panics.GoroutineWrapperFunc(log)

// Context owns the core's live state and is the single value the host's
// callbacks are registered against (spec §5 Design Notes). One Context is
// built per running node.
type Context struct {
	ictx  *interpreter.Context
	chain host.ChainView
	abort host.AbortHook
	hook  *reorg.Controller
	seen  *payload.MarkerCache

	overrideStoreSuppression bool

	started, shutdown int32
	shutdownRequested int32

	progressWG   locks.WaitGroup
	progressStop chan struct{}
}

// New builds a Context ready to process blocks. ictx must already carry a
// DB handle, a tally ledger, and network Params (interpreter.Context);
// chain and abort are the host's collaborator interfaces (spec §6.3).
// overrideStoreSuppression mirrors -omniskipstoringstate (spec §6.4).
func New(ictx *interpreter.Context, chain host.ChainView, abort host.AbortHook, overrideStoreSuppression bool) *Context {
	return &Context{
		ictx:                     ictx,
		chain:                    chain,
		abort:                    abort,
		hook:                     reorg.New(),
		seen:                     payload.NewMarkerCache(),
		overrideStoreSuppression: overrideStoreSuppression,
	}
}

// Start marks the context as running. Idempotent, matching `kaspad.go`'s
// atomic-guarded `kaspad.start`.
func (c *Context) Start() {
	if atomic.AddInt32(&c.started, 1) != 1 {
		return
	}
	log.Infof("core started")
}

// StartProgressTicker spawns a goroutine that logs the current mempool
// pending count every interval, implementing -omniprogressfrequency (spec
// §6.4). It is the one piece of core allowed to run concurrently with the
// host's single-threaded callback stream: it only reads state, never
// mutates it. Stop waits for it to exit before returning, grounded on
// kaspad.go's spawn/WaitGroup shutdown-ordering idiom (see
// protocol/handshake.go's use of util/locks.WaitGroup in the retrieved
// pack).
func (c *Context) StartProgressTicker(interval time.Duration) {
	if interval <= 0 {
		return
	}
	c.progressStop = make(chan struct{})
	c.progressWG.Add()
	spawn(func() {
		defer c.progressWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				log.Infof("pending mempool transactions: %d", c.PendingCount())
			case <-c.progressStop:
				return
			}
		}
	})
}

// Stop marks the context as shut down. Idempotent.
func (c *Context) Stop() error {
	if atomic.AddInt32(&c.shutdown, 1) != 1 {
		log.Infof("core is already shutting down")
		return nil
	}
	log.Warnf("core shutting down")
	if c.progressStop != nil {
		close(c.progressStop)
		c.progressWG.Wait()
	}
	return nil
}

// RequestShutdown sets the cooperative shutdown flag block processing
// polls at each tx boundary (spec §5 "Cancellation/timeouts").
func (c *Context) RequestShutdown() {
	atomic.StoreInt32(&c.shutdownRequested, 1)
}

// ShutdownRequested implements host.ShutdownPoll.
func (c *Context) ShutdownRequested() bool {
	return atomic.LoadInt32(&c.shutdownRequested) != 0
}

// OnBlockConnected runs the block pipeline for block, stopping at the next
// tx boundary if a shutdown has been requested (spec §5). Any mutations
// made before the stop are discarded by never being persisted, the next
// startup resumes from the last checkpoint, per the persistence
// discipline spec §5 describes.
func (c *Context) OnBlockConnected(block host.Block, coins host.CoinView) error {
	if c.ShutdownRequested() {
		return nil
	}
	_, err := pipeline.ProcessBlock(c.ictx, c.hook, c.abort, block, coins, c.chain.IsInitialSync(), c.overrideStoreSuppression)
	if err != nil {
		return err
	}
	c.seen.ClearIncluded(includedTxIDs(block))
	return nil
}

// OnBlockDisconnected records the disconnect with the reorg controller
// (spec §4.9); the pending state is reconciled by the next
// OnBlockConnected's call into the pipeline.
func (c *Context) OnBlockDisconnected(block host.Block, coins host.CoinView) {
	c.hook.OnBlockDisconnected(c.ictx, block, coins)
}

// OnTxAdded is the callback a host.MempoolNotifier driver invokes on mempool
// admission: a transaction carrying a detected Class-C payload marker is
// remembered as pending (spec §4.5).
// Class-B detection needs a resolved sender address the mempool
// notification doesn't carry, so only Class-C payloads are recognized at
// this stage, Class-B transactions are still fully interpreted once
// mined, just not tracked as "pending" beforehand.
func (c *Context) OnTxAdded(tx host.Tx) {
	if _, err := payload.Extract(tx, classCOnlyMaxSize, ""); err == nil {
		c.seen.TxAdded(tx.ID)
	}
}

// OnTxRemoved is the callback a host.MempoolNotifier driver invokes on
// mempool eviction.
func (c *Context) OnTxRemoved(tx host.Tx, reason string) {
	c.seen.TxRemoved(tx.ID)
	log.Debugf("mempool tx %s removed: %s", tx.ID, reason)
}

// PendingCount reports how many mempool transactions are currently
// tracked as carrying a meta-protocol payload (an RPC-facing statistic).
func (c *Context) PendingCount() int {
	return c.seen.Len()
}

const classCOnlyMaxSize = 80

func includedTxIDs(block host.Block) []string {
	ids := make([]string, len(block.Txs))
	for i, tx := range block.Txs {
		ids[i] = tx.ID
	}
	return ids
}
