package reorg_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/pipeline"
	"github.com/omnilayer/omnicore/property"
	"github.com/omnilayer/omnicore/reorg"
	"github.com/omnilayer/omnicore/tally"
)

type noopAbort struct{ aborted bool }

func (a *noopAbort) AbortNode(string) { a.aborted = true }

type fakeCoinView struct{}

func (fakeCoinView) GetOutput(host.OutPoint) (host.Output, bool, uint64, bool) {
	return host.Output{}, false, 0, false
}

func newTestContext(t *testing.T) *interpreter.Context {
	t.Helper()
	db, err := leveldb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &interpreter.Context{
		DB:     dbaccess.NewContext(db),
		Tally:  tally.New(),
		Params: dagparams.Regtest,
	}
}

func mustCreateProperty(t *testing.T, ictx *interpreter.Context, issuer omni.Address, block uint64) omni.PropertyId {
	t.Helper()
	id, err := property.Create(ictx.DB, omni.EcosystemMain, &property.Entry{
		Issuer: issuer,
		Kind:   omni.Divisible,
		Name:   "TEST",
		Flags:  property.Flags{Fixed: true},
	}, "seed-tx", block)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return id
}

// Disconnecting a block with no freeze-related transaction and a prior
// checkpoint restores the ledger from that checkpoint rather than forcing
// a full rescan, and the resulting consensus hash matches the checkpoint
// exactly (idempotent disconnect/reconnect).
func TestReconcileRestoresFromCheckpoint(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}

	abort := &noopAbort{}
	checkpointHash, err := pipeline.End(ictx, abort, 100, 0, false, true)
	if err != nil {
		t.Fatalf("end at checkpoint: %v", err)
	}

	// Blocks 101-105 mutate state further.
	if err := ictx.Tally.Credit("bob", propID, omni.Available, 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := pipeline.End(ictx, abort, 105, 0, false, true); err != nil {
		t.Fatalf("end at 105: %v", err)
	}

	ctrl := reorg.New()
	block := host.Block{Height: 105, Txs: nil}
	ctrl.OnBlockDisconnected(ictx, block, fakeCoinView{})
	if !ctrl.PendingDisconnect() {
		t.Fatalf("expected a pending disconnect")
	}

	if err := ctrl.Reconcile(ictx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if ctrl.PendingDisconnect() {
		t.Fatalf("reconcile should clear the pending flag")
	}

	if got := ictx.Tally.Bucket("bob", propID, omni.Available); got != 0 {
		t.Fatalf("expected bob's post-checkpoint credit to be rolled back, got %d", got)
	}
	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 100 {
		t.Fatalf("expected alice's checkpointed balance to survive, got %d", got)
	}

	replayedHash, err := pipeline.End(ictx, abort, 100, 0, false, true)
	if err != nil {
		t.Fatalf("end after restore: %v", err)
	}
	if replayedHash != checkpointHash {
		t.Fatalf("consensus hash after restore (%x) does not match the original checkpoint (%x)", replayedHash, checkpointHash)
	}
}

// A disconnect range that carries a freeze-related transaction forces a
// full rescan regardless of any available checkpoint.
func TestReconcileForcesFullRescanOnFreeze(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}
	abort := &noopAbort{}
	if _, err := pipeline.End(ictx, abort, 100, 0, false, true); err != nil {
		t.Fatalf("end: %v", err)
	}

	body := payload.NewWriter().Bytes()
	header := payload.NewWriter()
	payload.WriteHeader(header, payload.Header{Version: 0, Type: interpreter.TypeEnableFreezing})
	raw := append(header.Bytes(), body...)

	ctrl := reorg.New()
	tx := host.Tx{
		ID:     "freeze-tx",
		Inputs: []host.Input{{PrevOut: host.OutPoint{TxID: "seed", Index: 0}}},
		Outputs: []host.Output{
			{Script: host.Script{Type: host.ScriptNullData, Data: [][]byte{payload.EncodeClassC(raw)}}},
		},
	}
	block := host.Block{Height: 105, Txs: []host.Tx{tx}}
	ctrl.OnBlockDisconnected(ictx, block, freezeCoinView{sender: "issuer"})

	if err := ctrl.Reconcile(ictx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 0 {
		t.Fatalf("expected a full rescan to wipe the tally, got %d", got)
	}
}

// freezeCoinView resolves every input to a single permitted sender so the
// parser can classify the transaction's payload type.
type freezeCoinView struct{ sender omni.Address }

func (f freezeCoinView) GetOutput(host.OutPoint) (host.Output, bool, uint64, bool) {
	return host.Output{Script: host.Script{Type: host.ScriptPubKeyHash, Address: f.sender}, Value: 1}, false, 0, true
}
