package pipeline_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/pipeline"
	"github.com/omnilayer/omnicore/property"
	"github.com/omnilayer/omnicore/tally"
)

type noopAbort struct{ aborted bool }

func (a *noopAbort) AbortNode(string) { a.aborted = true }

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

// Consensus hash must not depend on evaluation order or on call count:
// two independent End calls over identical state produce the same hash.
func TestConsensusHashDeterministic(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 100); err != nil {
		t.Fatalf("credit: %v", err)
	}

	abort := &noopAbort{}
	h1, err := pipeline.End(ictx, abort, 1, 0, false, true)
	if err != nil {
		t.Fatalf("end 1: %v", err)
	}
	h2, err := pipeline.End(ictx, abort, 1, 0, false, true)
	if err != nil {
		t.Fatalf("end 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("consensus hash changed across identical End calls: %x vs %x", h1, h2)
	}
	if abort.aborted {
		t.Fatalf("abort called unexpectedly")
	}

	if err := ictx.Tally.Credit("bob", propID, omni.Available, 1); err != nil {
		t.Fatalf("credit: %v", err)
	}
	h3, err := pipeline.End(ictx, abort, 2, 0, false, true)
	if err != nil {
		t.Fatalf("end 3: %v", err)
	}
	if h3 == h1 {
		t.Fatalf("consensus hash did not change after a tally mutation")
	}
}

// A checkpoint taken at a checkpoint-cadence height must be retrievable
// afterwards with a matching hash.
func TestCheckpointRoundTrip(t *testing.T) {
	ictx := newTestContext(t)
	mustCreateProperty(t, ictx, "issuer", 1)

	abort := &noopAbort{}
	hash, err := pipeline.End(ictx, abort, 100, 0, false, true)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if abort.aborted {
		t.Fatalf("abort called unexpectedly")
	}

	height, got, _, found, err := pipeline.LatestCheckpointAtOrBelow(ictx, 150)
	if err != nil {
		t.Fatalf("latest checkpoint: %v", err)
	}
	if !found {
		t.Fatalf("expected a checkpoint at or below 150")
	}
	if height != 100 {
		t.Fatalf("expected checkpoint height 100, got %d", height)
	}
	if got != hash {
		t.Fatalf("checkpoint hash mismatch: stored %x, recorded %x", got, hash)
	}

	_, _, _, found, err = pipeline.LatestCheckpointAtOrBelow(ictx, 50)
	if err != nil {
		t.Fatalf("latest checkpoint below 50: %v", err)
	}
	if found {
		t.Fatalf("did not expect a checkpoint below height 100")
	}
}

// A checkpoint mismatch at a hard-coded height must abort the node and
// return an error rather than silently continuing.
func TestCheckpointMismatchAborts(t *testing.T) {
	ictx := newTestContext(t)
	mustCreateProperty(t, ictx, "issuer", 1)
	ictx.Params = &dagparams.Params{
		Name:                "checkpointed",
		RelaxedScriptGating: true,
		Checkpoints: []dagparams.Checkpoint{
			{Height: 5, Hash: [32]byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}

	abort := &noopAbort{}
	_, err := pipeline.End(ictx, abort, 5, 0, false, true)
	if err == nil {
		t.Fatalf("expected a checkpoint mismatch error")
	}
	if !abort.aborted {
		t.Fatalf("expected AbortNode to be called on checkpoint mismatch")
	}
}

func activationBody(featureID, version uint16, liveBlock uint64) []byte {
	return payload.NewWriter().Uint16(featureID).Uint16(version).Uint64(liveBlock).Bytes()
}

// A feature scheduled for a future block is not active until Begin runs
// at that height.
func TestFeatureActivation(t *testing.T) {
	ictx := newTestContext(t)

	mtx := &parser.MetaTx{
		Sender: dagparams.Exodus.Test,
		Type:   interpreter.TypeActivation,
		Body:   activationBody(7, 1, 10),
		Block:  5,
	}
	if err := interpreter.Apply(ictx, mtx); err != nil {
		t.Fatalf("apply activation: %v", err)
	}

	if _, active := pipeline.FeatureActive(ictx, 7); active {
		t.Fatalf("feature should not be active before its live block")
	}

	if err := pipeline.Begin(ictx, 10); err != nil {
		t.Fatalf("begin: %v", err)
	}

	version, active := pipeline.FeatureActive(ictx, 7)
	if !active {
		t.Fatalf("feature should be active at its live block")
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

// A tx with no resolvable meta-payload (ordinary host transaction) must be
// silently skipped rather than recorded invalid.
func TestProcessTxSkipsOrdinaryTransactions(t *testing.T) {
	ictx := newTestContext(t)
	tx := host.Tx{ID: "plain", Outputs: []host.Output{{Script: host.Script{Type: host.ScriptUnknown}}}}
	coins := fakeCoinView{}
	if err := pipeline.ProcessTx(ictx, tx, 1, 0, coins); err != nil {
		t.Fatalf("process ordinary tx: %v", err)
	}
}

type fakeCoinView struct{}

func (fakeCoinView) GetOutput(host.OutPoint) (host.Output, bool, uint64, bool) {
	return host.Output{}, false, 0, false
}
