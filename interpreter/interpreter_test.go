package interpreter_test

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
	"github.com/omnilayer/omnicore/property"
	"github.com/omnilayer/omnicore/tally"
)

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

func simpleSendBody(prop omni.PropertyId, amount omni.Amount) []byte {
	return payload.NewWriter().PropertyId(prop).Amount(amount).Bytes()
}

func mustCreateProperty(t *testing.T, ictx *interpreter.Context, issuer omni.Address, block uint64, manual bool) omni.PropertyId {
	t.Helper()
	id, err := property.Create(ictx.DB, omni.EcosystemMain, &property.Entry{
		Issuer: issuer,
		Kind:   omni.Divisible,
		Name:   "TEST",
		Flags:  property.Flags{Fixed: !manual, Manual: manual},
	}, "seed-tx", block)
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	return id
}

// S1, Simple divisible send.
func TestSimpleSend(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1, false)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 100*omni.DivisibleUnit); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	mtx := &parser.MetaTx{
		Sender: "alice", Recipient: "bob", HasRecipient: true,
		Type: interpreter.TypeSimpleSend, Body: simpleSendBody(propID, 20*omni.DivisibleUnit),
		Block: 10, Position: 0, TxID: "tx1",
	}
	if err := interpreter.Apply(ictx, mtx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 80*omni.DivisibleUnit {
		t.Fatalf("alice available = %d, want %d", got, 80*omni.DivisibleUnit)
	}
	if got := ictx.Tally.Bucket("bob", propID, omni.Available); got != 20*omni.DivisibleUnit {
		t.Fatalf("bob available = %d, want %d", got, 20*omni.DivisibleUnit)
	}
}

// S2, Send-to-many with leftover.
func TestSendToMany(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1, false)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 100*omni.DivisibleUnit); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	body := payload.NewWriter().
		PropertyId(propID).
		Uint8(3).
		Uint8(1).Amount(20 * omni.DivisibleUnit).
		Uint8(2).Amount(15 * omni.DivisibleUnit).
		Uint8(4).Amount(30 * omni.DivisibleUnit).
		Bytes()

	outputs := make([]host.Output, 5)
	outputs[1] = host.Output{Script: host.Script{Address: "bob"}}
	outputs[2] = host.Output{Script: host.Script{Address: "carol"}}
	outputs[4] = host.Output{Script: host.Script{Address: "dave"}}

	mtx := &parser.MetaTx{
		Sender: "alice", Type: interpreter.TypeSendToMany, Body: body,
		Outputs: outputs, Block: 10, Position: 0, TxID: "tx2",
	}
	if err := interpreter.Apply(ictx, mtx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 35*omni.DivisibleUnit {
		t.Fatalf("alice available = %d, want %d", got, 35*omni.DivisibleUnit)
	}
	if got := ictx.Tally.Bucket("bob", propID, omni.Available); got != 20*omni.DivisibleUnit {
		t.Fatalf("bob available = %d, want %d", got, 20*omni.DivisibleUnit)
	}
	if got := ictx.Tally.Bucket("carol", propID, omni.Available); got != 15*omni.DivisibleUnit {
		t.Fatalf("carol available = %d, want %d", got, 15*omni.DivisibleUnit)
	}
	if got := ictx.Tally.Bucket("dave", propID, omni.Available); got != 30*omni.DivisibleUnit {
		t.Fatalf("dave available = %d, want %d", got, 30*omni.DivisibleUnit)
	}
}

// S3, Insufficient balance: tx is recorded invalid, no balances move.
func TestSimpleSendInsufficientBalance(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1, false)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 1*omni.DivisibleUnit); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	mtx := &parser.MetaTx{
		Sender: "alice", Recipient: "bob", HasRecipient: true,
		Type: interpreter.TypeSimpleSend, Body: simpleSendBody(propID, 2*omni.DivisibleUnit),
		Block: 10, Position: 0, TxID: "tx3",
	}
	if err := interpreter.Apply(ictx, mtx); err != nil {
		t.Fatalf("apply should record, not fail: %v", err)
	}

	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 1*omni.DivisibleUnit {
		t.Fatalf("alice available changed: got %d, want %d", got, 1*omni.DivisibleUnit)
	}
	if got := ictx.Tally.Bucket("bob", propID, omni.Available); got != 0 {
		t.Fatalf("bob available = %d, want 0", got)
	}
}

// S4, Freeze blocks transfer.
func TestFreezeBlocksTransfer(t *testing.T) {
	ictx := newTestContext(t)
	propID := mustCreateProperty(t, ictx, "issuer", 1, true)
	if err := ictx.Tally.Credit("alice", propID, omni.Available, 10); err != nil {
		t.Fatalf("seed alice: %v", err)
	}

	enableBody := payload.NewWriter().PropertyId(propID).Bytes()
	enable := &parser.MetaTx{
		Sender: "issuer", Type: interpreter.TypeEnableFreezing, Body: enableBody,
		Block: 100, Position: 0, TxID: "tx-enable",
	}
	if err := interpreter.Apply(ictx, enable); err != nil {
		t.Fatalf("enable freezing: %v", err)
	}

	freezeBody := payload.NewWriter().PropertyId(propID).Bytes()
	freeze := &parser.MetaTx{
		Sender: "issuer", Recipient: "alice", HasRecipient: true,
		Type: interpreter.TypeFreezePropertyTokens, Body: freezeBody,
		Block: 150, Position: 0, TxID: "tx-freeze",
	}
	if err := interpreter.Apply(ictx, freeze); err != nil {
		t.Fatalf("freeze tokens: %v", err)
	}

	send := &parser.MetaTx{
		Sender: "alice", Recipient: "bob", HasRecipient: true,
		Type: interpreter.TypeSimpleSend, Body: simpleSendBody(propID, 5),
		Block: 160, Position: 0, TxID: "tx-send",
	}
	if err := interpreter.Apply(ictx, send); err != nil {
		t.Fatalf("apply should record invalid, not fail: %v", err)
	}

	if got := ictx.Tally.Bucket("alice", propID, omni.Available); got != 10 {
		t.Fatalf("alice available = %d, want 10", got)
	}
	if got := ictx.Tally.Bucket("bob", propID, omni.Available); got != 0 {
		t.Fatalf("bob available = %d, want 0", got)
	}
}
