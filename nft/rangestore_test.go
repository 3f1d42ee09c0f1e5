package nft_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/nft"
	"github.com/omnilayer/omnicore/omni"
)

func openCtx(t *testing.T) *dbaccess.Context {
	t.Helper()
	db, err := leveldb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return dbaccess.NewContext(db)
}

const property42 omni.PropertyId = 42

func seedS5(t *testing.T, ctx *dbaccess.Context) {
	t.Helper()
	if _, err := nft.Create(ctx, property42, 100, "alice", nil, 1); err != nil {
		t.Fatalf("seed alice range: %v", err)
	}
	if _, err := nft.Create(ctx, property42, 50, "bob", nil, 1); err != nil {
		t.Fatalf("seed bob range: %v", err)
	}
}

func mustOwner(t *testing.T, ctx *dbaccess.Context, point uint64) omni.Address {
	t.Helper()
	addr, found, err := nft.OwnerOf(ctx, property42, point)
	if err != nil {
		t.Fatalf("owner of %d: %v", point, err)
	}
	if !found {
		t.Fatalf("no owner for token %d", point)
	}
	return addr
}

func TestS5NFTMoveSplitsAndCoalesces(t *testing.T) {
	ctx := openCtx(t)
	seedS5(t, ctx)

	if err := nft.Move(ctx, property42, 40, 60, "alice", "bob", 2); err != nil {
		t.Fatalf("move [40,60]: %v", err)
	}

	for point, want := range map[uint64]omni.Address{
		1: "alice", 39: "alice", 40: "bob", 60: "bob", 61: "alice", 100: "alice", 101: "bob", 150: "bob",
	} {
		if got := mustOwner(t, ctx, point); got != want {
			t.Fatalf("owner of %d = %q, want %q", point, got, want)
		}
	}
	// [40..60] must not have coalesced with the non-adjacent [101..150].
	if addr, _, err := nft.OwnerOf(ctx, property42, 61); err != nil || addr != "alice" {
		t.Fatalf("expected [61..100] to remain with alice, got %q err=%v", addr, err)
	}

	if err := nft.Move(ctx, property42, 61, 100, "alice", "bob", 3); err != nil {
		t.Fatalf("move [61,100]: %v", err)
	}
	for point, want := range map[uint64]omni.Address{
		1: "alice", 39: "alice", 40: "bob", 150: "bob",
	} {
		if got := mustOwner(t, ctx, point); got != want {
			t.Fatalf("after merge, owner of %d = %q, want %q", point, got, want)
		}
	}
}

func TestTotalTokensMatchesCreated(t *testing.T) {
	ctx := openCtx(t)
	seedS5(t, ctx)
	total, err := nft.TotalTokens(ctx, property42)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total != 150 {
		t.Fatalf("total = %d, want 150", total)
	}
}

func TestMoveRejectsWrongOwner(t *testing.T) {
	ctx := openCtx(t)
	seedS5(t, ctx)
	if err := nft.Move(ctx, property42, 1, 10, "bob", "alice", 2); err == nil {
		t.Fatal("expected error moving a range bob does not own")
	}
}

func TestRollbackAboveUndoesMove(t *testing.T) {
	ctx := openCtx(t)
	seedS5(t, ctx)
	if err := nft.Move(ctx, property42, 40, 60, "alice", "bob", 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if err := nft.RollbackAbove(ctx, 2); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if got := mustOwner(t, ctx, 45); got != "alice" {
		t.Fatalf("after rollback, owner of 45 = %q, want alice", got)
	}
	if got := mustOwner(t, ctx, 120); got != "bob" {
		t.Fatalf("after rollback, owner of 120 = %q, want bob", got)
	}
}
