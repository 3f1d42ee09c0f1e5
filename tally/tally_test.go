package tally_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/tally"
)

const (
	alice omni.Address  = "alice"
	bob   omni.Address  = "bob"
	usdt  omni.PropertyId = 31
)

func TestCreditDebit(t *testing.T) {
	l := tally.New()
	if err := l.Credit(alice, usdt, omni.Available, 100*omni.DivisibleUnit); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Debit(alice, usdt, omni.Available, 20*omni.DivisibleUnit); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := l.Bucket(alice, usdt, omni.Available); got != 80*omni.DivisibleUnit {
		t.Fatalf("available = %d, want %d\n%s", got, 80*omni.DivisibleUnit, spew.Sdump(l.Entries()))
	}
}

func TestDebitInsufficientLeavesUnchanged(t *testing.T) {
	l := tally.New()
	must(t, l.Credit(alice, usdt, omni.Available, 1*omni.DivisibleUnit))
	if err := l.Debit(alice, usdt, omni.Available, 2*omni.DivisibleUnit); err == nil {
		t.Fatal("expected insufficient balance error")
	}
	if got := l.Bucket(alice, usdt, omni.Available); got != 1*omni.DivisibleUnit {
		t.Fatalf("balance mutated on failed debit: got %d", got)
	}
}

func TestMoveAtomic(t *testing.T) {
	l := tally.New()
	must(t, l.Credit(alice, usdt, omni.Available, 50))
	if err := l.Move(alice, usdt, 100, omni.Available, omni.SellOffer); err == nil {
		t.Fatal("expected move to fail on insufficient available")
	}
	if got := l.Bucket(alice, usdt, omni.SellOffer); got != 0 {
		t.Fatalf("sell offer bucket mutated on failed move: got %d", got)
	}
	must(t, l.Move(alice, usdt, 50, omni.Available, omni.SellOffer))
	if got := l.Bucket(alice, usdt, omni.Available); got != 0 {
		t.Fatalf("available after move = %d, want 0", got)
	}
	if got := l.Bucket(alice, usdt, omni.SellOffer); got != 50 {
		t.Fatalf("sell offer after move = %d, want 50", got)
	}
}

func TestTotalAndHolders(t *testing.T) {
	l := tally.New()
	must(t, l.Credit(alice, usdt, omni.Available, 100))
	must(t, l.Credit(bob, usdt, omni.Available, 50))
	must(t, l.Credit(alice, usdt, omni.SellOffer, 10))
	if got := l.Total(usdt); got != 160 {
		t.Fatalf("total = %d, want 160", got)
	}
	holders := l.Holders(usdt)
	if len(holders) != 2 || holders[0].Address != alice || holders[1].Address != bob {
		t.Fatalf("unexpected holders: %s", spew.Sdump(holders))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := tally.New()
	must(t, l.Credit(alice, usdt, omni.Available, 100))
	must(t, l.Credit(bob, usdt, omni.MetaDExReserve, 7))
	snap := l.Snapshot()
	restored, err := tally.Restore(snap)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := restored.Bucket(alice, usdt, omni.Available); got != 100 {
		t.Fatalf("restored available = %d, want 100", got)
	}
	if got := restored.Bucket(bob, usdt, omni.MetaDExReserve); got != 7 {
		t.Fatalf("restored metadex reserve = %d, want 7", got)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
