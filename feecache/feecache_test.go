package feecache_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/feecache"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/tally"
)

func newTestContext(t *testing.T) *dbaccess.Context {
	t.Helper()
	db, err := leveldb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return dbaccess.NewContext(db)
}

func TestThresholdHasAFloorOfOne(t *testing.T) {
	if got := feecache.Threshold(1); got != 1 {
		t.Fatalf("expected a floor of 1, got %d", got)
	}
	want := omni.Amount(10 * dagparams.FeeDistributionThreshold)
	if got := feecache.Threshold(want * 100); got != want*100/dagparams.FeeDistributionThreshold {
		t.Fatalf("unexpected threshold: %d", got)
	}
}

// Fees accumulate below the distribution threshold without touching the
// ledger, then distribute proportionally to main-token holders once the
// threshold is crossed, resetting the cache to zero.
func TestAddFeeAccumulatesThenDistributes(t *testing.T) {
	const property omni.PropertyId = 3 // main ecosystem
	ctx := newTestContext(t)
	ledger := tally.New()

	totalTokens := omni.Amount(dagparams.FeeDistributionThreshold * 10)
	if err := ledger.Credit("alice", omni.PropertyIdMain, omni.Available, 3*totalTokens/4); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	if err := ledger.Credit("bob", omni.PropertyIdMain, omni.Available, totalTokens/4); err != nil {
		t.Fatalf("seed bob: %v", err)
	}

	threshold := feecache.Threshold(totalTokens)

	distributed, err := feecache.AddFee(ctx, ledger, property, threshold-1, 1, totalTokens)
	if err != nil {
		t.Fatalf("add fee below threshold: %v", err)
	}
	if distributed != 0 {
		t.Fatalf("expected no distribution below threshold, got %d", distributed)
	}
	if got, err := feecache.Latest(ctx, property); err != nil || got != threshold-1 {
		t.Fatalf("expected cache to hold %d, got %d (err %v)", threshold-1, got, err)
	}

	distributed, err = feecache.AddFee(ctx, ledger, property, 2, 2, totalTokens)
	if err != nil {
		t.Fatalf("add fee crossing threshold: %v", err)
	}
	if distributed == 0 {
		t.Fatalf("expected distribution once the threshold is crossed")
	}
	if got, err := feecache.Latest(ctx, property); err != nil || got != 0 {
		t.Fatalf("expected cache reset to 0 after distribution, got %d (err %v)", got, err)
	}

	aliceShare := ledger.Bucket("alice", property, omni.Available)
	bobShare := ledger.Bucket("bob", property, omni.Available)
	if aliceShare == 0 || bobShare == 0 {
		t.Fatalf("expected both holders credited, got alice=%d bob=%d", aliceShare, bobShare)
	}
	if aliceShare <= bobShare {
		t.Fatalf("expected alice's 3x larger main-token holding to earn a larger share: alice=%d bob=%d", aliceShare, bobShare)
	}
}

func TestAddFeeRejectsNonPositiveAmounts(t *testing.T) {
	ctx := newTestContext(t)
	ledger := tally.New()
	if _, err := feecache.AddFee(ctx, ledger, 3, 0, 1, 1000); err == nil {
		t.Fatalf("expected an error for a zero fee amount")
	}
	if _, err := feecache.AddFee(ctx, ledger, 3, -1, 1, 1000); err == nil {
		t.Fatalf("expected an error for a negative fee amount")
	}
}

// RollbackAbove deletes cache and history entries at or above the given
// block, leaving earlier entries (and their effect on the cache's latest
// reading) intact.
func TestRollbackAboveDropsRecentEntries(t *testing.T) {
	const property omni.PropertyId = 3
	ctx := newTestContext(t)
	ledger := tally.New()

	if _, err := feecache.AddFee(ctx, ledger, property, 10, 1, 10_000_000); err != nil {
		t.Fatalf("add fee at block 1: %v", err)
	}
	if _, err := feecache.AddFee(ctx, ledger, property, 5, 5, 10_000_000); err != nil {
		t.Fatalf("add fee at block 5: %v", err)
	}

	if err := feecache.RollbackAbove(ctx, 5); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	got, err := feecache.Latest(ctx, property)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got != 10 {
		t.Fatalf("expected the block-1 cumulative total of 10 to survive, got %d", got)
	}
}
