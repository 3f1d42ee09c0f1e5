package property_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/property"
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

func TestCreateGetUpdate(t *testing.T) {
	ctx := openCtx(t)
	id, err := property.Create(ctx, omni.EcosystemMain, &property.Entry{
		Issuer: "alice",
		Kind:   omni.Divisible,
		Name:   "USDT",
		Flags:  property.Flags{Fixed: true},
	}, "tx1", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 3 {
		t.Fatalf("first main-ecosystem id = %d, want 3", id)
	}

	entry, err := property.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Issuer != "alice" || entry.Name != "USDT" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	updated := entry.Clone()
	updated.Issuer = "bob"
	if err := property.Update(ctx, id, updated, 200); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := property.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Issuer != "bob" {
		t.Fatalf("issuer after update = %q, want bob", got.Issuer)
	}

	issuerAt150, err := property.GetIssuerAt(ctx, id, 150)
	if err != nil {
		t.Fatalf("issuer at 150: %v", err)
	}
	if issuerAt150 != "alice" {
		t.Fatalf("issuer at block 150 = %q, want alice", issuerAt150)
	}
	issuerAt250, err := property.GetIssuerAt(ctx, id, 250)
	if err != nil {
		t.Fatalf("issuer at 250: %v", err)
	}
	if issuerAt250 != "bob" {
		t.Fatalf("issuer at block 250 = %q, want bob", issuerAt250)
	}
}

func TestFabricatedEntries(t *testing.T) {
	ctx := openCtx(t)
	main, err := property.Get(ctx, omni.PropertyIdMain)
	if err != nil {
		t.Fatalf("get main: %v", err)
	}
	if main.Kind != omni.Divisible {
		t.Fatalf("fabricated main entry kind = %v, want Divisible", main.Kind)
	}
}

func TestFindByTx(t *testing.T) {
	ctx := openCtx(t)
	id, err := property.Create(ctx, omni.EcosystemMain, &property.Entry{Issuer: "alice"}, "creationtx", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, ok, err := property.FindByTx(ctx, "creationtx")
	if err != nil || !ok {
		t.Fatalf("find by tx: ok=%v err=%v", ok, err)
	}
	if got != id {
		t.Fatalf("find by tx = %d, want %d", got, id)
	}
}

func TestRollbackAboveDeletesFreshlyCreated(t *testing.T) {
	ctx := openCtx(t)
	id, err := property.Create(ctx, omni.EcosystemMain, &property.Entry{Issuer: "alice"}, "tx1", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := property.RollbackAbove(ctx, 100); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := property.Get(ctx, id); err == nil {
		t.Fatal("expected property to be gone after rollback of its creation block")
	}
	if _, ok, err := property.FindByTx(ctx, "tx1"); err != nil || ok {
		t.Fatalf("tx-lookup should be gone: ok=%v err=%v", ok, err)
	}
}

func TestRollbackAboveRestoresPriorVersion(t *testing.T) {
	ctx := openCtx(t)
	id, err := property.Create(ctx, omni.EcosystemMain, &property.Entry{Issuer: "alice", Name: "v1"}, "tx1", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := property.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	updated.Name = "v2"
	if err := property.Update(ctx, id, updated, 200); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := property.RollbackAbove(ctx, 200); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	got, err := property.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after rollback: %v", err)
	}
	if got.Name != "v1" {
		t.Fatalf("name after rollback = %q, want v1", got.Name)
	}
}
