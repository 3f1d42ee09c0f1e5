package core_test

import (
	"testing"
	"time"

	"github.com/omnilayer/omnicore/core"
	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database/leveldb"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/interpreter"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/tally"
)

type fakeChainView struct{ initialSync bool }

func (f fakeChainView) TipHeight() uint64             { return 0 }
func (f fakeChainView) TipTime() int64                { return 0 }
func (f fakeChainView) BlockAt(uint64) (host.Block, bool) { return host.Block{}, false }
func (f fakeChainView) ReadBlock(uint64) (host.Block, bool) { return host.Block{}, false }
func (f fakeChainView) IsInitialSync() bool           { return f.initialSync }

type fakeCoinView struct{}

func (fakeCoinView) GetOutput(host.OutPoint) (host.Output, bool, uint64, bool) {
	return host.Output{}, false, 0, false
}

type noopAbort struct{}

func (noopAbort) AbortNode(string) {}

func newTestCore(t *testing.T) *core.Context {
	t.Helper()
	db, err := leveldb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ictx := &interpreter.Context{
		DB:     dbaccess.NewContext(db),
		Tally:  tally.New(),
		Params: dagparams.Regtest,
	}
	return core.New(ictx, fakeChainView{}, noopAbort{}, true)
}

func TestShutdownRequestedSkipsBlockProcessing(t *testing.T) {
	c := newTestCore(t)
	c.Start()
	c.RequestShutdown()
	if !c.ShutdownRequested() {
		t.Fatalf("expected shutdown requested")
	}
	if err := c.OnBlockConnected(host.Block{Height: 1}, fakeCoinView{}); err != nil {
		t.Fatalf("on block connected after shutdown: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestOnBlockConnectedProcessesBlock(t *testing.T) {
	c := newTestCore(t)
	c.Start()
	if err := c.OnBlockConnected(host.Block{Height: 1, Time: 1000}, fakeCoinView{}); err != nil {
		t.Fatalf("on block connected: %v", err)
	}
}

func TestPendingMempoolTracking(t *testing.T) {
	c := newTestCore(t)
	raw := payload.EncodeClassC([]byte{0, 0, 0, 0})
	tx := host.Tx{
		ID: "tx1",
		Outputs: []host.Output{
			{Script: host.Script{Type: host.ScriptNullData, Data: [][]byte{raw}}},
		},
	}
	c.OnTxAdded(tx)
	if c.PendingCount() != 1 {
		t.Fatalf("expected 1 pending tx, got %d", c.PendingCount())
	}
	c.OnTxRemoved(tx, "evicted")
	if c.PendingCount() != 0 {
		t.Fatalf("expected 0 pending txs after removal, got %d", c.PendingCount())
	}
}

func TestStopWaitsForProgressTicker(t *testing.T) {
	c := newTestCore(t)
	c.Start()
	c.StartProgressTicker(time.Millisecond)

	// Give the ticker at least one tick before shutting down so Stop has
	// something concrete to wait on.
	time.Sleep(5 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		if err := c.Stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return after the progress ticker should have exited")
	}
}
