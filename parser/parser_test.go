package parser_test

import (
	"testing"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
)

type fakeCoinView struct {
	outputs map[host.OutPoint]host.Output
}

func (f fakeCoinView) GetOutput(op host.OutPoint) (host.Output, bool, uint64, bool) {
	out, ok := f.outputs[op]
	return out, false, 0, ok
}

func TestParseSimpleSend(t *testing.T) {
	prevOut := host.OutPoint{TxID: "prev", Index: 0}
	coins := fakeCoinView{outputs: map[host.OutPoint]host.Output{
		prevOut: {Script: host.Script{Type: host.ScriptPubKeyHash, Address: "alice"}, Value: 10000},
	}}

	body := payload.NewWriter().PropertyId(31).Amount(20 * 100000000).Bytes()
	raw := payload.NewWriter().Uint16(0).Uint16(0).Bytes()
	raw = append(raw, body...)
	classC := payload.EncodeClassC(raw)

	tx := host.Tx{
		ID:     "tx1",
		Inputs: []host.Input{{PrevOut: prevOut}},
		Outputs: []host.Output{
			{Script: host.Script{Type: host.ScriptNullData, Data: [][]byte{classC}}},
			{Script: host.Script{Type: host.ScriptPubKeyHash, Address: "bob"}},
		},
	}

	mtx, err := parser.Parse(tx, 500000, 0, coins, dagparams.Mainnet)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if mtx.Sender != "alice" {
		t.Fatalf("sender = %q, want alice", mtx.Sender)
	}
	if !mtx.HasRecipient || mtx.Recipient != "bob" {
		t.Fatalf("recipient = %q (has=%v), want bob", mtx.Recipient, mtx.HasRecipient)
	}
	if mtx.Type != 0 {
		t.Fatalf("type = %d, want 0", mtx.Type)
	}
}

func TestParseNoSenderWhenScriptDisallowed(t *testing.T) {
	prevOut := host.OutPoint{TxID: "prev", Index: 0}
	coins := fakeCoinView{outputs: map[host.OutPoint]host.Output{
		prevOut: {Script: host.Script{Type: host.ScriptHash, Address: "alice"}, Value: 10000},
	}}
	tx := host.Tx{
		ID:     "tx2",
		Inputs: []host.Input{{PrevOut: prevOut}},
	}
	// Below dagparams.Mainnet.ScriptHashBlock, pay-to-script-hash inputs
	// do not qualify a sender.
	if _, err := parser.Parse(tx, 1, 0, coins, dagparams.Mainnet); err == nil {
		t.Fatal("expected parse error for disallowed script type at low height")
	}
}
