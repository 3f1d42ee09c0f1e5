package payload_test

import (
	"testing"

	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/payload"
)

// TestClassCRoundTrip is testable property #8: encode_c(p) then extract
// from the resulting output yields exactly p.
func TestClassCRoundTrip(t *testing.T) {
	p := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x1f, 0x03}
	out := payload.EncodeClassC(p)
	tx := host.Tx{
		Outputs: []host.Output{
			{Script: host.Script{Type: host.ScriptNullData, Data: [][]byte{out}}},
		},
	}
	got, err := payload.Extract(tx, 1024, "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(got) != string(p) {
		t.Fatalf("round trip mismatch: got %x, want %x", got, p)
	}
}

func TestClassBRoundTrip(t *testing.T) {
	p := []byte("hello omni")
	sender := "alice"
	chunks := payload.EncodeClassB(p, sender)

	tx := host.Tx{}
	for _, chunk := range chunks {
		tx.Outputs = append(tx.Outputs, host.Output{
			Script: host.Script{Type: host.ScriptMultisig, Data: [][]byte{{0x02}, chunk}},
		})
	}
	got, err := payload.Extract(tx, 1024, sender)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(got) != string(p) {
		t.Fatalf("class-B round trip mismatch: got %q, want %q", got, p)
	}
}

// TestS2SendToManyPayload exercises scenario S2's exact hex payload from
// spec §8.
func TestS2SendToManyPayload(t *testing.T) {
	raw := []byte{
		0x00, 0x00, 0x00, 0x07, // version=0, type=7
		0x00, 0x00, 0x00, 0x1f, // property=31
		0x03,                                           // count=3
		0x01, 0x00, 0x00, 0x00, 0x00, 0x77, 0x35, 0x94, 0x00, // out#1, 20e8
		0x02, 0x00, 0x00, 0x00, 0x00, 0x59, 0x68, 0x2f, 0x00, // out#2, 15e8
		0x04, 0x00, 0x00, 0x00, 0x00, 0xb2, 0xd0, 0x5e, 0x00, // out#4, 30e8
	}
	stm, err := payload.DecodeSendToMany(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stm.Property != 31 {
		t.Fatalf("property = %d, want 31", stm.Property)
	}
	want := []payload.SendToManyEntry{
		{OutputIndex: 1, Amount: 20 * omni.DivisibleUnit},
		{OutputIndex: 2, Amount: 15 * omni.DivisibleUnit},
		{OutputIndex: 4, Amount: 30 * omni.DivisibleUnit},
	}
	if len(stm.Entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(stm.Entries), len(want))
	}
	for i, e := range want {
		if stm.Entries[i] != e {
			t.Fatalf("entry[%d] = %+v, want %+v", i, stm.Entries[i], e)
		}
	}

	reencoded := stm.Encode()
	if string(reencoded) != string(raw) {
		t.Fatalf("re-encode mismatch: got %x, want %x", reencoded, raw)
	}
}
