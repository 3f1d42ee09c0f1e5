// Package parser implements the transaction parser (spec §4.6): resolves
// sender and reference recipient from a host transaction's inputs/outputs,
// locates and extracts the embedded payload (C5), and produces a typed
// meta-transaction header for the interpreter (C7) to decode further.
// Grounded on `blockdag/validate.go`'s script-engine invocation pattern and
// on the height-gated rule-check style used throughout `blockdag/dag.go`
// (e.g. `validateGasLimit`), pure functions of `(node, block)` returning a
// typed error.
package parser

import (
	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/host"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/payload"
)

// MetaTx is the parser's output: a resolved sender/recipient plus the
// payload's version/type header and remaining type-specific bytes (spec
// §3.1 "Meta-transaction").
type MetaTx struct {
	Sender    omni.Address
	Recipient omni.Address // empty if the payload type designates none
	HasRecipient bool

	Version uint16
	Type    uint16
	Body    []byte // payload bytes after the version/type header

	// Outputs is the transaction's output list, kept for handlers that must
	// resolve more than one destination address (SendToMany's per-index
	// recipients, DEx-1's host-coin payment detection), the parser itself
	// only ever resolves a single reference recipient.
	Outputs []host.Output

	Block    uint64
	Position int
	TxID     string
}

// MaxDataCarrierSize bounds a Class-C payload's total size (host policy;
// spec §4.5). Fixed at a conservative value consistent with standard
// UTXO-chain data-carrier policy (80 bytes including marker).
const MaxDataCarrierSize = 80

// scriptAllowed reports whether a resolved script qualifies a sender or
// recipient at height, per spec §4.6's gating rules.
func scriptAllowed(s host.Script, params *dagparams.Params, height uint64) bool {
	switch s.Type {
	case host.ScriptPubKeyHash:
		return true
	case host.ScriptHash:
		return params.ScriptHashAllowed(height)
	case host.ScriptNullData:
		return params.NullDataAllowed(height)
	default:
		return false
	}
}

// resolveSender implements spec §4.6's sender rule: the address owning
// the first input's spent output whose script type is permitted at this
// height; if multiple inputs resolve to the same address, that address;
// otherwise the one contributing the highest total value (tie-break by
// input index).
func resolveSender(tx host.Tx, coins host.CoinView, params *dagparams.Params, height uint64) (omni.Address, error) {
	type candidate struct {
		addr  omni.Address
		value int64
		index int
	}
	var candidates []candidate
	for i, in := range tx.Inputs {
		out, _, _, found := coins.GetOutput(in.PrevOut)
		if !found {
			continue
		}
		if !scriptAllowed(out.Script, params, height) || out.Script.Address == "" {
			continue
		}
		candidates = append(candidates, candidate{addr: out.Script.Address, value: out.Value, index: i})
	}
	if len(candidates) == 0 {
		return "", errs.New(errs.FamilyGeneral, errs.CodeNoSender, "no input resolves to a permitted sender script")
	}

	totals := make(map[omni.Address]int64)
	firstIndex := make(map[omni.Address]int)
	for _, c := range candidates {
		totals[c.addr] += c.value
		if _, seen := firstIndex[c.addr]; !seen {
			firstIndex[c.addr] = c.index
		}
	}
	if len(totals) == 1 {
		for addr := range totals {
			return addr, nil
		}
	}

	var best omni.Address
	var bestValue int64 = -1
	bestIndex := -1
	for addr, total := range totals {
		idx := firstIndex[addr]
		if total > bestValue || (total == bestValue && idx < bestIndex) {
			best = addr
			bestValue = total
			bestIndex = idx
		}
	}
	return best, nil
}

// resolveRecipient implements spec §4.6's reference-output rule: the first
// output after payloadOutputIndex that decodes to a permitted script type
// and is not the sender.
func resolveRecipient(tx host.Tx, payloadOutputIndex int, sender omni.Address, params *dagparams.Params, height uint64) (omni.Address, bool) {
	for i := payloadOutputIndex + 1; i < len(tx.Outputs); i++ {
		out := tx.Outputs[i]
		if !scriptAllowed(out.Script, params, height) {
			continue
		}
		if out.Script.Address == "" || out.Script.Address == sender {
			continue
		}
		return out.Script.Address, true
	}
	return "", false
}

// payloadOutputIndex finds the index of the Class-C data-carrier output,
// or -1 if the payload came from Class-B (spread across many outputs, no
// single designated index to exclude).
func payloadOutputIndex(tx host.Tx) int {
	for i, out := range tx.Outputs {
		if out.Script.Type == host.ScriptNullData {
			return i
		}
	}
	return -1
}

// Parse turns a host transaction into a MetaTx, or an *errs.TxError if no
// input resolves to a sender whose script type is permitted at this height,
// no embedded payload is found, or the payload header is truncated (spec
// §4.6). A missing reference recipient is reported through HasRecipient,
// and amounts are decoded and range-checked by the interpreter's handlers.
func Parse(tx host.Tx, block uint64, position int, coins host.CoinView, params *dagparams.Params) (*MetaTx, error) {
	sender, err := resolveSender(tx, coins, params, block)
	if err != nil {
		return nil, err
	}

	raw, err := payload.Extract(tx, MaxDataCarrierSize, string(sender))
	if err != nil {
		return nil, errs.New(errs.FamilyGeneral, errs.CodeInvalidPayload, "no embedded payload")
	}

	r := payload.NewReader(raw)
	hdr, err := payload.ReadHeader(r)
	if err != nil {
		return nil, errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated payload header")
	}

	recipient, hasRecipient := resolveRecipient(tx, payloadOutputIndex(tx), sender, params, block)

	return &MetaTx{
		Sender:       sender,
		Recipient:    recipient,
		HasRecipient: hasRecipient,
		Version:      hdr.Version,
		Type:         hdr.Type,
		Body:         raw[4:],
		Outputs:      tx.Outputs,
		Block:        block,
		Position:     position,
		TxID:         tx.ID,
	}, nil
}
