// Package host defines the small collaborator interfaces the core
// consumes from the host full node (spec §6.3): a chain view, a coin view,
// mempool notifications, a shutdown poll, and an abort hook. Grounded on
// the `model/externalapi`-style interface boundaries used to separate
// `domain/consensus` from its network layer, and on `netadapter`'s
// callback-registration shape for connect/disconnect events.
package host

import "github.com/omnilayer/omnicore/omni"

// ScriptType is the minimal script classification the parser needs (spec
// §4.6's sender/recipient script-type gating). Scripts themselves are never
// executed or decoded here (that is host-chain signature validation, out
// of scope per spec §1). The host resolves a script to (Type, Address)
// before the core ever sees it; Data is retained only for Class-B
// multisig-chunk extraction (spec §4.5), which reads embedded bytes rather
// than interpreting the script.
type ScriptType byte

// The script types spec §4.6 gates on.
const (
	ScriptUnknown ScriptType = iota
	ScriptPubKeyHash
	ScriptHash
	ScriptNullData
	ScriptMultisig
)

// Script is a single output's (or input's spent-output's) classified
// script.
type Script struct {
	Type ScriptType
	// Address is the resolved owning address for PubKeyHash/ScriptHash
	// scripts; empty otherwise. Resolution (decoding the host's address
	// encoding) happens entirely outside this module.
	Address omni.Address
	// Data carries the raw payload bytes for NullData scripts (Class-C
	// candidates) and the ordered public keys for Multisig scripts
	// (Class-B candidates: Data[0] is the redeemable key, Data[1] the
	// 30-byte chunk embedded as the second key).
	Data [][]byte
}

// OutPoint identifies a previously-created output.
type OutPoint struct {
	TxID  string
	Index uint32
}

// Output is one transaction output.
type Output struct {
	Script Script
	Value  int64
}

// Input is one transaction input.
type Input struct {
	PrevOut OutPoint
}

// Tx is the host transaction shape the parser consumes: enough to resolve
// sender/recipient and locate an embedded payload, nothing more (no
// signatures, no witness data, signature validation is out of scope).
type Tx struct {
	ID      string
	Inputs  []Input
	Outputs []Output
}

// CoinView resolves a previously-created output (spec §6.3).
type CoinView interface {
	GetOutput(outpoint OutPoint) (out Output, coinbase bool, height uint64, found bool)
}

// Block is the minimal per-block shape the chain view and block pipeline
// exchange.
type Block struct {
	Height uint64
	Time   int64
	Txs    []Tx
}

// ChainView is the host's view of chain progress (spec §6.3).
type ChainView interface {
	TipHeight() uint64
	TipTime() int64
	BlockAt(height uint64) (Block, bool)
	ReadBlock(index uint64) (Block, bool)
	IsInitialSync() bool
}

// MempoolNotifier delivers mempool admission/removal events (spec §6.3).
type MempoolNotifier interface {
	TxAdded(tx Tx)
	TxRemoved(tx Tx, reason string)
}

// ShutdownPoll is polled once per iteration of block processing (spec
// §5, §6.3).
type ShutdownPoll interface {
	ShutdownRequested() bool
}

// AbortHook terminates the node on unrecoverable inconsistency (spec
// §6.3, §7).
type AbortHook interface {
	AbortNode(message string)
}
