// Package payload implements the protocol payload codec and classifier
// (spec §4.5, §6.1): locating a Class-C or Class-B encoded payload inside a
// host transaction, and the big-endian fixed-width field codec used by
// every typed record. Grounded on `txscript`-style script classification
// (`txscript.GetScriptClass`) for picking out data-carrier vs. multisig
// outputs, and on `wire`'s fixed-width binary reader/writer idiom for the
// field codec (both source packages are deleted after grounding, see
// DESIGN.md).
package payload

import (
	"bytes"
	"crypto/sha256"

	"github.com/omnilayer/omnicore/host"
	"github.com/pkg/errors"
)

// ClassCMarker is the 2-byte marker prepended to a Class-C payload (spec
// §6.1, bit-exact).
var ClassCMarker = [2]byte{0x6F, 0x6D}

// ErrNoPayload is returned when neither Class-C nor Class-B extraction
// finds a usable payload.
var ErrNoPayload = errors.New("payload: no embedded payload found")

// classBChunkSize is the fixed chunk length embedded per multisig output
// (spec §4.5).
const classBChunkSize = 30

// Extract locates and decodes the embedded payload in tx, per spec §4.5:
// "the classifier picks Class-C if present, otherwise Class-B if
// reconstructable, otherwise the tx is ignored." sender is the
// already-resolved address the obfuscation keystream is derived from (the
// parser resolves it before payload extraction runs, using the same rule
// it uses for the meta-transaction's own sender field).
func Extract(tx host.Tx, maxDataCarrierSize int, sender string) ([]byte, error) {
	if p, ok := extractClassC(tx, maxDataCarrierSize); ok {
		return p, nil
	}
	if p, ok := extractClassB(tx, sender); ok {
		return p, nil
	}
	return nil, errors.WithStack(ErrNoPayload)
}

// extractClassC finds a single data-only output carrying the marker
// followed by the raw payload (spec §6.1).
func extractClassC(tx host.Tx, maxDataCarrierSize int) ([]byte, bool) {
	for _, out := range tx.Outputs {
		if out.Script.Type != host.ScriptNullData {
			continue
		}
		if len(out.Script.Data) == 0 {
			continue
		}
		raw := out.Script.Data[0]
		if len(raw) < 2 || raw[0] != ClassCMarker[0] || raw[1] != ClassCMarker[1] {
			continue
		}
		if len(raw) > maxDataCarrierSize {
			continue
		}
		return raw[2:], true
	}
	return nil, false
}

// extractClassB reconstructs a payload split across 1-of-N multisig
// outputs, each carrying a 30-byte obfuscated chunk as the second public
// key (spec §4.5). A size-prefixed byte at the head of the reconstructed
// stream gives the true payload length.
func extractClassB(tx host.Tx, sender string) ([]byte, bool) {
	if sender == "" {
		return nil, false
	}
	keystream := obfuscationKeystream(sender, len(tx.Outputs))

	var chunks [][]byte
	idx := 0
	for _, out := range tx.Outputs {
		if out.Script.Type != host.ScriptMultisig || len(out.Script.Data) < 2 {
			continue
		}
		if idx >= len(keystream) {
			break
		}
		chunk := append([]byte{}, out.Script.Data[1]...)
		if len(chunk) > classBChunkSize {
			chunk = chunk[:classBChunkSize]
		}
		deobfuscate(chunk, keystream[idx])
		idx++
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return nil, false
	}

	full := bytes.Join(chunks, nil)
	if len(full) < 1 {
		return nil, false
	}
	size := int(full[0])
	if size+1 > len(full) {
		return nil, false
	}
	return full[1 : 1+size], true
}

// obfuscationKeystream derives one SHA256 digest per chunk position from
// the sender address, chained (spec §4.5 "XOR-obfuscated with the
// SHA256-derived stream of the sender address"): keystream[0] =
// SHA256(address); keystream[n] = SHA256(keystream[n-1]).
func obfuscationKeystream(address string, chunks int) [][]byte {
	keystream := make([][]byte, chunks)
	h := sha256.Sum256([]byte(address))
	cur := h[:]
	for i := 0; i < chunks; i++ {
		keystream[i] = cur
		next := sha256.Sum256(cur)
		cur = next[:]
	}
	return keystream
}

func deobfuscate(chunk []byte, key []byte) {
	for i := range chunk {
		chunk[i] ^= key[i%len(key)]
	}
}

// EncodeClassC builds the data-carrier output payload for p (marker
// prepended), used by producers and by the round-trip test (spec §8
// testable property #8).
func EncodeClassC(p []byte) []byte {
	out := make([]byte, 0, 2+len(p))
	out = append(out, ClassCMarker[0], ClassCMarker[1])
	return append(out, p...)
}

// EncodeClassB splits p into 30-byte chunks XOR-obfuscated with sender's
// keystream, for producers constructing a Class-B transaction's outputs
// (not exercised by the core's consensus path, which only ever decodes).
func EncodeClassB(p []byte, sender string) [][]byte {
	full := append([]byte{byte(len(p))}, p...)
	numChunks := (len(full) + classBChunkSize - 1) / classBChunkSize
	if numChunks == 0 {
		numChunks = 1
	}
	keystream := obfuscationKeystream(sender, numChunks)
	chunks := make([][]byte, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i * classBChunkSize
		end := start + classBChunkSize
		chunk := make([]byte, classBChunkSize)
		if start < len(full) {
			copy(chunk, full[start:min(end, len(full))])
		}
		deobfuscate(chunk, keystream[i])
		chunks = append(chunks, chunk)
	}
	return chunks
}
