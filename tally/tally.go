// Package tally implements the in-memory balance ledger (spec §4.2):
// address → property → four balance buckets. Grounded structurally on the
// stage/commit pattern of domain/consensus/datastructures/multisetstore (an
// in-memory staging area whose Commit(dbTx) flushes to the checkpoint
// store), adapted here from per-block multiset hashes to per-address
// balances. The spec's "recursive mutex protects the tally" has no Go
// equivalent (sync.Mutex is not reentrant); since all mutation already runs
// through the single block pipeline and never re-enters, a plain
// sync.RWMutex is sufficient. Reads from other goroutines (RPC, consensus
// hash queries) take RLock.
package tally

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// ErrInsufficientBalance is returned by Debit/Move when the bucket does not
// hold enough to satisfy the request.
var ErrInsufficientBalance = errors.New("insufficient balance")

// balances holds the four buckets for one (address, property) pair.
type balances [4]omni.Amount

// Ledger is the live tally: address → property → balances. Safe for
// concurrent read access; all writes must come from the single block
// pipeline goroutine.
type Ledger struct {
	mu   sync.RWMutex
	data map[omni.Address]map[omni.PropertyId]*balances
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{data: make(map[omni.Address]map[omni.PropertyId]*balances)}
}

func (l *Ledger) bucketsLocked(addr omni.Address, property omni.PropertyId) *balances {
	byProperty, ok := l.data[addr]
	if !ok {
		byProperty = make(map[omni.PropertyId]*balances)
		l.data[addr] = byProperty
	}
	b, ok := byProperty[property]
	if !ok {
		b = &balances{}
		byProperty[property] = b
	}
	return b
}

// Get returns the four buckets for (address, property); all zero if never
// touched. Does not allocate an entry.
func (l *Ledger) Get(addr omni.Address, property omni.PropertyId) (available, sellOffer, acceptReserve, metaDExReserve omni.Amount) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byProperty, ok := l.data[addr]
	if !ok {
		return 0, 0, 0, 0
	}
	b, ok := byProperty[property]
	if !ok {
		return 0, 0, 0, 0
	}
	return b[omni.Available], b[omni.SellOffer], b[omni.AcceptReserve], b[omni.MetaDExReserve]
}

// Bucket returns the single bucket value for (address, property, kind).
func (l *Ledger) Bucket(addr omni.Address, property omni.PropertyId, kind omni.BucketKind) omni.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	byProperty, ok := l.data[addr]
	if !ok {
		return 0
	}
	b, ok := byProperty[property]
	if !ok {
		return 0
	}
	return b[kind]
}

// Credit adds amount to the given bucket. amount must be > 0. Fails with
// omni.ErrAmountOverflow if the bucket would exceed the 63-bit bound.
func (l *Ledger) Credit(addr omni.Address, property omni.PropertyId, kind omni.BucketKind, amount omni.Amount) error {
	if amount <= 0 {
		return errors.WithStack(omni.ErrAmountRange)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketsLocked(addr, property)
	sum, err := omni.AddAmount(b[kind], amount)
	if err != nil {
		return err
	}
	b[kind] = sum
	return nil
}

// Debit subtracts amount from the given bucket. amount must be > 0. Fails
// with ErrInsufficientBalance if the bucket would go negative; the bucket
// is left unchanged on failure.
func (l *Ledger) Debit(addr omni.Address, property omni.PropertyId, kind omni.BucketKind, amount omni.Amount) error {
	if amount <= 0 {
		return errors.WithStack(omni.ErrAmountRange)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketsLocked(addr, property)
	if b[kind] < amount {
		return errors.WithStack(ErrInsufficientBalance)
	}
	b[kind] -= amount
	return nil
}

// Move atomically debits fromBucket and credits toBucket on the same
// (address, property). Fails (with no effect) if the debit would fail.
func (l *Ledger) Move(addr omni.Address, property omni.PropertyId, amount omni.Amount, from, to omni.BucketKind) error {
	if amount <= 0 {
		return errors.WithStack(omni.ErrAmountRange)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketsLocked(addr, property)
	if b[from] < amount {
		return errors.WithStack(ErrInsufficientBalance)
	}
	sum, err := omni.AddAmount(b[to], amount)
	if err != nil {
		return err
	}
	b[from] -= amount
	b[to] = sum
	return nil
}

// Total sums every bucket of every address for property. Used by the
// consensus hash and by the NFT/property supply invariants.
func (l *Ledger) Total(property omni.PropertyId) omni.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total omni.Amount
	for _, byProperty := range l.data {
		if b, ok := byProperty[property]; ok {
			for _, v := range b {
				total += v
			}
		}
	}
	return total
}

// Holder is one non-zero-balance address of a property, used by STO-style
// proportional distribution.
type Holder struct {
	Address omni.Address
	Amount  omni.Amount
}

// Holders returns every address with a positive Available balance of
// property, sorted ascending by address for deterministic iteration order.
func (l *Ledger) Holders(property omni.PropertyId) []Holder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var holders []Holder
	for addr, byProperty := range l.data {
		b, ok := byProperty[property]
		if !ok {
			continue
		}
		if b[omni.Available] > 0 {
			holders = append(holders, Holder{Address: addr, Amount: b[omni.Available]})
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Address < holders[j].Address })
	return holders
}

// Entry is one non-zero (address, property, bucket, amount) tuple, used by
// the consensus hash (spec §4.8.1) and by Snapshot/Restore.
type Entry struct {
	Address omni.Address
	Property omni.PropertyId
	Bucket  omni.BucketKind
	Amount  omni.Amount
}

// Entries returns every non-zero bucket across the whole ledger, ordered
// lexicographically on (property, address, bucket), the tie-break the
// consensus hash requires.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var entries []Entry
	for addr, byProperty := range l.data {
		for property, b := range byProperty {
			for kind, amount := range b {
				if amount != 0 {
					entries = append(entries, Entry{Address: addr, Property: property, Bucket: omni.BucketKind(kind), Amount: amount})
				}
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Property != entries[j].Property {
			return entries[i].Property < entries[j].Property
		}
		if entries[i].Address != entries[j].Address {
			return entries[i].Address < entries[j].Address
		}
		return entries[i].Bucket < entries[j].Bucket
	})
	return entries
}

// Snapshot serializes the whole ledger for checkpoint persistence (spec
// §5 "Persistence discipline: state is written to disk only at checkpoint
// blocks"). Encoding is a flat sequence of fixed-width records; order does
// not matter for Restore but Entries' canonical order is used so two
// snapshots of identical state are byte-identical.
func (l *Ledger) Snapshot() []byte {
	entries := l.Entries()
	buf := make([]byte, 0, len(entries)*21)
	var tmp [8]byte
	for _, e := range entries {
		addr := []byte(e.Address)
		binary.BigEndian.PutUint32(tmp[:4], uint32(len(addr)))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, addr...)
		binary.BigEndian.PutUint32(tmp[:4], uint32(e.Property))
		buf = append(buf, tmp[:4]...)
		buf = append(buf, byte(e.Bucket))
		binary.BigEndian.PutUint64(tmp[:8], uint64(e.Amount))
		buf = append(buf, tmp[:8]...)
	}
	return buf
}

// Restore replaces the ledger's contents with a previously-Snapshot'd
// encoding, used when C9 reloads a checkpoint.
func Restore(snapshot []byte) (*Ledger, error) {
	l := New()
	off := 0
	for off < len(snapshot) {
		if off+4 > len(snapshot) {
			return nil, errors.New("tally snapshot: truncated address length")
		}
		addrLen := int(binary.BigEndian.Uint32(snapshot[off : off+4]))
		off += 4
		if off+addrLen+4+1+8 > len(snapshot) {
			return nil, errors.New("tally snapshot: truncated record")
		}
		addr := omni.Address(snapshot[off : off+addrLen])
		off += addrLen
		property := omni.PropertyId(binary.BigEndian.Uint32(snapshot[off : off+4]))
		off += 4
		kind := omni.BucketKind(snapshot[off])
		off++
		amount := omni.Amount(binary.BigEndian.Uint64(snapshot[off : off+8]))
		off += 8
		b := l.bucketsLocked(addr, property)
		b[kind] = amount
	}
	return l, nil
}
