package state

import (
	"context"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Slot is a fixed-width key into the flat persistent store backing a proxy
// instance. Module field layouts occupy the low slots (FieldSlot); the proxy's
// own reserved slots are hash-derived (DerivedSlot) so no declared field can
// collide with them.
type Slot [32]byte

// Hex renders the slot as 0x-prefixed hex, the form published for tooling
// that reads reserved slots out-of-band.
func (s Slot) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// FieldSlot returns the slot for a module's nth declared field. Field order
// is the layout contract: versions may only append fields, never reorder.
func FieldSlot(n uint64) Slot {
	var s Slot
	binary.BigEndian.PutUint64(s[24:], n)
	return s
}

// DerivedSlot returns the Keccak-256 digest of label, minus one (big-endian
// over the full 32 bytes). Subtracting one moves the slot off any value with
// a known hash preimage, so not even a deliberately mischievous field layout
// can land on it without breaking the hash.
func DerivedSlot(label string) Slot {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(label))
	var s Slot
	copy(s[:], h.Sum(nil))
	for i := len(s) - 1; i >= 0; i-- {
		s[i]--
		if s[i] != 0xff {
			break
		}
	}
	return s
}

// Write is one staged slot mutation.
type Write struct {
	Slot  Slot
	Value []byte
}

// Store is a flat slot-to-bytes persistent store for a single proxy instance.
// Get returns sentinel.ErrNotFound for absent slots. Apply commits a batch of
// writes atomically: after a failed Apply no write in the batch is visible.
type Store interface {
	Get(ctx context.Context, slot Slot) ([]byte, error)
	Apply(ctx context.Context, writes []Write) error
}

// Reader is the read-only half of a store view.
type Reader interface {
	Get(ctx context.Context, slot Slot) ([]byte, error)
}

// Mutable is the read-write view an executing invocation sees: staged writes
// layered over committed state. Overlay is the one implementation; the
// interface keeps module code off the commit machinery.
type Mutable interface {
	Get(ctx context.Context, slot Slot) ([]byte, error)
	Set(slot Slot, value []byte)
}

// Factory hands out an isolated Store per proxy instance over one shared
// backing resource (a process map, a Redis hash, a Postgres table).
type Factory interface {
	ForInstance(id string) Store
}
