package call

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "slotgate/pkg/domain-errors"
)

// Address is a 20-byte caller or module identity. The zero value is the null
// identity and is rejected wherever an identity is required.
type Address [20]byte

// Selector identifies an operation: the first four bytes of the Keccak-256
// digest of the operation's canonical signature string.
type Selector [4]byte

// Call is the invocation tuple every inbound request reduces to: who is
// calling, which operation, the opaque argument bytes, and an optional
// value-transfer amount carried through to the executing module.
type Call struct {
	Caller   Address
	Selector Selector
	Args     []byte
	Value    uint64
}

// IsNull reports whether the address is the null identity.
func (a Address) IsNull() bool {
	return a == Address{}
}

// Hex renders the address as 0x-prefixed lowercase hex.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

// ParseAddress decodes a 0x-prefixed 40-digit hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(s, "0x")
	if len(raw) != 2*len(a) {
		return a, dErrors.Newf(dErrors.CodeInvalidArgument, "address must be %d hex digits", 2*len(a))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "malformed address")
	}
	copy(a[:], b)
	return a, nil
}

// Hex renders the selector as 0x-prefixed hex.
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

// ParseSelector decodes a 0x-prefixed 8-digit hex string.
func ParseSelector(raw string) (Selector, error) {
	var s Selector
	trimmed := strings.TrimPrefix(raw, "0x")
	if len(trimmed) != 2*len(s) {
		return s, dErrors.Newf(dErrors.CodeInvalidArgument, "selector must be %d hex digits", 2*len(s))
	}
	b, err := hex.DecodeString(trimmed)
	if err != nil {
		return s, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "malformed selector")
	}
	copy(s[:], b)
	return s, nil
}

// SelectorFor derives the selector for a canonical signature string such as
// "setValue(uint64)". Whitespace inside the signature is not normalized;
// callers are expected to pass the canonical form.
func SelectorFor(signature string) Selector {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var s Selector
	copy(s[:], h.Sum(nil)[:4])
	return s
}
