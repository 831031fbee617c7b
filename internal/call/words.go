package call

import (
	"encoding/binary"

	dErrors "slotgate/pkg/domain-errors"
)

// Word is the 32-byte unit in which fixed-size values travel: numeric
// arguments, addresses, flags, and single-word return data.
type Word [32]byte

// Uint64Word encodes v big-endian into the low bytes of a word.
func Uint64Word(v uint64) Word {
	var w Word
	binary.BigEndian.PutUint64(w[24:], v)
	return w
}

// Uint64 decodes the low eight bytes of the word.
func (w Word) Uint64() uint64 {
	return binary.BigEndian.Uint64(w[24:])
}

// AddressWord right-aligns an address in a word.
func AddressWord(a Address) Word {
	var w Word
	copy(w[12:], a[:])
	return w
}

// Address extracts the right-aligned address from a word.
func (w Word) Address() Address {
	var a Address
	copy(a[:], w[12:])
	return a
}

// BoolWord encodes a flag as 0 or 1 in the word's last byte.
func BoolWord(v bool) Word {
	var w Word
	if v {
		w[31] = 1
	}
	return w
}

// Bool reports whether the word is non-zero.
func (w Word) Bool() bool {
	return w != Word{}
}

// Args encodes arguments for a Call: fixed-size values occupy one word each,
// in order. A string argument is raw bytes and must come last; it occupies
// the remainder of the payload.
func Args(values ...any) ([]byte, error) {
	var out []byte
	for i, v := range values {
		switch v := v.(type) {
		case uint64:
			w := Uint64Word(v)
			out = append(out, w[:]...)
		case Address:
			w := AddressWord(v)
			out = append(out, w[:]...)
		case bool:
			w := BoolWord(v)
			out = append(out, w[:]...)
		case string:
			if i != len(values)-1 {
				return nil, dErrors.New(dErrors.CodeInvalidArgument, "string argument must be last")
			}
			out = append(out, v...)
		default:
			return nil, dErrors.Newf(dErrors.CodeInvalidArgument, "unsupported argument type %T", v)
		}
	}
	return out, nil
}

// ArgReader decodes an argument payload in declaration order. Each method
// consumes its bytes and fails with InvalidArgument when the payload is short.
type ArgReader struct {
	buf []byte
}

func NewArgReader(args []byte) *ArgReader {
	return &ArgReader{buf: args}
}

func (r *ArgReader) word() (Word, error) {
	var w Word
	if len(r.buf) < len(w) {
		return w, dErrors.New(dErrors.CodeInvalidArgument, "argument payload too short")
	}
	copy(w[:], r.buf[:len(w)])
	r.buf = r.buf[len(w):]
	return w, nil
}

func (r *ArgReader) Uint64() (uint64, error) {
	w, err := r.word()
	if err != nil {
		return 0, err
	}
	return w.Uint64(), nil
}

func (r *ArgReader) Address() (Address, error) {
	w, err := r.word()
	if err != nil {
		return Address{}, err
	}
	return w.Address(), nil
}

// String consumes the remainder of the payload as raw bytes.
func (r *ArgReader) String() string {
	s := string(r.buf)
	r.buf = nil
	return s
}
