package state

import "context"

// Overlay buffers an invocation's writes over a base store. Reads see staged
// writes first, then fall through to the base. Nothing reaches the base until
// Commit, which applies the whole buffer as one atomic batch; dropping the
// overlay without committing discards every staged write. This is what makes
// an invocation all-or-nothing.
type Overlay struct {
	base   Store
	writes map[Slot][]byte
	order  []Slot
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, writes: make(map[Slot][]byte)}
}

func (o *Overlay) Get(ctx context.Context, slot Slot) ([]byte, error) {
	if v, ok := o.writes[slot]; ok {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
	return o.base.Get(ctx, slot)
}

// Set stages a write. Staging never fails; failures surface at Commit.
func (o *Overlay) Set(slot Slot, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	if _, ok := o.writes[slot]; !ok {
		o.order = append(o.order, slot)
	}
	o.writes[slot] = v
}

// Dirty reports whether any write is staged.
func (o *Overlay) Dirty() bool {
	return len(o.order) > 0
}

// Commit applies staged writes to the base store in staging order.
func (o *Overlay) Commit(ctx context.Context) error {
	if len(o.order) == 0 {
		return nil
	}
	writes := make([]Write, 0, len(o.order))
	for _, slot := range o.order {
		writes = append(writes, Write{Slot: slot, Value: o.writes[slot]})
	}
	return o.base.Apply(ctx, writes)
}
