// Package counter holds the reference backend modules: a counter whose V1
// layout is (value, owner, initialized flag) and whose V2 appends a message
// field. The two versions exist to exercise layout-compatible upgrades: V2
// must read the slots V1 wrote.
package counter

import (
	"context"
	"errors"

	"slotgate/internal/backend"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/state"
	dErrors "slotgate/pkg/domain-errors"
	"slotgate/pkg/platform/sentinel"
)

// Field layout, V1. Append-only: V2 adds fields strictly after these.
// Reordering or retyping any of them would misinterpret stored state.
const (
	fieldValue       = 0
	fieldOwner       = 1
	fieldInitialized = 2
)

var (
	selInitialize = call.SelectorFor("initialize(uint64)")
	selSetValue   = call.SelectorFor("setValue(uint64)")
	selIncrement  = call.SelectorFor("increment()")
	selGetValue   = call.SelectorFor("getValue()")
	selGetVersion = call.SelectorFor("getVersion()")
	selOwner      = call.SelectorFor("owner()")
)

// V1 is the first counter version.
type V1 struct{}

func NewV1() *V1 {
	return &V1{}
}

// Version is the fixed literal getVersion() returns for this module.
func (*V1) Version() string { return "V1" }

func (m *V1) Invoke(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	switch c.Selector {
	case selInitialize:
		return m.initialize(ctx, c, env)
	case selSetValue:
		return m.setValue(ctx, c, env)
	case selIncrement:
		return m.increment(ctx, c, env)
	case selGetValue:
		return readWord(ctx, env.Store, fieldValue)
	case selOwner:
		return readWord(ctx, env.Store, fieldOwner)
	case selGetVersion:
		return []byte(m.Version()), nil
	default:
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown selector %s", c.Selector.Hex())
	}
}

// initialize sets the starting value and records the caller as owner. One
// shot per instance: the initialized flag gates replays.
func (m *V1) initialize(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	initialized, err := fieldWord(ctx, env.Store, fieldInitialized)
	if err != nil {
		return nil, err
	}
	if initialized.Bool() {
		return nil, dErrors.New(dErrors.CodeAlreadyInitialized, "counter is already initialized")
	}
	initial, err := call.NewArgReader(c.Args).Uint64()
	if err != nil {
		return nil, err
	}
	setWord(env.Store, fieldValue, call.Uint64Word(initial))
	setWord(env.Store, fieldOwner, call.AddressWord(c.Caller))
	setWord(env.Store, fieldInitialized, call.BoolWord(true))
	return nil, nil
}

func (m *V1) setValue(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	if err := requireOwner(ctx, c, env); err != nil {
		return nil, err
	}
	v, err := call.NewArgReader(c.Args).Uint64()
	if err != nil {
		return nil, err
	}
	setWord(env.Store, fieldValue, call.Uint64Word(v))
	env.Emit(events.ValueChanged(v))
	return nil, nil
}

func (m *V1) increment(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	if err := requireOwner(ctx, c, env); err != nil {
		return nil, err
	}
	current, err := fieldWord(ctx, env.Store, fieldValue)
	if err != nil {
		return nil, err
	}
	next := current.Uint64() + 1
	setWord(env.Store, fieldValue, call.Uint64Word(next))
	env.Emit(events.ValueChanged(next))
	return nil, nil
}

// requireOwner gates mutating operations on the module's own owner, which is
// whoever initialized this instance. The proxy's administrator has no
// standing here.
func requireOwner(ctx context.Context, c call.Call, env backend.Env) error {
	owner, err := fieldWord(ctx, env.Store, fieldOwner)
	if err != nil {
		return err
	}
	if owner.Address() != c.Caller {
		return dErrors.New(dErrors.CodeNotAuthorized, "caller is not the module owner")
	}
	return nil
}

// fieldWord reads a field slot as a word, treating an absent slot as zero.
func fieldWord(ctx context.Context, st state.Mutable, field uint64) (call.Word, error) {
	var w call.Word
	raw, err := st.Get(ctx, state.FieldSlot(field))
	if errors.Is(err, sentinel.ErrNotFound) {
		return w, nil
	}
	if err != nil {
		return w, err
	}
	copy(w[:], raw)
	return w, nil
}

func readWord(ctx context.Context, st state.Mutable, field uint64) ([]byte, error) {
	w, err := fieldWord(ctx, st, field)
	if err != nil {
		return nil, err
	}
	return w[:], nil
}

func setWord(st state.Mutable, field uint64, w call.Word) {
	st.Set(state.FieldSlot(field), w[:])
}
