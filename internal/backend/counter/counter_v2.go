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

// fieldMessage is appended after every V1 field, so a V2 module pointed at
// state a V1 module wrote reads value, owner, and the initialized flag from
// their original slots.
const fieldMessage = 3

var (
	selInitializeV2 = call.SelectorFor("initializeV2(string)")
	selSetMessage   = call.SelectorFor("setMessage(string)")
	selGetMessage   = call.SelectorFor("getMessage()")
	selIncrementBy  = call.SelectorFor("incrementBy(uint64)")
)

// V2 extends V1 with a message field and a second, independent one-time
// initialization gate. Everything V1 handles is delegated unchanged except
// getVersion.
type V2 struct {
	v1 V1
}

func NewV2() *V2 {
	return &V2{}
}

func (*V2) Version() string { return "V2" }

func (m *V2) Invoke(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	switch c.Selector {
	case selInitializeV2:
		return m.initializeV2(ctx, c, env)
	case selSetMessage:
		return m.setMessage(ctx, c, env)
	case selGetMessage:
		return m.message(ctx, env)
	case selIncrementBy:
		return m.incrementBy(ctx, c, env)
	case selGetVersion:
		return []byte(m.Version()), nil
	default:
		return m.v1.Invoke(ctx, c, env)
	}
}

// initializeV2 is gated by emptiness of the message field, not by the V1
// initialized flag: an instance upgraded from V1 is already V1-initialized
// but still needs its one-shot V2 setup.
func (m *V2) initializeV2(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	if err := requireOwner(ctx, c, env); err != nil {
		return nil, err
	}
	existing, err := env.Store.Get(ctx, state.FieldSlot(fieldMessage))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, dErrors.New(dErrors.CodeAlreadyInitialized, "counter is already V2-initialized")
	}
	message := call.NewArgReader(c.Args).String()
	env.Store.Set(state.FieldSlot(fieldMessage), []byte(message))
	env.Emit(events.MessageChanged(message))
	return nil, nil
}

func (m *V2) setMessage(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	if err := requireOwner(ctx, c, env); err != nil {
		return nil, err
	}
	message := call.NewArgReader(c.Args).String()
	env.Store.Set(state.FieldSlot(fieldMessage), []byte(message))
	env.Emit(events.MessageChanged(message))
	return nil, nil
}

func (m *V2) message(ctx context.Context, env backend.Env) ([]byte, error) {
	raw, err := env.Store.Get(ctx, state.FieldSlot(fieldMessage))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return raw, err
}

func (m *V2) incrementBy(ctx context.Context, c call.Call, env backend.Env) ([]byte, error) {
	if err := requireOwner(ctx, c, env); err != nil {
		return nil, err
	}
	amount, err := call.NewArgReader(c.Args).Uint64()
	if err != nil {
		return nil, err
	}
	current, err := fieldWord(ctx, env.Store, fieldValue)
	if err != nil {
		return nil, err
	}
	next := current.Uint64() + amount
	setWord(env.Store, fieldValue, call.Uint64Word(next))
	env.Emit(events.ValueChanged(next))
	return nil, nil
}
