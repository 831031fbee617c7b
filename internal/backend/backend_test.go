package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgate/internal/call"
	dErrors "slotgate/pkg/domain-errors"
)

type stubModule struct{}

func (stubModule) Invoke(context.Context, call.Call, Env) ([]byte, error) {
	return nil, nil
}

func addr(last byte) call.Address {
	var a call.Address
	a[len(a)-1] = last
	return a
}

func TestRegistry(t *testing.T) {
	t.Run("registers and resolves", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(addr(1), "V1", stubModule{}))

		m, err := r.Resolve(addr(1))
		require.NoError(t, err)
		assert.NotNil(t, m)
	})

	t.Run("rejects null address", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(call.Address{}, "V1", stubModule{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(addr(1), "V1", stubModule{}))
		err := r.Register(addr(1), "V2", stubModule{})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("unknown address is not found", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Resolve(addr(9))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("lists in registration order", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(addr(1), "V1", stubModule{}))
		require.NoError(t, r.Register(addr(2), "V2", stubModule{}))

		infos := r.List()
		require.Len(t, infos, 2)
		assert.Equal(t, "V1", infos[0].Version)
		assert.Equal(t, addr(2), infos[1].Address)
	})
}
