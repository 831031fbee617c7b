//go:build integration

package state_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"slotgate/internal/state"
	"slotgate/pkg/platform/sentinel"
	"slotgate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	factory *state.RedisFactory
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.factory = state.NewRedisFactory(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestGetMissingSlot() {
	store := s.factory.ForInstance(uuid.NewString())
	_, err := store.Get(context.Background(), state.FieldSlot(0))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestApplyThenGet() {
	ctx := context.Background()
	store := s.factory.ForInstance(uuid.NewString())

	err := store.Apply(ctx, []state.Write{
		{Slot: state.FieldSlot(0), Value: []byte{0x01}},
		{Slot: state.DerivedSlot("slotgate.proxy.admin"), Value: []byte{0xad}},
	})
	s.Require().NoError(err)

	v, err := store.Get(ctx, state.FieldSlot(0))
	s.Require().NoError(err)
	s.Equal([]byte{0x01}, v)

	v, err = store.Get(ctx, state.DerivedSlot("slotgate.proxy.admin"))
	s.Require().NoError(err)
	s.Equal([]byte{0xad}, v)
}

func (s *RedisStoreSuite) TestBatchIsAtomicallyVisible() {
	ctx := context.Background()
	store := s.factory.ForInstance(uuid.NewString())

	writes := make([]state.Write, 0, 16)
	for n := uint64(0); n < 16; n++ {
		writes = append(writes, state.Write{Slot: state.FieldSlot(n), Value: []byte{byte(n)}})
	}
	s.Require().NoError(store.Apply(ctx, writes))

	for n := uint64(0); n < 16; n++ {
		v, err := store.Get(ctx, state.FieldSlot(n))
		s.Require().NoError(err)
		s.Equal([]byte{byte(n)}, v)
	}
}

func (s *RedisStoreSuite) TestInstanceIsolation() {
	ctx := context.Background()
	a := s.factory.ForInstance("instance-a")
	b := s.factory.ForInstance("instance-b")

	s.Require().NoError(a.Apply(ctx, []state.Write{{Slot: state.FieldSlot(0), Value: []byte{0xaa}}}))

	_, err := b.Get(ctx, state.FieldSlot(0))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
