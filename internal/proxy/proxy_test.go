package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"slotgate/internal/backend"
	"slotgate/internal/backend/counter"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/state"
	dErrors "slotgate/pkg/domain-errors"
)

var (
	addrV1   = mustAddress("0x00000000000000000000000000000000000c0001")
	addrV2   = mustAddress("0x00000000000000000000000000000000000c0002")
	admin    = mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	deployer = mustAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	stranger = mustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func mustAddress(s string) call.Address {
	a, err := call.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

type ProxySuite struct {
	suite.Suite
	ctx      context.Context
	store    *state.InMemoryStore
	modules  *backend.Registry
	recorder *events.Recorder
	proxy    *Proxy
}

func TestProxySuite(t *testing.T) {
	suite.Run(t, new(ProxySuite))
}

func (s *ProxySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = state.NewInMemory()
	s.modules = backend.NewRegistry()
	s.Require().NoError(s.modules.Register(addrV1, "V1", counter.NewV1()))
	s.Require().NoError(s.modules.Register(addrV2, "V2", counter.NewV2()))
	s.recorder = events.NewRecorder()

	p, err := New("test-proxy", s.store, s.modules, addrV1, admin,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.recorder),
	)
	s.Require().NoError(err)
	s.proxy = p
}

func (s *ProxySuite) invoke(caller call.Address, method string, args ...any) ([]byte, error) {
	payload, err := call.Args(args...)
	s.Require().NoError(err)
	return s.proxy.Call(s.ctx, call.Call{
		Caller:   caller,
		Selector: call.SelectorFor(method),
		Args:     payload,
	})
}

func (s *ProxySuite) value() uint64 {
	raw, err := s.invoke(stranger, "getValue()")
	s.Require().NoError(err)
	var w call.Word
	copy(w[:], raw)
	return w.Uint64()
}

func (s *ProxySuite) recorded() []events.Event {
	return s.recorder.ListByProxy("test-proxy")
}

func (s *ProxySuite) TestConstruction() {
	s.Run("reserved slots hold the initial identities", func() {
		b, err := s.proxy.Backend(s.ctx)
		s.Require().NoError(err)
		s.Equal(addrV1, b)

		a, err := s.proxy.Admin(s.ctx)
		s.Require().NoError(err)
		s.Equal(admin, a)
	})

	s.Run("rejects null backend", func() {
		_, err := New("p", state.NewInMemory(), s.modules, call.Address{}, admin)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	s.Run("rejects null admin", func() {
		_, err := New("p", state.NewInMemory(), s.modules, addrV1, call.Address{})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})
}

func (s *ProxySuite) TestReservedSlots() {
	s.Run("identifiers are distinct and published", func() {
		s.NotEqual(SlotBackend, SlotAdmin)
		s.Len(SlotBackend.Hex(), 66)
	})

	s.Run("readable out-of-band straight from the store", func() {
		raw, err := s.store.Get(s.ctx, SlotBackend)
		s.Require().NoError(err)
		var w call.Word
		copy(w[:], raw)
		s.Equal(addrV1, w.Address())
	})
}

func (s *ProxySuite) TestPrivilegedReads() {
	s.Run("admin gets stable answers absent mutation", func() {
		for range 3 {
			raw, err := s.invoke(admin, "getBackend()")
			s.Require().NoError(err)
			var w call.Word
			copy(w[:], raw)
			s.Equal(addrV1, w.Address())

			raw, err = s.invoke(admin, "getAdmin()")
			s.Require().NoError(err)
			copy(w[:], raw)
			s.Equal(admin, w.Address())
		}
	})

	s.Run("non-admin invoking a privileged selector reaches the backend instead", func() {
		// The counter has no getAdmin operation, so the forwarded call
		// fails with the backend's own unknown-selector error, not a
		// proxy authorization error. The privileged surface stays
		// invisible to ordinary callers.
		_, err := s.invoke(stranger, "getAdmin()")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ProxySuite) TestAdminFallsThroughToBackend() {
	// A non-privileged selector from the administrator is forwarded like
	// anyone else's call.
	_, err := s.invoke(admin, "initialize(uint64)", uint64(3))
	s.Require().NoError(err)
	s.Equal(uint64(3), s.value())

	// The admin initialized through the proxy, so the admin is also the
	// module owner here and may mutate.
	_, err = s.invoke(admin, "increment()")
	s.Require().NoError(err)
	s.Equal(uint64(4), s.value())
}

func (s *ProxySuite) TestChangeAdmin() {
	s.Run("null new admin is rejected and nothing changes", func() {
		args, err := call.Args(call.Address{})
		s.Require().NoError(err)
		_, err = s.proxy.Call(s.ctx, call.Call{Caller: admin, Selector: call.SelectorFor("changeAdmin(address)"), Args: args})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

		current, err := s.proxy.Admin(s.ctx)
		s.Require().NoError(err)
		s.Equal(admin, current)
		s.Empty(s.recorded())
	})

	s.Run("handover moves the privileged surface", func() {
		_, err := s.invoke(admin, "changeAdmin(address)", stranger)
		s.Require().NoError(err)

		current, err := s.proxy.Admin(s.ctx)
		s.Require().NoError(err)
		s.Equal(stranger, current)

		history := s.recorded()
		s.Require().Len(history, 1)
		s.Equal(events.NameAdminChanged, history[0].Name)
		s.Equal(admin.Hex(), history[0].Attrs["old_admin"])
		s.Equal(stranger.Hex(), history[0].Attrs["new_admin"])

		// The old admin is now an ordinary caller: its privileged
		// selectors forward to the backend.
		_, err = s.invoke(admin, "getAdmin()")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		raw, err := s.invoke(stranger, "getAdmin()")
		s.Require().NoError(err)
		var w call.Word
		copy(w[:], raw)
		s.Equal(stranger, w.Address())
	})
}

func (s *ProxySuite) TestUpgrade() {
	s.Run("null backend is rejected", func() {
		args, err := call.Args(call.Address{})
		s.Require().NoError(err)
		_, err = s.proxy.Call(s.ctx, call.Call{Caller: admin, Selector: call.SelectorFor("upgradeTo(address)"), Args: args})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

		current, err := s.proxy.Backend(s.ctx)
		s.Require().NoError(err)
		s.Equal(addrV1, current)
	})

	s.Run("upgrade repoints without touching module state", func() {
		_, err := s.invoke(deployer, "initialize(uint64)", uint64(5))
		s.Require().NoError(err)

		_, err = s.invoke(admin, "upgradeTo(address)", addrV2)
		s.Require().NoError(err)

		raw, err := s.invoke(stranger, "getVersion()")
		s.Require().NoError(err)
		s.Equal("V2", string(raw))

		s.Equal(uint64(5), s.value(), "layout-compatible fields survive")

		history := s.recorded()
		s.Require().NotEmpty(history)
		last := history[len(history)-1]
		s.Equal(events.NameUpgraded, last.Name)
		s.Equal(addrV2.Hex(), last.Attrs["new_backend"])
	})
}

// TestForwardingTransparency: routing through the proxy produces byte-identical
// results and identical storage effects to invoking the module directly
// against the same backend-owned region.
func (s *ProxySuite) TestForwardingTransparency() {
	module := counter.NewV1()

	direct := state.NewInMemory()
	directInvoke := func(caller call.Address, method string, args ...any) ([]byte, error) {
		payload, err := call.Args(args...)
		s.Require().NoError(err)
		overlay := state.NewOverlay(direct)
		out, err := module.Invoke(s.ctx, call.Call{Caller: caller, Selector: call.SelectorFor(method), Args: payload}, backend.Env{Store: overlay, Emit: func(events.Event) {}})
		if err != nil {
			return nil, err
		}
		s.Require().NoError(overlay.Commit(s.ctx))
		return out, nil
	}

	steps := []struct {
		caller call.Address
		method string
		args   []any
	}{
		{deployer, "initialize(uint64)", []any{uint64(10)}},
		{deployer, "setValue(uint64)", []any{uint64(20)}},
		{deployer, "increment()", nil},
		{stranger, "getValue()", nil},
		{stranger, "owner()", nil},
	}
	for _, step := range steps {
		viaProxy, proxyErr := s.invoke(step.caller, step.method, step.args...)
		directOut, directErr := directInvoke(step.caller, step.method, step.args...)
		s.Equal(directErr == nil, proxyErr == nil, step.method)
		s.Equal(directOut, viaProxy, step.method)
	}

	// Same storage effects, slot for slot, across the module's layout.
	for n := uint64(0); n < 4; n++ {
		want, wantErr := direct.Get(s.ctx, state.FieldSlot(n))
		got, gotErr := s.store.Get(s.ctx, state.FieldSlot(n))
		s.Equal(wantErr, gotErr)
		s.Equal(want, got)
	}
}

type capturingModule struct {
	last call.Call
}

func (m *capturingModule) Invoke(_ context.Context, c call.Call, _ backend.Env) ([]byte, error) {
	m.last = c
	return nil, nil
}

// The invocation tuple is opaque to the proxy: caller, selector, argument
// bytes, and the value-transfer amount all reach the backend untouched.
func (s *ProxySuite) TestValuePassThrough() {
	sink := &capturingModule{}
	modules := backend.NewRegistry()
	s.Require().NoError(modules.Register(addrV1, "V1", sink))
	p, err := New("valued", state.NewInMemory(), modules, addrV1, admin)
	s.Require().NoError(err)

	args, err := call.Args(uint64(7))
	s.Require().NoError(err)
	sent := call.Call{
		Caller:   deployer,
		Selector: call.SelectorFor("deposit(uint64)"),
		Args:     args,
		Value:    250,
	}
	_, err = p.Call(s.ctx, sent)
	s.Require().NoError(err)
	s.Equal(sent, sink.last)
	s.Equal(uint64(250), sink.last.Value)
}

func (s *ProxySuite) TestFailureRollsBackAndStaysSilent() {
	_, err := s.invoke(deployer, "initialize(uint64)", uint64(10))
	s.Require().NoError(err)

	s.Run("backend failure propagates unmodified", func() {
		_, err := s.invoke(stranger, "setValue(uint64)", uint64(99))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAuthorized), "the backend's own error surfaces")
	})

	s.Run("state is untouched and no event leaks", func() {
		s.Equal(uint64(10), s.value())
		s.Empty(s.recorded())
	})

	s.Run("replayed initialize rejects and rolls back", func() {
		_, err := s.invoke(stranger, "initialize(uint64)", uint64(55))
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyInitialized))
		s.Equal(uint64(10), s.value())
	})
}

func (s *ProxySuite) TestUnknownBackendSurfaces() {
	ghost := mustAddress("0x9999999999999999999999999999999999999999")
	_, err := s.invoke(admin, "upgradeTo(address)", ghost)
	s.Require().NoError(err, "the proxy does not validate reachability at upgrade time")

	_, err = s.invoke(stranger, "getValue()")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ProxySuite) TestEventStamping() {
	ts := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	p, err := New("stamped", state.NewInMemory(), s.modules, addrV1, admin,
		WithPublisher(s.recorder),
		WithClock(func() time.Time { return ts }),
	)
	s.Require().NoError(err)

	args, err := call.Args(uint64(1))
	s.Require().NoError(err)
	_, err = p.Call(s.ctx, call.Call{Caller: deployer, Selector: call.SelectorFor("initialize(uint64)"), Args: args})
	s.Require().NoError(err)
	args, err = call.Args(uint64(2))
	s.Require().NoError(err)
	_, err = p.Call(s.ctx, call.Call{Caller: deployer, Selector: call.SelectorFor("setValue(uint64)"), Args: args})
	s.Require().NoError(err)

	history := s.recorder.ListByProxy("stamped")
	s.Require().Len(history, 1)
	s.Equal("stamped", history[0].Proxy)
	s.Equal(ts, history[0].Timestamp)
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, []events.Event) error {
	return errors.New("broker down")
}

// Publication happens after commit, so a broken publisher cannot fail an
// invocation whose writes are already durable.
func (s *ProxySuite) TestPublicationFailureDoesNotFailTheCall() {
	p, err := New("lossy", state.NewInMemory(), s.modules, addrV1, admin,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(failingPublisher{}),
	)
	s.Require().NoError(err)

	args, err := call.Args(uint64(1))
	s.Require().NoError(err)
	_, err = p.Call(s.ctx, call.Call{Caller: deployer, Selector: call.SelectorFor("initialize(uint64)"), Args: args})
	s.Require().NoError(err)

	args, err = call.Args(uint64(7))
	s.Require().NoError(err)
	_, err = p.Call(s.ctx, call.Call{Caller: deployer, Selector: call.SelectorFor("setValue(uint64)"), Args: args})
	s.Require().NoError(err)
}
