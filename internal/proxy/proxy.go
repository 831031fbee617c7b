// Package proxy implements the upgradeable delegation proxy: a long-lived
// identity whose executable logic lives behind a swappable backend reference.
// The proxy owns exactly two persistent slots, both hash-derived so no
// backend field layout can collide with them; everything else in the
// instance's address space belongs to the active backend.
package proxy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"slotgate/internal/backend"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/platform/metrics"
	"slotgate/internal/state"
	dErrors "slotgate/pkg/domain-errors"
)

// Reserved slot identifiers. Published so tooling can read the backend
// reference and administrator out-of-band straight from the persistent store.
var (
	SlotBackend = state.DerivedSlot("slotgate.proxy.backend")
	SlotAdmin   = state.DerivedSlot("slotgate.proxy.admin")
)

// Privileged operation selectors. Only these four execute locally, and only
// for the administrator; any other (caller, selector) pair is forwarded.
var (
	selGetBackend  = call.SelectorFor("getBackend()")
	selGetAdmin    = call.SelectorFor("getAdmin()")
	selChangeAdmin = call.SelectorFor("changeAdmin(address)")
	selUpgradeTo   = call.SelectorFor("upgradeTo(address)")
)

const (
	pathPrivileged = "privileged"
	pathForwarded  = "forwarded"
)

// Proxy routes invocations for one instance. Invocations are strictly
// serialized per instance; each runs against a fresh write overlay that
// commits all-or-nothing.
type Proxy struct {
	mu        sync.Mutex
	id        string
	store     state.Store
	resolver  backend.Resolver
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Proxy)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

func WithPublisher(publisher events.Publisher) Option {
	return func(p *Proxy) {
		p.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) {
		p.metrics = m
	}
}

// WithClock overrides event timestamping, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) {
		p.now = now
	}
}

// New constructs a proxy over its per-instance store and writes both reserved
// slots. Both identities are required; a null backend would make every
// forwarded call fail, a null admin would orphan the privileged operations.
func New(id string, store state.Store, resolver backend.Resolver, initialBackend, initialAdmin call.Address, opts ...Option) (*Proxy, error) {
	if initialBackend.IsNull() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "initial backend must not be null")
	}
	if initialAdmin.IsNull() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "initial admin must not be null")
	}
	p := &Proxy{
		id:       id,
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
		tracer:   otel.Tracer("slotgate/proxy"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	overlay := state.NewOverlay(store)
	setAddress(overlay, SlotBackend, initialBackend)
	setAddress(overlay, SlotAdmin, initialAdmin)
	if err := overlay.Commit(context.Background()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "write reserved slots")
	}
	return p, nil
}

// ID returns the instance identifier used for event attribution.
func (p *Proxy) ID() string {
	return p.id
}

// Backend reads the current backend reference from its reserved slot.
func (p *Proxy) Backend(ctx context.Context) (call.Address, error) {
	return readAddress(ctx, p.store, SlotBackend)
}

// Admin reads the current administrator from its reserved slot.
func (p *Proxy) Admin(ctx context.Context) (call.Address, error) {
	return readAddress(ctx, p.store, SlotAdmin)
}

// Call routes one invocation. The administrator invoking a privileged
// selector is handled locally; every other combination is forwarded opaquely
// to the active backend. A non-administrator invoking a privileged selector
// is therefore NOT an error here: it reaches the backend, which applies its
// own access control. That asymmetry is the transparent-proxy contract.
func (p *Proxy) Call(ctx context.Context, c call.Call) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.now()
	ctx, span := p.tracer.Start(ctx, "proxy.Call", trace.WithAttributes(
		attribute.String("proxy.id", p.id),
		attribute.String("call.selector", c.Selector.Hex()),
	))
	defer span.End()

	overlay := state.NewOverlay(p.store)
	var buffered []events.Event
	emit := func(e events.Event) {
		buffered = append(buffered, e)
	}

	path := pathForwarded
	admin, err := readAddress(ctx, overlay, SlotAdmin)
	if err != nil {
		return nil, err
	}
	var result []byte
	if c.Caller == admin && p.privileged(c.Selector) {
		path = pathPrivileged
		result, err = p.handlePrivileged(ctx, c, overlay, emit)
	} else {
		result, err = p.forward(ctx, c, overlay, emit)
	}
	span.SetAttributes(attribute.String("call.path", path))

	if err != nil {
		// Discard the overlay and the buffered events: the invocation
		// leaves no trace.
		p.metrics.ObserveInvocation(path, "error", p.now().Sub(start))
		return nil, err
	}
	if err := overlay.Commit(ctx); err != nil {
		p.metrics.ObserveInvocation(path, "error", p.now().Sub(start))
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "commit invocation")
	}
	p.publish(ctx, buffered)
	p.metrics.ObserveInvocation(path, "ok", p.now().Sub(start))
	return result, nil
}

func (p *Proxy) privileged(s call.Selector) bool {
	switch s {
	case selGetBackend, selGetAdmin, selChangeAdmin, selUpgradeTo:
		return true
	}
	return false
}

func (p *Proxy) handlePrivileged(ctx context.Context, c call.Call, overlay *state.Overlay, emit func(events.Event)) ([]byte, error) {
	switch c.Selector {
	case selGetBackend:
		current, err := readAddress(ctx, overlay, SlotBackend)
		if err != nil {
			return nil, err
		}
		w := call.AddressWord(current)
		return w[:], nil
	case selGetAdmin:
		current, err := readAddress(ctx, overlay, SlotAdmin)
		if err != nil {
			return nil, err
		}
		w := call.AddressWord(current)
		return w[:], nil
	case selChangeAdmin:
		return nil, p.changeAdmin(ctx, c, overlay, emit)
	case selUpgradeTo:
		return nil, p.upgradeTo(ctx, c, overlay, emit)
	}
	return nil, dErrors.Newf(dErrors.CodeInternal, "unhandled privileged selector %s", c.Selector.Hex())
}

func (p *Proxy) changeAdmin(ctx context.Context, c call.Call, overlay *state.Overlay, emit func(events.Event)) error {
	newAdmin, err := call.NewArgReader(c.Args).Address()
	if err != nil {
		return err
	}
	if newAdmin.IsNull() {
		return dErrors.New(dErrors.CodeInvalidArgument, "new admin must not be null")
	}
	oldAdmin, err := readAddress(ctx, overlay, SlotAdmin)
	if err != nil {
		return err
	}
	setAddress(overlay, SlotAdmin, newAdmin)
	emit(events.AdminChanged(oldAdmin, newAdmin))
	p.metrics.IncrementAdminChanges()
	p.logger.Info("admin changed",
		slog.String("proxy", p.id),
		slog.String("old_admin", oldAdmin.Hex()),
		slog.String("new_admin", newAdmin.Hex()))
	return nil
}

func (p *Proxy) upgradeTo(ctx context.Context, c call.Call, overlay *state.Overlay, emit func(events.Event)) error {
	newBackend, err := call.NewArgReader(c.Args).Address()
	if err != nil {
		return err
	}
	if newBackend.IsNull() {
		return dErrors.New(dErrors.CodeInvalidArgument, "new backend must not be null")
	}
	// No state migration: the upgrade only repoints the reference. Layout
	// compatibility with slots the old backend wrote is the caller's
	// obligation.
	setAddress(overlay, SlotBackend, newBackend)
	emit(events.Upgraded(newBackend))
	p.metrics.IncrementUpgrades()
	p.logger.Info("backend upgraded",
		slog.String("proxy", p.id),
		slog.String("new_backend", newBackend.Hex()))
	return nil
}

// forward resolves the active backend and invokes it in place: the module
// runs against this invocation's overlay over the proxy's own store, and its
// result bytes and failures pass through unmodified.
func (p *Proxy) forward(ctx context.Context, c call.Call, overlay *state.Overlay, emit func(events.Event)) ([]byte, error) {
	target, err := readAddress(ctx, overlay, SlotBackend)
	if err != nil {
		return nil, err
	}
	module, err := p.resolver.Resolve(target)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("forwarding call",
		slog.String("proxy", p.id),
		slog.String("backend", target.Hex()),
		slog.String("selector", c.Selector.Hex()))
	return module.Invoke(ctx, c, backend.Env{Store: overlay, Emit: emit})
}

// publish stamps and delivers the invocation's buffered events. The writes
// are already durable at this point, so delivery failure is logged, not
// surfaced: the invocation succeeded.
func (p *Proxy) publish(ctx context.Context, buffered []events.Event) {
	if p.publisher == nil || len(buffered) == 0 {
		return
	}
	ts := p.now()
	for i := range buffered {
		buffered[i].Proxy = p.id
		buffered[i].Timestamp = ts
	}
	if err := p.publisher.Publish(ctx, buffered); err != nil {
		p.logger.Warn("event publication failed",
			slog.String("proxy", p.id),
			slog.String("error", err.Error()))
	}
}

func readAddress(ctx context.Context, st state.Reader, slot state.Slot) (call.Address, error) {
	raw, err := st.Get(ctx, slot)
	if err != nil {
		return call.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "read reserved slot")
	}
	var w call.Word
	copy(w[:], raw)
	return w.Address(), nil
}

func setAddress(overlay *state.Overlay, slot state.Slot, a call.Address) {
	w := call.AddressWord(a)
	overlay.Set(slot, w[:])
}
