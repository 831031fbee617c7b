// Package registry hosts proxy instances: it creates them over per-instance
// stores, routes invocations to them by ID, and exposes the read surfaces
// (instance metadata, event history, module catalog) the HTTP layer serves.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"slotgate/internal/backend"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/platform/metrics"
	"slotgate/internal/proxy"
	"slotgate/internal/state"
	dErrors "slotgate/pkg/domain-errors"
)

// Catalog lists known backend modules. *backend.Registry satisfies it.
type Catalog interface {
	backend.Resolver
	List() []backend.Info
}

// Instance is the externally visible description of one hosted proxy.
type Instance struct {
	ID      uuid.UUID
	Backend call.Address
	Admin   call.Address
}

// Service manages the set of hosted proxies. Each proxy publishes through the
// service's recorder (backing the event-listing endpoint) plus any external
// publisher supplied at construction.
type Service struct {
	mu       sync.RWMutex
	stores   state.Factory
	catalog  Catalog
	external events.Publisher
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	proxies  map[uuid.UUID]*proxy.Proxy
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublisher adds an external event publisher alongside the built-in
// recorder, e.g. the Kafka worker.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.external = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New constructs a Service.
func New(stores state.Factory, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		stores:   stores,
		catalog:  catalog,
		recorder: events.NewRecorder(),
		logger:   slog.Default(),
		proxies:  make(map[uuid.UUID]*proxy.Proxy),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create constructs a proxy pointed at backendAddr with adminAddr as
// administrator. The backend must be a registered module so the first
// forwarded call has somewhere to land.
func (s *Service) Create(ctx context.Context, backendAddr, adminAddr call.Address) (Instance, error) {
	if _, err := s.catalog.Resolve(backendAddr); err != nil {
		return Instance{}, err
	}

	id := uuid.New()
	publisher := events.Fanout{events.Publisher(s.recorder)}
	if s.external != nil {
		publisher = append(publisher, s.external)
	}
	p, err := proxy.New(id.String(), s.stores.ForInstance(id.String()), s.catalog, backendAddr, adminAddr,
		proxy.WithLogger(s.logger),
		proxy.WithPublisher(publisher),
		proxy.WithMetrics(s.metrics),
	)
	if err != nil {
		return Instance{}, err
	}

	s.mu.Lock()
	s.proxies[id] = p
	s.mu.Unlock()

	s.metrics.IncrementProxiesCreated()
	s.logger.Info("proxy created",
		slog.String("proxy", id.String()),
		slog.String("backend", backendAddr.Hex()),
		slog.String("admin", adminAddr.Hex()))
	return Instance{ID: id, Backend: backendAddr, Admin: adminAddr}, nil
}

func (s *Service) lookup(id uuid.UUID) (*proxy.Proxy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proxies[id]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no proxy with id %s", id)
	}
	return p, nil
}

// Call routes an invocation to the identified proxy.
func (s *Service) Call(ctx context.Context, id uuid.UUID, c call.Call) ([]byte, error) {
	p, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return p.Call(ctx, c)
}

// Describe reads the live reserved-slot values of one proxy.
func (s *Service) Describe(ctx context.Context, id uuid.UUID) (Instance, error) {
	p, err := s.lookup(id)
	if err != nil {
		return Instance{}, err
	}
	backendAddr, err := p.Backend(ctx)
	if err != nil {
		return Instance{}, err
	}
	adminAddr, err := p.Admin(ctx)
	if err != nil {
		return Instance{}, err
	}
	return Instance{ID: id, Backend: backendAddr, Admin: adminAddr}, nil
}

// Events returns the recorded notification history of one proxy in order.
func (s *Service) Events(id uuid.UUID) ([]events.Event, error) {
	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	return s.recorder.ListByProxy(id.String()), nil
}

// Modules lists the registered backend modules.
func (s *Service) Modules() []backend.Info {
	return s.catalog.List()
}
