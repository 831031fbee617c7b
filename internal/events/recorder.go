package events

import (
	"context"
	"strconv"
	"sync"
)

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Recorder keeps published events in memory, ordered by publication. It backs
// the event-listing endpoint and doubles as the assertion point in tests.
type Recorder struct {
	mu     sync.RWMutex
	byProx map[string][]Event
}

func NewRecorder() *Recorder {
	return &Recorder{byProx: make(map[string][]Event)}
}

func (r *Recorder) Publish(_ context.Context, batch []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range batch {
		r.byProx[e.Proxy] = append(r.byProx[e.Proxy], e)
	}
	return nil
}

// ListByProxy returns the recorded events for one proxy instance in order.
func (r *Recorder) ListByProxy(proxy string) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byProx[proxy]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

// Fanout publishes each batch to every publisher in order, stopping at the
// first failure.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, batch []Event) error {
	for _, p := range f {
		if err := p.Publish(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
