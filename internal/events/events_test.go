package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgate/internal/call"
)

func mustAddress(s string) call.Address {
	a, err := call.ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	backendAddr = mustAddress("0x00000000000000000000000000000000000c0002")
	oldAdmin    = mustAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	newAdmin    = mustAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestConstructors(t *testing.T) {
	t.Run("upgraded", func(t *testing.T) {
		e := Upgraded(backendAddr)
		assert.Equal(t, NameUpgraded, e.Name)
		assert.Equal(t, backendAddr.Hex(), e.Attrs["new_backend"])
	})

	t.Run("admin changed carries both parties", func(t *testing.T) {
		e := AdminChanged(oldAdmin, newAdmin)
		assert.Equal(t, NameAdminChanged, e.Name)
		assert.Equal(t, oldAdmin.Hex(), e.Attrs["old_admin"])
		assert.Equal(t, newAdmin.Hex(), e.Attrs["new_admin"])
	})

	t.Run("value changed formats decimal", func(t *testing.T) {
		e := ValueChanged(1234)
		assert.Equal(t, "1234", e.Attrs["new_value"])
	})

	t.Run("message changed", func(t *testing.T) {
		e := MessageChanged("hello")
		assert.Equal(t, "hello", e.Attrs["new_message"])
	})
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder()

	t.Run("empty history for unknown proxy", func(t *testing.T) {
		assert.Empty(t, rec.ListByProxy("nobody"))
	})

	t.Run("appends in publish order per proxy", func(t *testing.T) {
		require.NoError(t, rec.Publish(ctx, []Event{
			{Proxy: "a", Name: NameValueChanged},
			{Proxy: "a", Name: NameUpgraded},
		}))
		require.NoError(t, rec.Publish(ctx, []Event{{Proxy: "b", Name: NameAdminChanged}}))

		a := rec.ListByProxy("a")
		require.Len(t, a, 2)
		assert.Equal(t, NameValueChanged, a[0].Name)
		assert.Equal(t, NameUpgraded, a[1].Name)
		assert.Len(t, rec.ListByProxy("b"), 1)
	})

	t.Run("listing returns a copy", func(t *testing.T) {
		history := rec.ListByProxy("a")
		history[0].Name = "tampered"
		assert.Equal(t, NameValueChanged, rec.ListByProxy("a")[0].Name)
	})
}

type capturingPublisher struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
}

func (p *capturingPublisher) Publish(_ context.Context, batch []Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, batch)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	batch := []Event{{Proxy: "a", Name: NameValueChanged}}

	t.Run("delivers to every publisher", func(t *testing.T) {
		first := &capturingPublisher{}
		second := &capturingPublisher{}
		require.NoError(t, Fanout{first, second}.Publish(ctx, batch))
		assert.Equal(t, 1, first.count())
		assert.Equal(t, 1, second.count())
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		broken := &capturingPublisher{err: errors.New("down")}
		after := &capturingPublisher{}
		err := Fanout{broken, after}.Publish(ctx, batch)
		require.Error(t, err)
		assert.Equal(t, 0, after.count())
	})
}

func TestWorker(t *testing.T) {
	batch := []Event{{Proxy: "a", Name: NameValueChanged}}

	t.Run("publish does not block when the buffer is full", func(t *testing.T) {
		w := NewWorker(&capturingPublisher{}, 1)
		require.NoError(t, w.Publish(context.Background(), batch))
		assert.ErrorIs(t, w.Publish(context.Background(), batch), ErrBufferFull)
	})

	t.Run("empty batches are dropped without occupying the buffer", func(t *testing.T) {
		w := NewWorker(&capturingPublisher{}, 1)
		require.NoError(t, w.Publish(context.Background(), nil))
		require.NoError(t, w.Publish(context.Background(), batch))
	})

	t.Run("run delivers buffered batches to the sink", func(t *testing.T) {
		sink := &capturingPublisher{}
		w := NewWorker(sink, 8)
		require.NoError(t, w.Publish(context.Background(), batch))
		require.NoError(t, w.Publish(context.Background(), batch))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("shutdown flushes what is still buffered", func(t *testing.T) {
		sink := &capturingPublisher{}
		w := NewWorker(sink, 8)
		require.NoError(t, w.Publish(context.Background(), batch))
		require.NoError(t, w.Publish(context.Background(), batch))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, w.Run(ctx), context.Canceled)
		assert.Equal(t, 2, sink.count())
	})

	t.Run("sink failure is swallowed", func(t *testing.T) {
		sink := &capturingPublisher{err: errors.New("broker down")}
		w := NewWorker(sink, 8)
		require.NoError(t, w.Publish(context.Background(), batch))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, w.Run(ctx), context.Canceled)
	})
}
