package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(128)
	defer bus.Close()

	var (
		mu   sync.Mutex
		seen []byte
	)
	done := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{"camera.state"}, Sources: []string{"hero"}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Payload[0])
		if len(seen) == 50 {
			close(done)
		}
	})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(ctx, NewEnvelope("camera.state", "hero", []byte{byte(i)})))
		require.NoError(t, bus.Publish(ctx, NewEnvelope("camera.state", "villain", []byte{255})))
		require.NoError(t, bus.Publish(ctx, NewEnvelope("camera.frame", "hero", []byte{254})))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("события не доставлены")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, b := range seen {
		assert.Equal(t, byte(i), b)
	}
	assert.Equal(t, uint64(150), bus.Metrics().Published)
}

func TestMemoryBusDropsOnFullQueue(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	block := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		<-block
	})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(context.Background(), NewEnvelope("x", "y", nil)))
	}
	close(block)

	// Одно событие в обработчике, одно в очереди, остальные потеряны
	assert.GreaterOrEqual(t, bus.Metrics().Dropped, uint64(8))
}

func TestMemoryBusUnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(8)
	calls := make(chan struct{}, 8)
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		calls <- struct{}{}
	})
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), NewEnvelope("x", "y", nil)))
	select {
	case <-calls:
		t.Fatal("отписанный обработчик получил событие")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), NewEnvelope("x", "y", nil)), ErrClosed)
	_, err = bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewEnvelope(t *testing.T) {
	a := NewEnvelope("camera.state", "hero", []byte{1})
	b := NewEnvelope("camera.state", "hero", []byte{1})
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.Equal(t, 1, a.Version)
}

func TestMetricsExporter(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	reg := prometheus.NewRegistry()

	exp, err := NewMetricsExporter(bus, reg, 10*time.Millisecond)
	require.NoError(t, err)
	exp.Start()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(context.Background(), NewEnvelope("x", "y", nil)))
	}
	exp.Stop()

	assert.Equal(t, 3.0, gatheredValue(t, reg, "camera_eventbus_messages_published_total"))

	_, err = NewMetricsExporter(bus, reg, time.Second)
	assert.Error(t, err, "повторная регистрация")
}

func gatheredValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("метрика %s не найдена", name)
	return 0
}
