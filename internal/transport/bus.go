package transport

import (
	"context"
	"fmt"

	"github.com/annel0/camera-rig/internal/eventbus"
)

// BusTransport передаёт состояния через EventBus (в процессе или через JetStream)
type BusTransport struct {
	bus eventbus.EventBus
}

// NewBusTransport оборачивает шину
func NewBusTransport(bus eventbus.EventBus) *BusTransport {
	return &BusTransport{bus: bus}
}

// Publish реализует Transport
func (t *BusTransport) Publish(ctx context.Context, characterID string, payload []byte) error {
	ev := eventbus.NewEnvelope(EventCameraState, characterID, payload)
	if err := t.bus.Publish(ctx, ev); err != nil {
		return fmt.Errorf("публикация состояния %s: %w", characterID, err)
	}
	return nil
}

// Subscribe реализует Transport
func (t *BusTransport) Subscribe(ctx context.Context, characterID string, h Handler) (Subscription, error) {
	filter := eventbus.Filter{
		Types:   []string{EventCameraState},
		Sources: []string{characterID},
	}
	sub, err := t.bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		h(ev.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("подписка на %s: %w", characterID, err)
	}
	return busSub{sub}, nil
}

// Close закрывает шину
func (t *BusTransport) Close() error {
	return t.bus.Close()
}

type busSub struct {
	sub eventbus.Subscription
}

func (s busSub) Unsubscribe() error {
	s.sub.Unsubscribe()
	return nil
}
