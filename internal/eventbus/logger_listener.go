package eventbus

import (
	"context"

	"github.com/annel0/camera-rig/internal/logging"
)

// StartLoggingListener подписывается на события и пишет их в лог на уровне TRACE.
// Функция неблокирующая; подписка живёт до отмены ctx или закрытия шины.
func StartLoggingListener(ctx context.Context, bus EventBus, f Filter) (Subscription, error) {
	sub, err := bus.Subscribe(ctx, f, func(ctx context.Context, ev *Envelope) {
		logging.Trace("[EventBus] %s %s src=%s v=%d size=%dB", ev.ID, ev.EventType, ev.Source, ev.Version, len(ev.Payload))
	})
	if err != nil {
		return nil, err
	}
	logging.Info("🪵 LoggingListener: подписка на события %v активирована", f.Types)
	return sub, nil
}
