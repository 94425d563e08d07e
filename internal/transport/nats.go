package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	nats "github.com/nats-io/nats.go"
)

// NATSTransport публикует состояния в core NATS на тему camera.state.<id>.
// Доставка «не более одного раза»: потерянные пакеты покрывает экстраполяция наблюдателя.
type NATSTransport struct {
	nc     *nats.Conn
	prefix string
	logger *logging.Logger
}

// NATSConfig — параметры подключения
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// DialNATS подключается к серверу NATS
func DialNATS(cfg NATSConfig) (*NATSTransport, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "camera-rig"
	}

	logger := logging.GetTransportLogger()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("⚠️ NATS отключён: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("🔌 NATS переподключён к %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	t := NewNATSTransport(nc, cfg.SubjectPrefix)
	logger.Info("🔌 NATS транспорт подключён к %s", cfg.URL)
	return t, nil
}

// NewNATSTransport оборачивает готовое соединение
func NewNATSTransport(nc *nats.Conn, prefix string) *NATSTransport {
	if prefix == "" {
		prefix = EventCameraState
	}
	return &NATSTransport{nc: nc, prefix: prefix, logger: logging.GetTransportLogger()}
}

// Subject возвращает тему персонажа
func (t *NATSTransport) Subject(characterID string) string {
	return t.prefix + "." + characterID
}

// Publish реализует Transport
func (t *NATSTransport) Publish(ctx context.Context, characterID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.nc.Publish(t.Subject(characterID), payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", characterID, err)
	}
	return nil
}

// Subscribe реализует Transport. Подписка снимается при отмене ctx.
func (t *NATSTransport) Subscribe(ctx context.Context, characterID string, h Handler) (Subscription, error) {
	sub, err := t.nc.Subscribe(t.Subject(characterID), func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", characterID, err)
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			_ = sub.Unsubscribe()
		}()
	}
	return sub, nil
}

// Close дожидается отправки буфера и закрывает соединение
func (t *NATSTransport) Close() error {
	return t.nc.Drain()
}
