// Package transport доставляет закодированное состояние камеры от авторитета к наблюдателям.
// Транспорт непрозрачен: только сериализованные снимки, без общей памяти.
package transport

import "context"

// Handler получает закодированное состояние
type Handler func(payload []byte)

// Subscription позволяет отписаться
type Subscription interface {
	Unsubscribe() error
}

// Transport — канал публикации состояний камер по идентификатору персонажа
type Transport interface {
	Publish(ctx context.Context, characterID string, payload []byte) error
	Subscribe(ctx context.Context, characterID string, h Handler) (Subscription, error)
	Close() error
}

// EventCameraState — тип события состояния камеры
const EventCameraState = "camera.state"
