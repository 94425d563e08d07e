package replication

import (
	"context"
	"fmt"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/metrics"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/annel0/camera-rig/internal/transport"
)

// DefaultInterval — период отправки состояния по умолчанию (20 Гц)
const DefaultInterval = 50 * time.Millisecond

// AuthorityOption настраивает Authority
type AuthorityOption func(*Authority)

// WithInterval задаёт период отправки. Ноль — отправка каждый тик.
func WithInterval(d time.Duration) AuthorityOption {
	return func(a *Authority) {
		if d < 0 {
			d = 0
		}
		a.interval = d
	}
}

// WithStateStore сохраняет последнее состояние для опоздавших наблюдателей
func WithStateStore(store storage.StateStore) AuthorityOption {
	return func(a *Authority) { a.store = store }
}

// WithJournal записывает каждый отправленный кадр в журнал
func WithJournal(j storage.Journal) AuthorityOption {
	return func(a *Authority) { a.journal = j }
}

// WithAuthorityMetrics подключает метрики
func WithAuthorityMetrics(m *metrics.Camera) AuthorityOption {
	return func(a *Authority) { a.metrics = m }
}

// Authority — сторона владельца камеры. Нумерует и отправляет состояния.
// Не потокобезопасна: вызывается из тика одного резолвера.
type Authority struct {
	characterID string
	transport   transport.Transport
	store       storage.StateStore
	journal     storage.Journal
	metrics     *metrics.Camera
	logger      *logging.Logger

	interval time.Duration
	sequence uint64
	lastSent time.Time
	sent     bool
}

// NewAuthority создаёт авторитетную сторону для персонажа
func NewAuthority(characterID string, t transport.Transport, opts ...AuthorityOption) *Authority {
	a := &Authority{
		characterID: characterID,
		transport:   t,
		interval:    DefaultInterval,
		logger:      logging.GetReplicationLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Due сообщает, наступило ли время следующей отправки
func (a *Authority) Due(now time.Time) bool {
	return !a.sent || now.Sub(a.lastSent) >= a.interval
}

// Publish отправляет состояние, если наступил срок. Номер кадра растёт только при отправке.
// Ошибки хранилища и журнала не мешают отправке: они логируются.
func (a *Authority) Publish(ctx context.Context, now time.Time, s State) (bool, error) {
	if !a.Due(now) {
		return false, nil
	}

	a.sequence++
	a.lastSent = now
	a.sent = true

	s.Schema = SchemaVersion
	s.CharacterID = a.characterID
	s.Sequence = a.sequence
	s.TimestampMs = now.UnixMilli()
	payload := Encode(s)

	if a.transport != nil {
		if err := a.transport.Publish(ctx, a.characterID, payload); err != nil {
			a.metrics.Packet(metrics.ResultSendError)
			return false, fmt.Errorf("отправка кадра %d: %w", s.Sequence, err)
		}
	}
	a.metrics.Packet(metrics.ResultSent)

	if a.store != nil {
		if err := a.store.Save(ctx, a.characterID, payload); err != nil {
			a.logger.Warn("⚠️ Не удалось сохранить состояние камеры %s: %v", a.characterID, err)
		}
	}
	if a.journal != nil {
		rec := storage.Record{CharacterID: a.characterID, Sequence: s.Sequence, Payload: payload}
		if err := a.journal.Append(ctx, rec); err != nil {
			a.logger.Warn("⚠️ Не удалось записать кадр %d в журнал: %v", s.Sequence, err)
		}
	}

	a.logger.Trace("📤 %s: кадр %d режим %s", a.characterID, s.Sequence, s.ModeID)
	return true, nil
}

// Sequence возвращает номер последнего отправленного кадра
func (a *Authority) Sequence() uint64 {
	return a.sequence
}

// CharacterID возвращает персонажа
func (a *Authority) CharacterID() string {
	return a.characterID
}

// Forget удаляет сохранённое состояние (персонаж покинул игру)
func (a *Authority) Forget(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Delete(ctx, a.characterID)
}
