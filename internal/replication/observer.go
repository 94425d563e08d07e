package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/metrics"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/annel0/camera-rig/internal/transport"
)

// DefaultStaleness — окно экстраполяции по умолчанию
const DefaultStaleness = 500 * time.Millisecond

// Stats — счётчики обработанных пакетов
type Stats struct {
	Accepted       uint64
	Stale          uint64
	Duplicate      uint64
	SchemaMismatch uint64
	DecodeErrors   uint64
	Misrouted      uint64 // пакеты другого персонажа
}

// Snapshot — согласованное чтение наблюдателя: состояние и флаги взяты под одной блокировкой
type Snapshot struct {
	State          State
	Ok             bool // есть хотя бы одно принятое состояние
	Stale          bool
	SchemaMismatch bool
}

// ObserverOption настраивает Observer
type ObserverOption func(*Observer)

// WithStaleness задаёт окно экстраполяции
func WithStaleness(d time.Duration) ObserverOption {
	return func(o *Observer) {
		if d > 0 {
			o.staleness = d
		}
	}
}

// WithClock подменяет источник времени для пакетов из транспорта
func WithClock(now func() time.Time) ObserverOption {
	return func(o *Observer) { o.now = now }
}

// WithObserverMetrics подключает метрики
func WithObserverMetrics(m *metrics.Camera) ObserverOption {
	return func(o *Observer) { o.metrics = m }
}

// Observer восстанавливает чужую камеру по реплицированным снимкам.
// Receive вызывается из горутин транспорта, Sample из тика, поэтому состояние под мьютексом.
type Observer struct {
	characterID string
	staleness   time.Duration
	now         func() time.Time
	metrics     *metrics.Camera
	logger      *logging.Logger

	mu             sync.Mutex
	last           State
	has            bool
	receivedAt     time.Time
	schemaMismatch bool
	stats          Stats
}

// NewObserver создаёт наблюдателя камеры персонажа characterID.
// Пустой characterID принимает пакеты любого персонажа.
func NewObserver(characterID string, opts ...ObserverOption) *Observer {
	o := &Observer{
		characterID: characterID,
		staleness:   DefaultStaleness,
		now:         time.Now,
		logger:      logging.GetReplicationLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Receive разбирает пакет и принимает его, только если номер больше последнего принятого.
// Устаревшие, повторные и несовместимые пакеты отбрасываются и учитываются в Stats.
func (o *Observer) Receive(data []byte, now time.Time) bool {
	s, err := Decode(data)

	o.mu.Lock()
	defer o.mu.Unlock()

	switch {
	case errors.Is(err, ErrSchemaMismatch):
		o.stats.SchemaMismatch++
		o.metrics.Packet(metrics.ResultSchemaMismatch)
		if !o.schemaMismatch {
			o.logger.Warn("⚠️ Камера %s: несовместимая схема состояния (%v), остаёмся на последнем известном", o.characterID, err)
			o.schemaMismatch = true
		}
		return false
	case err != nil:
		o.stats.DecodeErrors++
		o.metrics.Packet(metrics.ResultDecodeError)
		o.logger.Debug("🔍 Камера %s: не удалось разобрать пакет: %v", o.characterID, err)
		return false
	}

	if o.characterID != "" && s.CharacterID != o.characterID {
		o.stats.Misrouted++
		o.metrics.Packet(metrics.ResultMisrouted)
		return false
	}

	if o.has && s.Sequence <= o.last.Sequence {
		if s.Sequence == o.last.Sequence {
			o.stats.Duplicate++
			o.metrics.Packet(metrics.ResultDuplicate)
		} else {
			o.stats.Stale++
			o.metrics.Packet(metrics.ResultStale)
		}
		return false
	}

	o.acceptLocked(s, now)
	o.stats.Accepted++
	o.metrics.Packet(metrics.ResultAccepted)
	return true
}

func (o *Observer) acceptLocked(s State, now time.Time) {
	if o.schemaMismatch {
		o.logger.Info("✅ Камера %s: схема состояния снова совместима", o.characterID)
	}
	o.last = s
	o.has = true
	o.receivedAt = now
	o.schemaMismatch = false
}

// Seed применяет состояние, прочитанное из хранилища (догоняющий вход).
// Не откатывает уже принятый более новый кадр.
func (o *Observer) Seed(s State, now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.has && s.Sequence <= o.last.Sequence {
		return false
	}
	o.acceptLocked(s, now)
	return true
}

// SeedFromStore загружает последнее состояние персонажа из хранилища
func (o *Observer) SeedFromStore(ctx context.Context, store storage.StateStore) error {
	payload, err := store.Load(ctx, o.characterID)
	if err != nil {
		return err
	}
	s, err := Decode(payload)
	if err != nil {
		return fmt.Errorf("сохранённое состояние %s: %w", o.characterID, err)
	}
	if o.Seed(s, o.now()) {
		o.logger.Info("📥 Камера %s: состояние из хранилища, кадр %d", o.characterID, s.Sequence)
	}
	return nil
}

// Sample возвращает последнее известное состояние с точкой опоры,
// экстраполированной по скорости не дольше окна устаревания.
// При несовместимой схеме возвращается последнее статичное состояние.
func (o *Observer) Sample(now time.Time) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sampleLocked(now)
}

// Snapshot возвращает состояние вместе с признаками устаревания и несовместимой схемы
func (o *Observer) Snapshot(now time.Time) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sampleLocked(now)
	return Snapshot{
		State:          s,
		Ok:             ok,
		Stale:          o.staleLocked(now),
		SchemaMismatch: o.schemaMismatch,
	}
}

func (o *Observer) sampleLocked(now time.Time) (State, bool) {
	if !o.has {
		return State{}, false
	}
	s := o.last
	if o.schemaMismatch {
		return s, true
	}

	age := now.Sub(o.receivedAt)
	if age < 0 {
		age = 0
	}
	if age > o.staleness {
		age = o.staleness
	}
	s.Pivot = s.Pivot.Add(s.Velocity.Mul(age.Seconds()))
	return s, true
}

// Stale сообщает, что новых пакетов не было дольше окна устаревания
func (o *Observer) Stale(now time.Time) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.staleLocked(now)
}

func (o *Observer) staleLocked(now time.Time) bool {
	return !o.has || now.Sub(o.receivedAt) > o.staleness
}

// SchemaMismatch сообщает, что последний пакет пришёл в несовместимой схеме
func (o *Observer) SchemaMismatch() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.schemaMismatch
}

// Stats возвращает копию счётчиков
func (o *Observer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

// CharacterID возвращает наблюдаемого персонажа
func (o *Observer) CharacterID() string {
	return o.characterID
}

// Staleness возвращает окно экстраполяции
func (o *Observer) Staleness() time.Duration {
	return o.staleness
}

// Attach подписывает наблюдателя на состояния персонажа в транспорте
func Attach(ctx context.Context, t transport.Transport, o *Observer) (transport.Subscription, error) {
	sub, err := t.Subscribe(ctx, o.characterID, func(payload []byte) {
		o.Receive(payload, o.now())
	})
	if err != nil {
		return nil, fmt.Errorf("подписка наблюдателя %s: %w", o.characterID, err)
	}
	return sub, nil
}
