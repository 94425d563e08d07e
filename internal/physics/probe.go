package physics

import (
	"errors"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/go-gl/mathgl/mgl64"
)

// ProbeConfig задаёт параметры зонда камеры
type ProbeConfig struct {
	Radius        float64 // радиус сферы; нулевая толщина пропускает тонкую геометрию под углом
	Channel       Channel
	DegradedAfter int // столько подряд неудачных запросов включают флаг деградации
}

// DefaultProbeConfig возвращает настройки по умолчанию
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Radius:        0.164, // ProbeSize исходного плагина в метрах
		Channel:       ChannelCamera,
		DegradedAfter: 3,
	}
}

// FailureHook вызывается при каждом недоступном запросе
type FailureHook func(err error)

// Probe ищет ближайшее свободное расстояние от точки опоры в заданном направлении.
// Не потокобезопасен: принадлежит резолверу одного персонажа.
type Probe struct {
	service CollisionService
	config  ProbeConfig
	ignore  IgnoreSet
	logger  *logging.Logger
	onFail  FailureHook

	failures int
	degraded bool
	last     float64
	hasLast  bool
}

// NewProbe создаёт зонд, игнорирующий коллизию самого персонажа (ownerID)
func NewProbe(service CollisionService, config ProbeConfig, ownerID string) *Probe {
	if config.DegradedAfter <= 0 {
		config.DegradedAfter = 1
	}
	return &Probe{
		service: service,
		config:  config,
		ignore:  NewIgnoreSet(ownerID),
		logger:  logging.GetPhysicsLogger(),
	}
}

// OnFailure устанавливает обработчик отказов (метрики)
func (p *Probe) OnFailure(hook FailureHook) {
	p.onFail = hook
}

// Ignore добавляет владельцев в список игнорируемых
func (p *Probe) Ignore(ids ...string) {
	for _, id := range ids {
		p.ignore[id] = struct{}{}
	}
}

// Probe возвращает расстояние до первого блокирующего попадания либо maxDistance.
// При недоступности сервиса возвращает maxDistance (видимость важнее точности).
func (p *Probe) Probe(origin, direction mgl64.Vec3, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 0
	}
	if p.service == nil {
		return p.fail(ErrQueryUnavailable, maxDistance)
	}

	dist, hit, err := p.service.Cast(Query{
		Origin:      origin,
		Direction:   direction,
		MaxDistance: maxDistance,
		Radius:      p.config.Radius,
		Channel:     p.config.Channel,
		Ignore:      p.ignore,
	})

	switch {
	case errors.Is(err, ErrQueryPending):
		// Запаздывание на кадр незаметно, блокировать тик нельзя
		if !p.hasLast {
			return maxDistance
		}
		return mgl64.Clamp(p.last, 0, maxDistance)
	case err != nil:
		return p.fail(err, maxDistance)
	}

	if p.failures > 0 || p.degraded {
		p.logger.Info("✅ Запросы коллизий восстановлены после %d отказов", p.failures)
	}
	p.failures = 0
	p.degraded = false

	if !hit {
		dist = maxDistance
	}
	dist = mgl64.Clamp(dist, 0, maxDistance)
	p.last = dist
	p.hasLast = true
	return dist
}

func (p *Probe) fail(err error, maxDistance float64) float64 {
	p.failures++
	if p.onFail != nil {
		p.onFail(err)
	}
	if !p.degraded && p.failures >= p.config.DegradedAfter {
		p.degraded = true
		p.logger.Warn("⚠️ Запросы коллизий недоступны %d раз подряд: %v", p.failures, err)
	}
	return maxDistance
}

// Degraded сообщает, что сервис коллизий стабильно недоступен
func (p *Probe) Degraded() bool {
	return p.degraded
}

// Failures возвращает число подряд неудачных запросов
func (p *Probe) Failures() int {
	return p.failures
}
