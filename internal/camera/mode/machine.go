package mode

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/logging"
)

// ErrInvalidDefault — режим по умолчанию не найден; камере персонажа не во что войти
var ErrInvalidDefault = errors.New("invalid default camera mode")

// Границы задержки ручного переключения стиля
const (
	MinSwitchCooldown     = 200 * time.Millisecond
	MaxSwitchCooldown     = time.Second
	DefaultSwitchCooldown = 300 * time.Millisecond
)

// TieBreak — правило выбора при одновременно выполненных условиях нескольких режимов
type TieBreak uint8

const (
	// HighestPriority — больший приоритет, при равенстве — порядок объявления
	HighestPriority TieBreak = iota
	// DeclarationOrder — первый объявленный режим
	DeclarationOrder
)

// String возвращает имя правила
func (t TieBreak) String() string {
	if t == DeclarationOrder {
		return "declaration_order"
	}
	return "highest_priority"
}

// ParseTieBreak разбирает правило из конфигурации
func ParseTieBreak(name string) (TieBreak, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "highest_priority", "priority":
		return HighestPriority, nil
	case "declaration_order", "order":
		return DeclarationOrder, nil
	default:
		return HighestPriority, fmt.Errorf("неизвестное правило выбора режима %q", name)
	}
}

// Transition описывает смену активного режима
type Transition struct {
	From CameraMode
	To   CameraMode
	At   time.Time
}

// Option настраивает автомат
type Option func(*Machine)

// WithTieBreak задаёт правило выбора
func WithTieBreak(t TieBreak) Option {
	return func(m *Machine) { m.tieBreak = t }
}

// WithSwitchCooldown задаёт задержку ручного переключения (ограничена 0.2–1 с)
func WithSwitchCooldown(d time.Duration) Option {
	return func(m *Machine) { m.cooldown = ClampCooldown(d) }
}

// WithTransitionHook подписывает обработчик на смены режима (метрики)
func WithTransitionHook(hook func(Transition)) Option {
	return func(m *Machine) { m.hooks = append(m.hooks, hook) }
}

// ClampCooldown ограничивает задержку переключения допустимым диапазоном
func ClampCooldown(d time.Duration) time.Duration {
	if d < MinSwitchCooldown {
		return MinSwitchCooldown
	}
	if d > MaxSwitchCooldown {
		return MaxSwitchCooldown
	}
	return d
}

// Machine — автомат режимов камеры одного персонажа.
// Ровно один режим активен в любой момент; смена выполняется одним присваиванием.
type Machine struct {
	store     Store
	defaultID string
	fallback  CameraMode // режим по умолчанию на момент создания
	base      string     // режим, к которому автомат возвращается без условий

	modes     []CameraMode
	index     map[string]int
	requested []string // режимы вне набора по умолчанию, выбранные через Request

	active      CameraMode
	tieBreak    TieBreak
	cooldown    time.Duration
	lastRequest time.Time
	dirty       atomic.Bool

	hooks  []func(Transition)
	logger *logging.Logger
}

// NewMachine создаёт автомат. Если хранилище не знает режим по умолчанию,
// возвращает ErrInvalidDefault: это ошибка конфигурации.
func NewMachine(store Store, defaultID string, opts ...Option) (*Machine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: хранилище режимов не задано", ErrInvalidDefault)
	}
	def, err := store.GetCameraMode(defaultID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDefault, defaultID, err)
	}

	m := &Machine{
		store:     store,
		defaultID: defaultID,
		fallback:  def,
		base:      defaultID,
		active:    def,
		cooldown:  DefaultSwitchCooldown,
		logger:    logging.GetCameraLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loadSet()
	return m, nil
}

// Active возвращает активный режим
func (m *Machine) Active() CameraMode {
	return m.active
}

// Base возвращает базовый режим (по умолчанию или выбранный игроком)
func (m *Machine) Base() string {
	return m.base
}

// Modes возвращает идентификаторы режимов в порядке объявления
func (m *Machine) Modes() []string {
	ids := make([]string, len(m.modes))
	for i, mode := range m.modes {
		ids[i] = mode.ID
	}
	return ids
}

// Evaluate выполняет не более одного перехода за тик.
// Кандидаты: неактивные режимы с выполненным Enter, активный режим пока не выполнен Exit,
// базовый режим (по умолчанию или запрошенный игроком).
func (m *Machine) Evaluate(s camera.CharacterSnapshot, now time.Time) (Transition, bool) {
	if m.dirty.CompareAndSwap(true, false) {
		m.Reload()
	}

	winner := -1
	for i, mode := range m.modes {
		var candidate bool
		switch {
		case mode.ID == m.base:
			candidate = true
		case mode.ID == m.active.ID:
			candidate = mode.Stays(s.Flags)
		default:
			candidate = mode.Enter.Holds(s.Flags)
		}
		if candidate && (winner < 0 || m.better(i, winner)) {
			winner = i
		}
	}

	next := m.fallback
	if winner >= 0 {
		next = m.modes[winner]
	}
	if next.ID == m.active.ID {
		// Пресет мог обновиться: подхватываем новую версию без перехода
		m.active = next
		return Transition{}, false
	}

	tr := Transition{From: m.active, To: next, At: now}
	m.active = next
	m.logger.Debug("🎥 Режим камеры %s: %s → %s", s.ID, tr.From.ID, tr.To.ID)
	for _, hook := range m.hooks {
		hook(tr)
	}
	return tr, true
}

func (m *Machine) better(a, b int) bool {
	if m.tieBreak == DeclarationOrder {
		return a < b
	}
	pa, pb := m.modes[a].Priority, m.modes[b].Priority
	if pa != pb {
		return pa > pb
	}
	return a < b
}

// Request — ручное переключение стиля игроком. Меняет базовый режим;
// переход выполнит следующий Evaluate. Возвращает false при срабатывании задержки
// или неизвестном режиме.
func (m *Machine) Request(id string, now time.Time) bool {
	if !m.lastRequest.IsZero() && now.Sub(m.lastRequest) < m.cooldown {
		return false
	}
	if _, ok := m.index[id]; !ok {
		mode, err := m.store.GetCameraMode(id)
		if err != nil {
			m.logger.Warn("⚠️ Запрошен неизвестный режим камеры %q: %v", id, err)
			return false
		}
		m.index[id] = len(m.modes)
		m.modes = append(m.modes, mode)
		m.requested = append(m.requested, id)
	}
	m.lastRequest = now
	m.base = id
	return true
}

// MarkDirty просит перечитать набор режимов на следующем Evaluate.
// Безопасно вызывать из другой горутины (наблюдатель за файлом).
func (m *Machine) MarkDirty() {
	m.dirty.Store(true)
}

// Reload перечитывает набор режимов из хранилища.
// Исчезнувший активный режим заменится базовым на следующем Evaluate.
func (m *Machine) Reload() {
	m.loadSet()
	if _, ok := m.index[m.base]; !ok {
		m.logger.Warn("⚠️ Базовый режим %q исчез после перезагрузки, возврат к %q", m.base, m.defaultID)
		m.base = m.defaultID
	}
}

// loadSet читает набор режимов. Отсутствующие идентификаторы заменяются встроенным режимом.
func (m *Machine) loadSet() {
	ids, err := m.store.GetDefaultModeSet()
	if err != nil {
		m.logger.Warn("⚠️ Не удалось прочитать набор режимов: %v", err)
		ids = nil
	}

	modes := make([]CameraMode, 0, len(ids)+1)
	index := make(map[string]int, len(ids)+1)
	for _, id := range ids {
		if _, dup := index[id]; dup {
			continue
		}
		mode, err := m.store.GetCameraMode(id)
		if err != nil {
			m.logger.Warn("⚠️ Режим %q не найден, используется встроенный: %v", id, err)
			mode = BuiltinFollow()
			mode.ID = id
		}
		index[id] = len(modes)
		modes = append(modes, mode)
	}

	if _, ok := index[m.defaultID]; !ok {
		def, err := m.store.GetCameraMode(m.defaultID)
		if err != nil {
			def = m.fallback
		}
		index[m.defaultID] = len(modes)
		modes = append(modes, def)
	}

	// Запрошенные игроком режимы вне набора переживают перезагрузку, пока они есть в хранилище
	kept := m.requested[:0]
	for _, id := range m.requested {
		if _, ok := index[id]; ok {
			kept = append(kept, id)
			continue
		}
		mode, err := m.store.GetCameraMode(id)
		if err != nil {
			continue
		}
		index[id] = len(modes)
		modes = append(modes, mode)
		kept = append(kept, id)
	}
	m.requested = kept

	m.modes = modes
	m.index = index
}
