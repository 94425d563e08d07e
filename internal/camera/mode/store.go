package mode

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownMode — хранилище не знает запрошенный идентификатор
var ErrUnknownMode = errors.New("unknown camera mode")

// Store — источник конфигурации режимов. Внедряется в автомат, а не берётся из глобального состояния.
type Store interface {
	GetCameraMode(id string) (CameraMode, error)
	GetDefaultModeSet() ([]string, error)
}

// MemoryStore хранит режимы в памяти (тесты, симулятор)
type MemoryStore struct {
	mu    sync.RWMutex
	modes map[string]CameraMode
	order []string
}

// NewMemoryStore создаёт хранилище; порядок аргументов задаёт порядок объявления
func NewMemoryStore(modes ...CameraMode) *MemoryStore {
	s := &MemoryStore{modes: make(map[string]CameraMode, len(modes))}
	for _, m := range modes {
		s.Put(m)
	}
	return s
}

// Put добавляет или заменяет режим
func (s *MemoryStore) Put(m CameraMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.modes[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.modes[m.ID] = m
}

// Remove удаляет режим
func (s *MemoryStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.modes[id]; !exists {
		return
	}
	delete(s.modes, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// GetCameraMode реализует Store
func (s *MemoryStore) GetCameraMode(id string) (CameraMode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modes[id]
	if !ok {
		return CameraMode{}, fmt.Errorf("%w: %q", ErrUnknownMode, id)
	}
	return m, nil
}

// GetDefaultModeSet реализует Store
func (s *MemoryStore) GetDefaultModeSet() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}
