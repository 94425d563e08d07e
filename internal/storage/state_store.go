// Package storage хранит последнее авторитетное состояние камер и журнал реплицированных кадров.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound — для персонажа ещё нет сохранённого состояния
var ErrNotFound = errors.New("camera state not found")

// StateStore хранит последнее закодированное состояние камеры каждого персонажа.
// Опоздавшие наблюдатели читают его до первого пакета из сети.
type StateStore interface {
	// Save перезаписывает состояние персонажа
	Save(ctx context.Context, characterID string, payload []byte) error
	// Load возвращает состояние или ErrNotFound
	Load(ctx context.Context, characterID string) ([]byte, error)
	// Delete удаляет состояние (персонаж покинул игру)
	Delete(ctx context.Context, characterID string) error
	// List возвращает идентификаторы персонажей с сохранённым состоянием
	List(ctx context.Context) ([]string, error)
}

// MemoryStateStore реализует StateStore в памяти.
// Используется для одного процесса и тестов; данные теряются при перезапуске.
type MemoryStateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStateStore создаёт хранилище в памяти
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{data: make(map[string][]byte)}
}

// Save реализует StateStore
func (s *MemoryStateStore) Save(ctx context.Context, characterID string, payload []byte) error {
	if characterID == "" {
		return fmt.Errorf("пустой идентификатор персонажа")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[characterID] = cp
	return nil
}

// Load реализует StateStore
func (s *MemoryStateStore) Load(ctx context.Context, characterID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.data[characterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, characterID)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, nil
}

// Delete реализует StateStore
func (s *MemoryStateStore) Delete(ctx context.Context, characterID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, characterID)
	return nil
}

// List реализует StateStore
func (s *MemoryStateStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count возвращает количество сохранённых состояний (для отладки)
func (s *MemoryStateStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
