package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Record — один реплицированный кадр камеры в журнале
type Record struct {
	CharacterID string
	Sequence    uint64
	Payload     []byte
}

// Journal записывает реплицированные кадры для повторов и killcam
type Journal interface {
	// Append добавляет кадр. Повтор номера перезаписывает запись.
	Append(ctx context.Context, rec Record) error
	// Range возвращает кадры персонажа с номерами в [from, to] по возрастанию. to == 0 — до конца.
	Range(ctx context.Context, characterID string, from, to uint64) ([]Record, error)
	// Truncate удаляет кадры с номерами меньше before
	Truncate(ctx context.Context, characterID string, before uint64) (int, error)
	Close() error
}

// MemoryJournal хранит журнал в памяти с ограничением числа кадров на персонажа
type MemoryJournal struct {
	mu      sync.RWMutex
	records map[string][]Record // отсортированы по Sequence
	limit   int
}

// NewMemoryJournal создаёт журнал. limit <= 0 — без ограничения.
func NewMemoryJournal(limit int) *MemoryJournal {
	return &MemoryJournal{
		records: make(map[string][]Record),
		limit:   limit,
	}
}

// Append реализует Journal
func (j *MemoryJournal) Append(ctx context.Context, rec Record) error {
	if rec.CharacterID == "" {
		return fmt.Errorf("пустой идентификатор персонажа")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := make([]byte, len(rec.Payload))
	copy(payload, rec.Payload)
	rec.Payload = payload

	j.mu.Lock()
	defer j.mu.Unlock()

	list := j.records[rec.CharacterID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Sequence >= rec.Sequence })
	switch {
	case i < len(list) && list[i].Sequence == rec.Sequence:
		list[i] = rec
	default:
		list = append(list, Record{})
		copy(list[i+1:], list[i:])
		list[i] = rec
	}
	if j.limit > 0 && len(list) > j.limit {
		list = append([]Record(nil), list[len(list)-j.limit:]...)
	}
	j.records[rec.CharacterID] = list
	return nil
}

// Range реализует Journal
func (j *MemoryJournal) Range(ctx context.Context, characterID string, from, to uint64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []Record
	for _, rec := range j.records[characterID] {
		if rec.Sequence < from {
			continue
		}
		if to != 0 && rec.Sequence > to {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// Truncate реализует Journal
func (j *MemoryJournal) Truncate(ctx context.Context, characterID string, before uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	list := j.records[characterID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Sequence >= before })
	j.records[characterID] = append([]Record(nil), list[i:]...)
	return i, nil
}

// Close реализует Journal
func (j *MemoryJournal) Close() error {
	return nil
}
