package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/dgraph-io/badger/v3"
)

// BadgerJournal хранит журнал кадров в BadgerDB.
// Ключ: "cam:<id>:" + номер кадра в big-endian, поэтому итерация идёт по возрастанию номера.
type BadgerJournal struct {
	db      *badger.DB
	mu      sync.RWMutex
	isReady bool
	logger  *logging.Logger
}

// OpenBadgerJournal открывает журнал в каталоге. Пустой путь — хранение в памяти.
func OpenBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	j := &BadgerJournal{db: db, isReady: true, logger: logging.GetStorageLogger()}
	if path != "" {
		j.logger.Info("💾 Журнал камер открыт: %s", path)
	}
	return j, nil
}

func journalPrefix(characterID string) []byte {
	return []byte("cam:" + characterID + ":")
}

func journalKey(characterID string, seq uint64) []byte {
	prefix := journalPrefix(characterID)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

// Append реализует Journal
func (j *BadgerJournal) Append(ctx context.Context, rec Record) error {
	if rec.CharacterID == "" {
		return fmt.Errorf("пустой идентификатор персонажа")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.isReady {
		return fmt.Errorf("журнал закрыт")
	}

	err := j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(rec.CharacterID, rec.Sequence), rec.Payload)
	})
	if err != nil {
		return fmt.Errorf("ошибка записи кадра в BadgerDB: %w", err)
	}
	return nil
}

// Range реализует Journal
func (j *BadgerJournal) Range(ctx context.Context, characterID string, from, to uint64) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.isReady {
		return nil, fmt.Errorf("журнал закрыт")
	}

	prefix := journalPrefix(characterID)
	var upper []byte
	if to != 0 {
		upper = journalKey(characterID, to)
	}

	var out []Record
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(journalKey(characterID, from)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			if upper != nil && bytes.Compare(key, upper) > 0 {
				break
			}
			// Префикс другого персонажа вида "cam:<id>:x..." не должен попасть в выборку
			if len(key) != len(prefix)+8 {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, Record{
				CharacterID: characterID,
				Sequence:    binary.BigEndian.Uint64(key[len(prefix):]),
				Payload:     value,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return out, nil
}

// Truncate реализует Journal
func (j *BadgerJournal) Truncate(ctx context.Context, characterID string, before uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.isReady {
		return 0, fmt.Errorf("журнал закрыт")
	}

	prefix := journalPrefix(characterID)
	var keys [][]byte
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		limit := journalKey(characterID, before)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, limit) >= 0 {
				break
			}
			if len(key) == len(prefix)+8 {
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения журнала: %w", err)
	}

	wb := j.db.NewWriteBatch()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("ошибка удаления кадра: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("ошибка удаления кадров: %w", err)
	}
	return len(keys), nil
}

// Close закрывает журнал
func (j *BadgerJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.isReady {
		return nil
	}
	j.isReady = false
	return j.db.Close()
}
