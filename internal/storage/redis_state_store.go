package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // адрес Redis сервера
	Password  string        // пароль (пустой, если не требуется)
	DB        int           // номер базы данных
	KeyPrefix string        // префикс ключей
	TTL       time.Duration // время жизни состояния; брошенные камеры исчезают сами
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "camera:state:",
		TTL:       2 * time.Minute,
	}
}

// RedisStateStore хранит последнее состояние камер в Redis (общий доступ для нескольких серверов)
type RedisStateStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logging.Logger
}

// NewRedisStateStore подключается к Redis и проверяет соединение
func NewRedisStateStore(ctx context.Context, config *RedisConfig) (*RedisStateStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisStateStoreWithClient(client, config)
	store.logger.Info("🔴 Подключено к Redis %s (префикс %s)", config.Addr, config.KeyPrefix)
	return store, nil
}

// NewRedisStateStoreWithClient оборачивает готовый клиент
func NewRedisStateStoreWithClient(client *redis.Client, config *RedisConfig) *RedisStateStore {
	if config == nil {
		config = DefaultRedisConfig()
	}
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "camera:state:"
	}
	return &RedisStateStore{
		client:    client,
		keyPrefix: prefix,
		ttl:       config.TTL,
		logger:    logging.GetStorageLogger(),
	}
}

func (s *RedisStateStore) key(characterID string) string {
	return s.keyPrefix + characterID
}

// Save реализует StateStore
func (s *RedisStateStore) Save(ctx context.Context, characterID string, payload []byte) error {
	if characterID == "" {
		return fmt.Errorf("пустой идентификатор персонажа")
	}
	if err := s.client.Set(ctx, s.key(characterID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save camera state: %w", err)
	}
	return nil
}

// Load реализует StateStore
func (s *RedisStateStore) Load(ctx context.Context, characterID string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(characterID)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, characterID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load camera state: %w", err)
	}
	return data, nil
}

// Delete реализует StateStore
func (s *RedisStateStore) Delete(ctx context.Context, characterID string) error {
	if err := s.client.Del(ctx, s.key(characterID)).Err(); err != nil {
		return fmt.Errorf("failed to delete camera state: %w", err)
	}
	return nil
}

// List реализует StateStore через SCAN, не блокируя Redis
func (s *RedisStateStore) List(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera states: %w", err)
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, s.keyPrefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(ids)
	return ids, nil
}

// Close закрывает соединение
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
