// Package config загружает настройки камерной подсистемы из YAML и переменных окружения.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/annel0/camera-rig/internal/camera/mode"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Виды транспорта состояния
const (
	TransportBus       = "bus"
	TransportNATS      = "nats"
	TransportJetStream = "jetstream"
	TransportKCP       = "kcp"
)

// Config корневая структура конфигурации приложения
type Config struct {
	Camera      CameraConfig      `yaml:"camera"`
	Replication ReplicationConfig `yaml:"replication"`
	Transport   TransportConfig   `yaml:"transport"`
	Storage     StorageConfig     `yaml:"storage"`
	API         APIConfig         `yaml:"api"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CameraConfig — параметры резолвера и машины режимов
type CameraConfig struct {
	Presets          string        `yaml:"presets" env:"CAMERA_PRESETS"`
	WatchPresets     bool          `yaml:"watch_presets" env:"CAMERA_WATCH_PRESETS"`
	PresetSyncURL    string        `yaml:"preset_sync_url" env:"CAMERA_PRESET_SYNC_URL"`
	NodeID           string        `yaml:"node_id" env:"CAMERA_NODE_ID"`
	DefaultMode      string        `yaml:"default_mode" env:"CAMERA_DEFAULT_MODE"`
	TieBreak         string        `yaml:"tie_break" env:"CAMERA_TIE_BREAK"`
	SwitchCooldown   time.Duration `yaml:"switch_cooldown" env:"CAMERA_SWITCH_COOLDOWN"`
	ProbeRadius      float64       `yaml:"probe_radius" env:"CAMERA_PROBE_RADIUS"`
	DegradedAfter    int           `yaml:"degraded_after" env:"CAMERA_DEGRADED_AFTER"`
	ZoomSpeed        float64       `yaml:"zoom_speed" env:"CAMERA_ZOOM_SPEED"`
	CrouchBlend      time.Duration `yaml:"crouch_blend" env:"CAMERA_CROUCH_BLEND"`
	CollapseBlend    time.Duration `yaml:"collapse_blend" env:"CAMERA_COLLAPSE_BLEND"`
	TeleportBlend    time.Duration `yaml:"teleport_blend" env:"CAMERA_TELEPORT_BLEND"`
	TeleportDistance float64       `yaml:"teleport_distance" env:"CAMERA_TELEPORT_DISTANCE"`
	LockRadius       float64       `yaml:"lock_radius" env:"CAMERA_LOCK_RADIUS"`
}

// ReplicationConfig — частота отправки и окно экстраполяции
type ReplicationConfig struct {
	Interval     time.Duration `yaml:"interval" env:"CAMERA_REPLICATION_INTERVAL"`
	Staleness    time.Duration `yaml:"staleness" env:"CAMERA_STALENESS"`
	JournalLimit int           `yaml:"journal_limit" env:"CAMERA_JOURNAL_LIMIT"`
}

// TransportConfig выбирает канал доставки состояний
type TransportConfig struct {
	Kind          string        `yaml:"kind" env:"CAMERA_TRANSPORT"`
	NATSURL       string        `yaml:"nats_url" env:"NATS_URL"`
	SubjectPrefix string        `yaml:"subject_prefix" env:"CAMERA_SUBJECT_PREFIX"`
	KCPAddr       string        `yaml:"kcp_addr" env:"CAMERA_KCP_ADDR"`
	BusCapacity   int           `yaml:"bus_capacity" env:"CAMERA_BUS_CAPACITY"`
	Stream        string        `yaml:"stream" env:"CAMERA_STREAM"`
	Retention     time.Duration `yaml:"retention" env:"CAMERA_STREAM_RETENTION"`
}

// StorageConfig — хранилище последних состояний и журнал кадров
type StorageConfig struct {
	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	StateTTL      time.Duration `yaml:"state_ttl" env:"CAMERA_STATE_TTL"`
	JournalPath   string        `yaml:"journal_path" env:"CAMERA_JOURNAL_PATH"`
}

// APIConfig — отладочный HTTP сервер
type APIConfig struct {
	Enabled bool   `yaml:"enabled" env:"CAMERA_API_ENABLED"`
	Addr    string `yaml:"addr" env:"CAMERA_API_ADDR"`
}

// TelemetryConfig — OpenTelemetry трассировка
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"CAMERA_TELEMETRY_ENABLED"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

// LoggingConfig — уровень и каталог логов
type LoggingConfig struct {
	Level string `yaml:"level" env:"CAMERA_LOG_LEVEL"`
	Dir   string `yaml:"dir" env:"CAMERA_LOG_DIR"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			DefaultMode:      mode.BuiltinFollowID,
			TieBreak:         mode.HighestPriority.String(),
			SwitchCooldown:   mode.DefaultSwitchCooldown,
			ProbeRadius:      0.164,
			DegradedAfter:    3,
			ZoomSpeed:        4,
			CrouchBlend:      500 * time.Millisecond,
			CollapseBlend:    120 * time.Millisecond,
			TeleportBlend:    0,
			TeleportDistance: 5,
			LockRadius:       25,
		},
		Replication: ReplicationConfig{
			Interval:     50 * time.Millisecond,
			Staleness:    500 * time.Millisecond,
			JournalLimit: 4096,
		},
		Transport: TransportConfig{
			Kind:          TransportBus,
			SubjectPrefix: "camera.state",
			KCPAddr:       "127.0.0.1:7790",
			BusCapacity:   256,
			Stream:        "CAMERA",
			Retention:     10 * time.Minute,
		},
		Storage: StorageConfig{
			StateTTL: 2 * time.Minute,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8089",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "camera-rig",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "logs",
		},
	}
}

// Load читает YAML файл поверх значений по умолчанию и применяет переменные окружения.
// Если path == "", используется ENV CAMERA_CONFIG; без файла остаются значения по умолчанию.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CAMERA_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("переменные окружения: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	if c.Camera.DefaultMode == "" {
		return fmt.Errorf("camera.default_mode не задан")
	}
	if _, err := mode.ParseTieBreak(c.Camera.TieBreak); err != nil {
		return fmt.Errorf("camera.tie_break: %w", err)
	}
	if c.Camera.SwitchCooldown < mode.MinSwitchCooldown || c.Camera.SwitchCooldown > mode.MaxSwitchCooldown {
		return fmt.Errorf("camera.switch_cooldown %s вне диапазона [%s, %s]",
			c.Camera.SwitchCooldown, mode.MinSwitchCooldown, mode.MaxSwitchCooldown)
	}
	if c.Camera.ProbeRadius < 0 {
		return fmt.Errorf("camera.probe_radius не может быть отрицательным")
	}
	if c.Camera.DegradedAfter <= 0 {
		return fmt.Errorf("camera.degraded_after должен быть положительным")
	}
	if c.Replication.Interval < 0 {
		return fmt.Errorf("replication.interval не может быть отрицательным")
	}
	if c.Replication.Staleness <= 0 {
		return fmt.Errorf("replication.staleness должен быть положительным")
	}

	c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
	switch c.Transport.Kind {
	case TransportBus, TransportNATS, TransportJetStream:
	case TransportKCP:
		if c.Transport.KCPAddr == "" {
			return fmt.Errorf("transport.kcp_addr обязателен для kcp")
		}
	default:
		return fmt.Errorf("неизвестный transport.kind %q", c.Transport.Kind)
	}

	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr обязателен при включённом API")
	}
	return nil
}
