package mode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
	"github.com/annel0/camera-rig/internal/camera/blend"
	"github.com/annel0/camera-rig/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// presetFile — формат YAML файла пресетов. Углы в градусах.
type presetFile struct {
	Default string   `yaml:"default"`
	Modes   []preset `yaml:"modes"`
}

type preset struct {
	ID          string        `yaml:"id"`
	Style       string        `yaml:"style"`
	Priority    int           `yaml:"priority"`
	Offset      presetOffset  `yaml:"offset"`
	MinDistance float64       `yaml:"min_distance"`
	MaxDistance float64       `yaml:"max_distance"`
	Sockets     presetSockets `yaml:"sockets"`
	FOV         float64       `yaml:"fov"`
	Blend       time.Duration `yaml:"blend"`
	Curve       string        `yaml:"curve"`
	PivotLag    []float64     `yaml:"pivot_lag"`
	RotationLag float64       `yaml:"rotation_lag"`
	Enter       Condition     `yaml:"enter"`
	Exit        Condition     `yaml:"exit"`
}

type presetOffset struct {
	Yaw      float64 `yaml:"yaw"`
	Pitch    float64 `yaml:"pitch"`
	Distance float64 `yaml:"distance"`
}

type presetSockets struct {
	Center []float64 `yaml:"center"`
	Left   []float64 `yaml:"left"`
	Right  []float64 `yaml:"right"`
}

// FileStore читает пресеты режимов из YAML файла и перечитывает их при изменении
type FileStore struct {
	path   string
	logger *logging.Logger

	mu        sync.RWMutex
	modes     map[string]CameraMode
	order     []string
	defaultID string
}

// NewFileStore загружает пресеты из файла
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		logger: logging.GetCameraLogger(),
	}
	if err := fs.Load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load перечитывает файл. При ошибке предыдущий набор режимов сохраняется.
func (fs *FileStore) Load() error {
	data, err := os.ReadFile(fs.path)
	if err != nil {
		return fmt.Errorf("чтение пресетов %s: %w", fs.path, err)
	}
	modes, order, defaultID, err := ParsePresets(data)
	if err != nil {
		return fmt.Errorf("разбор пресетов %s: %w", fs.path, err)
	}

	fs.mu.Lock()
	fs.modes = modes
	fs.order = order
	fs.defaultID = defaultID
	fs.mu.Unlock()

	fs.logger.Info("📷 Загружено %d режимов камеры из %s (по умолчанию: %s)", len(order), fs.path, defaultID)
	return nil
}

// GetCameraMode реализует Store
func (fs *FileStore) GetCameraMode(id string) (CameraMode, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m, ok := fs.modes[id]
	if !ok {
		return CameraMode{}, fmt.Errorf("%w: %q", ErrUnknownMode, id)
	}
	return m, nil
}

// GetDefaultModeSet реализует Store
func (fs *FileStore) GetDefaultModeSet() ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, len(fs.order))
	copy(out, fs.order)
	return out, nil
}

// DefaultID возвращает режим по умолчанию из файла
func (fs *FileStore) DefaultID() string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.defaultID
}

// Watch следит за файлом и перечитывает его при изменении, затем вызывает onReload.
// Следит за каталогом: редакторы часто заменяют файл переименованием.
// Блокирует до отмены контекста.
func (fs *FileStore) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("создание fsnotify: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("наблюдение за %s: %w", fs.path, err)
	}

	target := filepath.Clean(fs.path)
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Редакторы пишут файл несколькими событиями подряд
			now := time.Now()
			if now.Sub(last) < 100*time.Millisecond {
				continue
			}
			if err := fs.Load(); err != nil {
				fs.logger.Warn("⚠️ Пресеты не перечитаны: %v", err)
				continue
			}
			last = now
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fs.logger.Warn("⚠️ Ошибка fsnotify: %v", err)
		}
	}
}

// ParsePresets разбирает YAML пресеты в набор режимов в порядке объявления
func ParsePresets(data []byte) (map[string]CameraMode, []string, string, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, "", err
	}

	if len(file.Modes) == 0 {
		return nil, nil, "", fmt.Errorf("не объявлено ни одного режима")
	}

	modes := make(map[string]CameraMode, len(file.Modes))
	order := make([]string, 0, len(file.Modes))
	for i, p := range file.Modes {
		m, err := p.toMode()
		if err != nil {
			return nil, nil, "", fmt.Errorf("режим #%d: %w", i, err)
		}
		if _, dup := modes[m.ID]; dup {
			return nil, nil, "", fmt.Errorf("режим %q объявлен дважды", m.ID)
		}
		modes[m.ID] = m
		order = append(order, m.ID)
	}

	defaultID := file.Default
	if defaultID == "" && len(order) > 0 {
		defaultID = order[0]
	}
	return modes, order, defaultID, nil
}

func (p preset) toMode() (CameraMode, error) {
	if p.ID == "" {
		return CameraMode{}, fmt.Errorf("не задан id")
	}
	style, err := camera.ParseStyle(p.Style)
	if err != nil {
		return CameraMode{}, err
	}
	curve, err := blend.ParseCurve(p.Curve)
	if err != nil {
		return CameraMode{}, err
	}
	if p.MaxDistance > 0 && p.MinDistance > p.MaxDistance {
		return CameraMode{}, fmt.Errorf("min_distance %.2f больше max_distance %.2f", p.MinDistance, p.MaxDistance)
	}

	m := CameraMode{
		ID:       p.ID,
		Style:    style,
		Priority: p.Priority,
		Offset: Offset{
			YawOffset: mgl64.DegToRad(p.Offset.Yaw),
			Pitch:     mgl64.DegToRad(p.Offset.Pitch),
			Distance:  p.Offset.Distance,
		},
		MinDistance:   p.MinDistance,
		MaxDistance:   p.MaxDistance,
		SocketOffsets: make(map[camera.Orientation]mgl64.Vec3, 3),
		FOV:           p.FOV,
		BlendDuration: p.Blend,
		Curve:         curve,
		RotationLag:   p.RotationLag,
		Enter:         p.Enter,
		Exit:          p.Exit,
	}
	if m.FOV <= 0 {
		m.FOV = 90
	}
	if m.MaxDistance <= 0 {
		m.MaxDistance = m.Offset.Distance
	}

	sockets := map[camera.Orientation][]float64{
		camera.OrientationCenter:        p.Sockets.Center,
		camera.OrientationLeftShoulder:  p.Sockets.Left,
		camera.OrientationRightShoulder: p.Sockets.Right,
	}
	for o, raw := range sockets {
		if raw == nil {
			continue
		}
		v, err := toVec3(raw)
		if err != nil {
			return CameraMode{}, fmt.Errorf("сокет %s: %w", o, err)
		}
		m.SocketOffsets[o] = v
	}
	if p.PivotLag != nil {
		lag, err := toVec3(p.PivotLag)
		if err != nil {
			return CameraMode{}, fmt.Errorf("pivot_lag: %w", err)
		}
		m.PivotLag = lag
	}
	return m, nil
}

func toVec3(raw []float64) (mgl64.Vec3, error) {
	if len(raw) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("ожидалось 3 компоненты, получено %d", len(raw))
	}
	return mgl64.Vec3{raw[0], raw[1], raw[2]}, nil
}
