// Package resolver собирает камеру персонажа за один тик: режим, штанга, смешивание, репликация.
package resolver

import (
	"sort"
	"sync"
	"time"

	"github.com/annel0/camera-rig/internal/camera"
)

// Frame — итог тика, передаваемый слою отображения
type Frame struct {
	CharacterID  string
	Transform    camera.Transform
	ModeID       string
	Style        camera.Style
	Collapsed    bool
	Degraded     camera.Degraded
	Transitioned bool
	Sequence     uint64 // последний отправленный или принятый номер кадра репликации
	At           time.Time
}

// Sink принимает кадры камеры (слой отображения, отладочный реестр)
type Sink interface {
	Present(f Frame)
}

// SinkFunc позволяет использовать функцию как Sink
type SinkFunc func(f Frame)

// Present реализует Sink
func (fn SinkFunc) Present(f Frame) { fn(f) }

// Sinks рассылает кадр нескольким получателям
type Sinks []Sink

// Present реализует Sink
func (s Sinks) Present(f Frame) {
	for _, sink := range s {
		if sink != nil {
			sink.Present(f)
		}
	}
}

// Registry хранит последний кадр каждой камеры. Это единственная общая структура:
// резолверы пишут из своих тиков, отладочный API читает.
type Registry struct {
	mu     sync.RWMutex
	frames map[string]Frame
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{frames: make(map[string]Frame)}
}

// Present реализует Sink
func (r *Registry) Present(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[f.CharacterID] = f
}

// Get возвращает последний кадр камеры
func (r *Registry) Get(characterID string) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.frames[characterID]
	return f, ok
}

// List возвращает кадры всех камер, отсортированные по персонажу
func (r *Registry) List() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Frame, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharacterID < out[j].CharacterID })
	return out
}

// Remove удаляет камеру из реестра
func (r *Registry) Remove(characterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.frames, characterID)
}

// Len возвращает количество камер
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}
