// Package replication передаёт авторитетное состояние камеры наблюдателям
// и восстанавливает его на их стороне с ограниченной экстраполяцией.
package replication

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// SchemaVersion — версия формата сетевого состояния.
// Несовпадение версий означает несовместимого собеседника.
const SchemaVersion uint32 = 1

// State — компактный снимок авторитетной камеры
type State struct {
	Schema      uint32
	CharacterID string
	Pivot       mgl64.Vec3
	Velocity    mgl64.Vec3
	Yaw         float64
	Pitch       float64
	Distance    float64
	ModeID      string
	Sequence    uint64
	TimestampMs int64
}

// Timestamp возвращает время создания снимка на авторитетной стороне
func (s State) Timestamp() time.Time {
	return time.UnixMilli(s.TimestampMs)
}
