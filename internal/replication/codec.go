package replication

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrSchemaMismatch — пакет закодирован другой версией схемы
var ErrSchemaMismatch = errors.New("camera state schema mismatch")

// Номера полей сетевого формата. Номер 1 всегда версия схемы.
const (
	fieldSchema      protowire.Number = 1
	fieldCharacterID protowire.Number = 2
	fieldPivotX      protowire.Number = 3
	fieldPivotY      protowire.Number = 4
	fieldPivotZ      protowire.Number = 5
	fieldVelocityX   protowire.Number = 6
	fieldVelocityY   protowire.Number = 7
	fieldVelocityZ   protowire.Number = 8
	fieldYaw         protowire.Number = 9
	fieldPitch       protowire.Number = 10
	fieldDistance    protowire.Number = 11
	fieldModeID      protowire.Number = 12
	fieldSequence    protowire.Number = 13
	fieldTimestamp   protowire.Number = 14
)

// Encode кодирует состояние в protobuf-совместимый формат.
// Нулевая версия схемы заменяется текущей.
func Encode(s State) []byte {
	schema := s.Schema
	if schema == 0 {
		schema = SchemaVersion
	}

	b := make([]byte, 0, 128)
	b = protowire.AppendTag(b, fieldSchema, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(schema))
	b = protowire.AppendTag(b, fieldCharacterID, protowire.BytesType)
	b = protowire.AppendString(b, s.CharacterID)

	b = appendVec3(b, fieldPivotX, s.Pivot)
	b = appendVec3(b, fieldVelocityX, s.Velocity)
	b = appendDouble(b, fieldYaw, s.Yaw)
	b = appendDouble(b, fieldPitch, s.Pitch)
	b = appendDouble(b, fieldDistance, s.Distance)

	b = protowire.AppendTag(b, fieldModeID, protowire.BytesType)
	b = protowire.AppendString(b, s.ModeID)
	b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, s.Sequence)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(s.TimestampMs))
	return b
}

// Decode разбирает состояние. Неизвестные поля пропускаются.
// Пакет без версии или с чужой версией возвращает ErrSchemaMismatch.
func Decode(data []byte) (State, error) {
	var (
		s         State
		hasSchema bool
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return State{}, fmt.Errorf("разбор тега: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldSchema || num == fieldSequence || num == fieldTimestamp):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return State{}, fmt.Errorf("поле %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			switch num {
			case fieldSchema:
				if v > math.MaxUint32 {
					return State{}, fmt.Errorf("%w: версия %d", ErrSchemaMismatch, v)
				}
				s.Schema = uint32(v)
				hasSchema = true
			case fieldSequence:
				s.Sequence = v
			case fieldTimestamp:
				s.TimestampMs = protowire.DecodeZigZag(v)
			}

		case typ == protowire.BytesType && (num == fieldCharacterID || num == fieldModeID):
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return State{}, fmt.Errorf("поле %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldCharacterID {
				s.CharacterID = v
			} else {
				s.ModeID = v
			}

		case typ == protowire.Fixed64Type && num >= fieldPivotX && num <= fieldDistance:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return State{}, fmt.Errorf("поле %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
			setDouble(&s, num, math.Float64frombits(v))

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return State{}, fmt.Errorf("поле %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !hasSchema || s.Schema != SchemaVersion {
		return s, fmt.Errorf("%w: получена версия %d, ожидалась %d", ErrSchemaMismatch, s.Schema, SchemaVersion)
	}
	return s, nil
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendVec3(b []byte, first protowire.Number, v mgl64.Vec3) []byte {
	for i := 0; i < 3; i++ {
		b = appendDouble(b, first+protowire.Number(i), v[i])
	}
	return b
}

func setDouble(s *State, num protowire.Number, v float64) {
	switch num {
	case fieldPivotX, fieldPivotY, fieldPivotZ:
		s.Pivot[num-fieldPivotX] = v
	case fieldVelocityX, fieldVelocityY, fieldVelocityZ:
		s.Velocity[num-fieldVelocityX] = v
	case fieldYaw:
		s.Yaw = v
	case fieldPitch:
		s.Pitch = v
	case fieldDistance:
		s.Distance = v
	}
}
