package replication

import (
	"context"
	"fmt"

	"github.com/annel0/camera-rig/internal/storage"
	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

// FrameCodec упаковывает пачку состояний (журнал, догоняющая выдача) в один zstd кадр.
// Кодер и декодер zstd потокобезопасны для EncodeAll/DecodeAll.
type FrameCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFrameCodec создаёт кодек
func NewFrameCodec() (*FrameCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("создание zstd кодера: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("создание zstd декодера: %w", err)
	}
	return &FrameCodec{encoder: enc, decoder: dec}, nil
}

// Pack кодирует состояния с префиксом длины и сжимает
func (c *FrameCodec) Pack(states []State) []byte {
	raw := make([]byte, 0, len(states)*96)
	for _, s := range states {
		raw = protowire.AppendBytes(raw, Encode(s))
	}
	return c.encoder.EncodeAll(raw, nil)
}

// Unpack распаковывает пачку. Ошибка схемы любого состояния прерывает разбор.
func (c *FrameCodec) Unpack(frame []byte) ([]State, error) {
	raw, err := c.decoder.DecodeAll(frame, nil)
	if err != nil {
		return nil, fmt.Errorf("распаковка zstd: %w", err)
	}

	var states []State
	for len(raw) > 0 {
		payload, n := protowire.ConsumeBytes(raw)
		if n < 0 {
			return nil, fmt.Errorf("разбор пачки: %w", protowire.ParseError(n))
		}
		raw = raw[n:]
		s, err := Decode(payload)
		if err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, nil
}

// Close освобождает ресурсы zstd
func (c *FrameCodec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

// Export читает кадры персонажа из журнала и упаковывает их одним сжатым кадром
func (c *FrameCodec) Export(ctx context.Context, journal storage.Journal, characterID string, from, to uint64) ([]byte, int, error) {
	records, err := journal.Range(ctx, characterID, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("чтение журнала %s: %w", characterID, err)
	}
	states := make([]State, 0, len(records))
	for _, rec := range records {
		s, err := Decode(rec.Payload)
		if err != nil {
			return nil, 0, fmt.Errorf("кадр %d: %w", rec.Sequence, err)
		}
		states = append(states, s)
	}
	return c.Pack(states), len(states), nil
}
