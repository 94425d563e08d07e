package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/xtaci/kcp-go/v5"
)

// maxFrameSize ограничивает размер кадра, чтобы испорченный заголовок не съел память
const maxFrameSize = 1 << 20

// ErrLinkClosed — соединение закрыто
var ErrLinkClosed = errors.New("kcp link closed")

// KCPLink — точка-точка поток кадров поверх KCP (надёжный UDP).
// Кадр: uint32 длина (LE) | uint16 длина id (LE) | id | состояние.
// Подписки локальны: обработчик получает кадры, пришедшие от собеседника.
type KCPLink struct {
	conn   *kcp.UDPSession
	logger *logging.Logger

	writeMu sync.Mutex

	mu       sync.RWMutex
	handlers map[string]map[int]Handler
	nextID   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DialKCP подключается к слушателю KCP
func DialKCP(addr string) (*KCPLink, error) {
	conn, err := kcp.DialWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	link := newKCPLink(conn)
	link.logger.Info("🔌 KCP канал подключён: %s", addr)
	return link, nil
}

// KCPListener принимает входящие KCP соединения
type KCPListener struct {
	ln *kcp.Listener
}

// ListenKCP начинает слушать адрес
func ListenKCP(addr string) (*KCPListener, error) {
	ln, err := kcp.ListenWithOptions(addr, nil, 10, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &KCPListener{ln: ln}, nil
}

// Accept ждёт следующего собеседника
func (l *KCPListener) Accept() (*KCPLink, error) {
	conn, err := l.ln.AcceptKCP()
	if err != nil {
		return nil, err
	}
	link := newKCPLink(conn)
	link.logger.Info("🔌 KCP собеседник принят: %s", conn.RemoteAddr())
	return link, nil
}

// Addr возвращает адрес слушателя
func (l *KCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close останавливает приём соединений
func (l *KCPListener) Close() error {
	return l.ln.Close()
}

func newKCPLink(conn *kcp.UDPSession) *KCPLink {
	// Настраиваем KCP параметры для игрового трафика
	conn.SetStreamMode(true)
	conn.SetWriteDelay(false)
	conn.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	conn.SetWindowSize(512, 512) // Увеличиваем окно для пропускной способности
	conn.SetMtu(1400)            // Стандартный MTU для интернета

	ctx, cancel := context.WithCancel(context.Background())
	link := &KCPLink{
		conn:     conn,
		logger:   logging.GetTransportLogger(),
		handlers: make(map[string]map[int]Handler),
		ctx:      ctx,
		cancel:   cancel,
	}
	link.wg.Add(1)
	go link.readLoop()
	return link
}

// Publish реализует Transport: отправляет кадр собеседнику
func (l *KCPLink) Publish(ctx context.Context, characterID string, payload []byte) error {
	if len(characterID) > 0xFFFF {
		return fmt.Errorf("слишком длинный идентификатор персонажа")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.ctx.Done():
		return ErrLinkClosed
	default:
	}

	bodyLen := 2 + len(characterID) + len(payload)
	if bodyLen > maxFrameSize {
		return fmt.Errorf("кадр %d байт превышает предел %d", bodyLen, maxFrameSize)
	}
	frame := make([]byte, 4+bodyLen)
	binary.LittleEndian.PutUint32(frame, uint32(bodyLen))
	binary.LittleEndian.PutUint16(frame[4:], uint16(len(characterID)))
	copy(frame[6:], characterID)
	copy(frame[6+len(characterID):], payload)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.conn.Write(frame); err != nil {
		return fmt.Errorf("kcp write: %w", err)
	}
	return nil
}

// Subscribe реализует Transport
func (l *KCPLink) Subscribe(ctx context.Context, characterID string, h Handler) (Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	if l.handlers[characterID] == nil {
		l.handlers[characterID] = make(map[int]Handler)
	}
	l.handlers[characterID][id] = h
	return &kcpSub{link: l, characterID: characterID, id: id}, nil
}

// Close закрывает соединение и ждёт завершения чтения
func (l *KCPLink) Close() error {
	l.cancel()
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

func (l *KCPLink) readLoop() {
	defer l.wg.Done()

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(l.conn, header); err != nil {
			l.readStopped(err)
			return
		}
		size := binary.LittleEndian.Uint32(header)
		if size < 2 || size > maxFrameSize {
			l.logger.Error("KCP: некорректный размер кадра %d, соединение закрывается", size)
			l.cancel()
			_ = l.conn.Close()
			return
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(l.conn, body); err != nil {
			l.readStopped(err)
			return
		}

		idLen := int(binary.LittleEndian.Uint16(body))
		if 2+idLen > len(body) {
			l.logger.Warn("⚠️ KCP: кадр с некорректной длиной id пропущен")
			continue
		}
		characterID := string(body[2 : 2+idLen])
		l.dispatch(characterID, body[2+idLen:])
	}
}

func (l *KCPLink) readStopped(err error) {
	select {
	case <-l.ctx.Done():
	default:
		l.logger.Warn("⚠️ KCP: чтение остановлено: %v", err)
	}
}

func (l *KCPLink) dispatch(characterID string, payload []byte) {
	l.mu.RLock()
	handlers := make([]Handler, 0, len(l.handlers[characterID]))
	for _, h := range l.handlers[characterID] {
		handlers = append(handlers, h)
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
}

type kcpSub struct {
	link        *KCPLink
	characterID string
	id          int
}

func (s *kcpSub) Unsubscribe() error {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	delete(s.link.handlers[s.characterID], s.id)
	if len(s.link.handlers[s.characterID]) == 0 {
		delete(s.link.handlers, s.characterID)
	}
	return nil
}
