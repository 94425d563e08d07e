// Package presetsync рассылает уведомления о перезагрузке пресетов камер между узлами.
// Узел, заметивший изменение пресетов, публикует ключ; остальные перечитывают хранилище режимов.
package presetsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/nats-io/nats.go"
)

// KeyPresets — ключ набора пресетов режимов камеры
const KeyPresets = "camera.presets"

// Handler обрабатывает уведомление об устаревшем ключе
type Handler func(key string) error

// Invalidator управляет рассылкой уведомлений через Pub/Sub
type Invalidator interface {
	// Publish отправляет уведомление об устаревании ключа
	Publish(ctx context.Context, key string) error
	// Subscribe подписывается на уведомления других узлов
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// Config содержит настройки NATS invalidator
type Config struct {
	NATSURL        string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	DedupeWindow   time.Duration // повтор того же ключа в окне игнорируется
	PublishTimeout time.Duration
}

// Message — уведомление об устаревании
type Message struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason,omitempty"`
}

// Stats — счётчики invalidator
type Stats struct {
	Published int64
	Received  int64
	Errors    int64
}

// NATSInvalidator реализует Invalidator поверх core NATS.
// Собственные сообщения узла и повторы в окне дедупликации отбрасываются.
type NATSInvalidator struct {
	conn    *nats.Conn
	config  Config
	nodeID  string
	ownConn bool
	logger  *logging.Logger

	subMu        sync.Mutex
	subscription *nats.Subscription
	handler      Handler

	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	keysMu     sync.Mutex
	recentKeys map[string]time.Time

	published int64
	received  int64
	errors    int64
}

func (c *Config) applyDefaults() {
	if c.Subject == "" {
		c.Subject = "camera.presets.invalidate"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.DedupeWindow == 0 {
		c.DedupeWindow = time.Second
	}
	if c.PublishTimeout == 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// Dial подключается к NATS и создаёт invalidator узла nodeID
func Dial(config Config, nodeID string) (*NATSInvalidator, error) {
	config.applyDefaults()
	logger := logging.GetComponentLogger("presetsync")

	opts := []nats.Option{
		nats.Name("camera-rig-presetsync"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("⚠️ NATS отключён: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("🔌 NATS переподключён к %s", nc.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("подключение к NATS: %w", err)
	}

	inv := newInvalidator(conn, config, nodeID)
	inv.ownConn = true
	logger.Info("📣 Синхронизация пресетов: %s (тема %s)", config.NATSURL, config.Subject)
	return inv, nil
}

// New создаёт invalidator поверх существующего соединения; соединение не закрывается в Close
func New(conn *nats.Conn, config Config, nodeID string) *NATSInvalidator {
	config.applyDefaults()
	return newInvalidator(conn, config, nodeID)
}

func newInvalidator(conn *nats.Conn, config Config, nodeID string) *NATSInvalidator {
	inv := &NATSInvalidator{
		conn:       conn,
		config:     config,
		nodeID:     nodeID,
		logger:     logging.GetComponentLogger("presetsync"),
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
	}
	inv.startDedupeCleanup()
	return inv
}

// Publish отправляет уведомление об устаревании ключа
func (n *NATSInvalidator) Publish(ctx context.Context, key string) error {
	if n.isDuplicate(key, time.Now()) {
		n.logger.Debug("Повтор уведомления %s пропущен", key)
		return nil
	}

	data, err := json.Marshal(Message{
		Key:       key,
		Timestamp: time.Now().UTC(),
		NodeID:    n.nodeID,
		Reason:    "reload",
	})
	if err != nil {
		atomic.AddInt64(&n.errors, 1)
		return fmt.Errorf("кодирование уведомления: %w", err)
	}

	if err := n.conn.Publish(n.config.Subject, data); err != nil {
		atomic.AddInt64(&n.errors, 1)
		return fmt.Errorf("публикация уведомления %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.PublishTimeout)
	defer cancel()
	if err := n.conn.FlushWithContext(ctx); err != nil {
		atomic.AddInt64(&n.errors, 1)
		return fmt.Errorf("сброс уведомления %s: %w", key, err)
	}

	n.recordKey(key, time.Now())
	atomic.AddInt64(&n.published, 1)
	n.logger.Debug("Опубликовано уведомление %s", key)
	return nil
}

// Subscribe подписывается на уведомления. Подписка живёт до отмены ctx или Close.
func (n *NATSInvalidator) Subscribe(ctx context.Context, handler Handler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subscription != nil {
		return fmt.Errorf("подписка на уведомления уже создана")
	}

	n.handler = handler
	sub, err := n.conn.Subscribe(n.config.Subject, func(msg *nats.Msg) {
		n.handle(msg.Data, time.Now())
	})
	if err != nil {
		return fmt.Errorf("подписка на %s: %w", n.config.Subject, err)
	}
	n.subscription = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()

	n.logger.Info("👂 Подписка на уведомления пресетов: %s", n.config.Subject)
	return nil
}

// Close останавливает фоновые горутины и закрывает собственное соединение
func (n *NATSInvalidator) Close() error {
	n.closeOnce.Do(func() {
		close(n.stopCh)
		n.wg.Wait()
		if n.ownConn && n.conn != nil {
			n.conn.Close()
		}
	})
	return nil
}

// Stats возвращает счётчики
func (n *NATSInvalidator) Stats() Stats {
	return Stats{
		Published: atomic.LoadInt64(&n.published),
		Received:  atomic.LoadInt64(&n.received),
		Errors:    atomic.LoadInt64(&n.errors),
	}
}

// handle разбирает входящее уведомление и вызывает обработчик
func (n *NATSInvalidator) handle(data []byte, now time.Time) {
	atomic.AddInt64(&n.received, 1)

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		atomic.AddInt64(&n.errors, 1)
		n.logger.Warn("⚠️ Неверное уведомление: %v", err)
		return
	}
	if msg.NodeID == n.nodeID {
		return
	}
	if n.isDuplicate(msg.Key, now) {
		return
	}
	n.recordKey(msg.Key, now)

	n.subMu.Lock()
	handler := n.handler
	n.subMu.Unlock()
	if handler == nil {
		return
	}
	if err := handler(msg.Key); err != nil {
		atomic.AddInt64(&n.errors, 1)
		n.logger.Error("❌ Обработка уведомления %s от %s: %v", msg.Key, msg.NodeID, err)
		return
	}
	n.logger.Info("♻️ Уведомление %s от узла %s обработано", msg.Key, msg.NodeID)
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.subscription == nil {
		return
	}
	if err := n.subscription.Unsubscribe(); err != nil {
		n.logger.Warn("⚠️ Отписка от уведомлений: %v", err)
	}
	n.subscription = nil
}

func (n *NATSInvalidator) isDuplicate(key string, now time.Time) bool {
	n.keysMu.Lock()
	defer n.keysMu.Unlock()
	last, ok := n.recentKeys[key]
	return ok && now.Sub(last) < n.config.DedupeWindow
}

func (n *NATSInvalidator) recordKey(key string, now time.Time) {
	n.keysMu.Lock()
	defer n.keysMu.Unlock()
	n.recentKeys[key] = now
}

// startDedupeCleanup периодически удаляет старые ключи дедупликации
func (n *NATSInvalidator) startDedupeCleanup() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(n.config.DedupeWindow)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				n.cleanup(now)
			case <-n.stopCh:
				return
			}
		}
	}()
}

func (n *NATSInvalidator) cleanup(now time.Time) {
	n.keysMu.Lock()
	defer n.keysMu.Unlock()
	for key, ts := range n.recentKeys {
		if now.Sub(ts) > n.config.DedupeWindow {
			delete(n.recentKeys, key)
		}
	}
}
