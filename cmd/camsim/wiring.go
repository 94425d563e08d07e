package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/camera-rig/internal/config"
	"github.com/annel0/camera-rig/internal/eventbus"
	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/annel0/camera-rig/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
)

// link — две стороны канала состояний: авторитет публикует, зритель подписывается
type link struct {
	authority transport.Transport
	// viewer возвращает транспорт зрителя; для KCP блокирует до первого пакета авторитета
	viewer func() (transport.Transport, error)

	mu      sync.Mutex
	closers []func() error
}

func (l *link) onClose(fn func() error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, fn)
}

func (l *link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			logging.Warn("⚠️ Ошибка закрытия транспорта: %v", err)
		}
	}
}

// buildLink создаёт транспорт по конфигурации
func buildLink(ctx context.Context, cfg config.TransportConfig, reg prometheus.Registerer) (*link, error) {
	switch cfg.Kind {
	case config.TransportBus:
		return busLink(ctx, eventbus.NewMemoryBus(cfg.BusCapacity), reg)

	case config.TransportJetStream:
		bus, err := eventbus.NewJetStreamBus(cfg.NATSURL, cfg.Stream, cfg.Retention)
		if err != nil {
			return nil, err
		}
		logging.Info("🛰️ JetStream шина подключена: stream=%s", cfg.Stream)
		return busLink(ctx, bus, reg)

	case config.TransportNATS:
		tr, err := transport.DialNATS(transport.NATSConfig{
			URL:           cfg.NATSURL,
			SubjectPrefix: cfg.SubjectPrefix,
			Name:          "camsim",
		})
		if err != nil {
			return nil, err
		}
		return &link{
			authority: tr,
			viewer:    func() (transport.Transport, error) { return tr, nil },
			closers:   []func() error{tr.Close},
		}, nil

	case config.TransportKCP:
		ln, err := transport.ListenKCP(cfg.KCPAddr)
		if err != nil {
			return nil, err
		}
		client, err := transport.DialKCP(ln.Addr().String())
		if err != nil {
			ln.Close()
			return nil, err
		}
		l := &link{authority: client, closers: []func() error{ln.Close, client.Close}}
		l.viewer = func() (transport.Transport, error) {
			server, err := ln.Accept()
			if err != nil {
				return nil, fmt.Errorf("kcp accept: %w", err)
			}
			l.onClose(server.Close)
			return server, nil
		}
		return l, nil
	}
	return nil, fmt.Errorf("неизвестный транспорт %q", cfg.Kind)
}

// busLink оборачивает шину событий: логирующий слушатель и экспорт метрик шины
func busLink(ctx context.Context, bus eventbus.EventBus, reg prometheus.Registerer) (*link, error) {
	if _, err := eventbus.StartLoggingListener(ctx, bus, eventbus.Filter{Types: []string{transport.EventCameraState}}); err != nil {
		bus.Close()
		return nil, err
	}

	exporter, err := eventbus.NewMetricsExporter(bus, reg, 5*time.Second)
	if err != nil {
		bus.Close()
		return nil, err
	}
	exporter.Start()

	tr := transport.NewBusTransport(bus)
	return &link{
		authority: tr,
		viewer:    func() (transport.Transport, error) { return tr, nil },
		closers: []func() error{
			tr.Close,
			func() error { exporter.Stop(); return nil },
		},
	}, nil
}

// buildStorage выбирает хранилище состояний (Redis или память) и журнал (Badger или память)
func buildStorage(ctx context.Context, cfg config.StorageConfig, journalLimit int) (storage.StateStore, storage.Journal, func(), error) {
	var (
		store   storage.StateStore
		closers []func() error
	)

	if cfg.RedisAddr != "" {
		redisStore, err := storage.NewRedisStateStore(ctx, &storage.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: "camera:state:",
			TTL:       cfg.StateTTL,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("redis: %w", err)
		}
		store = redisStore
		closers = append(closers, redisStore.Close)
	} else {
		store = storage.NewMemoryStateStore()
		logging.Info("💾 Состояния камер хранятся в памяти")
	}

	var journal storage.Journal
	if cfg.JournalPath != "" {
		badgerJournal, err := storage.OpenBadgerJournal(cfg.JournalPath)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, nil, fmt.Errorf("журнал: %w", err)
		}
		journal = badgerJournal
	} else {
		journal = storage.NewMemoryJournal(journalLimit)
	}
	closers = append(closers, journal.Close)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logging.Warn("⚠️ Ошибка закрытия хранилища: %v", err)
			}
		}
	}
	return store, journal, closeAll, nil
}
