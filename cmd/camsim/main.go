// camsim — симулятор камерной подсистемы: скриптованный персонаж, авторитетная камера
// и зритель, получающий её состояние через настроенный транспорт.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/camera-rig/internal/api"
	"github.com/annel0/camera-rig/internal/camera/mode"
	"github.com/annel0/camera-rig/internal/camera/shake"
	"github.com/annel0/camera-rig/internal/camera/targetlock"
	"github.com/annel0/camera-rig/internal/config"
	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/metrics"
	"github.com/annel0/camera-rig/internal/observability"
	"github.com/annel0/camera-rig/internal/physics"
	"github.com/annel0/camera-rig/internal/presetsync"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/resolver"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const characterID = "hero"

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию CAMERA_CONFIG)")
	presetsPath := flag.String("presets", "", "путь к пресетам режимов (переопределяет camera.presets)")
	tickRate := flag.Int("tick", 60, "частота тиков камеры, Гц")
	duration := flag.Duration("duration", 0, "длительность симуляции; 0 — до сигнала")
	frameEvery := flag.Int("log-every", 30, "логировать каждый N-й кадр")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *presetsPath != "" {
		cfg.Camera.Presets = *presetsPath
	}

	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("camsim"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	level := logging.ParseLevel(cfg.Logging.Level)
	logging.SetDefaultLevel(level, level)
	logging.GetLoggerManager().SetAllLevels(level, level)

	logging.Info("🎥 Запуск симулятора камеры: транспорт=%s, тик=%dГц", cfg.Transport.Kind, *tickRate)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, *duration)
		defer stop()
	}

	if err := run(ctx, cfg, *tickRate, *frameEvery); err != nil {
		logging.Error("❌ Симулятор остановлен с ошибкой: %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("👋 Симулятор остановлен")
}

func run(ctx context.Context, cfg *config.Config, tickRate, frameEvery int) error {
	// === ТРАССИРОВКА ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			logging.Warn("⚠️ Трассировка недоступна: %v", err)
		} else {
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				if err := shutdown(sctx); err != nil {
					logging.Warn("⚠️ Ошибка остановки трассировки: %v", err)
				}
			}()
		}
	}

	// === МЕТРИКИ ===
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	camMetrics, err := metrics.NewCamera(reg)
	if err != nil {
		return err
	}

	// === РЕЖИМЫ ===
	store, defaultID, err := buildModeStore(cfg.Camera)
	if err != nil {
		return err
	}
	tieBreak, err := mode.ParseTieBreak(cfg.Camera.TieBreak)
	if err != nil {
		return err
	}
	machine, err := mode.NewMachine(store, defaultID,
		mode.WithTieBreak(tieBreak),
		mode.WithSwitchCooldown(cfg.Camera.SwitchCooldown),
		mode.WithTransitionHook(func(tr mode.Transition) {
			logging.Info("🔀 Камера %s: %s → %s", characterID, tr.From.ID, tr.To.ID)
		}),
	)
	if err != nil {
		return err
	}

	// === МИР И ЗОНДЫ ===
	world := buildWorld(characterID)
	probeCfg := physics.ProbeConfig{
		Radius:        cfg.Camera.ProbeRadius,
		Channel:       physics.ChannelCamera,
		DegradedAfter: cfg.Camera.DegradedAfter,
	}
	probe := physics.NewProbe(world, probeCfg, characterID)
	viewerProbe := physics.NewProbe(world, probeCfg, characterID)

	// === ХРАНИЛИЩА И ТРАНСПОРТ ===
	stateStore, journal, closeStorage, err := buildStorage(ctx, cfg.Storage, cfg.Replication.JournalLimit)
	if err != nil {
		return err
	}
	defer closeStorage()

	ln, err := buildLink(ctx, cfg.Transport, reg)
	if err != nil {
		return err
	}
	defer ln.Close()

	authority := replication.NewAuthority(characterID, ln.authority,
		replication.WithInterval(cfg.Replication.Interval),
		replication.WithStateStore(stateStore),
		replication.WithJournal(journal),
		replication.WithAuthorityMetrics(camMetrics),
	)

	// === РЕЗОЛВЕРЫ ===
	registry := resolver.NewRegistry()
	var frames uint64
	logSink := resolver.SinkFunc(func(f resolver.Frame) {
		frames++
		if frameEvery <= 0 || frames%uint64(frameEvery) != 0 {
			return
		}
		p := f.Transform.Position
		logging.LogFrame(f.CharacterID, f.ModeID, p.X(), p.Y(), p.Z(), f.Transform.FOV, f.Collapsed)
	})

	rcfg := resolver.Config{
		ZoomSpeed:        cfg.Camera.ZoomSpeed,
		CrouchBlend:      cfg.Camera.CrouchBlend,
		CrouchDrop:       resolver.DefaultConfig().CrouchDrop,
		CollapseBlend:    cfg.Camera.CollapseBlend,
		TeleportBlend:    cfg.Camera.TeleportBlend,
		TeleportDistance: cfg.Camera.TeleportDistance,
		LockRadius:       cfg.Camera.LockRadius,
	}
	owner := resolver.New(characterID, machine, probe,
		resolver.WithConfig(rcfg),
		resolver.WithShaker(shake.NewShaker(shake.DefaultConfig(), time.Now().UnixNano())),
		resolver.WithAuthority(authority),
		resolver.WithMetrics(camMetrics),
		resolver.WithSink(resolver.Sinks{registry, logSink}),
	)

	observer := replication.NewObserver(characterID,
		replication.WithStaleness(cfg.Replication.Staleness),
		replication.WithObserverMetrics(camMetrics),
	)
	viewerRegistry := resolver.NewRegistry()
	spectator := resolver.NewSpectator(observer, store, viewerProbe,
		resolver.WithSpectatorSink(viewerRegistry),
		resolver.WithSpectatorMetrics(camMetrics),
		resolver.WithCollapseBlend(cfg.Camera.CollapseBlend),
		resolver.WithViewerID("spectator-1"),
	)

	// Опоздавший зритель начинает с сохранённого состояния, затем слушает транспорт
	if err := observer.SeedFromStore(ctx, stateStore); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.Warn("⚠️ Начальное состояние зрителя не загружено: %v", err)
	}
	go func() {
		viewerTransport, err := ln.viewer()
		if err != nil {
			if ctx.Err() == nil {
				logging.Error("❌ Транспорт зрителя недоступен: %v", err)
			}
			return
		}
		sub, err := replication.Attach(ctx, viewerTransport, observer)
		if err != nil {
			logging.Error("❌ Подписка зрителя: %v", err)
			return
		}
		logging.Info("👀 Зритель подписан на камеру %s", characterID)
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	// === ГОРЯЧАЯ ПЕРЕЗАГРУЗКА ПРЕСЕТОВ ===
	if fs, ok := store.(*mode.FileStore); ok {
		markDirty := func() {
			machine.MarkDirty()
			spectator.MarkDirty()
		}

		var inv presetsync.Invalidator
		if cfg.Camera.PresetSyncURL != "" {
			natsInv, err := presetsync.Dial(presetsync.Config{NATSURL: cfg.Camera.PresetSyncURL}, nodeID(cfg.Camera))
			if err != nil {
				logging.Warn("⚠️ Синхронизация пресетов недоступна: %v", err)
			} else {
				defer natsInv.Close()
				inv = natsInv
				err = inv.Subscribe(ctx, func(key string) error {
					if key != presetsync.KeyPresets {
						return nil
					}
					if err := fs.Load(); err != nil {
						return err
					}
					markDirty()
					return nil
				})
				if err != nil {
					logging.Warn("⚠️ Подписка на пресеты: %v", err)
				}
			}
		}

		if cfg.Camera.WatchPresets {
			go func() {
				err := fs.Watch(ctx, func() {
					markDirty()
					logging.Info("♻️ Пресеты камер перечитаны")
					if inv != nil {
						if err := inv.Publish(ctx, presetsync.KeyPresets); err != nil {
							logging.Warn("⚠️ Уведомление о пресетах не отправлено: %v", err)
						}
					}
				})
				if err != nil {
					logging.Warn("⚠️ Наблюдение за пресетами остановлено: %v", err)
				}
			}()
		}
	}

	// === ОТЛАДОЧНЫЙ API ===
	if cfg.API.Enabled {
		codec, err := replication.NewFrameCodec()
		if err != nil {
			return err
		}
		defer codec.Close()

		server, err := api.NewRestServer(api.Config{
			Addr:       cfg.API.Addr,
			Registry:   registry,
			Journal:    journal,
			Codec:      codec,
			Registerer: reg,
			Gatherer:   reg,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := server.Run(ctx); err != nil {
				logging.Error("❌ Отладочный API: %v", err)
			}
		}()
		logging.Info("   🌐 API: http://localhost%s/api/cameras", cfg.API.Addr)
		logging.Info("   📊 Метрики: http://localhost%s/metrics", cfg.API.Addr)
	}

	// === ЦИКЛ СИМУЛЯЦИИ ===
	if tickRate <= 0 {
		tickRate = 60
	}
	dt := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	character := newScriptedCharacter(characterID)
	logging.Info("✅ Симуляция запущена")

	for {
		select {
		case <-ctx.Done():
			if err := owner.Forget(context.Background()); err != nil {
				logging.Warn("⚠️ Состояние камеры не удалено: %v", err)
			}
			stats := observer.Stats()
			logging.Info("📈 Зритель: принято=%d устаревших=%d дубликатов=%d чужих=%d", stats.Accepted, stats.Stale, stats.Duplicate, stats.Misrouted)
			return nil
		case now := <-ticker.C:
			snap, phaseName, entered := character.Step(dt)
			if entered {
				onPhase(owner, character, phaseName, now)
			}
			if phaseName == phaseLock {
				owner.TrackTargets(character.Targets())
			}

			owner.Tick(ctx, dt, now, snap, character.Input())
			spectator.Tick(dt, now)
		}
	}
}

// onPhase выполняет разовые действия при входе в фазу сценария
func onPhase(owner *resolver.Resolver, character *scriptedCharacter, name string, now time.Time) {
	logging.Debug("🎬 Фаза сценария: %s", name)
	switch name {
	case phaseWalk:
		owner.ClearLock()
		owner.Request(mode.BuiltinFollowID, now)
	case phaseLock:
		if target, ok := owner.CycleTarget(character.Targets(), targetlock.Right); ok {
			logging.Info("🎯 Захвачена цель %s", target.ID)
		}
	case phaseCrouch:
		owner.ClearLock()
	case phaseShake:
		owner.AddTrauma(0.6)
	}
}

// nodeID возвращает идентификатор узла для уведомлений; по умолчанию имя хоста
func nodeID(cfg config.CameraConfig) string {
	if cfg.NodeID != "" {
		return cfg.NodeID
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "camsim"
}

// buildModeStore загружает пресеты из файла или использует встроенный режим
func buildModeStore(cfg config.CameraConfig) (mode.Store, string, error) {
	if cfg.Presets == "" {
		logging.Warn("⚠️ Пресеты не заданы, используется встроенный режим %s", mode.BuiltinFollowID)
		return mode.NewMemoryStore(mode.BuiltinFollow()), mode.BuiltinFollowID, nil
	}

	fs, err := mode.NewFileStore(cfg.Presets)
	if err != nil {
		return nil, "", err
	}
	defaultID := cfg.DefaultMode
	if defaultID == "" {
		defaultID = fs.DefaultID()
	}
	logging.Info("📚 Загружены пресеты камер из %s (по умолчанию %s)", cfg.Presets, defaultID)
	return fs, defaultID, nil
}
