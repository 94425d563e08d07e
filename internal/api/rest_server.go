// Package api — отладочный HTTP сервер камерной подсистемы.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/annel0/camera-rig/internal/logging"
	"github.com/annel0/camera-rig/internal/middleware"
	"github.com/annel0/camera-rig/internal/replication"
	"github.com/annel0/camera-rig/internal/resolver"
	"github.com/annel0/camera-rig/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Config содержит зависимости отладочного сервера
type Config struct {
	Addr       string                // адрес прослушивания
	Registry   *resolver.Registry    // последние кадры камер
	Journal    storage.Journal       // журнал кадров для повторов; nil — повторы недоступны
	Codec      *replication.FrameCodec
	Registerer prometheus.Registerer // куда регистрировать HTTP-метрики
	Gatherer   prometheus.Gatherer   // что отдавать на /metrics
}

// RestServer представляет отладочный REST API
type RestServer struct {
	router   *gin.Engine
	addr     string
	registry *resolver.Registry
	journal  storage.Journal
	codec    *replication.FrameCodec
	stats    *ProcessStats
	logger   *logging.Logger

	server *http.Server
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CameraView — кадр камеры в JSON
type CameraView struct {
	CharacterID  string     `json:"character_id"`
	Mode         string     `json:"mode"`
	Style        string     `json:"style"`
	Position     [3]float64 `json:"position"`
	Rotation     [4]float64 `json:"rotation"` // w, x, y, z
	FOV          float64    `json:"fov"`
	Distance     float64    `json:"distance"`
	Collapsed    bool       `json:"collapsed"`
	Transitioned bool       `json:"transitioned"`
	Degraded     []string   `json:"degraded"`
	Sequence     uint64     `json:"sequence"`
	At           time.Time  `json:"at"`
}

// ReplayFrame — реплицированное состояние из журнала в JSON
type ReplayFrame struct {
	Sequence  uint64     `json:"sequence"`
	Mode      string     `json:"mode"`
	Pivot     [3]float64 `json:"pivot"`
	Velocity  [3]float64 `json:"velocity"`
	Yaw       float64    `json:"yaw"`
	Pitch     float64    `json:"pitch"`
	Distance  float64    `json:"distance"`
	Timestamp int64      `json:"timestamp_ms"`
}

// NewRestServer создаёт отладочный сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Addr == "" {
		config.Addr = ":8089"
	}
	if config.Registry == nil {
		return nil, errors.New("api: реестр камер не задан")
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("camera_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw, err := middleware.NewPrometheusMiddleware("camera_api", config.Registerer, config.Gatherer)
	if err != nil {
		return nil, fmt.Errorf("метрики HTTP: %w", err)
	}
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:   router,
		addr:     config.Addr,
		registry: config.Registry,
		journal:  config.Journal,
		codec:    config.Codec,
		stats:    NewProcessStats(),
		logger:   logging.GetComponentLogger("api"),
	}
	rs.setupRoutes()
	return rs, nil
}

// setupRoutes настраивает маршруты
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/cameras", rs.handleListCameras)
		api.GET("/cameras/:id", rs.handleGetCamera)
		api.GET("/cameras/:id/replay", rs.handleReplay)
	}
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Run обслуживает запросы до отмены ctx
func (rs *RestServer) Run(ctx context.Context) error {
	rs.server = &http.Server{
		Addr:              rs.addr,
		Handler:           rs.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rs.logger.Info("🌐 Отладочный API слушает %s", rs.addr)
		errCh <- rs.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rs.logger.Info("🛑 Остановка отладочного API")
		return rs.server.Shutdown(shutdownCtx)
	}
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"cameras": rs.registry.Len(),
		"time":    time.Now().Unix(),
	})
}

// handleStats возвращает сведения о процессе и камерах
func (rs *RestServer) handleStats(c *gin.Context) {
	data := rs.stats.Snapshot()
	data["cameras"] = rs.registry.Len()

	degraded := 0
	for _, f := range rs.registry.List() {
		if f.Degraded != 0 {
			degraded++
		}
	}
	data["degraded_cameras"] = degraded

	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Статистика", Data: data})
}

// handleListCameras возвращает последние кадры всех камер
func (rs *RestServer) handleListCameras(c *gin.Context) {
	frames := rs.registry.List()
	views := make([]CameraView, 0, len(frames))
	for _, f := range frames {
		views = append(views, toView(f))
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Камер: %d", len(views)),
		Data:    views,
	})
}

// handleGetCamera возвращает последний кадр камеры персонажа
func (rs *RestServer) handleGetCamera(c *gin.Context) {
	id := c.Param("id")
	f, ok := rs.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Камера не найдена"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Камера", Data: toView(f)})
}

// handleReplay отдаёт кадры журнала в диапазоне [from, to].
// format=zstd возвращает сжатую пачку кадров как есть.
func (rs *RestServer) handleReplay(c *gin.Context) {
	if rs.journal == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "Журнал кадров не настроен"})
		return
	}

	id := c.Param("id")
	from, err := parseSequence(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный параметр from"})
		return
	}
	to, err := parseSequence(c.Query("to"))
	if err != nil || (to != 0 && to < from) {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный параметр to"})
		return
	}

	ctx := c.Request.Context()
	if c.Query("format") == "zstd" {
		if rs.codec == nil {
			c.JSON(http.StatusServiceUnavailable, GenericResponse{Success: false, Message: "Сжатие не настроено"})
			return
		}
		frame, n, err := rs.codec.Export(ctx, rs.journal, id, from, to)
		if err != nil {
			rs.logger.Warn("⚠️ Экспорт журнала %s: %v", id, err)
			c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: "Ошибка чтения журнала"})
			return
		}
		c.Header("X-Frame-Count", strconv.Itoa(n))
		c.Data(http.StatusOK, "application/zstd", frame)
		return
	}

	records, err := rs.journal.Range(ctx, id, from, to)
	if err != nil {
		rs.logger.Warn("⚠️ Чтение журнала %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: "Ошибка чтения журнала"})
		return
	}

	frames := make([]ReplayFrame, 0, len(records))
	for _, rec := range records {
		s, err := replication.Decode(rec.Payload)
		if err != nil {
			continue // кадр несовместимой схемы
		}
		frames = append(frames, ReplayFrame{
			Sequence:  s.Sequence,
			Mode:      s.ModeID,
			Pivot:     s.Pivot,
			Velocity:  s.Velocity,
			Yaw:       s.Yaw,
			Pitch:     s.Pitch,
			Distance:  s.Distance,
			Timestamp: s.TimestampMs,
		})
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Кадров: %d", len(frames)),
		Data:    frames,
	})
}

func parseSequence(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func toView(f resolver.Frame) CameraView {
	rot := f.Transform.Rotation
	return CameraView{
		CharacterID:  f.CharacterID,
		Mode:         f.ModeID,
		Style:        f.Style.String(),
		Position:     f.Transform.Position,
		Rotation:     [4]float64{rot.W, rot.V[0], rot.V[1], rot.V[2]},
		FOV:          f.Transform.FOV,
		Distance:     f.Transform.Distance,
		Collapsed:    f.Collapsed,
		Transitioned: f.Transitioned,
		Degraded:     f.Degraded.Strings(),
		Sequence:     f.Sequence,
		At:           f.At,
	}
}
