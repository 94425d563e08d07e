// Package metrics содержит Prometheus метрики камерной подсистемы.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Результаты обработки реплицированного пакета
const (
	ResultSent           = "sent"
	ResultAccepted       = "accepted"
	ResultStale          = "stale"
	ResultDuplicate      = "duplicate"
	ResultSchemaMismatch = "schema_mismatch"
	ResultDecodeError    = "decode_error"
	ResultMisrouted      = "misrouted"
	ResultSendError      = "send_error"
)

// Camera — набор метрик. Нулевой указатель безопасен: все методы ничего не делают.
type Camera struct {
	transitions *prometheus.CounterVec
	probeFails  prometheus.Counter
	collapsed   *prometheus.GaugeVec
	packets     *prometheus.CounterVec
	degraded    *prometheus.GaugeVec
}

// NewCamera создаёт метрики и регистрирует их в reg
func NewCamera(reg prometheus.Registerer) (*Camera, error) {
	c := &Camera{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camera_mode_transitions_total",
			Help: "Переходы между режимами камеры.",
		}, []string{"from", "to"}),
		probeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camera_probe_failures_total",
			Help: "Недоступные запросы коллизий зонда камеры.",
		}),
		collapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "camera_boom_collapsed",
			Help: "1, если штанга камеры укорочена геометрией.",
		}, []string{"character"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "camera_replication_packets_total",
			Help: "Реплицированные пакеты камеры по результату обработки.",
		}, []string{"result"}),
		degraded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "camera_degraded",
			Help: "Число камер в деградированном состоянии по виду.",
		}, []string{"kind"}),
	}

	for _, col := range []prometheus.Collector{c.transitions, c.probeFails, c.collapsed, c.packets, c.degraded} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNewCamera как NewCamera, но паникует при ошибке регистрации
func MustNewCamera(reg prometheus.Registerer) *Camera {
	c, err := NewCamera(reg)
	if err != nil {
		panic(err)
	}
	return c
}

// Transition учитывает смену режима
func (c *Camera) Transition(from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}

// ProbeFailure учитывает недоступный запрос коллизий
func (c *Camera) ProbeFailure() {
	if c == nil {
		return
	}
	c.probeFails.Inc()
}

// Collapsed выставляет состояние штанги персонажа
func (c *Camera) Collapsed(characterID string, collapsed bool) {
	if c == nil {
		return
	}
	v := 0.0
	if collapsed {
		v = 1
	}
	c.collapsed.WithLabelValues(characterID).Set(v)
}

// Packet учитывает реплицированный пакет
func (c *Camera) Packet(result string) {
	if c == nil {
		return
	}
	c.packets.WithLabelValues(result).Inc()
}

// DegradedChanged сдвигает счётчик деградированных камер вида kind
func (c *Camera) DegradedChanged(kind string, active bool) {
	if c == nil {
		return
	}
	if active {
		c.degraded.WithLabelValues(kind).Inc()
	} else {
		c.degraded.WithLabelValues(kind).Dec()
	}
}

// Forget удаляет метрики ушедшего персонажа
func (c *Camera) Forget(characterID string) {
	if c == nil {
		return
	}
	c.collapsed.DeleteLabelValues(characterID)
}
