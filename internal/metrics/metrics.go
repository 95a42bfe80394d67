// Package metrics holds the Prometheus collectors of the room coordinator.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trivia"

type Metrics struct {
	roomsActive     prometheus.Gauge
	connectionsOpen prometheus.Gauge
	messages        *prometheus.CounterVec
	answers         *prometheus.CounterVec
	gamesFinished   prometheus.Counter
	persistFailures *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		roomsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Rooms currently held in the registry.",
		}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open real-time connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound frames by event type.",
		}, []string{"type"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_recorded_total",
			Help:      "Accepted answers by correctness.",
		}, []string{"correct"}),
		gamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached GAME_OVER.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed persistence calls by operation.",
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.roomsActive,
		m.connectionsOpen,
		m.messages,
		m.answers,
		m.gamesFinished,
		m.persistFailures,
	)
	return m
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.roomsActive.Inc()
	}
}

func (m *Metrics) RoomEvicted() {
	if m != nil {
		m.roomsActive.Dec()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connectionsOpen.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connectionsOpen.Dec()
	}
}

func (m *Metrics) MessageReceived(eventType string) {
	if m != nil {
		m.messages.WithLabelValues(eventType).Inc()
	}
}

func (m *Metrics) AnswerRecorded(correct bool) {
	if m != nil {
		m.answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
	}
}

func (m *Metrics) GameFinished() {
	if m != nil {
		m.gamesFinished.Inc()
	}
}

func (m *Metrics) PersistFailed(op string) {
	if m != nil {
		m.persistFailures.WithLabelValues(op).Inc()
	}
}
