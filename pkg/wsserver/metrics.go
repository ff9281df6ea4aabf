package wsserver

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	sessionsOpened prometheus.Counter
	sessionsClosed prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websocket_sessions_opened_total",
			Help: "Websocket sessions accepted.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "websocket_sessions_closed_total",
			Help: "Websocket sessions that have ended.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sessionsOpened, m.sessionsClosed)
	}
	return m
}
