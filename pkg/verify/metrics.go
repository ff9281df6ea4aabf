package verify

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a shared counter set for every Verifier in a process,
// labeled by stream name so that a single VerifierMap-wide registration
// covers every stream it hosts without colliding metric names.
type Metrics struct {
	accepts *prometheus.CounterVec
	rejects *prometheus.CounterVec
}

// NewMetrics registers (if reg is non-nil) and returns a shared Metrics
// set. Pass the same Metrics to every Verifier created against the same
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		accepts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_accept_total",
			Help: "Updates accepted, by stream.",
		}, []string{"stream"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_reject_total",
			Help: "Updates rejected, by stream and reason.",
		}, []string{"stream", "reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.accepts, m.rejects)
	}
	return m
}

// verifierMetrics binds a shared Metrics set to one stream name.
type verifierMetrics struct {
	stream  string
	metrics *Metrics
}

func (m *verifierMetrics) accept() {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.accepts.WithLabelValues(m.stream).Inc()
}

func (m *verifierMetrics) reject(reason string) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.rejects.WithLabelValues(m.stream, reason).Inc()
}
