package block

import "github.com/prometheus/client_golang/prometheus"

// storeMetrics holds the BlockStore's process-wide counters. The
// collectors are always created, so the store can update them
// unconditionally; they are registered only when a Registerer is given.
type storeMetrics struct {
	gets      *prometheus.CounterVec
	sets      *prometheus.CounterVec
	cacheHits prometheus.Counter
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	m := &storeMetrics{
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockstore_get_total",
			Help: "BlockStore Get calls by outcome (hit, miss, error).",
		}, []string{"outcome"}),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blockstore_set_total",
			Help: "BlockStore Set calls by outcome (new, duplicate, error).",
		}, []string{"outcome"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blockstore_cache_hit_total",
			Help: "BlockStore reads satisfied from the in-memory LRU cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.gets, m.sets, m.cacheHits)
	}
	return m
}
