// Package metrics holds the prometheus collectors shared by the fetch stack.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RPCRequests       *prometheus.CounterVec
	HeightCacheHits   prometheus.Counter
	HeightCacheMisses prometheus.Counter
	PartitionsReused  prometheus.Counter
	NodesSkipped      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defifetch",
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests issued, by method.",
		}, []string{"method"}),
		HeightCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defifetch",
			Name:      "height_cache_hits_total",
			Help:      "Block timestamps served from the height cache.",
		}),
		HeightCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defifetch",
			Name:      "height_cache_misses_total",
			Help:      "Block timestamps fetched from the node.",
		}),
		PartitionsReused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "defifetch",
			Name:      "partitions_reused_total",
			Help:      "Fetch partitions skipped because a tmp file already existed.",
		}),
		NodesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "defifetch",
			Name:      "node_days_skipped_total",
			Help:      "Node/day artifacts skipped because the output file existed.",
		}, []string{"node"}),
	}
	if reg != nil {
		reg.MustRegister(m.RPCRequests, m.HeightCacheHits, m.HeightCacheMisses, m.PartitionsReused, m.NodesSkipped)
	}
	return m
}

func (m *Metrics) IncRPC(method string) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.HeightCacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.HeightCacheMisses.Inc()
}

func (m *Metrics) PartitionReused() {
	if m == nil {
		return
	}
	m.PartitionsReused.Inc()
}

func (m *Metrics) NodeSkipped(node string) {
	if m == nil {
		return
	}
	m.NodesSkipped.WithLabelValues(node).Inc()
}
