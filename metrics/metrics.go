// Package metrics registers the counters and gauges a layer
// instance exposes, the way the teacher's common/dbutils package registers
// PreimageCounter/PreimageHitCounter via metrics.NewRegisteredCounter —
// ported to github.com/prometheus/client_golang since that package's own
// registry (github.com/ledgerwatch/turbo-geth/metrics) is not part of the
// retrieval pack.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Layer holds the counters a Layer instance updates as it applies edits,
// lifts nodes, and follows upstream peers.
type Layer struct {
	EditsApplied   prometheus.Counter
	LiftsTotal     prometheus.Counter
	NodeEditOffset prometheus.Gauge
	UpstreamErrors *prometheus.CounterVec
	UpstreamOffset *prometheus.GaugeVec
	WindowDropped  *prometheus.CounterVec
}

// NewLayer registers a fresh set of layer metrics under reg, namespaced by
// iden so multiple layers in one process don't collide.
func NewLayer(reg prometheus.Registerer, iden string) *Layer {
	constLabels := prometheus.Labels{"layer": iden}

	l := &Layer{
		EditsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "graphlayer",
			Name:        "edits_applied_total",
			Help:        "Number of node-edit batches applied to the layer.",
			ConstLabels: constLabels,
		}),
		LiftsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "graphlayer",
			Name:        "lifts_total",
			Help:        "Number of nodes yielded by lift operations.",
			ConstLabels: constLabels,
		}),
		NodeEditOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "graphlayer",
			Name:        "nodeedit_offset",
			Help:        "Last applied node-edit log offset.",
			ConstLabels: constLabels,
		}),
		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "graphlayer",
			Name:        "upstream_errors_total",
			Help:        "Errors encountered following an upstream peer.",
			ConstLabels: constLabels,
		}, []string{"upstream"}),
		UpstreamOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "graphlayer",
			Name:        "upstream_offset",
			Help:        "Last node-edit offset pulled from an upstream peer.",
			ConstLabels: constLabels,
		}, []string{"upstream"}),
		WindowDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "graphlayer",
			Name:        "window_dropped_total",
			Help:        "Batches dropped by a live-subscriber queue that was full.",
			ConstLabels: constLabels,
		}, []string{"consumer"}),
	}

	reg.MustRegister(l.EditsApplied, l.LiftsTotal, l.NodeEditOffset, l.UpstreamErrors, l.UpstreamOffset, l.WindowDropped)
	return l
}
