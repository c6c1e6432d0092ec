package l2switch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "polswitch",
		Name:      "decisions_total",
		Help:      "Packet events handled, by verdict and reason.",
	}, []string{"verdict", "reason"})

	floodsHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "polswitch",
		Name:      "floods_held_total",
		Help:      "Floods suppressed by the hold-down timer.",
	})

	unmappedFlowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "polswitch",
		Name:      "unmapped_flows_total",
		Help:      "Permitted flows installed without any egress port.",
	})

	switchesConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "polswitch",
		Name:      "switches_connected",
		Help:      "Switches currently managed.",
	})
)

func countDecision(d *Decision) {
	decisionsTotal.WithLabelValues(string(d.Verdict), d.Reason).Inc()

	if d.FloodHeld {
		floodsHeldTotal.Inc()
	}
	if d.Unmapped {
		unmappedFlowsTotal.Inc()
	}
}
