package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jabolina/distsim/pkg/distsim/types"
)

// promMetrics mirrors the plain MetricsSnapshot counters as Prometheus
// collectors, registered on a private Registry so every Simulation exposes
// an independent scrape target rather than colliding on the global default
// registry.
type promMetrics struct {
	registry      *prometheus.Registry
	messagesTotal prometheus.Counter
	rounds        prometheus.Gauge
	converged     prometheus.Gauge
}

func newPromMetrics(simulationId types.SimulationId) *promMetrics {
	labels := prometheus.Labels{"simulation_id": string(simulationId)}
	pm := &promMetrics{
		registry: prometheus.NewRegistry(),
		messagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "distsim_messages_sent_total",
			Help:        "Total messages sent across all nodes in the simulation.",
			ConstLabels: labels,
		}),
		rounds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "distsim_rounds",
			Help:        "Current simulated round counter.",
			ConstLabels: labels,
		}),
		converged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "distsim_converged",
			Help:        "1 once the algorithm has converged, 0 otherwise.",
			ConstLabels: labels,
		}),
	}
	pm.registry.MustRegister(pm.messagesTotal, pm.rounds, pm.converged)
	return pm
}

func (pm *promMetrics) observe(snap types.MetricsSnapshot) {
	pm.rounds.Set(float64(snap.Rounds))
	if snap.Converged {
		pm.converged.Set(1)
	} else {
		pm.converged.Set(0)
	}
}

func (pm *promMetrics) incMessages() {
	pm.messagesTotal.Inc()
}
