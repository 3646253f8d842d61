package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts the pipeline events worth graphing.
type Metrics struct {
	RxPackets         prometheus.Counter
	RxParityRejects   prometheus.Counter
	RxLoopbackRejects prometheus.Counter
	RxDuplicates      prometheus.Counter
	TableDrops        prometheus.Counter
	TxPackets         prometheus.Counter
	AlertsFired       prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		RxPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_rx_packets_total",
			Help: "Payloads accepted into the tracking table.",
		}),
		RxParityRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_rx_parity_rejects_total",
			Help: "Payloads dropped on parity failure.",
		}),
		RxLoopbackRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_rx_loopback_rejects_total",
			Help: "Own transmissions reflected back by the radio.",
		}),
		RxDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_rx_duplicates_total",
			Help: "Payloads dropped inside the dedupe window.",
		}),
		TableDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_table_drops_total",
			Help: "Decoded targets no replacement policy admitted.",
		}),
		TxPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_tx_packets_total",
			Help: "Frames handed to the radio.",
		}),
		AlertsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flarm_alerts_fired_total",
			Help: "Sound alerts triggered by the alarm sweep.",
		}),
	}
}

// Register installs the counters on a registry; call once from main.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		m.RxPackets,
		m.RxParityRejects,
		m.RxLoopbackRejects,
		m.RxDuplicates,
		m.TableDrops,
		m.TxPackets,
		m.AlertsFired,
	)
}
