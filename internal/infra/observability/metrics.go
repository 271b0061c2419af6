// Package observability exposes the station's Prometheus metrics.
// Components stay free of prometheus imports; the daemon wires the
// Observe* helpers into their hooks.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/timbang-id/timbang/internal/domain"
	"github.com/timbang-id/timbang/internal/infra/framing"
)

const namespace = "timbang"

// ═══════════════════════════════════════════════════════════════════════════
// Scale Metrics
// ═══════════════════════════════════════════════════════════════════════════

// FramesTotal counts fed chunks by channel and outcome.
var FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "scale",
	Name:      "frames_total",
	Help:      "Chunks fed to the decoder by channel and result.",
}, []string{"channel", "result"})

// CurrentWeight is the last accepted reading in kilograms.
var CurrentWeight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "scale",
	Name:      "weight_kg",
	Help:      "Last accepted scale reading in kilograms.",
})

// ScaleConnected is 1 while a serial port is open.
var ScaleConnected = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "scale",
	Name:      "connected",
	Help:      "Whether the indicator port is open (1) or not (0).",
})

// ─── Ticket Metrics ─────────────────────────────────────────────────────────

// TicketsCreated counts stage-1 weighings by kind.
var TicketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tickets",
	Name:      "created_total",
	Help:      "Tickets created (stage 1) by kind.",
}, []string{"kind"})

// TicketsFinalized counts stage-2 weighings by kind.
var TicketsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tickets",
	Name:      "finalized_total",
	Help:      "Tickets finalized (stage 2) by kind.",
}, []string{"kind"})

// NetWeightTotal sums finalized net weight by kind.
var NetWeightTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tickets",
	Name:      "net_weight_kg_total",
	Help:      "Net kilograms of finalized tickets by kind.",
}, []string{"kind"})

// ─── Sync Metrics ───────────────────────────────────────────────────────────

// SyncPushes counts outbox deliveries by outcome.
var SyncPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "pushes_total",
	Help:      "Spreadsheet pushes by outcome (delivered, failed).",
}, []string{"result"})

// OutboxEvents is the number of outbox rows per status, refreshed on read.
var OutboxEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "sync",
	Name:      "outbox_events",
	Help:      "Outbox events by status.",
}, []string{"status"})

// ─── Observers ──────────────────────────────────────────────────────────────

// ObserveFrame records one decoder outcome.
func ObserveFrame(ch framing.Channel, res framing.Result) {
	FramesTotal.WithLabelValues(string(ch), string(res)).Inc()
}

// ObserveReading records an accepted reading.
func ObserveReading(r framing.Reading) {
	CurrentWeight.Set(float64(r.Weight))
}

// ObserveConnected records the port state.
func ObserveConnected(connected bool) {
	if connected {
		ScaleConnected.Set(1)
		return
	}
	ScaleConnected.Set(0)
}

// ObserveCreated records a stage-1 ticket.
func ObserveCreated(t domain.WeighingTicket) {
	TicketsCreated.WithLabelValues(string(t.Kind)).Inc()
}

// ObserveFinalized records a stage-2 ticket.
func ObserveFinalized(t domain.WeighingTicket) {
	TicketsFinalized.WithLabelValues(string(t.Kind)).Inc()
	if t.NetWeight > 0 {
		NetWeightTotal.WithLabelValues(string(t.Kind)).Add(float64(t.NetWeight))
	}
}

// ObserveSync records one push outcome.
func ObserveSync(s domain.SyncStatus) {
	SyncPushes.WithLabelValues(string(s)).Inc()
}

// ObserveOutbox replaces the outbox gauges.
func ObserveOutbox(counts map[domain.SyncStatus]int64) {
	for status, n := range counts {
		OutboxEvents.WithLabelValues(string(status)).Set(float64(n))
	}
}
