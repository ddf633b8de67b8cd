// Package metrics exposes this module's Prometheus gauges/counters through
// go-kit's metrics facade, adapted from consensus/metrics.go's
// PrometheusMetrics/NopMetrics pair — same construction shape (namespace +
// labelsAndValues, one stdprometheus.*Opts literal per field), different
// field set: memos/subjects/peering instead of blocks/validators.
package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"

	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

// Subsystem is shared by every metric this package exposes.
const Subsystem = "slab"

// Metrics contains the metrics exposed by a running slab.
type Metrics struct {
	// MemosStored is the running count of memos accepted into local storage.
	MemosStored metrics.Counter
	// MemosReceived is the running count of memos accepted off the wire,
	// labeled by the sending peer.
	MemosReceived metrics.Counter
	// MemosSent is the running count of memos handed to a Transmitter,
	// labeled by destination peer.
	MemosSent metrics.Counter
	// DispatchQueueDepth is the current number of pending events on the
	// dispatcher's event channel.
	DispatchQueueDepth metrics.Gauge
	// SubjectSubscriptions is the number of live subject subscriptions.
	SubjectSubscriptions metrics.Gauge
	// IndexSubscriptions is the number of live index subscriptions.
	IndexSubscriptions metrics.Gauge
	// KnownSlabs is a gauge for the number of distinct slabs this slab holds
	// a SlabRef for; nothing in this module sets it.
	KnownSlabs metrics.Gauge
	// ResidentPeersBelowFloor is how many Resident peers the most recently
	// dispatched memo lacks to reach the dispatcher's MinResidents (0 when
	// it has enough) — a proxy for replication remediation pressure.
	ResidentPeersBelowFloor metrics.Gauge
	// MemoRequestRoundtripSeconds is a histogram for GetMemoByID's
	// remote-fetch round trip; nothing in this module observes it.
	MemoRequestRoundtripSeconds metrics.Histogram
	// TransmitErrors counts failed dispatcher sends, labeled by the send
	// path that failed ("gossip" or "remediation").
	TransmitErrors metrics.Counter
}

// PrometheusMetrics returns Metrics built using the Prometheus client
// library. Optionally, labels can be provided along with their values
// ("slab_id", "1").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		MemosStored: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "memos_stored_total",
			Help:      "Total number of memos accepted into local storage.",
		}, labels).With(labelsAndValues...),
		MemosReceived: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "memos_received_total",
			Help:      "Total number of memos accepted off the wire.",
		}, append(labels, "from_slab_id")).With(labelsAndValues...),
		MemosSent: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "memos_sent_total",
			Help:      "Total number of memos handed to a Transmitter.",
		}, append(labels, "to_slab_id")).With(labelsAndValues...),
		DispatchQueueDepth: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "dispatch_queue_depth",
			Help:      "Current number of pending events on the dispatcher's event channel.",
		}, labels).With(labelsAndValues...),
		SubjectSubscriptions: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "subject_subscriptions",
			Help:      "Number of live subject subscriptions.",
		}, labels).With(labelsAndValues...),
		IndexSubscriptions: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "index_subscriptions",
			Help:      "Number of live index subscriptions.",
		}, labels).With(labelsAndValues...),
		KnownSlabs: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "known_slabs",
			Help:      "Number of distinct slabs this slab holds a SlabRef for.",
		}, labels).With(labelsAndValues...),
		ResidentPeersBelowFloor: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "resident_peers_below_floor",
			Help:      "Resident peers the last dispatched memo lacks to reach the configured floor.",
		}, labels).With(labelsAndValues...),
		MemoRequestRoundtripSeconds: kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "memo_request_roundtrip_seconds",
			Help:      "Time spent waiting on a remote GetMemoByID fetch.",
		}, labels).With(labelsAndValues...),
		TransmitErrors: kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: Subsystem,
			Name:      "transmit_errors_total",
			Help:      "Total failed Transmitter.Send calls.",
		}, append(labels, "kind")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics, the default for components that never
// had one injected.
func NopMetrics() *Metrics {
	return &Metrics{
		MemosStored:                 discard.NewCounter(),
		MemosReceived:               discard.NewCounter(),
		MemosSent:                   discard.NewCounter(),
		DispatchQueueDepth:          discard.NewGauge(),
		SubjectSubscriptions:        discard.NewGauge(),
		IndexSubscriptions:          discard.NewGauge(),
		KnownSlabs:                  discard.NewGauge(),
		ResidentPeersBelowFloor:     discard.NewGauge(),
		MemoRequestRoundtripSeconds: discard.NewHistogram(),
		TransmitErrors:              discard.NewCounter(),
	}
}
