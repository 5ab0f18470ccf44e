// Tracks run-wide data-plane and control-loop statistics: PDU counts and
// delays, buffer drops, handovers and neighbour table updates.

package sim

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"
)

// Handover outcomes recorded by RecordHandover.
const (
	HandoverExecuted = "executed"
	HandoverRefused  = "refused"
)

// Metrics aggregates statistics about the simulation for final reporting.
// Per-label breakdowns live in an owned prometheus registry; run totals and
// raw delay samples are kept alongside for the end-of-run summary.
type Metrics struct {
	Registry *prometheus.Registry

	pdcpTx      *prometheus.CounterVec // cell, direction
	pdcpRx      *prometheus.CounterVec
	pdcpRxBytes *prometheus.CounterVec
	rlcTx       *prometheus.CounterVec // cell
	rlcDrops    *prometheus.CounterVec
	unmatched   *prometheus.CounterVec // direction
	handovers   *prometheus.CounterVec // source, target, outcome
	anrUpdates  *prometheus.CounterVec // cell, kind
	pdcpDelay   prometheus.Histogram
	rlcDelay    prometheus.Histogram

	PdcpTxPdus        int
	PdcpRxPdus        int
	PdcpRxBytes       int64
	RlcTxPdus         int
	RlcDrops          int
	RlcDroppedBytes   int64
	UnclassifiedPkts  int
	HandoversExecuted int
	HandoversRefused  int
	AnrUpdates        int

	pdcpDelaysMs []float64
	rlcDelaysMs  []float64
}

// NewMetrics creates the metric set on a fresh registry.
func NewMetrics() *Metrics {
	delayBuckets := prometheus.ExponentialBuckets(0.0005, 2, 14) // 0.5 ms .. ~4 s
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pdcpTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_pdcp_tx_pdus_total", Help: "PDCP PDUs transmitted.",
		}, []string{"cell", "direction"}),
		pdcpRx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_pdcp_rx_pdus_total", Help: "PDCP PDUs received.",
		}, []string{"cell", "direction"}),
		pdcpRxBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_pdcp_rx_bytes_total", Help: "PDCP SDU bytes delivered upward.",
		}, []string{"cell", "direction"}),
		rlcTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_rlc_tx_pdus_total", Help: "RLC PDUs handed to the MAC.",
		}, []string{"cell"}),
		rlcDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_rlc_dropped_pdus_total", Help: "RLC SDUs dropped on a full transmit buffer.",
		}, []string{"cell"}),
		unmatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_unclassified_packets_total", Help: "Packets no TFT matched.",
		}, []string{"direction"}),
		handovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_handovers_total", Help: "Handover decisions by outcome.",
		}, []string{"source", "target", "outcome"}),
		anrUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ransim_anr_updates_total", Help: "Neighbour relation table updates.",
		}, []string{"cell", "kind"}),
		pdcpDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ransim_pdcp_delay_seconds", Help: "PDCP-to-PDCP delay.", Buckets: delayBuckets,
		}),
		rlcDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ransim_rlc_delay_seconds", Help: "RLC enqueue-to-receive delay.", Buckets: delayBuckets,
		}),
	}
	m.Registry.MustRegister(m.pdcpTx, m.pdcpRx, m.pdcpRxBytes, m.rlcTx, m.rlcDrops,
		m.unmatched, m.handovers, m.anrUpdates, m.pdcpDelay, m.rlcDelay)
	return m
}

func cellLabel(id uint16) string { return strconv.Itoa(int(id)) }

// RecordPdcpTx counts a PDCP PDU sent by an entity of cell.
func (m *Metrics) RecordPdcpTx(cell uint16, direction string) {
	m.pdcpTx.WithLabelValues(cellLabel(cell), direction).Inc()
	m.PdcpTxPdus++
}

// RecordPdcpRx counts a received PDCP PDU and its delay in ticks.
func (m *Metrics) RecordPdcpRx(cell uint16, direction string, size int, delay int64) {
	m.pdcpRx.WithLabelValues(cellLabel(cell), direction).Inc()
	m.pdcpRxBytes.WithLabelValues(cellLabel(cell), direction).Add(float64(size))
	m.pdcpDelay.Observe(TicksToSeconds(delay))
	m.PdcpRxPdus++
	m.PdcpRxBytes += int64(size)
	m.pdcpDelaysMs = append(m.pdcpDelaysMs, float64(delay)/float64(TicksPerMillisecond))
}

// RecordRlcTx counts a PDU handed to the MAC.
func (m *Metrics) RecordRlcTx(cell uint16) {
	m.rlcTx.WithLabelValues(cellLabel(cell)).Inc()
	m.RlcTxPdus++
}

// RecordRlcRx records the RLC delay of a received PDU in ticks.
func (m *Metrics) RecordRlcRx(delay int64) {
	m.rlcDelay.Observe(TicksToSeconds(delay))
	m.rlcDelaysMs = append(m.rlcDelaysMs, float64(delay)/float64(TicksPerMillisecond))
}

// RecordRlcDrop counts an SDU rejected by a full transmit buffer.
func (m *Metrics) RecordRlcDrop(cell uint16, size int) {
	m.rlcDrops.WithLabelValues(cellLabel(cell)).Inc()
	m.RlcDrops++
	m.RlcDroppedBytes += int64(size)
}

// RecordUnclassified counts a packet that matched no bearer.
func (m *Metrics) RecordUnclassified(direction string) {
	m.unmatched.WithLabelValues(direction).Inc()
	m.UnclassifiedPkts++
}

// RecordHandover counts a handover decision with outcome HandoverExecuted or HandoverRefused.
func (m *Metrics) RecordHandover(source, target uint16, outcome string) {
	m.handovers.WithLabelValues(cellLabel(source), cellLabel(target), outcome).Inc()
	if outcome == HandoverExecuted {
		m.HandoversExecuted++
	} else {
		m.HandoversRefused++
	}
}

// RecordAnrUpdate counts a neighbour table update of cell.
func (m *Metrics) RecordAnrUpdate(cell uint16, created bool) {
	kind := "updated"
	if created {
		kind = "created"
	}
	m.anrUpdates.WithLabelValues(cellLabel(cell), kind).Inc()
	m.AnrUpdates++
}

// DelaySummary describes a delay sample set in milliseconds.
type DelaySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

func summarizeDelays(samples []float64) DelaySummary {
	if len(samples) == 0 {
		return DelaySummary{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	return DelaySummary{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:   stat.Quantile(0.90, stat.Empirical, sorted, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, sorted, nil),
		Max:   sorted[len(sorted)-1],
	}
}

// Summary is the end-of-run report.
type Summary struct {
	SimulatedSeconds  float64      `json:"simulated_seconds"`
	PdcpTxPdus        int          `json:"pdcp_tx_pdus"`
	PdcpRxPdus        int          `json:"pdcp_rx_pdus"`
	ThroughputKbps    float64      `json:"throughput_kbps"`
	RlcTxPdus         int          `json:"rlc_tx_pdus"`
	RlcDrops          int          `json:"rlc_dropped_pdus"`
	RlcDroppedBytes   int64        `json:"rlc_dropped_bytes"`
	Unclassified      int          `json:"unclassified_packets"`
	HandoversExecuted int          `json:"handovers_executed"`
	HandoversRefused  int          `json:"handovers_refused"`
	AnrUpdates        int          `json:"anr_updates"`
	PdcpDelay         DelaySummary `json:"pdcp_delay"`
	RlcDelay          DelaySummary `json:"rlc_delay"`
}

// Summarize builds the report for a run that lasted elapsed ticks.
func (m *Metrics) Summarize(elapsed int64) Summary {
	s := Summary{
		SimulatedSeconds:  TicksToSeconds(elapsed),
		PdcpTxPdus:        m.PdcpTxPdus,
		PdcpRxPdus:        m.PdcpRxPdus,
		RlcTxPdus:         m.RlcTxPdus,
		RlcDrops:          m.RlcDrops,
		RlcDroppedBytes:   m.RlcDroppedBytes,
		Unclassified:      m.UnclassifiedPkts,
		HandoversExecuted: m.HandoversExecuted,
		HandoversRefused:  m.HandoversRefused,
		AnrUpdates:        m.AnrUpdates,
		PdcpDelay:         summarizeDelays(m.pdcpDelaysMs),
		RlcDelay:          summarizeDelays(m.rlcDelaysMs),
	}
	if elapsed > 0 {
		s.ThroughputKbps = float64(m.PdcpRxBytes) * 8 / 1000 / s.SimulatedSeconds
	}
	return s
}

// Print writes the end-of-run summary as indented JSON under a header line.
func (m *Metrics) Print(w io.Writer, elapsed int64) error {
	data, err := json.MarshalIndent(m.Summarize(elapsed), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	if _, err := fmt.Fprintf(w, "=== Simulation Metrics ===\n%s\n", data); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
