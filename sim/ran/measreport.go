package ran

import (
	"sort"

	"github.com/ransim/ransim/sim/sap"
	"github.com/ransim/ransim/sim/workload"
)

// evaluateReport is memoryless: it only checks the entering condition at
// one measurement instant. The UE layers the time-to-trigger on top
// (Ue.eventDue) and then reports at every instant the condition holds.
//
// Thresholds are inclusive. A3 is strict.

// quantity returns the value cfg is evaluated on.
func quantity(cfg sap.ReportConfig, m workload.CellMeasurement) float64 {
	if cfg.Quantity == sap.QuantityRsrq {
		return float64(m.Rsrq)
	}
	return float64(m.Rsrp)
}

// stepsPerHalfDb converts 0.5 dB steps into report range units of the quantity.
func stepsPerHalfDb(q sap.TriggerQuantity) float64 {
	if q == sap.QuantityRsrq {
		return 1 // RSRQ ranges are 0.5 dB wide
	}
	return 0.5
}

// evaluateReport decides whether a UE served by serving sends a report for
// cfg, and builds it. Neighbours are the other measured cells.
func evaluateReport(measID uint8, cfg sap.ReportConfig, serving workload.CellMeasurement,
	neighbours []workload.CellMeasurement) (sap.MeasResults, bool) {
	scale := stepsPerHalfDb(cfg.Quantity)
	hys := float64(cfg.Hysteresis) * scale
	ms := quantity(cfg, serving)
	th1, th2 := float64(cfg.Threshold1), float64(cfg.Threshold2)

	var (
		fire     bool
		reported []workload.CellMeasurement
	)
	if cfg.Trigger == sap.TriggerPeriodical {
		fire, reported = true, neighbours
	} else {
		switch cfg.Event {
		case sap.EventA1:
			fire, reported = ms-hys >= th1, neighbours
		case sap.EventA2:
			fire, reported = ms+hys <= th1, neighbours
		case sap.EventA3:
			off := float64(cfg.A3Offset) * scale
			reported = filterCells(cfg, neighbours, func(mn float64) bool { return mn-hys > ms+off })
			fire = len(reported) > 0
		case sap.EventA4:
			reported = filterCells(cfg, neighbours, func(mn float64) bool { return mn-hys >= th1 })
			fire = len(reported) > 0
		case sap.EventA5:
			if ms+hys <= th1 {
				reported = filterCells(cfg, neighbours, func(mn float64) bool { return mn-hys >= th2 })
				fire = len(reported) > 0
			}
		}
	}
	if !fire {
		return sap.MeasResults{}, false
	}

	res := sap.MeasResults{MeasID: measID, ServingRsrp: serving.Rsrp, ServingRsrq: serving.Rsrq}
	for _, n := range reported {
		res.Neighbours = append(res.Neighbours, sap.NeighbourMeas{
			CellID:  sap.CellID(n.Cell),
			HasRsrp: true,
			Rsrp:    n.Rsrp,
			HasRsrq: true,
			Rsrq:    n.Rsrq,
		})
	}
	return res, true
}

// filterCells keeps the neighbours satisfying cond, strongest first.
func filterCells(cfg sap.ReportConfig, cells []workload.CellMeasurement, cond func(float64) bool) []workload.CellMeasurement {
	var out []workload.CellMeasurement
	for _, c := range cells {
		if cond(quantity(cfg, c)) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return quantity(cfg, out[i]) > quantity(cfg, out[j]) })
	return out
}
