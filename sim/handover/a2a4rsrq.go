package handover

import (
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/sap"
)

// A2A4RsrqAlgorithm watches serving RSRQ through an A2 event and neighbour
// RSRQ through an A4 event. When serving quality is at or below the
// threshold it hands the UE to the best neighbour if that neighbour is
// better by at least the configured offset.
type A2A4RsrqAlgorithm struct {
	cfg  Config
	user sap.HandoverUser

	a2MeasID uint8
	a4MeasID uint8

	// latest neighbour RSRQ per UE and cell, fed by A4 reports
	neighbours map[sap.Rnti]map[sap.CellID]uint8
}

// NewA2A4Rsrq creates an A2-A4-RSRQ algorithm.
func NewA2A4Rsrq(cfg Config) *A2A4RsrqAlgorithm {
	return &A2A4RsrqAlgorithm{cfg: cfg, neighbours: make(map[sap.Rnti]map[sap.CellID]uint8)}
}

func (a *A2A4RsrqAlgorithm) Kind() Kind { return A2A4Rsrq }

// MeasIDs returns the identities of the A2 and A4 configurations.
func (a *A2A4RsrqAlgorithm) MeasIDs() (a2, a4 uint8) { return a.a2MeasID, a.a4MeasID }

func (a *A2A4RsrqAlgorithm) SetHandoverUser(user sap.HandoverUser) {
	a.user = user
	a.a2MeasID = user.AddUeMeasReportConfigForHandover(sap.ReportConfig{
		Trigger:    sap.TriggerEvent,
		Event:      sap.EventA2,
		Quantity:   sap.QuantityRsrq,
		Threshold1: a.cfg.ServingCellThreshold,
	})
	// report every neighbour
	a.a4MeasID = user.AddUeMeasReportConfigForHandover(sap.ReportConfig{
		Trigger:    sap.TriggerEvent,
		Event:      sap.EventA4,
		Quantity:   sap.QuantityRsrq,
		Threshold1: 0,
	})
}

func (a *A2A4RsrqAlgorithm) ReportUeMeas(rnti sap.Rnti, m sap.MeasResults) {
	known := false
	if m.MeasID == a.a4MeasID {
		known = true
		a.updateNeighbours(rnti, m.Neighbours)
	}
	if m.MeasID == a.a2MeasID {
		known = true
		if m.ServingRsrq <= a.cfg.ServingCellThreshold {
			a.evaluate(rnti, m.ServingRsrq)
		}
	}
	if !known {
		logrus.Warnf("A2-A4-RSRQ: ignoring report with measId %d from rnti=%d", m.MeasID, rnti)
	}
}

func (a *A2A4RsrqAlgorithm) updateNeighbours(rnti sap.Rnti, ns []sap.NeighbourMeas) {
	cells, ok := a.neighbours[rnti]
	if !ok {
		cells = make(map[sap.CellID]uint8)
		a.neighbours[rnti] = cells
	}
	for _, n := range ns {
		if n.HasRsrq {
			cells[n.CellID] = n.Rsrq
		}
	}
}

func (a *A2A4RsrqAlgorithm) evaluate(rnti sap.Rnti, servingRsrq uint8) {
	var (
		bestCell sap.CellID
		bestRsrq uint8
		found    bool
	)
	for cell, rsrq := range a.neighbours[rnti] {
		if !found || rsrq > bestRsrq || (rsrq == bestRsrq && cell < bestCell) {
			bestCell, bestRsrq, found = cell, rsrq, true
		}
	}
	if !found || bestRsrq < servingRsrq || bestRsrq-servingRsrq < a.cfg.NeighbourCellOffset {
		return
	}
	logrus.Debugf("A2-A4-RSRQ: rnti=%d serving rsrq=%d, cell %d rsrq=%d, triggering handover",
		rnti, servingRsrq, bestCell, bestRsrq)
	delete(a.neighbours, rnti)
	if a.user != nil {
		a.user.TriggerHandover(rnti, bestCell)
	}
}

func (a *A2A4RsrqAlgorithm) RemoveUe(rnti sap.Rnti) { delete(a.neighbours, rnti) }
