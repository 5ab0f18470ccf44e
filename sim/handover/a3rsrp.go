package handover

import (
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/sap"
)

// A3RsrpAlgorithm hands a UE over to the strongest neighbour once that
// neighbour's RSRP has exceeded the serving RSRP by the hysteresis for the
// whole time-to-trigger.
//
// The time-to-trigger travels in the A3 report configuration and is
// enforced by the UE, which only reports after the entering condition held
// at every measurement for that long. A report therefore triggers at once.
type A3RsrpAlgorithm struct {
	cfg    Config
	user   sap.HandoverUser
	measID uint8
}

// NewA3Rsrp creates an A3-RSRP algorithm.
func NewA3Rsrp(cfg Config) *A3RsrpAlgorithm {
	if cfg.Hysteresis < 0 || cfg.TimeToTrigger < 0 {
		panic("handover.NewA3Rsrp: hysteresis and time-to-trigger must be non-negative")
	}
	return &A3RsrpAlgorithm{cfg: cfg}
}

func (a *A3RsrpAlgorithm) Kind() Kind { return A3Rsrp }

// MeasID returns the identity of the registered A3 configuration.
func (a *A3RsrpAlgorithm) MeasID() uint8 { return a.measID }

func (a *A3RsrpAlgorithm) SetHandoverUser(user sap.HandoverUser) {
	a.user = user
	a.measID = user.AddUeMeasReportConfigForHandover(sap.ReportConfig{
		Trigger:         sap.TriggerEvent,
		Event:           sap.EventA3,
		Quantity:        sap.QuantityRsrp,
		Hysteresis:      uint8(a.cfg.Hysteresis * 2),
		TimeToTriggerMs: uint16(a.cfg.TimeToTrigger / 1000),
	})
}

func (a *A3RsrpAlgorithm) ReportUeMeas(rnti sap.Rnti, m sap.MeasResults) {
	if m.MeasID != a.measID {
		logrus.Warnf("A3-RSRP: ignoring report with measId %d from rnti=%d", m.MeasID, rnti)
		return
	}

	best, found := bestByRsrp(m.Neighbours)
	if !found || float64(best.Rsrp) <= float64(m.ServingRsrp)+a.cfg.Hysteresis {
		return
	}

	logrus.Debugf("A3-RSRP: rnti=%d serving rsrp=%d, cell %d rsrp=%d, triggering handover",
		rnti, m.ServingRsrp, best.CellID, best.Rsrp)
	if a.user != nil {
		a.user.TriggerHandover(rnti, best.CellID)
	}
}

func (a *A3RsrpAlgorithm) RemoveUe(sap.Rnti) {}

func bestByRsrp(neighbours []sap.NeighbourMeas) (sap.NeighbourMeas, bool) {
	var best sap.NeighbourMeas
	found := false
	for _, n := range neighbours {
		if n.HasRsrp && (!found || n.Rsrp > best.Rsrp) {
			best, found = n, true
		}
	}
	return best, found
}
