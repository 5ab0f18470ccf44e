package handover

import "github.com/ransim/ransim/sim/sap"

// NoopAlgorithm accepts every measurement report and never triggers a
// handover. Any real policy behaves as a superset of it.
type NoopAlgorithm struct {
	user    sap.HandoverUser
	reports int
}

func (a *NoopAlgorithm) SetHandoverUser(user sap.HandoverUser) { a.user = user }

func (a *NoopAlgorithm) ReportUeMeas(_ sap.Rnti, _ sap.MeasResults) { a.reports++ }

func (a *NoopAlgorithm) RemoveUe(_ sap.Rnti) {}

func (a *NoopAlgorithm) Kind() Kind { return Noop }

// Reports returns how many reports were accepted.
func (a *NoopAlgorithm) Reports() int { return a.reports }
