// Package anr maintains a cell's neighbour relation table. Relations are
// added administratively or discovered from UE measurement reports, and
// their flags decide whether a neighbour may be used for handover.
package anr

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/ransim/ransim/sim/sap"
)

// DefaultThreshold is the RSRQ range value at or above which a measured
// neighbour counts as detected.
const DefaultThreshold uint8 = 0

// Relation holds the flags of one neighbour cell.
type Relation struct {
	NoRemove            bool
	NoHo                bool
	NoX2                bool
	DetectedAsNeighbour bool
}

// Change describes an update of the table caused by a measurement report.
type Change struct {
	CellID   sap.CellID
	Created  bool
	Relation Relation
}

// Anr is the neighbour relation function of one serving cell. It
// implements sap.AnrProvider.
type Anr struct {
	servingCellID sap.CellID
	threshold     uint8
	measID        uint8
	user          sap.AnrUser

	table map[sap.CellID]*Relation

	// OnChange, when set, observes every measurement-driven update.
	OnChange func(Change)
}

var _ sap.AnrProvider = (*Anr)(nil)

// New creates an empty table for servingCellID. threshold is in RSRQ range units.
func New(servingCellID sap.CellID, threshold uint8) *Anr {
	return &Anr{
		servingCellID: servingCellID,
		threshold:     threshold,
		table:         make(map[sap.CellID]*Relation),
	}
}

// SetAnrUser binds the cell's RRC and registers an A4 RSRQ report
// configuration with the detection threshold.
func (a *Anr) SetAnrUser(user sap.AnrUser) {
	a.user = user
	a.measID = user.AddUeMeasReportConfigForAnr(sap.ReportConfig{
		Trigger:    sap.TriggerEvent,
		Event:      sap.EventA4,
		Quantity:   sap.QuantityRsrq,
		Threshold1: a.threshold,
	})
}

// MeasID returns the identity of the registered report configuration.
func (a *Anr) MeasID() uint8 { return a.measID }

// AddNeighbourRelation records an administratively known neighbour. New
// entries can neither be removed nor used for handover until detected.
// Adding a known cell changes nothing.
func (a *Anr) AddNeighbourRelation(cellID sap.CellID) {
	if cellID == a.servingCellID {
		panic("anr: serving cell cannot be its own neighbour")
	}
	if _, ok := a.table[cellID]; ok {
		return
	}
	a.table[cellID] = &Relation{NoRemove: true, NoHo: true}
	logrus.Debugf("ANR cell %d: added neighbour %d", a.servingCellID, cellID)
}

// RemoveNeighbourRelation erases a relation unless it is protected by NoRemove.
func (a *Anr) RemoveNeighbourRelation(cellID sap.CellID) {
	r, ok := a.table[cellID]
	if !ok {
		return
	}
	if r.NoRemove {
		logrus.Debugf("ANR cell %d: neighbour %d is protected, not removed", a.servingCellID, cellID)
		return
	}
	delete(a.table, cellID)
}

// ReportUeMeas processes a report sent for the ANR configuration. Every
// neighbour whose RSRQ reaches the threshold is marked detected and becomes
// eligible for handover; unknown ones are added. Reports for other
// measurement identities are ignored.
func (a *Anr) ReportUeMeas(m sap.MeasResults) {
	if m.MeasID != a.measID {
		return
	}
	for _, n := range m.Neighbours {
		if !n.HasRsrq || n.Rsrq < a.threshold || n.CellID == a.servingCellID {
			continue
		}
		r, ok := a.table[n.CellID]
		if !ok {
			r = &Relation{DetectedAsNeighbour: true}
			a.table[n.CellID] = r
			logrus.Debugf("ANR cell %d: detected new neighbour %d (rsrq=%d)", a.servingCellID, n.CellID, n.Rsrq)
		} else if r.DetectedAsNeighbour && !r.NoHo {
			continue
		} else {
			r.DetectedAsNeighbour = true
			r.NoHo = false
			logrus.Debugf("ANR cell %d: neighbour %d detected, handover enabled", a.servingCellID, n.CellID)
		}
		if a.OnChange != nil {
			a.OnChange(Change{CellID: n.CellID, Created: !ok, Relation: *r})
		}
	}
}

// Lookup returns the relation of cellID and whether one exists.
func (a *Anr) Lookup(cellID sap.CellID) (Relation, bool) {
	r, ok := a.table[cellID]
	if !ok {
		return Relation{}, false
	}
	return *r, true
}

// GetNoRemove returns the NoRemove flag; true for an unknown cell.
func (a *Anr) GetNoRemove(cellID sap.CellID) bool {
	if r, ok := a.table[cellID]; ok {
		return r.NoRemove
	}
	return true
}

// GetNoHo returns the NoHo flag; true for an unknown cell.
func (a *Anr) GetNoHo(cellID sap.CellID) bool {
	if r, ok := a.table[cellID]; ok {
		return r.NoHo
	}
	return true
}

// GetNoX2 returns the NoX2 flag; true for an unknown cell.
func (a *Anr) GetNoX2(cellID sap.CellID) bool {
	if r, ok := a.table[cellID]; ok {
		return r.NoX2
	}
	return true
}

// SetNoX2 sets the NoX2 flag of a known neighbour and reports whether it exists.
func (a *Anr) SetNoX2(cellID sap.CellID, noX2 bool) bool {
	r, ok := a.table[cellID]
	if ok {
		r.NoX2 = noX2
	}
	return ok
}

// Neighbours returns the known neighbour ids in ascending order.
func (a *Anr) Neighbours() []sap.CellID {
	ids := make([]sap.CellID, 0, len(a.table))
	for id := range a.table {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of relations.
func (a *Anr) Len() int { return len(a.table) }
