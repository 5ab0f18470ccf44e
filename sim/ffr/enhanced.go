package ffr

import (
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/sap"
)

// enhancedTable gives, per cell of the three-cell pattern, the offset of
// its primary segment and the widths of its reuse-3 and primary reuse-1
// parts, in resource blocks.
var enhancedTable = []struct {
	cellIdx   int
	bandwidth uint8
	offset    int
	reuse3    int
	reuse1    int
}{
	{1, 25, 0, 4, 4}, {2, 25, 8, 4, 4}, {3, 25, 16, 4, 4},
	{1, 50, 0, 9, 6}, {2, 50, 15, 9, 6}, {3, 50, 30, 9, 6},
	{1, 75, 0, 8, 16}, {2, 75, 24, 8, 16}, {3, 75, 48, 8, 16},
	{1, 100, 0, 16, 16}, {2, 100, 32, 16, 16}, {3, 100, 64, 16, 16},
}

func enhancedSubBand(id sap.CellID, bw uint8, n, unitSize int) subBand {
	idx := cellIndex(id)
	for _, e := range enhancedTable {
		if e.cellIdx == idx && e.bandwidth == bw {
			return subBand{offset: e.offset, reuse3: e.reuse3, reuse1: e.reuse1}
		}
	}
	off, w := thirds(n, idx)
	r3 := (w + 1) / 2
	return subBand{offset: off * unitSize, reuse3: r3 * unitSize, reuse1: (w - r3) * unitSize}
}

// EnhancedAlgorithm splits the band into a primary segment (the cell's
// reuse-3 part plus a primary reuse-1 part) and a secondary segment.
// Edge UEs use the reuse-3 part. Centre UEs use the primary reuse-1 part
// and any secondary resource on which their reported quality reaches the
// configured threshold. Each area gets its own PDSCH power offset and TPC.
type EnhancedAlgorithm struct {
	cfg       Config
	partition Partition
	ues       ueAreas
	user      sap.FfrRrcUser

	// secondary-segment resources usable by each centre UE
	dlSecondary map[sap.Rnti][]bool
	ulSecondary map[sap.Rnti][]bool
}

// NewEnhanced creates an enhanced FFR algorithm for cfg.
func NewEnhanced(cfg Config) *EnhancedAlgorithm {
	a := &EnhancedAlgorithm{
		cfg:         cfg,
		ues:         newUeAreas(cfg.RsrqThreshold),
		dlSecondary: make(map[sap.Rnti][]bool),
		ulSecondary: make(map[sap.Rnti][]bool),
	}
	a.reconfigure()
	return a
}

func (a *EnhancedAlgorithm) reconfigure() {
	n, size := dlUnits(a.cfg.DlBandwidth)
	ul := int(a.cfg.UlBandwidth)
	a.partition = Partition{
		Dl: buildBitmaps(n, size, enhancedSubBand(a.cfg.CellID, a.cfg.DlBandwidth, n, size)),
		Ul: buildBitmaps(ul, 1, enhancedSubBand(a.cfg.CellID, a.cfg.UlBandwidth, ul, 1)),
	}
	clear(a.dlSecondary)
	clear(a.ulSecondary)
	logrus.Debugf("enhanced FFR cell %d: dl primary %v", a.cfg.CellID, a.partition.Dl.Primary)
}

func (a *EnhancedAlgorithm) Kind() Kind           { return Enhanced }
func (a *EnhancedAlgorithm) Partition() Partition { return a.partition }

// Area returns the current classification of rnti.
func (a *EnhancedAlgorithm) Area(rnti sap.Rnti) Area { return a.ues.area(rnti) }

func (a *EnhancedAlgorithm) SetFfrRrcUser(user sap.FfrRrcUser) {
	a.user = user
	a.ues.register(user)
}

func (a *EnhancedAlgorithm) SetCellID(id sap.CellID) {
	a.cfg.CellID = id
	a.reconfigure()
}

func (a *EnhancedAlgorithm) SetBandwidth(ul, dl uint8) {
	a.cfg.UlBandwidth, a.cfg.DlBandwidth = ul, dl
	a.reconfigure()
}

func (a *EnhancedAlgorithm) ReportUeMeas(rnti sap.Rnti, m sap.MeasResults) {
	area, changed := a.ues.classify(rnti, m)
	if !changed {
		return
	}
	logrus.Debugf("enhanced FFR cell %d: rnti=%d is now %s (rsrq=%d)", a.cfg.CellID, rnti, area, m.ServingRsrq)
	if a.user == nil {
		return
	}
	pa := a.cfg.CenterAreaPowerOffset
	if area == EdgeArea {
		pa = a.cfg.EdgeAreaPowerOffset
	}
	a.user.SetPdschConfigDedicated(rnti, sap.PdschConfigDedicated{Pa: pa})
}

func (a *EnhancedAlgorithm) RemoveUe(rnti sap.Rnti) {
	delete(a.ues.areas, rnti)
	delete(a.dlSecondary, rnti)
	delete(a.ulSecondary, rnti)
}

// ReportDlCqiInfo refreshes the secondary RBGs a UE may use from its subband CQI.
func (a *EnhancedAlgorithm) ReportDlCqiInfo(r sap.DlCqiReport) {
	sec := a.partition.Dl.Secondary
	m := make([]bool, len(sec))
	for i := range sec {
		m[i] = sec[i] && i < len(r.SubbandCqi) && r.SubbandCqi[i] >= a.cfg.DlCqiThreshold
	}
	a.dlSecondary[r.Rnti] = m
}

// ReportUlCqiInfo refreshes the secondary RBs a UE may use from its per-RB SINR.
func (a *EnhancedAlgorithm) ReportUlCqiInfo(r sap.UlCqiReport) {
	sec := a.partition.Ul.Secondary
	m := make([]bool, len(sec))
	for i := range sec {
		m[i] = sec[i] && i < len(r.Sinr) && r.Sinr[i] >= a.cfg.UlSinrThreshold
	}
	a.ulSecondary[r.Rnti] = m
}

func (a *EnhancedAlgorithm) GetAvailableDlRbg() []bool { return allTrue(len(a.partition.Dl.Reuse3)) }
func (a *EnhancedAlgorithm) GetAvailableUlRbg() []bool { return allTrue(len(a.partition.Ul.Reuse3)) }

func (a *EnhancedAlgorithm) IsDlRbgAvailableForUe(rbg int, rnti sap.Rnti) bool {
	return a.available(a.partition.Dl, a.dlSecondary[rnti], rbg, rnti)
}

func (a *EnhancedAlgorithm) IsUlRbgAvailableForUe(rb int, rnti sap.Rnti) bool {
	return a.available(a.partition.Ul, a.ulSecondary[rnti], rb, rnti)
}

func (a *EnhancedAlgorithm) available(b Bitmaps, secondary []bool, i int, rnti sap.Rnti) bool {
	if i < 0 || i >= len(b.Primary) {
		return false
	}
	edge := a.ues.area(rnti) == EdgeArea
	if b.Primary[i] {
		return (b.Reuse3[i] && edge) || (b.Reuse1[i] && !edge)
	}
	return !edge && availableTo(secondary, i)
}

func (a *EnhancedAlgorithm) GetTpc(rnti sap.Rnti) uint8 {
	if a.ues.area(rnti) == EdgeArea {
		return a.cfg.EdgeAreaTpc
	}
	return a.cfg.CenterAreaTpc
}

// GetMinContinuousUlBandwidth returns the narrowest non-empty primary part
// of the uplink, in RBs.
func (a *EnhancedAlgorithm) GetMinContinuousUlBandwidth() uint8 {
	ul := a.partition.Ul
	r3 := countTrue(ul.Reuse3)
	r1 := 0
	for i := range ul.Primary {
		if ul.Primary[i] && ul.Reuse1[i] {
			r1++
		}
	}
	switch {
	case r3 == 0 && r1 == 0:
		return a.cfg.UlBandwidth
	case r3 == 0:
		return uint8(r1)
	case r1 == 0:
		return uint8(r3)
	default:
		return uint8(min(r3, r1))
	}
}
