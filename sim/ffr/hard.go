package ffr

import (
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/sap"
)

// hardTable gives the reuse-3 sub-band of each cell of the three-cell
// pattern, in resource blocks.
var hardTable = []struct {
	cellIdx   int
	bandwidth uint8
	offset    int
	subBand   int
}{
	{1, 15, 0, 4}, {2, 15, 4, 4}, {3, 15, 8, 6},
	{1, 25, 0, 8}, {2, 25, 8, 8}, {3, 25, 16, 9},
	{1, 50, 0, 16}, {2, 50, 16, 16}, {3, 50, 32, 18},
	{1, 75, 0, 24}, {2, 75, 24, 24}, {3, 75, 48, 27},
	{1, 100, 0, 32}, {2, 100, 32, 32}, {3, 100, 64, 36},
}

// hardSubBand returns the reuse-3 sub-band of a cell for a bandwidth given
// in units of unitSize RBs.
func hardSubBand(id sap.CellID, bw uint8, n, unitSize int) subBand {
	idx := cellIndex(id)
	for _, e := range hardTable {
		if e.cellIdx == idx && e.bandwidth == bw {
			return subBand{offset: e.offset, reuse3: e.subBand}
		}
	}
	off, w := thirds(n, idx)
	return subBand{offset: off * unitSize, reuse3: w * unitSize}
}

// HardAlgorithm reserves a per-cell reuse-3 sub-band for edge UEs and gives
// centre UEs the rest of the band.
type HardAlgorithm struct {
	cfg       Config
	partition Partition
	ues       ueAreas
	user      sap.FfrRrcUser
}

// NewHard creates a hard FFR algorithm for cfg.
func NewHard(cfg Config) *HardAlgorithm {
	a := &HardAlgorithm{cfg: cfg, ues: newUeAreas(cfg.RsrqThreshold)}
	a.reconfigure()
	return a
}

func (a *HardAlgorithm) reconfigure() {
	n, size := dlUnits(a.cfg.DlBandwidth)
	ul := int(a.cfg.UlBandwidth)
	a.partition = Partition{
		Dl: buildBitmaps(n, size, hardSubBand(a.cfg.CellID, a.cfg.DlBandwidth, n, size)),
		Ul: buildBitmaps(ul, 1, hardSubBand(a.cfg.CellID, a.cfg.UlBandwidth, ul, 1)),
	}
	logrus.Debugf("hard FFR cell %d: dl reuse-3 %v", a.cfg.CellID, a.partition.Dl.Reuse3)
}

func (a *HardAlgorithm) Kind() Kind           { return Hard }
func (a *HardAlgorithm) Partition() Partition { return a.partition }

// Area returns the current classification of rnti.
func (a *HardAlgorithm) Area(rnti sap.Rnti) Area { return a.ues.area(rnti) }

func (a *HardAlgorithm) SetFfrRrcUser(user sap.FfrRrcUser) {
	a.user = user
	a.ues.register(user)
}

func (a *HardAlgorithm) SetCellID(id sap.CellID) {
	a.cfg.CellID = id
	a.reconfigure()
}

func (a *HardAlgorithm) SetBandwidth(ul, dl uint8) {
	a.cfg.UlBandwidth, a.cfg.DlBandwidth = ul, dl
	a.reconfigure()
}

func (a *HardAlgorithm) ReportUeMeas(rnti sap.Rnti, m sap.MeasResults) {
	if area, changed := a.ues.classify(rnti, m); changed {
		logrus.Debugf("hard FFR cell %d: rnti=%d is now %s (rsrq=%d)", a.cfg.CellID, rnti, area, m.ServingRsrq)
	}
}

func (a *HardAlgorithm) RemoveUe(rnti sap.Rnti) { delete(a.ues.areas, rnti) }

func (a *HardAlgorithm) GetAvailableDlRbg() []bool { return allTrue(len(a.partition.Dl.Reuse3)) }
func (a *HardAlgorithm) GetAvailableUlRbg() []bool { return allTrue(len(a.partition.Ul.Reuse3)) }

func (a *HardAlgorithm) IsDlRbgAvailableForUe(rbg int, rnti sap.Rnti) bool {
	return availableTo(a.ueMap(a.partition.Dl, rnti), rbg)
}

func (a *HardAlgorithm) IsUlRbgAvailableForUe(rb int, rnti sap.Rnti) bool {
	return availableTo(a.ueMap(a.partition.Ul, rnti), rb)
}

func (a *HardAlgorithm) ueMap(b Bitmaps, rnti sap.Rnti) []bool {
	if a.ues.area(rnti) == EdgeArea {
		return b.Reuse3
	}
	return b.Reuse1
}

func (a *HardAlgorithm) ReportDlCqiInfo(sap.DlCqiReport) {}
func (a *HardAlgorithm) ReportUlCqiInfo(sap.UlCqiReport) {}

// GetTpc returns 1, the 0 dB accumulated TPC command.
func (a *HardAlgorithm) GetTpc(sap.Rnti) uint8 { return 1 }

// GetMinContinuousUlBandwidth returns the width of the uplink reuse-3 sub-band.
func (a *HardAlgorithm) GetMinContinuousUlBandwidth() uint8 {
	return uint8(countTrue(a.partition.Ul.Reuse3))
}

func countTrue(m []bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}
