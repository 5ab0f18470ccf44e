package ffr

import "github.com/ransim/ransim/sim/sap"

// FullReuseAlgorithm makes every resource available to every UE.
type FullReuseAlgorithm struct {
	cfg       Config
	partition Partition
}

// NewFullReuse creates the no-op reuse algorithm.
func NewFullReuse(cfg Config) *FullReuseAlgorithm {
	a := &FullReuseAlgorithm{cfg: cfg}
	a.reconfigure()
	return a
}

func (a *FullReuseAlgorithm) reconfigure() {
	n, _ := dlUnits(a.cfg.DlBandwidth)
	ul := int(a.cfg.UlBandwidth)
	a.partition = Partition{
		Dl: Bitmaps{Reuse3: make([]bool, n), Reuse1: allTrue(n), Primary: allTrue(n), Secondary: make([]bool, n)},
		Ul: Bitmaps{Reuse3: make([]bool, ul), Reuse1: allTrue(ul), Primary: allTrue(ul), Secondary: make([]bool, ul)},
	}
	validate(a.partition.Dl)
	validate(a.partition.Ul)
}

func (a *FullReuseAlgorithm) Kind() Kind           { return FullReuse }
func (a *FullReuseAlgorithm) Partition() Partition { return a.partition }

func (a *FullReuseAlgorithm) SetFfrRrcUser(sap.FfrRrcUser) {}
func (a *FullReuseAlgorithm) RemoveUe(sap.Rnti)            {}

func (a *FullReuseAlgorithm) SetCellID(id sap.CellID) { a.cfg.CellID = id }

func (a *FullReuseAlgorithm) SetBandwidth(ul, dl uint8) {
	a.cfg.UlBandwidth, a.cfg.DlBandwidth = ul, dl
	a.reconfigure()
}

func (a *FullReuseAlgorithm) ReportUeMeas(sap.Rnti, sap.MeasResults) {}

func (a *FullReuseAlgorithm) GetAvailableDlRbg() []bool { return copyBools(a.partition.Dl.Reuse1) }
func (a *FullReuseAlgorithm) GetAvailableUlRbg() []bool { return copyBools(a.partition.Ul.Reuse1) }

func (a *FullReuseAlgorithm) IsDlRbgAvailableForUe(rbg int, _ sap.Rnti) bool {
	return availableTo(a.partition.Dl.Reuse1, rbg)
}

func (a *FullReuseAlgorithm) IsUlRbgAvailableForUe(rb int, _ sap.Rnti) bool {
	return availableTo(a.partition.Ul.Reuse1, rb)
}

func (a *FullReuseAlgorithm) ReportDlCqiInfo(sap.DlCqiReport) {}
func (a *FullReuseAlgorithm) ReportUlCqiInfo(sap.UlCqiReport) {}

// GetTpc returns 1, the 0 dB accumulated TPC command.
func (a *FullReuseAlgorithm) GetTpc(sap.Rnti) uint8 { return 1 }

func (a *FullReuseAlgorithm) GetMinContinuousUlBandwidth() uint8 { return a.cfg.UlBandwidth }
