// Package ffr implements frequency reuse algorithms. Each algorithm splits
// the downlink RBGs and uplink RBs of a cell into disjoint reuse classes,
// classifies UEs as cell-centre or cell-edge from their RSRQ reports, and
// tells the scheduler which resources each UE may use.
package ffr

import (
	"fmt"

	"github.com/ransim/ransim/sim/mac"
	"github.com/ransim/ransim/sim/sap"
)

// Kind enumerates the available algorithms.
type Kind uint8

const (
	FullReuse Kind = iota
	Hard
	Enhanced
)

var kindNames = map[Kind]string{
	FullReuse: "full-reuse",
	Hard:      "hard",
	Enhanced:  "enhanced",
}

// ValidAlgorithms is the set of recognized algorithm names. The empty
// string selects FullReuse.
var ValidAlgorithms = map[string]bool{"": true, "full-reuse": true, "hard": true, "enhanced": true}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	if name == "" {
		return FullReuse, nil
	}
	for k, s := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown frequency reuse algorithm %q", name)
}

// Area is the position class of a UE.
type Area uint8

const (
	AreaUnset Area = iota
	CenterArea
	EdgeArea
)

func (a Area) String() string {
	switch a {
	case CenterArea:
		return "center"
	case EdgeArea:
		return "edge"
	}
	return "unset"
}

// Config parameterizes every algorithm; each one reads only its own fields.
type Config struct {
	CellID      sap.CellID
	DlBandwidth uint8 // resource blocks
	UlBandwidth uint8

	// RsrqThreshold separates edge UEs (below) from centre UEs, in RSRQ range units.
	RsrqThreshold uint8

	// Enhanced only.
	DlCqiThreshold        uint8
	UlSinrThreshold       float64 // dB
	CenterAreaPowerOffset sap.PaOffset
	EdgeAreaPowerOffset   sap.PaOffset
	CenterAreaTpc         uint8
	EdgeAreaTpc           uint8
}

// DefaultConfig returns the usual parameter values for a 25-RB cell.
func DefaultConfig() Config {
	return Config{
		CellID:                1,
		DlBandwidth:           25,
		UlBandwidth:           25,
		RsrqThreshold:         20,
		DlCqiThreshold:        15,
		UlSinrThreshold:       10,
		CenterAreaPowerOffset: sap.PaDb0,
		EdgeAreaPowerOffset:   sap.PaDb0,
		CenterAreaTpc:         1,
		EdgeAreaTpc:           1,
	}
}

// Algorithm is a frequency reuse algorithm bound to one cell.
type Algorithm interface {
	sap.FfrProvider
	sap.FfrRrcProvider
	// SetFfrRrcUser binds the cell's RRC and registers the report
	// configuration the algorithm needs, if any.
	SetFfrRrcUser(user sap.FfrRrcUser)
	// RemoveUe discards per-UE state.
	RemoveUe(rnti sap.Rnti)
	// Partition returns the current reuse classes.
	Partition() Partition
	Kind() Kind
}

// NewAlgorithm creates an algorithm of the given kind.
// Panics on unrecognized kinds.
func NewAlgorithm(kind Kind, cfg Config) Algorithm {
	switch kind {
	case FullReuse:
		return NewFullReuse(cfg)
	case Hard:
		return NewHard(cfg)
	case Enhanced:
		return NewEnhanced(cfg)
	default:
		panic(fmt.Sprintf("unknown frequency reuse algorithm %s", kind))
	}
}

// Bitmaps are the reuse classes of one direction. Reuse3 and Reuse1 are
// disjoint and cover every index; so are Primary and Secondary.
type Bitmaps struct {
	Reuse3    []bool
	Reuse1    []bool
	Primary   []bool
	Secondary []bool
}

// Partition holds the downlink (per RBG) and uplink (per RB) reuse classes.
type Partition struct {
	Dl Bitmaps
	Ul Bitmaps
}

// subBand locates reuse-3 and primary reuse-1 resources, in resource blocks.
type subBand struct {
	offset int
	reuse3 int
	reuse1 int
}

// buildBitmaps lays out n units of unitSize resource blocks.
func buildBitmaps(n, unitSize int, sb subBand) Bitmaps {
	b := Bitmaps{
		Reuse3:    make([]bool, n),
		Reuse1:    make([]bool, n),
		Primary:   make([]bool, n),
		Secondary: make([]bool, n),
	}
	start := sb.offset / unitSize
	r3 := sb.reuse3 / unitSize
	r1 := sb.reuse1 / unitSize
	if start+r3+r1 > n {
		panic(fmt.Sprintf("ffr: sub-band %+v does not fit %d units of %d RBs", sb, n, unitSize))
	}
	for i := 0; i < n; i++ {
		switch {
		case i >= start && i < start+r3:
			b.Reuse3[i] = true
			b.Primary[i] = true
		case i >= start+r3 && i < start+r3+r1:
			b.Reuse1[i] = true
			b.Primary[i] = true
		default:
			b.Reuse1[i] = true
			b.Secondary[i] = true
		}
	}
	validate(b)
	return b
}

// validate panics unless both class pairs are disjoint and covering.
func validate(b Bitmaps) {
	n := len(b.Reuse3)
	if len(b.Reuse1) != n || len(b.Primary) != n || len(b.Secondary) != n {
		panic("ffr: bitmap length mismatch")
	}
	for i := 0; i < n; i++ {
		if b.Reuse3[i] == b.Reuse1[i] {
			panic(fmt.Sprintf("ffr: index %d is in both or neither of reuse-3 and reuse-1", i))
		}
		if b.Primary[i] == b.Secondary[i] {
			panic(fmt.Sprintf("ffr: index %d is in both or neither of primary and secondary", i))
		}
	}
}

// cellIndex maps a cell id onto the three-cell reuse pattern (1, 2 or 3).
func cellIndex(id sap.CellID) int {
	if id == 0 {
		return 1
	}
	return int(id-1)%3 + 1
}

// thirds splits n units evenly into three cell segments when no
// configuration table entry covers the bandwidth. It returns the offset and
// width of the segment of cell idx, in units.
func thirds(n, idx int) (offset, width int) {
	w := n / 3
	return (idx - 1) * w, w
}

func dlUnits(bw uint8) (n, size int) { return mac.NumRbg(bw), mac.RbgSize(bw) }

func availableTo(m []bool, i int) bool { return i >= 0 && i < len(m) && m[i] }

func allTrue(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func copyBools(m []bool) []bool { return append([]bool(nil), m...) }

// ueAreas tracks per-UE area classification from RSRQ reports.
type ueAreas struct {
	threshold uint8
	measID    uint8
	areas     map[sap.Rnti]Area
}

func newUeAreas(threshold uint8) ueAreas {
	return ueAreas{threshold: threshold, areas: make(map[sap.Rnti]Area)}
}

// register asks the RRC for periodic RSRQ reports of the serving cell.
func (u *ueAreas) register(user sap.FfrRrcUser) {
	u.measID = user.AddUeMeasReportConfigForFfr(sap.ReportConfig{
		Trigger:    sap.TriggerEvent,
		Event:      sap.EventA1,
		Quantity:   sap.QuantityRsrq,
		Threshold1: 0,
	})
}

// classify updates the area of rnti and reports whether it changed.
// Reports for other measurement identities are ignored.
func (u *ueAreas) classify(rnti sap.Rnti, m sap.MeasResults) (Area, bool) {
	if m.MeasID != u.measID {
		return u.area(rnti), false
	}
	area := CenterArea
	if m.ServingRsrq < u.threshold {
		area = EdgeArea
	}
	prev := u.areas[rnti]
	u.areas[rnti] = area
	return area, prev != area
}

// area returns the area of rnti; unclassified UEs count as centre.
func (u *ueAreas) area(rnti sap.Rnti) Area {
	if a := u.areas[rnti]; a != AreaUnset {
		return a
	}
	return CenterArea
}
