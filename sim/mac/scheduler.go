// Package mac defines the MAC scheduler contract: the per-TTI allocation
// interface, the uplink CQI filter modes and the request/indication shapes
// exchanged with the cell. Allocation policies plug in behind Scheduler.
package mac

import (
	"fmt"

	"github.com/ransim/ransim/sim/sap"
)

// UlCqiFilter selects which uplink CQI sources the scheduler accepts.
type UlCqiFilter uint8

const (
	// SrsUlCqi accepts only CQI derived from sounding reference signals.
	SrsUlCqi UlCqiFilter = iota
	// PuschUlCqi accepts only CQI derived from the uplink data channel.
	PuschUlCqi
	// AllUlCqi accepts every uplink CQI report.
	AllUlCqi
)

var ulCqiFilterNames = map[UlCqiFilter]string{
	SrsUlCqi:   "SRS_UL_CQI",
	PuschUlCqi: "PUSCH_UL_CQI",
	AllUlCqi:   "ALL_UL_CQI",
}

// ValidUlCqiFilters is the set of recognized filter names. The empty
// string selects the default (SRS_UL_CQI).
var ValidUlCqiFilters = map[string]bool{"": true, "SRS_UL_CQI": true, "PUSCH_UL_CQI": true, "ALL_UL_CQI": true}

func (f UlCqiFilter) String() string {
	if s, ok := ulCqiFilterNames[f]; ok {
		return s
	}
	return fmt.Sprintf("UlCqiFilter(%d)", uint8(f))
}

// ParseUlCqiFilter maps a configuration name to its filter mode.
func ParseUlCqiFilter(name string) (UlCqiFilter, error) {
	if name == "" {
		return SrsUlCqi, nil
	}
	for f, s := range ulCqiFilterNames {
		if s == name {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown uplink CQI filter %q", name)
}

// Accepts reports whether a CQI report of type t passes the filter.
func (f UlCqiFilter) Accepts(t sap.UlCqiType) bool {
	switch f {
	case AllUlCqi:
		return true
	case SrsUlCqi:
		return t == sap.UlCqiSrs
	case PuschUlCqi:
		return t == sap.UlCqiPusch
	}
	return false
}

// DlCqiInfoReq carries the downlink CQI reports received in one TTI.
type DlCqiInfoReq struct {
	SfnSf   uint32
	Reports []sap.DlCqiReport
}

// UlCqiInfoReq carries one uplink CQI measurement.
type UlCqiInfoReq struct {
	SfnSf  uint32
	Report sap.UlCqiReport
}

// DlTriggerReq asks for the downlink allocation of one TTI.
type DlTriggerReq struct {
	SfnSf uint32
}

// LcAllocation is the share of a transport block granted to one logical channel.
type LcAllocation struct {
	Lcid  sap.Lcid
	Bytes uint32
}

// DlAllocation is the downlink grant of one UE in one TTI.
type DlAllocation struct {
	Rnti   sap.Rnti
	Rbgs   []int
	Cqi    uint8
	TbSize uint32 // bytes
	Tpc    uint8
	Lcs    []LcAllocation
}

// DlConfigInd is the scheduler's answer to a DlTriggerReq.
type DlConfigInd struct {
	SfnSf       uint32
	Allocations []DlAllocation
}

// Scheduler is the MAC scheduler contract. The cell calls it from its
// event handlers; implementations are not safe for concurrent use.
type Scheduler interface {
	// SchedDlRlcBufferReq records the latest buffer status of one logical channel.
	SchedDlRlcBufferReq(params sap.ReportBufferStatusParams)
	SchedDlCqiInfoReq(req DlCqiInfoReq)
	// SchedUlCqiInfoReq records an uplink CQI report if the filter mode accepts its source.
	SchedUlCqiInfoReq(req UlCqiInfoReq)
	// SchedDlTriggerReq allocates resource block groups for one TTI.
	SchedDlTriggerReq(req DlTriggerReq) DlConfigInd
	RemoveUe(rnti sap.Rnti)
	RemoveLc(rnti sap.Rnti, lcid sap.Lcid)
}

// Config holds the cell parameters every strategy needs.
type Config struct {
	DlBandwidth uint8 // resource blocks
	UlBandwidth uint8
	UlCqiFilter UlCqiFilter
	// Ffr restricts per-UE RBG use; nil means every RBG is available.
	Ffr sap.FfrProvider
}

// ValidSchedulers is the set of recognized scheduling strategy names.
var ValidSchedulers = map[string]bool{"": true, "first-fit": true}

// NewScheduler creates a Scheduler by name.
// Valid names: "first-fit" (default). Panics on unrecognized names.
func NewScheduler(name string, cfg Config) Scheduler {
	if !ValidSchedulers[name] {
		panic(fmt.Sprintf("unknown scheduler %q", name))
	}
	switch name {
	case "", "first-fit":
		return NewFirstFit(cfg)
	default:
		panic(fmt.Sprintf("unhandled scheduler %q", name))
	}
}

// RbgSize returns the number of resource blocks per RBG for a bandwidth
// given in resource blocks.
func RbgSize(bandwidth uint8) int {
	switch {
	case bandwidth <= 10:
		return 1
	case bandwidth <= 26:
		return 2
	case bandwidth <= 63:
		return 3
	default:
		return 4
	}
}

// NumRbg returns the number of whole RBGs in a bandwidth. Trailing resource
// blocks that do not fill an RBG are never scheduled.
func NumRbg(bandwidth uint8) int {
	return int(bandwidth) / RbgSize(bandwidth)
}
