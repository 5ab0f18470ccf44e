package sim

import (
	"github.com/ransim/ransim/sim/ffr"
	"github.com/ransim/ransim/sim/handover"
	"github.com/ransim/ransim/sim/mac"
	"github.com/ransim/ransim/sim/sap"
)

// CellConfig describes one cell of a scenario.
type CellConfig struct {
	ID          uint16 `yaml:"id"`
	DlBandwidth uint8  `yaml:"dl_bandwidth"` // resource blocks
	UlBandwidth uint8  `yaml:"ul_bandwidth"`
	// Neighbours are administratively configured relations (noRemove).
	Neighbours []uint16 `yaml:"neighbours,omitempty"`
	// NoX2 lists neighbours without an X2 interface.
	NoX2 []uint16 `yaml:"no_x2,omitempty"`

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Handover  HandoverConfig  `yaml:"handover"`
	Ffr       FfrConfig       `yaml:"ffr"`
	Anr       AnrConfig       `yaml:"anr"`
	Rlc       RlcConfig       `yaml:"rlc"`
}

// SchedulerConfig selects the MAC scheduling strategy.
type SchedulerConfig struct {
	Name        string `yaml:"name"`          // "first-fit" (default)
	UlCqiFilter string `yaml:"ul_cqi_filter"` // "SRS_UL_CQI" (default), "PUSCH_UL_CQI", "ALL_UL_CQI"
}

// HandoverConfig selects the handover algorithm. Nil fields take the
// algorithm defaults.
type HandoverConfig struct {
	Algorithm            string   `yaml:"algorithm"` // "noop" (default), "a3-rsrp", "a2-a4-rsrq"
	Hysteresis           *float64 `yaml:"hysteresis_db"`
	TimeToTriggerMs      *int64   `yaml:"time_to_trigger_ms"`
	ServingCellThreshold *uint8   `yaml:"serving_cell_threshold"`
	NeighbourCellOffset  *uint8   `yaml:"neighbour_cell_offset"`
}

// FfrConfig selects the frequency reuse algorithm. Nil fields take the
// algorithm defaults. Power offsets are in dB.
type FfrConfig struct {
	Algorithm       string   `yaml:"algorithm"` // "full-reuse" (default), "hard", "enhanced"
	RsrqThreshold   *uint8   `yaml:"rsrq_threshold"`
	DlCqiThreshold  *uint8   `yaml:"dl_cqi_threshold"`
	UlSinrThreshold *float64 `yaml:"ul_sinr_threshold_db"`
	CenterAreaPa    *float64 `yaml:"center_area_pa_db"`
	EdgeAreaPa      *float64 `yaml:"edge_area_pa_db"`
	CenterAreaTpc   *uint8   `yaml:"center_area_tpc"`
	EdgeAreaTpc     *uint8   `yaml:"edge_area_tpc"`
}

// AnrConfig parameterizes neighbour detection.
type AnrConfig struct {
	Disabled  bool   `yaml:"disabled"`
	Threshold *uint8 `yaml:"threshold"` // RSRQ range units
}

// RlcConfig parameterizes the RLC entities of the cell's bearers.
type RlcConfig struct {
	MaxTxBufferSize *uint32 `yaml:"max_tx_buffer_size"` // bytes
}

// MacConfig returns the scheduler parameters of the cell. The FFR provider
// is bound by the caller.
func (c CellConfig) MacConfig() mac.Config {
	filter, _ := mac.ParseUlCqiFilter(c.Scheduler.UlCqiFilter)
	return mac.Config{DlBandwidth: c.DlBandwidth, UlBandwidth: c.UlBandwidth, UlCqiFilter: filter}
}

// Params returns the handover algorithm parameters with defaults applied.
func (c HandoverConfig) Params() handover.Config {
	p := handover.DefaultConfig()
	if c.Hysteresis != nil {
		p.Hysteresis = *c.Hysteresis
	}
	if c.TimeToTriggerMs != nil {
		p.TimeToTrigger = Milliseconds(*c.TimeToTriggerMs)
	}
	if c.ServingCellThreshold != nil {
		p.ServingCellThreshold = *c.ServingCellThreshold
	}
	if c.NeighbourCellOffset != nil {
		p.NeighbourCellOffset = *c.NeighbourCellOffset
	}
	return p
}

// FfrParams returns the frequency reuse parameters of the cell with defaults applied.
func (c CellConfig) FfrParams() ffr.Config {
	p := ffr.DefaultConfig()
	p.CellID = sap.CellID(c.ID)
	p.DlBandwidth = c.DlBandwidth
	p.UlBandwidth = c.UlBandwidth
	f := c.Ffr
	if f.RsrqThreshold != nil {
		p.RsrqThreshold = *f.RsrqThreshold
	}
	if f.DlCqiThreshold != nil {
		p.DlCqiThreshold = *f.DlCqiThreshold
	}
	if f.UlSinrThreshold != nil {
		p.UlSinrThreshold = *f.UlSinrThreshold
	}
	if f.CenterAreaPa != nil {
		if pa, err := sap.PaFromDb(*f.CenterAreaPa); err == nil {
			p.CenterAreaPowerOffset = pa
		}
	}
	if f.EdgeAreaPa != nil {
		if pa, err := sap.PaFromDb(*f.EdgeAreaPa); err == nil {
			p.EdgeAreaPowerOffset = pa
		}
	}
	if f.CenterAreaTpc != nil {
		p.CenterAreaTpc = *f.CenterAreaTpc
	}
	if f.EdgeAreaTpc != nil {
		p.EdgeAreaTpc = *f.EdgeAreaTpc
	}
	return p
}
