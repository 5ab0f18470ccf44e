package sap

import "fmt"

// NeighbourMeas is one neighbour cell entry of a measurement report.
// RSRP and RSRQ are in the 3GPP report ranges (RSRP 0..97, RSRQ 0..34).
type NeighbourMeas struct {
	CellID  CellID
	HasRsrp bool
	Rsrp    uint8
	HasRsrq bool
	Rsrq    uint8
}

// MeasResults is a measurement report sent by a UE for one measurement identity.
type MeasResults struct {
	MeasID      uint8
	ServingRsrp uint8
	ServingRsrq uint8
	Neighbours  []NeighbourMeas
}

// HasNeighbours reports whether the report carries neighbour results.
func (m MeasResults) HasNeighbours() bool {
	return len(m.Neighbours) > 0
}

// TriggerType selects how a UE decides to send reports.
type TriggerType int

const (
	TriggerEvent TriggerType = iota
	TriggerPeriodical
)

// EventID enumerates the measurement report triggering events.
type EventID int

const (
	EventA1 EventID = iota + 1 // serving becomes better than threshold
	EventA2                    // serving becomes worse than threshold
	EventA3                    // neighbour becomes offset better than serving
	EventA4                    // neighbour becomes better than threshold
	EventA5                    // serving worse than threshold1, neighbour better than threshold2
)

func (e EventID) String() string {
	switch e {
	case EventA1, EventA2, EventA3, EventA4, EventA5:
		return fmt.Sprintf("A%d", int(e))
	default:
		return "unknown"
	}
}

// TriggerQuantity is the measured quantity an event is evaluated on.
type TriggerQuantity int

const (
	QuantityRsrp TriggerQuantity = iota
	QuantityRsrq
)

// ReportConfig is a measurement reporting configuration registered with UEs.
type ReportConfig struct {
	Trigger         TriggerType
	Event           EventID
	Quantity        TriggerQuantity
	Threshold1      uint8
	Threshold2      uint8
	A3Offset        int8
	Hysteresis      uint8 // in 0.5 dB steps
	TimeToTriggerMs uint16
	ReportInterval  uint16 // ms, for periodical reporting
}

// PdschConfigDedicated carries the per-UE PDSCH power offset Pa.
type PdschConfigDedicated struct {
	Pa PaOffset
}

// PaOffset enumerates the PDSCH power offsets in dB.
type PaOffset int

const (
	PaDbMinus6 PaOffset = iota
	PaDbMinus4dot77
	PaDbMinus3
	PaDbMinus1dot77
	PaDb0
	PaDb1
	PaDb2
	PaDb3
)

// PaToDb converts a PaOffset to dB.
func PaToDb(pa PaOffset) float64 {
	switch pa {
	case PaDbMinus6:
		return -6.0
	case PaDbMinus4dot77:
		return -4.77
	case PaDbMinus3:
		return -3.0
	case PaDbMinus1dot77:
		return -1.77
	case PaDb0:
		return 0.0
	case PaDb1:
		return 1.0
	case PaDb2:
		return 2.0
	case PaDb3:
		return 3.0
	default:
		panic(fmt.Sprintf("unknown PDSCH Pa offset %d", int(pa)))
	}
}

// PaFromDb returns the PaOffset whose value is db (within 0.01 dB).
func PaFromDb(db float64) (PaOffset, error) {
	for pa := PaDbMinus6; pa <= PaDb3; pa++ {
		if d := PaToDb(pa) - db; d < 0.01 && d > -0.01 {
			return pa, nil
		}
	}
	return 0, fmt.Errorf("no PDSCH Pa offset of %.2f dB", db)
}

// UlCqiType identifies the source of an uplink CQI report.
type UlCqiType int

const (
	UlCqiSrs UlCqiType = iota
	UlCqiPusch
	UlCqiPucch1
	UlCqiPucch2
	UlCqiPrach
)

func (t UlCqiType) String() string {
	switch t {
	case UlCqiSrs:
		return "SRS"
	case UlCqiPusch:
		return "PUSCH"
	case UlCqiPucch1:
		return "PUCCH_1"
	case UlCqiPucch2:
		return "PUCCH_2"
	case UlCqiPrach:
		return "PRACH"
	default:
		return fmt.Sprintf("UlCqiType(%d)", int(t))
	}
}

// DlCqiReport is a downlink CQI report from one UE. SubbandCqi is indexed by
// RBG and may be empty for wideband-only reports.
type DlCqiReport struct {
	Rnti        Rnti
	WidebandCqi uint8
	SubbandCqi  []uint8
}

// UlCqiReport is an uplink channel quality estimate for one UE, per RBG, in dB.
type UlCqiReport struct {
	Rnti Rnti
	Type UlCqiType
	Sinr []float64
}
