// Package sap defines the service access points between adjacent protocol
// layers. Each boundary has a Provider (offered by the lower layer, called
// from above) and a User (offered by the upper layer, called from below).
//
// Calls are synchronous and in-process. Parameter structs are passed by value;
// a packet passed inside one belongs to the callee once the call returns.
package sap

import (
	"github.com/ransim/ransim/sim/packet"
)

// Rnti is a UE radio identifier scoped to its serving cell.
type Rnti uint16

// Lcid is a logical channel identifier.
type Lcid uint8

// CellID identifies a cell.
type CellID uint16

// ---- PDCP SAP: RRC / upper layer <-> PDCP ----

// TransmitPdcpSduParams carries an SDU handed down to PDCP.
type TransmitPdcpSduParams struct {
	PdcpSdu *packet.Packet
	Rnti    Rnti
	Lcid    Lcid
}

// ReceivePdcpSduParams carries an SDU delivered up by PDCP.
type ReceivePdcpSduParams struct {
	PdcpSdu *packet.Packet
	Rnti    Rnti
	Lcid    Lcid
}

// PdcpProvider is implemented by a PDCP entity.
type PdcpProvider interface {
	TransmitPdcpSdu(params TransmitPdcpSduParams)
}

// PdcpUser is implemented by whatever sits above PDCP.
type PdcpUser interface {
	ReceivePdcpSdu(params ReceivePdcpSduParams)
}

// PdcpUserFunc adapts a closure to PdcpUser.
type PdcpUserFunc func(params ReceivePdcpSduParams)

// ReceivePdcpSdu calls f(params).
func (f PdcpUserFunc) ReceivePdcpSdu(params ReceivePdcpSduParams) { f(params) }

// ---- RLC SAP: PDCP <-> RLC ----

// TransmitPdcpPduParams carries a PDCP PDU handed down to RLC.
type TransmitPdcpPduParams struct {
	PdcpPdu *packet.Packet
	Rnti    Rnti
	Lcid    Lcid
}

// RlcProvider is implemented by an RLC entity.
type RlcProvider interface {
	TransmitPdcpPdu(params TransmitPdcpPduParams)
}

// RlcUser is implemented by the PDCP entity above an RLC entity.
type RlcUser interface {
	ReceivePdcpPdu(p *packet.Packet)
}

// RlcProviderFunc adapts a closure to RlcProvider.
type RlcProviderFunc func(params TransmitPdcpPduParams)

// TransmitPdcpPdu calls f(params).
func (f RlcProviderFunc) TransmitPdcpPdu(params TransmitPdcpPduParams) { f(params) }

// RlcUserFunc adapts a closure to RlcUser.
type RlcUserFunc func(p *packet.Packet)

// ReceivePdcpPdu calls f(p).
func (f RlcUserFunc) ReceivePdcpPdu(p *packet.Packet) { f(p) }

// ---- MAC SAP: RLC <-> MAC ----

// TransmitPduParams carries an RLC PDU handed to the MAC.
type TransmitPduParams struct {
	Pdu              *packet.Packet
	Rnti             Rnti
	Lcid             Lcid
	Layer            uint8
	HarqProcessID    uint8
	ComponentCarrier uint8
}

// ReportBufferStatusParams describes the queue state of one logical channel.
// Delays are in milliseconds.
type ReportBufferStatusParams struct {
	Rnti              Rnti
	Lcid              Lcid
	TxQueueSize       uint32
	TxQueueHolDelay   uint16
	RetxQueueSize     uint32
	RetxQueueHolDelay uint16
	StatusPduSize     uint16
	// Per-packet samples for the head of the queue, capped in length by the reporter.
	TxPacketSizes  []uint32
	TxPacketDelays []uint32
}

// TxOpportunityParams is a transmission opportunity offered by the MAC.
type TxOpportunityParams struct {
	Bytes            uint32
	Layer            uint8
	HarqID           uint8
	ComponentCarrier uint8
	Rnti             Rnti
	Lcid             Lcid
}

// ReceivePduParams carries a PDU received by the MAC for an RLC entity.
type ReceivePduParams struct {
	Pdu  *packet.Packet
	Rnti Rnti
	Lcid Lcid
}

// MacProvider is implemented by the MAC for each RLC entity.
type MacProvider interface {
	TransmitPdu(params TransmitPduParams)
	ReportBufferStatus(params ReportBufferStatusParams)
}

// MacUser is implemented by an RLC entity.
type MacUser interface {
	NotifyTxOpportunity(params TxOpportunityParams)
	ReceivePdu(params ReceivePduParams)
	NotifyHarqDeliveryFailure()
}

// MacProviderFuncs adapts a pair of closures to MacProvider. Nil fields are no-ops.
type MacProviderFuncs struct {
	TransmitPduFunc        func(params TransmitPduParams)
	ReportBufferStatusFunc func(params ReportBufferStatusParams)
}

// TransmitPdu calls TransmitPduFunc.
func (m MacProviderFuncs) TransmitPdu(params TransmitPduParams) {
	if m.TransmitPduFunc != nil {
		m.TransmitPduFunc(params)
	}
}

// ReportBufferStatus calls ReportBufferStatusFunc.
func (m MacProviderFuncs) ReportBufferStatus(params ReportBufferStatusParams) {
	if m.ReportBufferStatusFunc != nil {
		m.ReportBufferStatusFunc(params)
	}
}

// ---- Handover management SAP: RRC <-> handover algorithm ----

// HandoverProvider is implemented by a handover algorithm.
type HandoverProvider interface {
	ReportUeMeas(rnti Rnti, meas MeasResults)
}

// HandoverUser is implemented by the cell's RRC for its handover algorithm.
type HandoverUser interface {
	// AddUeMeasReportConfigForHandover registers a report configuration with
	// every UE and returns the measurement identity reports will carry.
	AddUeMeasReportConfigForHandover(cfg ReportConfig) uint8
	TriggerHandover(rnti Rnti, targetCellID CellID)
}

// HandoverUserFuncs adapts closures to HandoverUser.
type HandoverUserFuncs struct {
	AddMeasConfigFunc   func(cfg ReportConfig) uint8
	TriggerHandoverFunc func(rnti Rnti, targetCellID CellID)
}

// AddUeMeasReportConfigForHandover calls AddMeasConfigFunc, or returns 0.
func (h HandoverUserFuncs) AddUeMeasReportConfigForHandover(cfg ReportConfig) uint8 {
	if h.AddMeasConfigFunc == nil {
		return 0
	}
	return h.AddMeasConfigFunc(cfg)
}

// TriggerHandover calls TriggerHandoverFunc.
func (h HandoverUserFuncs) TriggerHandover(rnti Rnti, targetCellID CellID) {
	if h.TriggerHandoverFunc != nil {
		h.TriggerHandoverFunc(rnti, targetCellID)
	}
}

// ---- ANR SAP: RRC <-> ANR ----

// AnrProvider is implemented by the ANR function of a cell.
type AnrProvider interface {
	ReportUeMeas(meas MeasResults)
	AddNeighbourRelation(cellID CellID)
	GetNoRemove(cellID CellID) bool
	GetNoHo(cellID CellID) bool
	GetNoX2(cellID CellID) bool
}

// AnrUser is implemented by the cell's RRC for its ANR.
type AnrUser interface {
	AddUeMeasReportConfigForAnr(cfg ReportConfig) uint8
}

// AnrUserFunc adapts a closure to AnrUser.
type AnrUserFunc func(cfg ReportConfig) uint8

// AddUeMeasReportConfigForAnr calls f(cfg).
func (f AnrUserFunc) AddUeMeasReportConfigForAnr(cfg ReportConfig) uint8 { return f(cfg) }

// ---- FFR SAPs: scheduler <-> FFR, RRC <-> FFR ----

// FfrProvider is the scheduler-facing side of a frequency reuse algorithm.
type FfrProvider interface {
	GetAvailableDlRbg() []bool
	IsDlRbgAvailableForUe(rbg int, rnti Rnti) bool
	GetAvailableUlRbg() []bool
	IsUlRbgAvailableForUe(rbg int, rnti Rnti) bool
	ReportDlCqiInfo(info DlCqiReport)
	ReportUlCqiInfo(info UlCqiReport)
	GetTpc(rnti Rnti) uint8
	GetMinContinuousUlBandwidth() uint8
}

// FfrRrcProvider is the RRC-facing side of a frequency reuse algorithm.
type FfrRrcProvider interface {
	SetCellID(cellID CellID)
	SetBandwidth(ulBandwidth, dlBandwidth uint8)
	ReportUeMeas(rnti Rnti, meas MeasResults)
}

// FfrRrcUser is implemented by the cell's RRC for its FFR algorithm.
type FfrRrcUser interface {
	AddUeMeasReportConfigForFfr(cfg ReportConfig) uint8
	SetPdschConfigDedicated(rnti Rnti, cfg PdschConfigDedicated)
}

// FfrRrcUserFuncs adapts closures to FfrRrcUser.
type FfrRrcUserFuncs struct {
	AddMeasConfigFunc func(cfg ReportConfig) uint8
	SetPdschFunc      func(rnti Rnti, cfg PdschConfigDedicated)
}

// AddUeMeasReportConfigForFfr calls AddMeasConfigFunc, or returns 0.
func (f FfrRrcUserFuncs) AddUeMeasReportConfigForFfr(cfg ReportConfig) uint8 {
	if f.AddMeasConfigFunc == nil {
		return 0
	}
	return f.AddMeasConfigFunc(cfg)
}

// SetPdschConfigDedicated calls SetPdschFunc.
func (f FfrRrcUserFuncs) SetPdschConfigDedicated(rnti Rnti, cfg PdschConfigDedicated) {
	if f.SetPdschFunc != nil {
		f.SetPdschFunc(rnti, cfg)
	}
}
