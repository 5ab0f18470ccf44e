// Package pdcp implements the per-bearer PDCP entity: sequence numbering,
// header framing and transmission-delay instrumentation. It performs no
// reordering or retransmission.
package pdcp

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/packet"
	"github.com/ransim/ransim/sim/sap"
)

// Clock supplies the current virtual time in ticks.
type Clock interface {
	Now() int64
}

// Status is the sequence number state transferred at handover.
type Status struct {
	TxSn uint16
	RxSn uint16
}

// Hooks receive per-PDU instrumentation. Nil hooks are skipped.
type Hooks struct {
	TxPdu func(rnti sap.Rnti, lcid sap.Lcid, size int)
	// RxPdu reports the PDCP-to-PDCP delay in ticks; 0 when the sender tag is missing.
	RxPdu func(rnti sap.Rnti, lcid sap.Lcid, size int, delay int64)
}

// Config identifies the bearer an entity serves.
type Config struct {
	Rnti         sap.Rnti
	Lcid         sap.Lcid
	SourceCellID uint8
}

// Entity is a PDCP entity. It implements sap.PdcpProvider towards the upper
// layer and sap.RlcUser towards RLC.
type Entity struct {
	cfg   Config
	clock Clock
	hooks Hooks

	txSn uint16
	rxSn uint16

	rlc  sap.RlcProvider
	user sap.PdcpUser
}

var (
	_ sap.PdcpProvider = (*Entity)(nil)
	_ sap.RlcUser      = (*Entity)(nil)
)

// New creates a PDCP entity with both sequence numbers at 0.
func New(cfg Config, clock Clock, hooks Hooks) *Entity {
	if clock == nil {
		panic("pdcp.New: clock must not be nil")
	}
	return &Entity{cfg: cfg, clock: clock, hooks: hooks}
}

// SetRlcProvider binds the RLC entity below.
func (e *Entity) SetRlcProvider(rlc sap.RlcProvider) { e.rlc = rlc }

// SetPdcpUser binds the layer above.
func (e *Entity) SetPdcpUser(user sap.PdcpUser) { e.user = user }

// SetSourceCellID changes the cell id written into outgoing headers (after handover).
func (e *Entity) SetSourceCellID(id uint8) { e.cfg.SourceCellID = id }

// SetRnti changes the identity the entity reports with (after handover).
func (e *Entity) SetRnti(rnti sap.Rnti) { e.cfg.Rnti = rnti }

// Rnti returns the identity the entity reports with.
func (e *Entity) Rnti() sap.Rnti { return e.cfg.Rnti }

// Status returns the current sequence number state.
func (e *Entity) Status() Status {
	return Status{TxSn: e.txSn, RxSn: e.rxSn}
}

// SetStatus restores sequence numbers transferred from another entity.
func (e *Entity) SetStatus(s Status) {
	if s.TxSn > MaxSN || s.RxSn > MaxSN {
		panic(fmt.Sprintf("pdcp.SetStatus: sequence numbers out of range: %+v", s))
	}
	e.txSn = s.TxSn
	e.rxSn = s.RxSn
}

// TransmitPdcpSdu frames an SDU and passes it to RLC.
func (e *Entity) TransmitPdcpSdu(params sap.TransmitPdcpSduParams) {
	if e.rlc == nil {
		panic("pdcp: TransmitPdcpSdu before SetRlcProvider")
	}
	p := params.PdcpSdu
	hdr := Header{DcBit: DataPdu, SequenceNumber: e.txSn, SourceCellID: e.cfg.SourceCellID}
	e.txSn = nextSn(e.txSn)

	p.AddHeader(hdr.Marshal())
	p.AddTag(packet.PdcpTimestamp, e.clock.Now())
	logrus.Debugf("PDCP tx rnti=%d lcid=%d %s size=%d", e.cfg.Rnti, e.cfg.Lcid, hdr, p.Size())

	if e.hooks.TxPdu != nil {
		e.hooks.TxPdu(e.cfg.Rnti, e.cfg.Lcid, p.Size())
	}
	e.rlc.TransmitPdcpPdu(sap.TransmitPdcpPduParams{PdcpPdu: p, Rnti: e.cfg.Rnti, Lcid: e.cfg.Lcid})
}

// ReceivePdcpPdu strips the header and delivers the SDU upward. A PDU shorter
// than the header is a malformed packet and panics.
func (e *Entity) ReceivePdcpPdu(p *packet.Packet) {
	var delay int64
	if ts, ok := p.FindTag(packet.PdcpTimestamp); ok {
		delay = e.clock.Now() - ts
	}

	raw, err := p.RemoveHeader(HeaderSize)
	if err != nil {
		panic(fmt.Sprintf("pdcp rnti=%d lcid=%d: %v", e.cfg.Rnti, e.cfg.Lcid, err))
	}
	hdr, err := ParseHeader(raw)
	if err != nil {
		panic(fmt.Sprintf("pdcp rnti=%d lcid=%d: %v", e.cfg.Rnti, e.cfg.Lcid, err))
	}
	logrus.Debugf("PDCP rx rnti=%d lcid=%d %s delay=%d", e.cfg.Rnti, e.cfg.Lcid, hdr, delay)

	if e.hooks.RxPdu != nil {
		e.hooks.RxPdu(e.cfg.Rnti, e.cfg.Lcid, p.Size(), delay)
	}
	e.rxSn = nextSn(hdr.SequenceNumber)

	if e.user != nil {
		e.user.ReceivePdcpSdu(sap.ReceivePdcpSduParams{PdcpSdu: p, Rnti: e.cfg.Rnti, Lcid: e.cfg.Lcid})
	}
}

func nextSn(sn uint16) uint16 {
	if sn >= MaxSN {
		return 0
	}
	return sn + 1
}
