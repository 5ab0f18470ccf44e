// Package rlc implements the RLC transparent-mode entity: a bounded FIFO of
// whole SDUs released one per transmission opportunity, with periodic
// buffer-status reporting while data is pending.
package rlc

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/packet"
	"github.com/ransim/ransim/sim/sap"
)

// BufferStatusInterval is the retry period of the buffer-status timer.
var BufferStatusInterval = sim.Milliseconds(10)

// MaxReportedPackets caps the per-packet samples carried in one buffer-status report.
const MaxReportedPackets = 20

// DefaultMaxTxBufferSize is used when Config.MaxTxBufferSize is zero.
const DefaultMaxTxBufferSize uint32 = 10 * 1024

// Config identifies the bearer and bounds its transmit buffer.
type Config struct {
	Rnti            sap.Rnti
	Lcid            sap.Lcid
	MaxTxBufferSize uint32 // bytes
}

// Hooks receive per-PDU instrumentation. Nil hooks are skipped.
type Hooks struct {
	TxPdu func(rnti sap.Rnti, lcid sap.Lcid, size int)
	// RxPdu reports the RLC-to-RLC delay in ticks; 0 when the tag is missing.
	RxPdu func(rnti sap.Rnti, lcid sap.Lcid, size int, delay int64)
	// Drop is called for every SDU rejected because the buffer is full.
	Drop func(rnti sap.Rnti, lcid sap.Lcid, size int)
	// BufferStatus observes every report sent to the MAC.
	BufferStatus func(report sap.ReportBufferStatusParams)
}

type txPdu struct {
	pdu          *packet.Packet
	waitingSince int64
}

// TmEntity is a transparent-mode RLC entity. It implements sap.RlcProvider
// towards PDCP and sap.MacUser towards the MAC.
//
// States: Idle (empty buffer, timer stopped) and Buffering (data queued,
// timer re-armed after each transmission opportunity).
type TmEntity struct {
	cfg   Config
	sched sim.EventScheduler
	hooks Hooks

	txBuffer     []txPdu
	txBufferSize uint32
	rbsTimer     *sim.EventHandle

	mac      sap.MacProvider
	user     sap.RlcUser
	released bool
}

var (
	_ sap.RlcProvider = (*TmEntity)(nil)
	_ sap.MacUser     = (*TmEntity)(nil)
)

// NewTm creates an idle TM entity.
func NewTm(cfg Config, sched sim.EventScheduler, hooks Hooks) *TmEntity {
	if sched == nil {
		panic("rlc.NewTm: scheduler must not be nil")
	}
	if cfg.MaxTxBufferSize == 0 {
		cfg.MaxTxBufferSize = DefaultMaxTxBufferSize
	}
	return &TmEntity{cfg: cfg, sched: sched, hooks: hooks}
}

// SetMacProvider binds the MAC below.
func (e *TmEntity) SetMacProvider(mac sap.MacProvider) { e.mac = mac }

// SetRlcUser binds the PDCP entity above.
func (e *TmEntity) SetRlcUser(user sap.RlcUser) { e.user = user }

// SetRnti changes the RNTI used in reports (after handover).
func (e *TmEntity) SetRnti(rnti sap.Rnti) { e.cfg.Rnti = rnti }

// TxBufferSize returns the queued byte count.
func (e *TmEntity) TxBufferSize() uint32 { return e.txBufferSize }

// QueueLen returns the number of queued SDUs.
func (e *TmEntity) QueueLen() int { return len(e.txBuffer) }

// MaxTxBufferSize returns the admission limit in bytes.
func (e *TmEntity) MaxTxBufferSize() uint32 { return e.cfg.MaxTxBufferSize }

// TimerPending reports whether the buffer-status timer is armed.
func (e *TmEntity) TimerPending() bool { return e.rbsTimer.Pending() }

// TransmitPdcpPdu admits an SDU if it fits in the buffer and drops it
// otherwise. Either way the MAC receives a fresh buffer-status report and
// the retry timer is cancelled.
func (e *TmEntity) TransmitPdcpPdu(params sap.TransmitPdcpPduParams) {
	if e.released {
		return
	}
	p := params.PdcpPdu
	size := uint32(p.Size())
	if e.txBufferSize+size <= e.cfg.MaxTxBufferSize {
		now := e.sched.Now()
		p.AddTag(packet.RlcTimestamp, now)
		e.txBuffer = append(e.txBuffer, txPdu{pdu: p, waitingSince: now})
		e.txBufferSize += size
		logrus.Debugf("RLC-TM rnti=%d lcid=%d queued %d bytes (buffer %d/%d)",
			e.cfg.Rnti, e.cfg.Lcid, size, e.txBufferSize, e.cfg.MaxTxBufferSize)
	} else {
		logrus.Debugf("RLC-TM rnti=%d lcid=%d buffer full, dropping %d bytes (buffer %d/%d)",
			e.cfg.Rnti, e.cfg.Lcid, size, e.txBufferSize, e.cfg.MaxTxBufferSize)
		if e.hooks.Drop != nil {
			e.hooks.Drop(e.cfg.Rnti, e.cfg.Lcid, int(size))
		}
	}

	e.reportBufferStatus()
	e.rbsTimer.Cancel()
}

// NotifyTxOpportunity sends the head SDU if it fits in the offered bytes.
// TM never segments, so an undersized opportunity leaves the SDU queued.
func (e *TmEntity) NotifyTxOpportunity(params sap.TxOpportunityParams) {
	if e.released || len(e.txBuffer) == 0 {
		return
	}
	head := e.txBuffer[0]
	size := uint32(head.pdu.Size())
	if params.Bytes < size {
		logrus.Debugf("RLC-TM rnti=%d lcid=%d opportunity of %d bytes too small for %d-byte PDU",
			e.cfg.Rnti, e.cfg.Lcid, params.Bytes, size)
		return
	}
	if e.mac == nil {
		panic("rlc: NotifyTxOpportunity before SetMacProvider")
	}

	e.txBuffer[0] = txPdu{}
	e.txBuffer = e.txBuffer[1:]
	e.txBufferSize -= size

	pdu := head.pdu
	pdu.AddTag(packet.RlcTimestamp, e.sched.Now())
	if e.hooks.TxPdu != nil {
		e.hooks.TxPdu(e.cfg.Rnti, e.cfg.Lcid, int(size))
	}
	e.mac.TransmitPdu(sap.TransmitPduParams{
		Pdu:              pdu,
		Rnti:             e.cfg.Rnti,
		Lcid:             e.cfg.Lcid,
		Layer:            params.Layer,
		HarqProcessID:    params.HarqID,
		ComponentCarrier: params.ComponentCarrier,
	})

	if len(e.txBuffer) > 0 {
		e.armTimer()
	}
}

// ReceivePdu delivers a PDU upward unchanged, reporting the link-layer delay.
func (e *TmEntity) ReceivePdu(params sap.ReceivePduParams) {
	p := params.Pdu
	var delay int64
	if ts, ok := p.FindTag(packet.RlcTimestamp); ok {
		delay = e.sched.Now() - ts
	}
	if e.hooks.RxPdu != nil {
		e.hooks.RxPdu(e.cfg.Rnti, e.cfg.Lcid, p.Size(), delay)
	}
	if e.user != nil {
		e.user.ReceivePdcpPdu(p)
	}
}

// NotifyHarqDeliveryFailure is ignored: TM has no retransmission.
func (e *TmEntity) NotifyHarqDeliveryFailure() {}

// Release cancels the timer and discards queued SDUs without sending them.
func (e *TmEntity) Release() {
	e.rbsTimer.Cancel()
	e.rbsTimer = nil
	e.txBuffer = nil
	e.txBufferSize = 0
	e.released = true
}

// BufferStatus computes the report the entity would send now.
func (e *TmEntity) BufferStatus() sap.ReportBufferStatusParams {
	r := sap.ReportBufferStatusParams{Rnti: e.cfg.Rnti, Lcid: e.cfg.Lcid}
	if len(e.txBuffer) == 0 {
		return r
	}
	now := e.sched.Now()
	r.TxQueueSize = e.txBufferSize
	r.TxQueueHolDelay = toMs16(now - e.txBuffer[0].waitingSince)

	n := min(len(e.txBuffer), MaxReportedPackets)
	r.TxPacketSizes = make([]uint32, 0, n)
	r.TxPacketDelays = make([]uint32, 0, n)
	for _, tx := range e.txBuffer[:n] {
		r.TxPacketSizes = append(r.TxPacketSizes, uint32(tx.pdu.Size()))
		r.TxPacketDelays = append(r.TxPacketDelays, uint32((now-tx.waitingSince)/sim.TicksPerMillisecond))
	}
	return r
}

func (e *TmEntity) reportBufferStatus() {
	r := e.BufferStatus()
	if e.hooks.BufferStatus != nil {
		e.hooks.BufferStatus(r)
	}
	if e.mac != nil {
		e.mac.ReportBufferStatus(r)
	}
}

func (e *TmEntity) armTimer() {
	e.rbsTimer.Cancel()
	e.rbsTimer = e.sched.ScheduleAfter(BufferStatusInterval, e.expireRbsTimer)
}

func (e *TmEntity) expireRbsTimer() {
	if e.released || len(e.txBuffer) == 0 {
		return
	}
	e.reportBufferStatus()
	e.armTimer()
}

func toMs16(ticks int64) uint16 {
	ms := ticks / sim.TicksPerMillisecond
	if ms > 0xFFFF {
		return 0xFFFF
	}
	if ms < 0 {
		panic(fmt.Sprintf("rlc: negative head-of-line delay %d", ticks))
	}
	return uint16(ms)
}
