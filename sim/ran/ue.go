package ran

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/pdcp"
	"github.com/ransim/ransim/sim/rlc"
	"github.com/ransim/ransim/sim/sap"
	"github.com/ransim/ransim/sim/tft"
)

// UeIndex identifies a UE within its Network.
type UeIndex int

// First and last LCID available to data radio bearers.
const (
	firstDrbLcid sap.Lcid = 3
	lastDrbLcid  sap.Lcid = firstDrbLcid + MaxBearersPerUe - 1
)

// BearerConfig describes a data radio bearer to activate.
type BearerConfig struct {
	ID  uint32 // classifier bearer id, non-zero
	TFT *tft.TFT
}

// BearerStats is the receive-side view of one UE bearer.
type BearerStats struct {
	ID      uint32
	Lcid    sap.Lcid
	RxSdus  int
	RxBytes int64
}

// ueBearer is the UE side of a bearer: PDCP over RLC TM, plus the SDU sink.
type ueBearer struct {
	id   uint32
	lcid sap.Lcid
	pdcp *pdcp.Entity
	rlc  *rlc.TmEntity

	rxSdus  int
	rxBytes int64
}

// Ue is a terminal. It owns the UE side of its bearers and the classifier
// deciding which bearer an uplink packet travels on.
//
// Thread-safety: NOT thread-safe. Driven from the simulator's goroutine.
type Ue struct {
	Index   UeIndex
	Address net.IP

	net        *Network
	serving    CellIndex
	rnti       sap.Rnti
	classifier *tft.Classifier
	bearers    []*ueBearer // activation order
	mac        sap.MacProvider

	lastPeriodic map[uint8]int64 // measId -> last periodical report time
	enteredAt    map[uint8]int64 // measId -> first measurement of the current run where the event held
	hoPending    bool
}

// Serving returns the index of the serving cell.
func (u *Ue) Serving() CellIndex { return u.serving }

// Rnti returns the identity assigned by the serving cell.
func (u *Ue) Rnti() sap.Rnti { return u.rnti }

// Bearers returns the receive statistics of every active bearer.
func (u *Ue) Bearers() []BearerStats {
	out := make([]BearerStats, 0, len(u.bearers))
	for _, b := range u.bearers {
		out = append(out, BearerStats{ID: b.id, Lcid: b.lcid, RxSdus: b.rxSdus, RxBytes: b.rxBytes})
	}
	return out
}

func (u *Ue) bearerByID(id uint32) *ueBearer {
	for _, b := range u.bearers {
		if b.id == id {
			return b
		}
	}
	return nil
}

func (u *Ue) bearerByLcid(lcid sap.Lcid) *ueBearer {
	for _, b := range u.bearers {
		if b.lcid == lcid {
			return b
		}
	}
	return nil
}

// freeLcid returns the lowest unused DRB logical channel, or 0 if all are taken.
func (u *Ue) freeLcid() sap.Lcid {
	for lcid := firstDrbLcid; lcid <= lastDrbLcid; lcid++ {
		if u.bearerByLcid(lcid) == nil {
			return lcid
		}
	}
	return 0
}

func (u *Ue) servingCell() *Cell { return u.net.cells[u.serving] }

// newBearer builds the UE side entities of a bearer on lcid.
func (u *Ue) newBearer(id uint32, lcid sap.Lcid) *ueBearer {
	n := u.net
	c := u.servingCell()
	b := &ueBearer{id: id, lcid: lcid}
	b.rlc = rlc.NewTm(rlc.Config{Rnti: u.rnti, Lcid: lcid, MaxTxBufferSize: c.maxTxBuffer}, n.sim, rlc.Hooks{
		TxPdu: func(sap.Rnti, sap.Lcid, int) { n.metrics.RecordRlcTx(u.servingCell().cfg.ID) },
		RxPdu: func(_ sap.Rnti, _ sap.Lcid, _ int, delay int64) { n.metrics.RecordRlcRx(delay) },
		Drop: func(rnti sap.Rnti, lcid sap.Lcid, size int) {
			n.recordDrop(u.servingCell().cfg.ID, rnti, lcid, size, b.rlc.TxBufferSize())
		},
	})
	b.pdcp = pdcp.New(pdcp.Config{Rnti: u.rnti, Lcid: lcid, SourceCellID: uint8(c.cfg.ID)}, n.sim, pdcp.Hooks{
		TxPdu: func(sap.Rnti, sap.Lcid, int) { n.metrics.RecordPdcpTx(u.servingCell().cfg.ID, tft.Uplink.String()) },
		RxPdu: func(_ sap.Rnti, _ sap.Lcid, size int, delay int64) {
			n.metrics.RecordPdcpRx(u.servingCell().cfg.ID, tft.Downlink.String(), size, delay)
		},
	})
	b.pdcp.SetRlcProvider(b.rlc)
	b.pdcp.SetPdcpUser(sap.PdcpUserFunc(func(p sap.ReceivePdcpSduParams) {
		b.rxSdus++
		b.rxBytes += int64(p.PdcpSdu.Size())
	}))
	b.rlc.SetRlcUser(b.pdcp)
	b.rlc.SetMacProvider(u.mac)
	return b
}

// transmitUlPdu puts an uplink PDU on the air towards the serving cell.
// It is lost if the UE has left the cell by the time it arrives.
func (u *Ue) transmitUlPdu(params sap.TransmitPduParams) {
	c := u.servingCell()
	u.net.sim.ScheduleAfter(AirDelay, func() {
		ctx := c.ues[params.Rnti]
		if ctx == nil || ctx.ue != u {
			logrus.Debugf("ue %d: uplink PDU for rnti=%d lost, UE left cell %d", u.Index, params.Rnti, c.cfg.ID)
			return
		}
		b := ctx.bearers[params.Lcid]
		if b == nil {
			return
		}
		b.rlc.ReceivePdu(sap.ReceivePduParams{Pdu: params.Pdu, Rnti: params.Rnti, Lcid: params.Lcid})
	})
}

// reportUlBuffer forwards an uplink buffer status report to the serving cell.
func (u *Ue) reportUlBuffer(params sap.ReportBufferStatusParams) {
	u.servingCell().ulBufferReport(u.rnti, params)
}

// eventDue tracks the entering condition of an event-triggered
// configuration across measurements and reports whether it has held at
// every measurement for at least ttt ticks. Any measurement where it does
// not hold restarts the run.
func (u *Ue) eventDue(measID uint8, holds bool, now, ttt int64) bool {
	if !holds {
		delete(u.enteredAt, measID)
		return false
	}
	since, ok := u.enteredAt[measID]
	if !ok {
		since = now
		u.enteredAt[measID] = now
	}
	return now-since >= ttt
}

// periodicDue reports whether a periodical report for measID may be sent
// at now, and records it as sent if so.
func (u *Ue) periodicDue(measID uint8, now int64, intervalMs uint16) bool {
	last, ok := u.lastPeriodic[measID]
	if ok && now-last < sim.Milliseconds(int64(intervalMs)) {
		return false
	}
	u.lastPeriodic[measID] = now
	return true
}
