package ran

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/anr"
	"github.com/ransim/ransim/sim/ffr"
	"github.com/ransim/ransim/sim/handover"
	"github.com/ransim/ransim/sim/mac"
	"github.com/ransim/ransim/sim/pdcp"
	"github.com/ransim/ransim/sim/rlc"
	"github.com/ransim/ransim/sim/sap"
	"github.com/ransim/ransim/sim/tft"
	"github.com/ransim/ransim/sim/trace"
)

// CellIndex identifies a cell within its Network.
type CellIndex int

// Timing of the air interface.
var (
	TtiTicks = sim.Milliseconds(1)
	// AirDelay is the time between a MAC transmission and its reception.
	AirDelay = sim.Milliseconds(1)
)

// MaxMeasID bounds the report configurations one cell can register.
const MaxMeasID = 32

type measOwner uint8

const (
	ownerHandover measOwner = iota + 1
	ownerAnr
	ownerFfr
)

func (o measOwner) String() string {
	switch o {
	case ownerHandover:
		return "handover"
	case ownerAnr:
		return "anr"
	case ownerFfr:
		return "ffr"
	}
	return "unknown"
}

type measConfig struct {
	id    uint8
	owner measOwner
	cfg   sap.ReportConfig
}

// enbBearer is the cell side of a bearer.
type enbBearer struct {
	lcid sap.Lcid
	pdcp *pdcp.Entity
	rlc  *rlc.TmEntity
}

// ueContext is what a cell knows about one attached UE.
type ueContext struct {
	ue      *Ue
	rnti    sap.Rnti
	bearers map[sap.Lcid]*enbBearer
	cqi     uint8 // latest wideband downlink CQI, 0 if none
	rsrq    uint8 // latest serving-cell RSRQ range value
	pa      sap.PaOffset
	ulQueue map[sap.Lcid]uint32
}

// Cell is an eNB cell. It owns the scheduler, the handover, ANR and FFR
// algorithms, the cell side of every attached UE's bearers, and the
// registry of measurement report configurations.
//
// Thread-safety: NOT thread-safe. Driven from the simulator's goroutine.
type Cell struct {
	ID    sap.CellID
	Index CellIndex

	cfg         sim.CellConfig
	net         *Network
	sched       mac.Scheduler
	ffr         ffr.Algorithm
	ho          handover.Algorithm
	anr         *anr.Anr // nil when disabled
	maxTxBuffer uint32
	dlMac       sap.MacProvider

	measConfigs []measConfig
	ues         map[sap.Rnti]*ueContext
	nextRnti    sap.Rnti
	subframes   uint32
	tti         *sim.EventHandle

	// set while ANR processes a report, for trace attribution
	reportingRnti sap.Rnti

	ulRxSdus  int
	ulRxBytes int64
}

// newCell builds a cell and binds its algorithms. cfg must be valid.
func newCell(n *Network, idx CellIndex, cfg sim.CellConfig) *Cell {
	c := &Cell{
		ID:       sap.CellID(cfg.ID),
		Index:    idx,
		cfg:      cfg,
		net:      n,
		ues:      make(map[sap.Rnti]*ueContext),
		nextRnti: 1,
	}
	if cfg.Rlc.MaxTxBufferSize != nil {
		c.maxTxBuffer = *cfg.Rlc.MaxTxBufferSize
	}

	ffrKind, err := ffr.ParseKind(cfg.Ffr.Algorithm)
	if err != nil {
		panic(fmt.Sprintf("cell %d: %v", cfg.ID, err))
	}
	c.ffr = ffr.NewAlgorithm(ffrKind, cfg.FfrParams())
	c.ffr.SetFfrRrcUser(sap.FfrRrcUserFuncs{
		AddMeasConfigFunc: func(rc sap.ReportConfig) uint8 { return c.addMeasConfig(ownerFfr, rc) },
		SetPdschFunc:      c.setPdschConfig,
	})

	macCfg := cfg.MacConfig()
	macCfg.Ffr = c.ffr
	c.sched = mac.NewScheduler(cfg.Scheduler.Name, macCfg)
	c.dlMac = sap.MacProviderFuncs{
		TransmitPduFunc:        c.transmitDlPdu,
		ReportBufferStatusFunc: c.sched.SchedDlRlcBufferReq,
	}

	hoKind, err := handover.ParseKind(cfg.Handover.Algorithm)
	if err != nil {
		panic(fmt.Sprintf("cell %d: %v", cfg.ID, err))
	}
	c.ho = handover.NewAlgorithm(hoKind, cfg.Handover.Params())
	c.ho.SetHandoverUser(sap.HandoverUserFuncs{
		AddMeasConfigFunc:   func(rc sap.ReportConfig) uint8 { return c.addMeasConfig(ownerHandover, rc) },
		TriggerHandoverFunc: c.triggerHandover,
	})

	if !cfg.Anr.Disabled {
		threshold := anr.DefaultThreshold
		if cfg.Anr.Threshold != nil {
			threshold = *cfg.Anr.Threshold
		}
		c.anr = anr.New(c.ID, threshold)
		c.anr.OnChange = c.onAnrChange
		c.anr.SetAnrUser(sap.AnrUserFunc(func(rc sap.ReportConfig) uint8 { return c.addMeasConfig(ownerAnr, rc) }))
		for _, id := range cfg.Neighbours {
			c.anr.AddNeighbourRelation(sap.CellID(id))
		}
		for _, id := range cfg.NoX2 {
			c.anr.SetNoX2(sap.CellID(id), true)
		}
	}
	logrus.Infof("cell %d: scheduler=%s handover=%s ffr=%s anr=%t measIds=%d",
		cfg.ID, c.schedulerName(), c.ho.Kind(), c.ffr.Kind(), c.anr != nil, len(c.measConfigs))
	return c
}

func (c *Cell) schedulerName() string {
	if c.cfg.Scheduler.Name == "" {
		return "first-fit"
	}
	return c.cfg.Scheduler.Name
}

// Config returns the cell's configuration.
func (c *Cell) Config() sim.CellConfig { return c.cfg }

// Anr returns the neighbour relation table, or nil when ANR is disabled.
func (c *Cell) Anr() *anr.Anr { return c.anr }

// Ffr returns the frequency reuse algorithm.
func (c *Cell) Ffr() ffr.Algorithm { return c.ffr }

// Scheduler returns the MAC scheduler.
func (c *Cell) Scheduler() mac.Scheduler { return c.sched }

// Handover returns the handover algorithm.
func (c *Cell) Handover() handover.Algorithm { return c.ho }

// NumUes returns the number of attached UEs.
func (c *Cell) NumUes() int { return len(c.ues) }

// MeasConfigs returns the registered report configurations; measId i+1 is at index i.
func (c *Cell) MeasConfigs() []sap.ReportConfig {
	out := make([]sap.ReportConfig, len(c.measConfigs))
	for i, mc := range c.measConfigs {
		out[i] = mc.cfg
	}
	return out
}

// PdschPa returns the PDSCH power offset FFR assigned to rnti.
func (c *Cell) PdschPa(rnti sap.Rnti) (sap.PaOffset, bool) {
	ctx, ok := c.ues[rnti]
	if !ok {
		return 0, false
	}
	return ctx.pa, true
}

// UplinkReceived returns the uplink SDUs and bytes delivered by the cell's PDCP entities.
func (c *Cell) UplinkReceived() (int, int64) { return c.ulRxSdus, c.ulRxBytes }

// addMeasConfig registers a report configuration and hands out its measId.
func (c *Cell) addMeasConfig(owner measOwner, rc sap.ReportConfig) uint8 {
	if len(c.measConfigs) >= MaxMeasID {
		panic(fmt.Sprintf("cell %d: more than %d measurement configurations", c.ID, MaxMeasID))
	}
	id := uint8(len(c.measConfigs) + 1)
	c.measConfigs = append(c.measConfigs, measConfig{id: id, owner: owner, cfg: rc})
	logrus.Debugf("cell %d: measId %d -> %s (%v %v)", c.ID, id, owner, rc.Event, rc.Quantity)
	return id
}

// ReportUeMeas routes a measurement report to the algorithm owning its measId.
func (c *Cell) ReportUeMeas(rnti sap.Rnti, m sap.MeasResults) {
	if m.MeasID == 0 || int(m.MeasID) > len(c.measConfigs) {
		logrus.Warnf("cell %d: report with unknown measId %d from rnti=%d", c.ID, m.MeasID, rnti)
		return
	}
	switch c.measConfigs[m.MeasID-1].owner {
	case ownerHandover:
		c.ho.ReportUeMeas(rnti, m)
	case ownerAnr:
		c.reportingRnti = rnti
		c.anr.ReportUeMeas(m)
		c.reportingRnti = 0
	case ownerFfr:
		c.ffr.ReportUeMeas(rnti, m)
	}
}

// attach admits u with a fresh RNTI and builds the cell side of its bearers.
func (c *Cell) attach(u *Ue) sap.Rnti {
	rnti := c.nextRnti
	c.nextRnti++
	ctx := &ueContext{
		ue:      u,
		rnti:    rnti,
		bearers: make(map[sap.Lcid]*enbBearer),
		pa:      sap.PaDb0,
		ulQueue: make(map[sap.Lcid]uint32),
	}
	c.ues[rnti] = ctx
	u.serving, u.rnti = c.Index, rnti
	for _, b := range u.bearers {
		c.addBearer(ctx, b.lcid)
	}
	logrus.Debugf("cell %d: ue %d attached as rnti=%d", c.ID, u.Index, rnti)
	return rnti
}

// detach releases everything the cell holds for rnti and returns the PDCP
// state of each bearer.
func (c *Cell) detach(rnti sap.Rnti) map[sap.Lcid]pdcp.Status {
	ctx, ok := c.ues[rnti]
	if !ok {
		return nil
	}
	status := make(map[sap.Lcid]pdcp.Status, len(ctx.bearers))
	for lcid := range ctx.bearers {
		status[lcid] = ctx.bearers[lcid].pdcp.Status()
		c.removeBearer(ctx, lcid)
	}
	c.sched.RemoveUe(rnti)
	c.ho.RemoveUe(rnti)
	c.ffr.RemoveUe(rnti)
	delete(c.ues, rnti)
	return status
}

func (c *Cell) addBearer(ctx *ueContext, lcid sap.Lcid) *enbBearer {
	n := c.net
	rnti := ctx.rnti
	b := &enbBearer{lcid: lcid}
	b.rlc = rlc.NewTm(rlc.Config{Rnti: rnti, Lcid: lcid, MaxTxBufferSize: c.maxTxBuffer}, n.sim, rlc.Hooks{
		TxPdu: func(sap.Rnti, sap.Lcid, int) { n.metrics.RecordRlcTx(c.cfg.ID) },
		RxPdu: func(_ sap.Rnti, _ sap.Lcid, _ int, delay int64) { n.metrics.RecordRlcRx(delay) },
		Drop: func(rnti sap.Rnti, lcid sap.Lcid, size int) {
			n.recordDrop(c.cfg.ID, rnti, lcid, size, b.rlc.TxBufferSize())
		},
	})
	b.pdcp = pdcp.New(pdcp.Config{Rnti: rnti, Lcid: lcid, SourceCellID: uint8(c.ID)}, n.sim, pdcp.Hooks{
		TxPdu: func(sap.Rnti, sap.Lcid, int) { n.metrics.RecordPdcpTx(c.cfg.ID, tft.Downlink.String()) },
		RxPdu: func(_ sap.Rnti, _ sap.Lcid, size int, delay int64) {
			n.metrics.RecordPdcpRx(c.cfg.ID, tft.Uplink.String(), size, delay)
		},
	})
	b.pdcp.SetRlcProvider(b.rlc)
	b.pdcp.SetPdcpUser(sap.PdcpUserFunc(func(p sap.ReceivePdcpSduParams) {
		c.ulRxSdus++
		c.ulRxBytes += int64(p.PdcpSdu.Size())
	}))
	b.rlc.SetRlcUser(b.pdcp)
	b.rlc.SetMacProvider(c.dlMac)
	ctx.bearers[lcid] = b
	return b
}

func (c *Cell) removeBearer(ctx *ueContext, lcid sap.Lcid) {
	b, ok := ctx.bearers[lcid]
	if !ok {
		return
	}
	b.rlc.Release()
	c.sched.RemoveLc(ctx.rnti, lcid)
	delete(ctx.bearers, lcid)
	delete(ctx.ulQueue, lcid)
}

// transmitDlPdu puts a downlink PDU on the air. It is lost if the bearer
// is released before it arrives.
func (c *Cell) transmitDlPdu(params sap.TransmitPduParams) {
	ctx, ok := c.ues[params.Rnti]
	if !ok {
		return
	}
	u := ctx.ue
	c.net.sim.ScheduleAfter(AirDelay, func() {
		b := u.bearerByLcid(params.Lcid)
		if b == nil {
			logrus.Debugf("cell %d: downlink PDU for ue %d lcid=%d lost, bearer released", c.ID, u.Index, params.Lcid)
			return
		}
		b.rlc.ReceivePdu(sap.ReceivePduParams{Pdu: params.Pdu, Rnti: params.Rnti, Lcid: params.Lcid})
	})
}

func (c *Cell) ulBufferReport(rnti sap.Rnti, params sap.ReportBufferStatusParams) {
	ctx, ok := c.ues[rnti]
	if !ok {
		return
	}
	ctx.ulQueue[params.Lcid] = params.TxQueueSize
}

func (c *Cell) setPdschConfig(rnti sap.Rnti, cfg sap.PdschConfigDedicated) {
	ctx, ok := c.ues[rnti]
	if !ok {
		return
	}
	ctx.pa = cfg.Pa
	logrus.Debugf("cell %d: rnti=%d Pa=%.2f dB", c.ID, rnti, sap.PaToDb(cfg.Pa))
}

// triggerHandover defers execution to a fresh event so the algorithm
// finishes processing the report first.
func (c *Cell) triggerHandover(rnti sap.Rnti, target sap.CellID) {
	ctx, ok := c.ues[rnti]
	if !ok || ctx.ue.hoPending {
		return
	}
	u := ctx.ue
	u.hoPending = true
	c.net.sim.ScheduleNow(func() {
		u.hoPending = false
		if u.serving != c.Index || u.rnti != rnti {
			return
		}
		if err := c.net.Handover(u.Index, target); err != nil {
			logrus.Debugf("cell %d: %v", c.ID, err)
		}
	})
}

func (c *Cell) onAnrChange(ch anr.Change) {
	c.net.metrics.RecordAnrUpdate(c.cfg.ID, ch.Created)
	c.net.trace.RecordAnr(trace.AnrRecord{
		Clock:      c.net.sim.Now(),
		Cell:       c.cfg.ID,
		Neighbour:  uint16(ch.CellID),
		Created:    ch.Created,
		NoHo:       ch.Relation.NoHo,
		NoX2:       ch.Relation.NoX2,
		NoRemove:   ch.Relation.NoRemove,
		DetectedBy: uint16(c.reportingRnti),
	})
}

// CqiFromRsrq maps a serving-cell RSRQ range value to a wideband CQI,
// linearly from CQI 1 at range 0 to CQI 15 at range 34.
func CqiFromRsrq(rsrq uint8) uint8 {
	return uint8(1 + int(min(rsrq, 34))*14/34)
}

// SinrFromRsrq estimates the uplink SINR in dB from an RSRQ report range
// value: half the range value, i.e. RSRQ in dB plus 20 (range 0 is -20 dB,
// range 34 is -3 dB).
func SinrFromRsrq(rsrq uint8) float64 {
	return float64(rsrq) / 2
}

// reportCqi derives CQI reports from a serving-cell measurement and feeds
// them to the scheduler.
func (c *Cell) reportCqi(rnti sap.Rnti, rsrq uint8) {
	ctx, ok := c.ues[rnti]
	if !ok {
		return
	}
	cqi := CqiFromRsrq(rsrq)
	ctx.cqi, ctx.rsrq = cqi, rsrq
	sub := make([]uint8, mac.NumRbg(c.cfg.DlBandwidth))
	for i := range sub {
		sub[i] = cqi
	}
	c.sched.SchedDlCqiInfoReq(mac.DlCqiInfoReq{
		SfnSf:   c.sfnSf(),
		Reports: []sap.DlCqiReport{{Rnti: rnti, WidebandCqi: cqi, SubbandCqi: sub}},
	})
	c.sched.SchedUlCqiInfoReq(mac.UlCqiInfoReq{
		SfnSf:  c.sfnSf(),
		Report: sap.UlCqiReport{Rnti: rnti, Type: sap.UlCqiSrs, Sinr: c.ulSinr(rsrq)},
	})
}

func (c *Cell) ulSinr(rsrq uint8) []float64 {
	sinr := make([]float64, c.cfg.UlBandwidth)
	for i := range sinr {
		sinr[i] = SinrFromRsrq(rsrq)
	}
	return sinr
}

// sfnSf encodes the frame and subframe numbers as frame<<4 | subframe.
func (c *Cell) sfnSf() uint32 {
	frame := (c.subframes / 10) % 1024
	return frame<<4 | c.subframes%10
}

func (c *Cell) start() {
	c.tti = c.net.sim.ScheduleAfter(0, c.runTti)
}

func (c *Cell) stop() {
	c.tti.Cancel()
	c.tti = nil
}

// runTti runs one subframe: downlink scheduling, then uplink grants.
func (c *Cell) runTti() {
	ind := c.sched.SchedDlTriggerReq(mac.DlTriggerReq{SfnSf: c.sfnSf()})
	for _, a := range ind.Allocations {
		ctx, ok := c.ues[a.Rnti]
		if !ok {
			continue
		}
		for _, lc := range a.Lcs {
			b, ok := ctx.bearers[lc.Lcid]
			if !ok {
				continue
			}
			b.rlc.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: lc.Bytes, Rnti: a.Rnti, Lcid: lc.Lcid})
			// TM sends at most one SDU per opportunity; resync the scheduler with what is left
			c.sched.SchedDlRlcBufferReq(b.rlc.BufferStatus())
		}
	}
	c.scheduleUplink()
	c.subframes++
	c.tti = c.net.sim.ScheduleAfter(TtiTicks, c.runTti)
}

// scheduleUplink grants uplink resource blocks first-fit in RNTI order,
// honouring the FFR uplink maps.
func (c *Cell) scheduleUplink() {
	rntis := make([]sap.Rnti, 0, len(c.ues))
	for rnti, ctx := range c.ues {
		if queued(ctx.ulQueue) > 0 {
			rntis = append(rntis, rnti)
		}
	}
	if len(rntis) == 0 {
		return
	}
	slices.Sort(rntis)

	cellMap := c.ffr.GetAvailableUlRbg()
	used := make([]bool, c.cfg.UlBandwidth)
	for _, rnti := range rntis {
		ctx := c.ues[rnti]
		need := queued(ctx.ulQueue)
		cqi := ctx.cqi
		if cqi == 0 {
			cqi = mac.DefaultCqi
		}
		var tb uint32
		var rbs int
		for rb := range used {
			if tb >= need {
				break
			}
			if used[rb] || rb >= len(cellMap) || !cellMap[rb] || !c.ffr.IsUlRbgAvailableForUe(rb, rnti) {
				continue
			}
			used[rb] = true
			rbs++
			tb += mac.RbCapacityBytes(cqi)
		}
		if rbs == 0 {
			continue
		}
		c.grantUplink(ctx, tb)
		c.sched.SchedUlCqiInfoReq(mac.UlCqiInfoReq{
			SfnSf:  c.sfnSf(),
			Report: sap.UlCqiReport{Rnti: rnti, Type: sap.UlCqiPusch, Sinr: c.ulSinr(ctx.rsrq)},
		})
	}
}

// grantUplink splits tb over the UE's logical channels in LCID order.
func (c *Cell) grantUplink(ctx *ueContext, tb uint32) {
	lcids := make([]sap.Lcid, 0, len(ctx.ulQueue))
	for lcid, q := range ctx.ulQueue {
		if q > 0 {
			lcids = append(lcids, lcid)
		}
	}
	slices.Sort(lcids)
	for _, lcid := range lcids {
		if tb == 0 {
			break
		}
		b := ctx.ue.bearerByLcid(lcid)
		if b == nil {
			delete(ctx.ulQueue, lcid)
			continue
		}
		grant := min(ctx.ulQueue[lcid], tb)
		tb -= grant
		b.rlc.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: grant, Rnti: ctx.rnti, Lcid: lcid})
		ctx.ulQueue[lcid] = b.rlc.TxBufferSize()
	}
}

func queued(q map[sap.Lcid]uint32) uint32 {
	var total uint32
	for _, b := range q {
		total += b
	}
	return total
}
