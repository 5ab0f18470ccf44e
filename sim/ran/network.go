// Package ran wires the protocol entities and control algorithms into a
// simulated radio access network: cells with their schedulers and
// algorithms, UEs with their bearers, and the air interface between them.
package ran

import (
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/packet"
	"github.com/ransim/ransim/sim/sap"
	"github.com/ransim/ransim/sim/tft"
	"github.com/ransim/ransim/sim/trace"
	"github.com/ransim/ransim/sim/workload"
)

// ErrHandoverRefused is wrapped by every error Handover returns for a
// refused decision.
var ErrHandoverRefused = errors.New("handover refused")

// Handover refusal reasons.
const (
	ReasonUnknownTarget = "unknown target cell"
	ReasonSameCell      = "target is the serving cell"
	ReasonNoHo          = "neighbour relation forbids handover"
)

// Network owns every cell and UE. Cells and UEs refer to each other by
// index into its slices.
//
// Thread-safety: NOT thread-safe. All methods must be called from the
// simulator's goroutine.
type Network struct {
	sim     *sim.Simulator
	metrics *sim.Metrics
	trace   *trace.SimulationTrace

	cells     []*Cell
	ues       []*Ue
	cellIndex map[sap.CellID]CellIndex
	packets   packet.Factory // numbers the SDUs entering PDCP
	closed    bool
}

// NewNetwork creates an empty network driven by s. A nil metrics gets a
// fresh set; a nil trace records nothing.
func NewNetwork(s *sim.Simulator, metrics *sim.Metrics, tr *trace.SimulationTrace) *Network {
	if s == nil {
		panic("ran.NewNetwork: simulator must not be nil")
	}
	if metrics == nil {
		metrics = sim.NewMetrics()
	}
	return &Network{
		sim:       s,
		metrics:   metrics,
		trace:     tr,
		cellIndex: make(map[sap.CellID]CellIndex),
	}
}

// Metrics returns the metric set the network records into.
func (n *Network) Metrics() *sim.Metrics { return n.metrics }

// PacketsIssued returns how many SDUs entered PDCP in either direction.
// Packet UIDs run from 1 to this value.
func (n *Network) PacketsIssued() uint64 { return n.packets.Issued() }

// Cells returns the cells in the order they were added.
func (n *Network) Cells() []*Cell { return n.cells }

// Ues returns the UEs in the order they were added.
func (n *Network) Ues() []*Ue { return n.ues }

// Ue returns the UE at idx.
func (n *Network) Ue(idx UeIndex) *Ue { return n.ues[idx] }

// Cell returns the cell with the given id.
func (n *Network) Cell(id sap.CellID) (*Cell, bool) {
	idx, ok := n.cellIndex[id]
	if !ok {
		return nil, false
	}
	return n.cells[idx], true
}

// AddCell validates cfg and adds a cell built from it.
func (n *Network) AddCell(cfg sim.CellConfig) (*Cell, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, dup := n.cellIndex[sap.CellID(cfg.ID)]; dup {
		return nil, fmt.Errorf("duplicate cell id %d", cfg.ID)
	}
	idx := CellIndex(len(n.cells))
	c := newCell(n, idx, cfg)
	n.cells = append(n.cells, c)
	n.cellIndex[c.ID] = idx
	return c, nil
}

// AddUe attaches a UE with address addr to cell. The UE has no bearers
// until ActivateBearer is called.
func (n *Network) AddUe(addr net.IP, cell sap.CellID) (*Ue, error) {
	c, ok := n.Cell(cell)
	if !ok {
		return nil, fmt.Errorf("unknown cell %d", cell)
	}
	if addr.To4() == nil {
		return nil, fmt.Errorf("ue address %v is not IPv4", addr)
	}
	u := &Ue{
		Index:        UeIndex(len(n.ues)),
		Address:      addr.To4(),
		net:          n,
		classifier:   tft.NewClassifier(),
		lastPeriodic: make(map[uint8]int64),
		enteredAt:    make(map[uint8]int64),
	}
	u.mac = sap.MacProviderFuncs{TransmitPduFunc: u.transmitUlPdu, ReportBufferStatusFunc: u.reportUlBuffer}
	n.ues = append(n.ues, u)
	c.attach(u)
	return u, nil
}

// Start begins the TTI loop of every cell.
func (n *Network) Start() {
	for _, c := range n.cells {
		c.start()
	}
}

// ActivateBearer sets up a bearer on both sides of the radio link and
// registers its TFT with the UE's classifier. It returns the logical
// channel the bearer was given.
func (n *Network) ActivateBearer(idx UeIndex, cfg BearerConfig) (sap.Lcid, error) {
	u := n.ues[idx]
	if cfg.ID == tft.NoMatch {
		return 0, fmt.Errorf("ue %d: bearer id 0 is reserved", idx)
	}
	if cfg.TFT == nil {
		return 0, fmt.Errorf("ue %d: bearer %d has no TFT", idx, cfg.ID)
	}
	if u.bearerByID(cfg.ID) != nil {
		return 0, fmt.Errorf("ue %d: bearer %d already active", idx, cfg.ID)
	}
	lcid := u.freeLcid()
	if lcid == 0 {
		return 0, fmt.Errorf("ue %d: all %d bearers in use", idx, MaxBearersPerUe)
	}
	u.classifier.Add(cfg.TFT, cfg.ID)
	b := u.newBearer(cfg.ID, lcid)
	u.bearers = append(u.bearers, b)

	c := u.servingCell()
	c.addBearer(c.ues[u.rnti], lcid)
	logrus.Debugf("ue %d: bearer %d active on lcid=%d in cell %d", idx, cfg.ID, lcid, c.ID)
	return lcid, nil
}

// ReleaseBearer tears down the bearer on lcid. Queued data is discarded.
func (n *Network) ReleaseBearer(idx UeIndex, lcid sap.Lcid) error {
	u := n.ues[idx]
	b := u.bearerByLcid(lcid)
	if b == nil {
		return fmt.Errorf("ue %d: no bearer on lcid %d", idx, lcid)
	}
	c := u.servingCell()
	if ctx, ok := c.ues[u.rnti]; ok {
		c.removeBearer(ctx, lcid)
	}
	b.rlc.Release()
	u.classifier.Delete(b.id)
	for i := range u.bearers {
		if u.bearers[i] == b {
			u.bearers = append(u.bearers[:i], u.bearers[i+1:]...)
			break
		}
	}
	return nil
}

// SendDownlink classifies an IP packet addressed to the UE and hands it to
// the PDCP entity of its bearer in the serving cell. It returns false when
// no bearer matched.
func (n *Network) SendDownlink(idx UeIndex, data []byte) bool {
	u := n.ues[idx]
	id := u.classifier.ClassifyBytes(data, tft.Downlink)
	b := u.bearerByID(id)
	if b == nil {
		n.metrics.RecordUnclassified(tft.Downlink.String())
		logrus.Debugf("ue %d: downlink packet matched no bearer", idx)
		return false
	}
	c := u.servingCell()
	eb := c.ues[u.rnti].bearers[b.lcid]
	eb.pdcp.TransmitPdcpSdu(sap.TransmitPdcpSduParams{PdcpSdu: n.packets.New(data), Rnti: u.rnti, Lcid: b.lcid})
	return true
}

// SendUplink classifies an IP packet sent by the UE and hands it to the
// PDCP entity of its bearer. It returns false when no bearer matched.
func (n *Network) SendUplink(idx UeIndex, data []byte) bool {
	u := n.ues[idx]
	id := u.classifier.ClassifyBytes(data, tft.Uplink)
	b := u.bearerByID(id)
	if b == nil {
		n.metrics.RecordUnclassified(tft.Uplink.String())
		logrus.Debugf("ue %d: uplink packet matched no bearer", idx)
		return false
	}
	b.pdcp.TransmitPdcpSdu(sap.TransmitPdcpSduParams{PdcpSdu: n.packets.New(data), Rnti: u.rnti, Lcid: b.lcid})
	return true
}

// Measure processes what the UE measured: it feeds channel quality to the
// serving cell's scheduler and sends a report for every configuration of
// the serving cell whose condition holds. Event-triggered configurations
// report only once their condition has held for the time-to-trigger. A
// sample without the serving cell is ignored.
func (n *Network) Measure(idx UeIndex, s workload.MeasurementSample) {
	u := n.ues[idx]
	c := u.servingCell()
	serving, ok := s.Level(uint16(c.ID))
	if !ok {
		logrus.Debugf("ue %d: serving cell %d not measured at %d", idx, c.ID, s.Time)
		return
	}
	neighbours := make([]workload.CellMeasurement, 0, len(s.Cells))
	for _, m := range s.Cells {
		if m.Cell != serving.Cell {
			neighbours = append(neighbours, m)
		}
	}
	c.reportCqi(u.rnti, serving.Rsrq)

	for _, mc := range c.measConfigs {
		if mc.cfg.Trigger == sap.TriggerPeriodical && !u.periodicDue(mc.id, s.Time, mc.cfg.ReportInterval) {
			continue
		}
		res, ok := evaluateReport(mc.id, mc.cfg, serving, neighbours)
		if mc.cfg.Trigger == sap.TriggerEvent &&
			!u.eventDue(mc.id, ok, s.Time, sim.Milliseconds(int64(mc.cfg.TimeToTriggerMs))) {
			continue
		}
		if ok {
			n.DeliverMeasurement(idx, res)
		}
	}
}

// DeliverMeasurement hands a measurement report of the UE to its serving cell.
func (n *Network) DeliverMeasurement(idx UeIndex, m sap.MeasResults) {
	u := n.ues[idx]
	u.servingCell().ReportUeMeas(u.rnti, m)
}

// Handover moves the UE to the target cell. The PDCP sequence numbers of
// every bearer are transferred; data queued in the source RLC is lost.
// It is refused when the target is unknown, is the serving cell, or the
// source's neighbour relation forbids it.
func (n *Network) Handover(idx UeIndex, target sap.CellID) error {
	u := n.ues[idx]
	src := u.servingCell()
	rec := trace.HandoverRecord{
		Clock:  n.sim.Now(),
		UeID:   int(idx),
		Rnti:   uint16(u.rnti),
		Source: uint16(src.ID),
		Target: uint16(target),
	}

	tgt, ok := n.Cell(target)
	reason := ""
	switch {
	case !ok:
		reason = ReasonUnknownTarget
	case tgt == src:
		reason = ReasonSameCell
	case src.anr != nil && src.anr.GetNoHo(target):
		reason = ReasonNoHo
	}
	if reason != "" {
		rec.Reason = reason
		n.trace.RecordHandover(rec)
		n.metrics.RecordHandover(uint16(src.ID), uint16(target), sim.HandoverRefused)
		logrus.Infof("[tick %07d] ue %d: handover %d -> %d refused: %s", n.sim.Now(), idx, src.ID, target, reason)
		return fmt.Errorf("%w: ue %d to cell %d: %s", ErrHandoverRefused, idx, target, reason)
	}

	if src.anr != nil && src.anr.GetNoX2(target) {
		rec.Reason = "s1"
	} else {
		rec.Reason = "x2"
	}
	status := src.detach(u.rnti)
	rnti := tgt.attach(u)
	ctx := tgt.ues[rnti]
	for lcid, st := range status {
		ctx.bearers[lcid].pdcp.SetStatus(st)
	}
	for _, b := range u.bearers {
		b.rlc.SetRnti(rnti)
		b.pdcp.SetRnti(rnti)
		b.pdcp.SetSourceCellID(uint8(tgt.ID))
		u.reportUlBuffer(b.rlc.BufferStatus())
	}
	clear(u.lastPeriodic)
	clear(u.enteredAt)

	rec.Executed = true
	rec.TransferredBearers = len(status)
	n.trace.RecordHandover(rec)
	n.metrics.RecordHandover(uint16(src.ID), uint16(tgt.ID), sim.HandoverExecuted)
	logrus.Infof("[tick %07d] ue %d: handover %d -> %d over %s, rnti %d -> %d",
		n.sim.Now(), idx, src.ID, tgt.ID, rec.Reason, rec.Rnti, rnti)
	return nil
}

// Close stops every cell and releases every bearer. It is idempotent.
func (n *Network) Close() {
	if n.closed {
		return
	}
	n.closed = true
	for _, c := range n.cells {
		c.stop()
	}
	for _, u := range n.ues {
		for len(u.bearers) > 0 {
			_ = n.ReleaseBearer(u.Index, u.bearers[0].lcid)
		}
	}
}

func (n *Network) recordDrop(cell uint16, rnti sap.Rnti, lcid sap.Lcid, size int, buffer uint32) {
	n.metrics.RecordRlcDrop(cell, size)
	n.trace.RecordDrop(trace.DropRecord{
		Clock:  n.sim.Now(),
		Cell:   cell,
		Rnti:   uint16(rnti),
		Lcid:   uint8(lcid),
		Size:   size,
		Buffer: buffer,
	})
}
