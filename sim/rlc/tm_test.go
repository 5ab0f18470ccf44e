package rlc

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/packet"
	"github.com/ransim/ransim/sim/sap"
)

// harness wires a TM entity to a capturing MAC on a real event engine.
type harness struct {
	s       *sim.Simulator
	tm      *TmEntity
	sent    []sap.TransmitPduParams
	reports []sap.ReportBufferStatusParams
	drops   []int
}

func newHarness(t *testing.T, max uint32) *harness {
	t.Helper()
	h := &harness{s: sim.NewSimulator(0)}
	h.tm = NewTm(Config{Rnti: 7, Lcid: 3, MaxTxBufferSize: max}, h.s, Hooks{
		Drop: func(_ sap.Rnti, _ sap.Lcid, size int) { h.drops = append(h.drops, size) },
	})
	h.tm.SetMacProvider(sap.MacProviderFuncs{
		TransmitPduFunc:        func(p sap.TransmitPduParams) { h.sent = append(h.sent, p) },
		ReportBufferStatusFunc: func(r sap.ReportBufferStatusParams) { h.reports = append(h.reports, r) },
	})
	return h
}

func (h *harness) enqueue(size int) *packet.Packet {
	p := packet.NewSized(size)
	h.tm.TransmitPdcpPdu(sap.TransmitPdcpPduParams{PdcpPdu: p, Rnti: 7, Lcid: 3})
	return p
}

func (h *harness) lastReport() sap.ReportBufferStatusParams {
	return h.reports[len(h.reports)-1]
}

func TestTm_EndToEnd_OverflowAndFifoDrain(t *testing.T) {
	// GIVEN a bearer with a 1000-byte buffer
	h := newHarness(t, 1000)

	// WHEN three 400-byte SDUs arrive
	first := h.enqueue(400)
	second := h.enqueue(400)
	h.enqueue(400)

	// THEN the third is dropped and the buffer reports 800 bytes
	assert.Equal(t, []int{400}, h.drops)
	assert.Equal(t, uint32(800), h.tm.TxBufferSize())
	require.Len(t, h.reports, 3, "a report follows every enqueue attempt, dropped or not")
	assert.Equal(t, uint32(800), h.lastReport().TxQueueSize)

	// WHEN 900-byte opportunities are offered
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 900, Rnti: 7, Lcid: 3})
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 900, Rnti: 7, Lcid: 3})
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 900, Rnti: 7, Lcid: 3})

	// THEN exactly the two buffered PDUs leave, one per opportunity, in FIFO order
	require.Len(t, h.sent, 2)
	assert.Same(t, first, h.sent[0].Pdu)
	assert.Same(t, second, h.sent[1].Pdu)
	assert.Equal(t, uint32(0), h.tm.TxBufferSize())
	assert.Equal(t, 0, h.tm.QueueLen())
}

func TestTm_OccupancyNeverExceedsMax(t *testing.T) {
	h := newHarness(t, 1000)
	for _, size := range []int{300, 300, 500, 400, 1, 2, 1000} {
		before := h.tm.TxBufferSize()
		beforeLen := h.tm.QueueLen()
		h.enqueue(size)
		assert.LessOrEqual(t, h.tm.TxBufferSize(), uint32(1000))
		if before+uint32(size) > 1000 {
			assert.Equal(t, before, h.tm.TxBufferSize(), "rejected SDU of %d bytes changed occupancy", size)
			assert.Equal(t, beforeLen, h.tm.QueueLen())
		}
	}
	// 300+300+400 = 1000, everything else rejected
	assert.Equal(t, []int{500, 1, 2, 1000}, h.drops)
}

func TestTm_UndersizedOpportunityKeepsHead(t *testing.T) {
	h := newHarness(t, 1000)
	h.enqueue(200)

	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 199})

	assert.Empty(t, h.sent)
	assert.Equal(t, 1, h.tm.QueueLen())
	assert.False(t, h.tm.TimerPending())

	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 200, Layer: 1, HarqID: 4, ComponentCarrier: 0})
	require.Len(t, h.sent, 1)
	assert.Equal(t, uint8(1), h.sent[0].Layer)
	assert.Equal(t, uint8(4), h.sent[0].HarqProcessID)
	assert.Equal(t, sap.Rnti(7), h.sent[0].Rnti)
}

func TestTm_EmptyOpportunityIsNoop(t *testing.T) {
	h := newHarness(t, 1000)
	assert.NotPanics(t, func() { h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 1500}) })
	assert.Empty(t, h.sent)
	assert.Empty(t, h.reports)
}

func TestTm_TimerRearmsWhileBuffering(t *testing.T) {
	// GIVEN two queued PDUs
	h := newHarness(t, 1000)
	h.enqueue(100)
	h.enqueue(100)
	assert.False(t, h.tm.TimerPending(), "enqueue cancels the timer")

	// WHEN one leaves at t=0
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 100})

	// THEN the timer is armed and reports every 10 ms while data remains
	require.True(t, h.tm.TimerPending())
	n := len(h.reports)
	h.s.RunUntil(BufferStatusInterval)
	assert.Len(t, h.reports, n+1)
	assert.Equal(t, uint32(100), h.lastReport().TxQueueSize)
	assert.Equal(t, uint16(10), h.lastReport().TxQueueHolDelay)
	assert.True(t, h.tm.TimerPending())

	h.s.RunUntil(2 * BufferStatusInterval)
	assert.Len(t, h.reports, n+2)
	assert.Equal(t, uint16(20), h.lastReport().TxQueueHolDelay)

	// WHEN the buffer drains
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 100})

	// THEN the next expiry stops the cycle
	h.s.RunUntil(4 * BufferStatusInterval)
	assert.Len(t, h.reports, n+2)
	assert.False(t, h.tm.TimerPending())
	assert.False(t, h.s.HasPendingEvents())
}

func TestTm_EnqueueCancelsPendingTimer(t *testing.T) {
	h := newHarness(t, 1000)
	h.enqueue(10)
	h.enqueue(10)
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 10})
	require.True(t, h.tm.TimerPending())

	h.s.RunUntil(sim.Milliseconds(3))
	h.enqueue(10)

	assert.False(t, h.tm.TimerPending())
	n := len(h.reports)
	h.s.RunUntil(sim.Milliseconds(30))
	assert.Len(t, h.reports, n, "cancelled timer must not report")
}

func TestTm_BufferStatusCapsSamples(t *testing.T) {
	h := newHarness(t, 10_000)
	for i := 1; i <= 25; i++ {
		h.s.RunUntil(sim.Milliseconds(int64(i)))
		h.enqueue(i)
	}
	h.s.RunUntil(sim.Milliseconds(30))

	r := h.tm.BufferStatus()
	assert.Equal(t, uint32(25*26/2), r.TxQueueSize)
	assert.Equal(t, uint16(29), r.TxQueueHolDelay)
	require.Len(t, r.TxPacketSizes, MaxReportedPackets)
	require.Len(t, r.TxPacketDelays, MaxReportedPackets)
	assert.Equal(t, uint32(1), r.TxPacketSizes[0])
	assert.Equal(t, uint32(20), r.TxPacketSizes[19])
	assert.Equal(t, uint32(29), r.TxPacketDelays[0])
	assert.Equal(t, uint32(10), r.TxPacketDelays[19])
	assert.Zero(t, r.RetxQueueSize)
	assert.Zero(t, r.RetxQueueHolDelay)
	assert.Zero(t, r.StatusPduSize)
}

func TestTm_EmptyBufferStatus(t *testing.T) {
	h := newHarness(t, 10)
	h.enqueue(11)

	want := sap.ReportBufferStatusParams{Rnti: 7, Lcid: 3}
	if diff := cmp.Diff(want, h.lastReport()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTm_TransmitRestampsLinkTimestamp(t *testing.T) {
	h := newHarness(t, 1000)
	h.s.RunUntil(100)
	p := h.enqueue(10)
	ts, ok := p.FindTag(packet.RlcTimestamp)
	require.True(t, ok)
	assert.Equal(t, int64(100), ts)

	h.s.RunUntil(2500)
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 10})
	ts, _ = p.FindTag(packet.RlcTimestamp)
	assert.Equal(t, int64(2500), ts)
}

func TestTm_ReceiveDeliversUnchangedWithDelay(t *testing.T) {
	s := sim.NewSimulator(0)
	var delays []int64
	tm := NewTm(Config{Rnti: 1, Lcid: 1}, s, Hooks{
		RxPdu: func(_ sap.Rnti, _ sap.Lcid, _ int, d int64) { delays = append(delays, d) },
	})
	var got []*packet.Packet
	tm.SetRlcUser(sap.RlcUserFunc(func(p *packet.Packet) { got = append(got, p) }))

	tagged := packet.New([]byte{1, 2, 3})
	tagged.AddTag(packet.RlcTimestamp, 0)
	s.RunUntil(4000)
	tm.ReceivePdu(sap.ReceivePduParams{Pdu: tagged, Rnti: 1, Lcid: 1})
	tm.ReceivePdu(sap.ReceivePduParams{Pdu: packet.NewSized(2), Rnti: 1, Lcid: 1})

	require.Len(t, got, 2)
	assert.Equal(t, []byte{1, 2, 3}, got[0].Bytes())
	assert.Equal(t, []int64{4000, 0}, delays)
}

func TestTm_ReleaseDiscardsAndStopsTimer(t *testing.T) {
	// GIVEN a buffering entity with an armed timer
	h := newHarness(t, 1000)
	h.enqueue(10)
	h.enqueue(10)
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 10})
	require.True(t, h.tm.TimerPending())
	n := len(h.reports)

	// WHEN the bearer is released
	h.tm.Release()

	// THEN nothing else is reported or transmitted
	assert.Equal(t, uint32(0), h.tm.TxBufferSize())
	assert.False(t, h.tm.TimerPending())
	h.s.Run()
	h.tm.NotifyTxOpportunity(sap.TxOpportunityParams{Bytes: 1000})
	h.enqueue(10)
	assert.Len(t, h.sent, 1)
	assert.Len(t, h.reports, n)
}

func TestNewTm_Defaults(t *testing.T) {
	tm := NewTm(Config{}, sim.NewSimulator(0), Hooks{})
	assert.Equal(t, DefaultMaxTxBufferSize, tm.MaxTxBufferSize())
	assert.Panics(t, func() { NewTm(Config{}, nil, Hooks{}) })
}
