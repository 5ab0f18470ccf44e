package sap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ransim/ransim/sim/packet"
)

// Compile-time checks that the closure adapters satisfy their interfaces.
var (
	_ PdcpUser     = PdcpUserFunc(nil)
	_ RlcProvider  = RlcProviderFunc(nil)
	_ RlcUser      = RlcUserFunc(nil)
	_ MacProvider  = MacProviderFuncs{}
	_ HandoverUser = HandoverUserFuncs{}
	_ AnrUser      = AnrUserFunc(nil)
	_ FfrRrcUser   = FfrRrcUserFuncs{}
)

func TestRlcUserFunc_ForwardsToOwner(t *testing.T) {
	// GIVEN an owner captured by a closure adapter
	var received []*packet.Packet
	var user RlcUser = RlcUserFunc(func(p *packet.Packet) { received = append(received, p) })

	// WHEN the lower layer calls through the interface
	p := packet.NewSized(4)
	user.ReceivePdcpPdu(p)

	// THEN the owner sees the same packet
	assert.Equal(t, []*packet.Packet{p}, received)
}

func TestMacProviderFuncs_NilFieldsAreNoops(t *testing.T) {
	var m MacProvider = MacProviderFuncs{}
	assert.NotPanics(t, func() {
		m.TransmitPdu(TransmitPduParams{})
		m.ReportBufferStatus(ReportBufferStatusParams{})
	})
}

func TestParamsArePassedByValue(t *testing.T) {
	// GIVEN a callee that mutates its parameter struct
	var seen ReportBufferStatusParams
	m := MacProviderFuncs{ReportBufferStatusFunc: func(p ReportBufferStatusParams) {
		p.TxQueueSize = 999
		seen = p
	}}
	params := ReportBufferStatusParams{Rnti: 1, Lcid: 3, TxQueueSize: 10}

	m.ReportBufferStatus(params)

	// THEN the caller's copy is unchanged
	assert.Equal(t, uint32(10), params.TxQueueSize)
	assert.Equal(t, uint32(999), seen.TxQueueSize)
}

func TestHandoverUserFuncs(t *testing.T) {
	var gotRnti Rnti
	var gotTarget CellID
	u := HandoverUserFuncs{
		AddMeasConfigFunc:   func(ReportConfig) uint8 { return 7 },
		TriggerHandoverFunc: func(r Rnti, c CellID) { gotRnti, gotTarget = r, c },
	}
	assert.Equal(t, uint8(7), u.AddUeMeasReportConfigForHandover(ReportConfig{Event: EventA3}))
	u.TriggerHandover(5, 2)
	assert.Equal(t, Rnti(5), gotRnti)
	assert.Equal(t, CellID(2), gotTarget)

	assert.Equal(t, uint8(0), HandoverUserFuncs{}.AddUeMeasReportConfigForHandover(ReportConfig{}))
}

func TestPaToDb(t *testing.T) {
	assert.Equal(t, -6.0, PaToDb(PaDbMinus6))
	assert.Equal(t, 0.0, PaToDb(PaDb0))
	assert.Equal(t, 3.0, PaToDb(PaDb3))
	assert.Panics(t, func() { PaToDb(PaOffset(42)) })
}

func TestEventID_String(t *testing.T) {
	assert.Equal(t, "A3", EventA3.String())
	assert.Equal(t, "unknown", EventID(0).String())
	assert.Equal(t, "PUSCH", UlCqiPusch.String())
}

func TestPaFromDb(t *testing.T) {
	pa, err := PaFromDb(-4.77)
	assert.NoError(t, err)
	assert.Equal(t, PaDbMinus4dot77, pa)
	pa, err = PaFromDb(3)
	assert.NoError(t, err)
	assert.Equal(t, PaDb3, pa)
	_, err = PaFromDb(-5)
	assert.Error(t, err)
}
