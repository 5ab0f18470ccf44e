package handover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ransim/ransim/sim/sap"
)

type trigger struct {
	rnti   sap.Rnti
	target sap.CellID
}

// rrc records registered report configs and triggered handovers.
type rrc struct {
	configs  []sap.ReportConfig
	triggers []trigger
}

func (r *rrc) user() sap.HandoverUser {
	return sap.HandoverUserFuncs{
		AddMeasConfigFunc: func(cfg sap.ReportConfig) uint8 {
			r.configs = append(r.configs, cfg)
			return uint8(len(r.configs)) + 10
		},
		TriggerHandoverFunc: func(rnti sap.Rnti, target sap.CellID) {
			r.triggers = append(r.triggers, trigger{rnti, target})
		},
	}
}

func rsrpReport(measID, serving uint8, neighbours ...sap.NeighbourMeas) sap.MeasResults {
	return sap.MeasResults{MeasID: measID, ServingRsrp: serving, Neighbours: neighbours}
}

func rsrp(cell sap.CellID, v uint8) sap.NeighbourMeas {
	return sap.NeighbourMeas{CellID: cell, HasRsrp: true, Rsrp: v}
}

func rsrq(cell sap.CellID, v uint8) sap.NeighbourMeas {
	return sap.NeighbourMeas{CellID: cell, HasRsrq: true, Rsrq: v}
}

func TestNoop_AcceptsEverythingNeverTriggers(t *testing.T) {
	// GIVEN the no-op algorithm bound to an RRC
	r := &rrc{}
	alg := NewAlgorithm(Noop, DefaultConfig())
	alg.SetHandoverUser(r.user())

	// WHEN it receives reports that would trigger any real policy
	for i := 0; i < 50; i++ {
		alg.ReportUeMeas(sap.Rnti(i%3+1), rsrpReport(uint8(i), 0, rsrp(2, 97), rsrq(3, 34)))
	}
	alg.RemoveUe(1)

	// THEN nothing is triggered and no configuration was requested
	assert.Empty(t, r.triggers)
	assert.Empty(t, r.configs)
	assert.Equal(t, 50, alg.(*NoopAlgorithm).Reports())
	assert.Equal(t, Noop, alg.Kind())
}

func TestA3Rsrp_RegistersEventConfig(t *testing.T) {
	r := &rrc{}
	alg := NewA3Rsrp(Config{Hysteresis: 3, TimeToTrigger: 256_000})
	alg.SetHandoverUser(r.user())

	require.Len(t, r.configs, 1)
	assert.Equal(t, sap.EventA3, r.configs[0].Event)
	assert.Equal(t, sap.QuantityRsrp, r.configs[0].Quantity)
	assert.Equal(t, uint8(6), r.configs[0].Hysteresis)
	assert.Equal(t, uint16(256), r.configs[0].TimeToTriggerMs, "the UE enforces the time-to-trigger")
	assert.Equal(t, uint8(11), alg.MeasID())
}

func TestA3Rsrp_TriggersOnStrongestNeighbour(t *testing.T) {
	// GIVEN an A3 algorithm with 3 dB hysteresis and a time-to-trigger
	r := &rrc{}
	alg := NewA3Rsrp(Config{Hysteresis: 3, TimeToTrigger: 100_000})
	alg.SetHandoverUser(r.user())

	// WHEN the UE reports after the time-to-trigger with two better neighbours
	alg.ReportUeMeas(1, rsrpReport(alg.MeasID(), 40, rsrp(3, 44), rsrp(2, 45)))

	// THEN the UE is handed to the strongest one straight away
	assert.Equal(t, []trigger{{1, 2}}, r.triggers)
}

func TestA3Rsrp_HysteresisIsStrict(t *testing.T) {
	r := &rrc{}
	alg := NewA3Rsrp(Config{Hysteresis: 3})
	alg.SetHandoverUser(r.user())
	id := alg.MeasID()

	// exactly serving + hysteresis is not enough
	alg.ReportUeMeas(1, rsrpReport(id, 40, rsrp(2, 43)))
	assert.Empty(t, r.triggers)

	alg.ReportUeMeas(1, rsrpReport(id, 40, rsrp(2, 44)))
	assert.Equal(t, []trigger{{1, 2}}, r.triggers)
}

func TestA3Rsrp_IgnoresForeignMeasIDAndMissingRsrp(t *testing.T) {
	r := &rrc{}
	alg := NewA3Rsrp(Config{Hysteresis: 0})
	alg.SetHandoverUser(r.user())

	alg.ReportUeMeas(1, rsrpReport(alg.MeasID()+1, 10, rsrp(2, 90)))
	assert.Empty(t, r.triggers)
	alg.ReportUeMeas(1, rsrpReport(alg.MeasID(), 10, sap.NeighbourMeas{CellID: 4, HasRsrq: true, Rsrq: 30}))
	assert.Empty(t, r.triggers, "neighbours without RSRP are ignored")
	alg.ReportUeMeas(1, rsrpReport(alg.MeasID(), 10, rsrp(2, 11)))
	assert.Equal(t, []trigger{{1, 2}}, r.triggers)
}

func TestNewA3Rsrp_RejectsNegativeParameters(t *testing.T) {
	assert.Panics(t, func() { NewA3Rsrp(Config{Hysteresis: -1}) })
	assert.Panics(t, func() { NewA3Rsrp(Config{TimeToTrigger: -1}) })
}

func TestA2A4Rsrq_TriggersOnWeakServingAndBetterNeighbour(t *testing.T) {
	// GIVEN an A2-A4 algorithm with threshold 20 and offset 2
	r := &rrc{}
	alg := NewA2A4Rsrq(Config{ServingCellThreshold: 20, NeighbourCellOffset: 2})
	alg.SetHandoverUser(r.user())
	a2, a4 := alg.MeasIDs()
	require.Len(t, r.configs, 2)
	assert.Equal(t, sap.EventA2, r.configs[0].Event)
	assert.Equal(t, uint8(20), r.configs[0].Threshold1)
	assert.Equal(t, sap.EventA4, r.configs[1].Event)

	// WHEN neighbours are reported through A4
	alg.ReportUeMeas(1, sap.MeasResults{MeasID: a4, Neighbours: []sap.NeighbourMeas{rsrq(2, 19), rsrq(3, 21)}})

	// AND the serving cell is still good
	alg.ReportUeMeas(1, sap.MeasResults{MeasID: a2, ServingRsrq: 25})
	assert.Empty(t, r.triggers)

	// AND then degrades to 20 with the best neighbour only 1 better
	alg.ReportUeMeas(1, sap.MeasResults{MeasID: a2, ServingRsrq: 20})
	assert.Empty(t, r.triggers)

	// THEN a drop to 18 makes cell 3 (21) good enough
	alg.ReportUeMeas(1, sap.MeasResults{MeasID: a2, ServingRsrq: 18})
	assert.Equal(t, []trigger{{1, 3}}, r.triggers)
}

func TestA2A4Rsrq_NoNeighboursNoTrigger(t *testing.T) {
	r := &rrc{}
	alg := NewAlgorithm(A2A4Rsrq, DefaultConfig())
	alg.SetHandoverUser(r.user())
	a2, a4 := alg.(*A2A4RsrqAlgorithm).MeasIDs()

	alg.ReportUeMeas(4, sap.MeasResults{MeasID: a2, ServingRsrq: 0})
	alg.ReportUeMeas(4, sap.MeasResults{MeasID: a4, Neighbours: []sap.NeighbourMeas{rsrq(9, 10)}})
	alg.RemoveUe(4)
	alg.ReportUeMeas(4, sap.MeasResults{MeasID: a2, ServingRsrq: 0})
	alg.ReportUeMeas(4, sap.MeasResults{MeasID: 99, ServingRsrq: 0})

	assert.Empty(t, r.triggers)
}

func TestParseKind(t *testing.T) {
	for name := range ValidAlgorithms {
		k, err := ParseKind(name)
		require.NoError(t, err)
		if name != "" {
			assert.Equal(t, name, k.String())
		}
	}
	_, err := ParseKind("strongest-cell")
	assert.Error(t, err)
}

func TestNewAlgorithm_Factory(t *testing.T) {
	for _, k := range []Kind{Noop, A3Rsrp, A2A4Rsrq} {
		assert.Equal(t, k, NewAlgorithm(k, DefaultConfig()).Kind())
	}
	assert.Panics(t, func() { NewAlgorithm(Kind(42), DefaultConfig()) })
}
