package ran

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/trace"
)

// Two cells swap levels over the first second; a UE starting in cell 1
// streams 100 packets per second from a server.
const crossoverYAML = `
seed: 42
horizon_ms: 1500
trace: decisions
cells:
  - id: 1
    dl_bandwidth: 25
    ul_bandwidth: 25
    handover:
      algorithm: a3-rsrp
      hysteresis_db: 3
      time_to_trigger_ms: 0
  - id: 2
    dl_bandwidth: 25
    ul_bandwidth: 25
    handover:
      algorithm: a3-rsrp
      hysteresis_db: 3
      time_to_trigger_ms: 0
ues:
  - address: 10.0.0.2
    cell: 1
workload:
  flows:
    - id: video
      ue: 0
      direction: downlink
      remote_address: 192.0.2.1
      remote_port: 5000
      local_port: 6000
      rate_pps: 100
      arrival:
        process: constant
      size:
        type: constant
        params:
          value: 200
  trajectories:
    - ue: 0
      report_interval_ms: 100
      points:
        - at_ms: 0
          cells:
            1: {rsrp_dbm: -70, rsrq_db: -8}
            2: {rsrp_dbm: -110, rsrq_db: -18}
        - at_ms: 1000
          cells:
            1: {rsrp_dbm: -110, rsrq_db: -18}
            2: {rsrp_dbm: -70, rsrq_db: -8}
`

func TestRun_CrossoverHandsOverOnce(t *testing.T) {
	// GIVEN the crossover scenario
	path := writeFile(t, t.TempDir(), "crossover.yaml", crossoverYAML)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	// WHEN it runs to the horizon
	res, err := Run(sc)
	require.NoError(t, err)

	// THEN cell 1 learned cell 2 from the first report
	require.NotNil(t, res.Trace)
	require.NotEmpty(t, res.Trace.Anr)
	first := res.Trace.Anr[0]
	assert.Equal(t, uint16(1), first.Cell)
	assert.Equal(t, uint16(2), first.Neighbour)
	assert.True(t, first.Created)
	assert.Equal(t, sim.Milliseconds(100), first.Clock)

	// AND the UE moved to cell 2 exactly once, when the A3 condition first held
	summary := trace.Summarize(res.Trace)
	assert.Equal(t, 1, summary.ExecutedCount)
	assert.Equal(t, 0, summary.RefusedCount)
	assert.Equal(t, 1, summary.TargetDistribution[2])
	ho := res.Trace.Handovers[0]
	assert.Equal(t, sim.Milliseconds(600), ho.Clock)
	assert.Equal(t, "x2", ho.Reason)
	assert.Equal(t, CellIndex(1), res.Network.Ue(0).Serving())

	// AND traffic kept flowing on both sides of the handover
	m := res.Metrics
	assert.InDelta(t, 149, m.PdcpTxPdus, 1)
	assert.Greater(t, m.PdcpRxPdus, 100)
	assert.Equal(t, 0, m.UnclassifiedPkts)
	assert.Equal(t, 0, m.RlcDrops)
	assert.Equal(t, sim.Milliseconds(1500), res.Elapsed)
	assert.Positive(t, res.Events)
}

func TestRun_SameSeedSameResult(t *testing.T) {
	// GIVEN the crossover scenario with Poisson arrivals and shadowing
	path := writeFile(t, t.TempDir(), "crossover.yaml", crossoverYAML)
	run := func(seed int64) (sim.Summary, *trace.SimulationTrace) {
		sc, err := LoadScenario(path)
		require.NoError(t, err)
		sc.Seed = seed
		sc.Workload.Flows[0].Arrival.Process = "poisson"
		sc.Workload.Trajectories[0].ShadowingStdDb = 4
		res, err := Run(sc)
		require.NoError(t, err)
		return res.Metrics.Summarize(res.Elapsed), res.Trace
	}

	// WHEN it runs twice in one process with the same seed
	sum1, tr1 := run(42)
	sum2, tr2 := run(42)

	// THEN metrics and decisions are identical
	assert.Equal(t, sum1, sum2)
	assert.Equal(t, tr1, tr2)
	require.NotEmpty(t, tr1.Handovers)
}

func TestRunner_RunTwicePanics(t *testing.T) {
	r, err := NewRunner(validScenario())
	require.NoError(t, err)
	_, err = r.Run()
	require.NoError(t, err)
	assert.Panics(t, func() { _, _ = r.Run() })
}

func TestNewRunner_RejectsInvalidScenario(t *testing.T) {
	sc := validScenario()
	sc.Cells = nil
	_, err := NewRunner(sc)
	assert.ErrorContains(t, err, "at least one cell")
}
