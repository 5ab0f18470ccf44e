package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
seed: 3
horizon_ms: 300
cells:
  - id: 1
    dl_bandwidth: 25
    ul_bandwidth: 25
ues:
  - address: 10.0.0.2
    cell: 1
workload:
  flows:
    - id: voice
      ue: 0
      direction: uplink
      remote_address: 192.0.2.1
      remote_port: 5000
      local_port: 6000
      rate_pps: 50
      arrival:
        process: constant
      size:
        type: constant
        params:
          value: 40
  trajectories:
    - ue: 0
      report_interval_ms: 20
      points:
        - at_ms: 0
          cells:
            1: {rsrp_dbm: -80, rsrq_db: -6}
`

const policyYAML = `
handover:
  algorithm: a3-rsrp
ffr:
  algorithm: hard
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunSimulation_PrintsMetricsAndTrace(t *testing.T) {
	// GIVEN a single-cell scenario with an uplink flow and tracing on
	dir := t.TempDir()
	opts := runOptions{Scenario: writeFile(t, dir, "s.yaml", scenarioYAML), Trace: "decisions"}

	// WHEN it runs
	var buf bytes.Buffer
	require.NoError(t, runSimulation(opts, &buf))

	// THEN the metrics and the trace summary are printed
	out := buf.String()
	assert.Contains(t, out, "=== Simulation Metrics ===")
	assert.Contains(t, out, `"pdcp_rx_pdus"`)
	assert.Contains(t, out, "=== Decision Trace ===")
}

func TestRunSimulation_NoTraceByDefault(t *testing.T) {
	opts := runOptions{Scenario: writeFile(t, t.TempDir(), "s.yaml", scenarioYAML)}
	var buf bytes.Buffer
	require.NoError(t, runSimulation(opts, &buf))
	assert.NotContains(t, buf.String(), "Decision Trace")
}

func TestLoadScenario_AppliesPolicyAndOverrides(t *testing.T) {
	// GIVEN a scenario, a policy file, and CLI overrides
	dir := t.TempDir()
	opts := runOptions{
		Scenario:     writeFile(t, dir, "s.yaml", scenarioYAML),
		PolicyConfig: writeFile(t, dir, "p.yaml", policyYAML),
		HorizonMs:    1000,
		Seed:         99,
		Trace:        "all",
	}

	// WHEN loaded
	sc, err := loadScenario(opts)
	require.NoError(t, err)

	// THEN the policy fills the cell and the overrides win
	assert.Equal(t, "a3-rsrp", sc.Cells[0].Handover.Algorithm)
	assert.Equal(t, "hard", sc.Cells[0].Ffr.Algorithm)
	assert.Equal(t, int64(1000), sc.HorizonMs)
	assert.Equal(t, int64(99), sc.Seed)
	assert.Equal(t, int64(99), sc.Workload.Seed)
	assert.Equal(t, "all", sc.Trace)
	assert.NoError(t, sc.Validate())
}

func TestLoadScenario_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := loadScenario(runOptions{})
	assert.ErrorContains(t, err, "--scenario")

	bad := writeFile(t, dir, "p.yaml", "handover:\n  algorithm: teleport\n")
	_, err = loadScenario(runOptions{Scenario: writeFile(t, dir, "s.yaml", scenarioYAML), PolicyConfig: bad})
	assert.ErrorContains(t, err, "teleport")
}

func TestLoadConfig_EnvironmentAndConfigFile(t *testing.T) {
	// GIVEN a config file and an environment override
	dir := t.TempDir()
	cfg := writeFile(t, dir, "ransim.yaml", "scenario: from-file.yaml\nseed: 5\nhorizon: 100\n")
	t.Setenv("RANSIM_CONFIG", cfg)
	t.Setenv("RANSIM_HORIZON", "250")
	t.Setenv("RANSIM_POLICY_CONFIG", "policy.yaml")

	// WHEN the run command resolves its settings
	v, err := loadConfig(runCmd)
	require.NoError(t, err)
	opts := runOptionsFrom(v)

	// THEN the environment beats the file, which beats the flag defaults
	assert.Equal(t, "from-file.yaml", opts.Scenario)
	assert.Equal(t, int64(5), opts.Seed)
	assert.Equal(t, int64(250), opts.HorizonMs)
	assert.Equal(t, "policy.yaml", opts.PolicyConfig)
	assert.Equal(t, "error", v.GetString("log"))
}

func TestLoadConfig_MissingConfigFile(t *testing.T) {
	t.Setenv("RANSIM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := loadConfig(runCmd)
	assert.ErrorContains(t, err, "reading config")
}

func TestValidateScenario(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, validateScenario(runOptions{Scenario: writeFile(t, dir, "s.yaml", scenarioYAML)}, &buf))
	assert.Contains(t, buf.String(), "1 cells, 1 UEs, 1 flows, 1 trajectories, horizon 300 ms")

	broken := writeFile(t, dir, "b.yaml", "horizon_ms: 10\ncells: []\n")
	assert.ErrorContains(t, validateScenario(runOptions{Scenario: broken}, &buf), "at least one cell")
}
