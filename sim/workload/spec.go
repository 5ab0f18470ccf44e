package workload

import (
	"bytes"
	"fmt"
	"math"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ransim/ransim/sim/tft"
)

// WorkloadSpec describes the traffic and radio conditions of a scenario.
// Loaded from YAML via LoadWorkloadSpec(path) or embedded in a scenario file.
type WorkloadSpec struct {
	Seed         int64            `yaml:"seed,omitempty"`
	Flows        []FlowSpec       `yaml:"flows"`
	Trajectories []TrajectorySpec `yaml:"trajectories"`
}

// FlowSpec defines one IP flow between a UE and a remote host.
type FlowSpec struct {
	ID            string      `yaml:"id"`
	Ue            int         `yaml:"ue"`        // index into the scenario's UEs
	Direction     string      `yaml:"direction"` // "downlink" (default) or "uplink"
	Protocol      string      `yaml:"protocol"`  // "udp" (default) or "tcp"
	RemoteAddress string      `yaml:"remote_address"`
	RemotePort    uint16      `yaml:"remote_port"`
	LocalPort     uint16      `yaml:"local_port"`
	TypeOfService uint8       `yaml:"tos"`
	Size          DistSpec    `yaml:"size"` // payload bytes
	Arrival       ArrivalSpec `yaml:"arrival"`
	RatePps       float64     `yaml:"rate_pps"`
	// Windows restrict the flow to active periods; none means always active.
	Windows []ActiveWindow `yaml:"windows,omitempty"`
}

// ArrivalSpec configures the inter-arrival process.
type ArrivalSpec struct {
	Process string   `yaml:"process"` // "poisson" (default), "constant", "gamma"
	CV      *float64 `yaml:"cv,omitempty"`
}

// DistSpec parameterizes a size distribution.
type DistSpec struct {
	Type   string             `yaml:"type"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// ActiveWindow is a period during which a flow emits packets.
type ActiveWindow struct {
	StartMs int64 `yaml:"start_ms"`
	EndMs   int64 `yaml:"end_ms"`
}

// TrajectorySpec describes what one UE measures over time. Levels are
// interpolated linearly between points and held beyond the ends.
type TrajectorySpec struct {
	Ue               int               `yaml:"ue"`
	ReportIntervalMs int64             `yaml:"report_interval_ms"`
	ShadowingStdDb   float64           `yaml:"shadowing_std_db"`
	Points           []TrajectoryPoint `yaml:"points"`
}

// TrajectoryPoint fixes the mean per-cell levels at one instant.
type TrajectoryPoint struct {
	AtMs  int64                `yaml:"at_ms"`
	Cells map[uint16]CellLevel `yaml:"cells"`
}

// CellLevel is a mean measured level of one cell.
type CellLevel struct {
	RsrpDbm float64 `yaml:"rsrp_dbm"`
	RsrqDb  float64 `yaml:"rsrq_db"`
}

var (
	validArrivalProcesses = map[string]bool{"": true, "poisson": true, "constant": true, "gamma": true}
	validDistTypes        = map[string]bool{"": true, "constant": true, "gaussian": true, "exponential": true}
	validProtocols        = map[string]bool{"": true, "udp": true, "tcp": true}
)

// LoadWorkloadSpec reads and parses a YAML workload file.
// Uses strict parsing: unrecognized keys are rejected.
func LoadWorkloadSpec(path string) (*WorkloadSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	var spec WorkloadSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	return &spec, nil
}

// Validate checks every flow and trajectory against a scenario with numUes UEs.
func (s *WorkloadSpec) Validate(numUes int) error {
	for i := range s.Flows {
		if err := validateFlow(&s.Flows[i], i, numUes); err != nil {
			return err
		}
	}
	seen := make(map[int]bool)
	for i := range s.Trajectories {
		tr := &s.Trajectories[i]
		if err := validateTrajectory(tr, i, numUes); err != nil {
			return err
		}
		if seen[tr.Ue] {
			return fmt.Errorf("trajectory[%d]: duplicate trajectory for ue %d", i, tr.Ue)
		}
		seen[tr.Ue] = true
	}
	return nil
}

func validateFlow(f *FlowSpec, idx, numUes int) error {
	prefix := fmt.Sprintf("flow[%d]", idx)
	if f.Ue < 0 || f.Ue >= numUes {
		return fmt.Errorf("%s: ue %d out of range [0, %d)", prefix, f.Ue, numUes)
	}
	if _, err := FlowDirection(f.Direction); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if !validProtocols[f.Protocol] {
		return fmt.Errorf("%s: unknown protocol %q; valid: udp, tcp", prefix, f.Protocol)
	}
	if ip := net.ParseIP(f.RemoteAddress); ip == nil || ip.To4() == nil {
		return fmt.Errorf("%s: remote_address %q is not an IPv4 address", prefix, f.RemoteAddress)
	}
	if math.IsNaN(f.RatePps) || math.IsInf(f.RatePps, 0) || f.RatePps <= 0 {
		return fmt.Errorf("%s: rate_pps must be a positive finite number, got %f", prefix, f.RatePps)
	}
	if !validArrivalProcesses[f.Arrival.Process] {
		return fmt.Errorf("%s: unknown arrival process %q; valid: poisson, constant, gamma", prefix, f.Arrival.Process)
	}
	if f.Arrival.CV != nil && (math.IsNaN(*f.Arrival.CV) || *f.Arrival.CV <= 0) {
		return fmt.Errorf("%s: arrival cv must be positive", prefix)
	}
	if !validDistTypes[f.Size.Type] {
		return fmt.Errorf("%s: unknown size distribution %q", prefix, f.Size.Type)
	}
	if _, err := NewSizeSampler(f.Size); err != nil {
		return fmt.Errorf("%s.size: %w", prefix, err)
	}
	for _, w := range f.Windows {
		if w.EndMs <= w.StartMs {
			return fmt.Errorf("%s: window [%d, %d) is empty", prefix, w.StartMs, w.EndMs)
		}
	}
	return nil
}

func validateTrajectory(tr *TrajectorySpec, idx, numUes int) error {
	prefix := fmt.Sprintf("trajectory[%d]", idx)
	if tr.Ue < 0 || tr.Ue >= numUes {
		return fmt.Errorf("%s: ue %d out of range [0, %d)", prefix, tr.Ue, numUes)
	}
	if tr.ReportIntervalMs <= 0 {
		return fmt.Errorf("%s: report_interval_ms must be positive, got %d", prefix, tr.ReportIntervalMs)
	}
	if tr.ShadowingStdDb < 0 || math.IsNaN(tr.ShadowingStdDb) {
		return fmt.Errorf("%s: shadowing_std_db must be non-negative", prefix)
	}
	if len(tr.Points) == 0 {
		return fmt.Errorf("%s: at least one point required", prefix)
	}
	for i := 1; i < len(tr.Points); i++ {
		if tr.Points[i].AtMs <= tr.Points[i-1].AtMs {
			return fmt.Errorf("%s: points must be strictly increasing in at_ms", prefix)
		}
	}
	return nil
}

// FlowDirection maps a flow's direction name to the classifier direction.
func FlowDirection(name string) (tft.Direction, error) {
	switch name {
	case "", "downlink":
		return tft.Downlink, nil
	case "uplink":
		return tft.Uplink, nil
	default:
		return 0, fmt.Errorf("unknown direction %q; valid: downlink, uplink", name)
	}
}
