package ran

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/ransim/ransim/sim"
	"github.com/ransim/ransim/sim/tft"
	"github.com/ransim/ransim/sim/trace"
	"github.com/ransim/ransim/sim/workload"
)

// MaxBearersPerUe is the number of data radio bearers a UE can hold (LCIDs 3..10).
const MaxBearersPerUe = 8

// Scenario is a complete simulation input: the cells, the UEs with their
// bearers, and the workload driving them.
type Scenario struct {
	Seed      int64                 `yaml:"seed"`
	HorizonMs int64                 `yaml:"horizon_ms"`
	Trace     string                `yaml:"trace,omitempty"` // "none" (default), "decisions", "all"
	Cells     []sim.CellConfig      `yaml:"cells"`
	Ues       []UeSpec              `yaml:"ues"`
	Workload  workload.WorkloadSpec `yaml:"workload"`
}

// UeSpec places a UE in the network. A UE without bearers or a TFT file
// gets one default bearer matching every packet.
type UeSpec struct {
	Address string       `yaml:"address"` // IPv4
	Cell    uint16       `yaml:"cell"`    // initial serving cell
	TftFile string       `yaml:"tft_file,omitempty"`
	Bearers []BearerSpec `yaml:"bearers,omitempty"`
}

// BearerSpec is a dedicated bearer with inline packet filters. No filters
// means match-all.
type BearerSpec struct {
	ID      uint32       `yaml:"id"`
	Filters []FilterSpec `yaml:"filters,omitempty"`
}

// FilterSpec is the YAML form of a tft.PacketFilter.
type FilterSpec struct {
	Direction     string   `yaml:"direction"`                // "bidirectional" (default), "uplink", "downlink"
	Precedence    *uint8   `yaml:"precedence,omitempty"`     // 255 when unset
	RemoteAddress string   `yaml:"remote_address,omitempty"` // CIDR
	LocalAddress  string   `yaml:"local_address,omitempty"`  // CIDR
	RemotePorts   []uint16 `yaml:"remote_ports,omitempty"`   // [start, end]
	LocalPorts    []uint16 `yaml:"local_ports,omitempty"`
	Protocol      string   `yaml:"protocol,omitempty"` // "udp", "tcp", "icmp"
	Tos           uint8    `yaml:"tos,omitempty"`
	TosMask       uint8    `yaml:"tos_mask,omitempty"`
}

var protocolNumbers = map[string]uint8{"": 0, "icmp": 1, "tcp": 6, "udp": 17}

// LoadScenario reads and parses a YAML scenario file. Relative TFT file
// paths are resolved against the scenario's directory.
// Uses strict parsing: unrecognized keys are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	dir := filepath.Dir(path)
	for i := range sc.Ues {
		if f := sc.Ues[i].TftFile; f != "" && !filepath.IsAbs(f) {
			sc.Ues[i].TftFile = filepath.Join(dir, f)
		}
	}
	return &sc, nil
}

// Horizon returns the simulated duration in ticks.
func (s *Scenario) Horizon() int64 { return sim.Milliseconds(s.HorizonMs) }

// Validate checks the scenario for consistency. The policy bundle, if any,
// must already be applied to the cells.
func (s *Scenario) Validate() error {
	if s.HorizonMs <= 0 {
		return fmt.Errorf("horizon_ms must be positive, got %d", s.HorizonMs)
	}
	if !trace.IsValidTraceLevel(s.Trace) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions, all", s.Trace)
	}
	if len(s.Cells) == 0 {
		return fmt.Errorf("at least one cell required")
	}
	cells := make(map[uint16]bool, len(s.Cells))
	for i := range s.Cells {
		c := &s.Cells[i]
		if err := c.Validate(); err != nil {
			return err
		}
		if cells[c.ID] {
			return fmt.Errorf("duplicate cell id %d", c.ID)
		}
		cells[c.ID] = true
	}
	for i := range s.Cells {
		for _, n := range s.Cells[i].NoX2 {
			if !slices.Contains(s.Cells[i].Neighbours, n) {
				return fmt.Errorf("cell[%d]: no_x2 cell %d is not a configured neighbour", s.Cells[i].ID, n)
			}
		}
	}

	addrs := make(map[string]bool, len(s.Ues))
	for i := range s.Ues {
		if err := s.Ues[i].validate(i, cells); err != nil {
			return err
		}
		a := net.ParseIP(s.Ues[i].Address).To4().String()
		if addrs[a] {
			return fmt.Errorf("ue[%d]: duplicate address %s", i, a)
		}
		addrs[a] = true
	}
	if err := s.Workload.Validate(len(s.Ues)); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	return nil
}

func (u *UeSpec) validate(idx int, cells map[uint16]bool) error {
	prefix := fmt.Sprintf("ue[%d]", idx)
	if ip := net.ParseIP(u.Address); ip == nil || ip.To4() == nil {
		return fmt.Errorf("%s: address %q is not an IPv4 address", prefix, u.Address)
	}
	if !cells[u.Cell] {
		return fmt.Errorf("%s: unknown serving cell %d", prefix, u.Cell)
	}
	if len(u.Bearers) > MaxBearersPerUe {
		return fmt.Errorf("%s: at most %d bearers, got %d", prefix, MaxBearersPerUe, len(u.Bearers))
	}
	seen := make(map[uint32]bool, len(u.Bearers))
	for j := range u.Bearers {
		b := &u.Bearers[j]
		if b.ID == tft.NoMatch {
			return fmt.Errorf("%s.bearer[%d]: bearer id 0 is reserved", prefix, j)
		}
		if seen[b.ID] {
			return fmt.Errorf("%s: duplicate bearer id %d", prefix, b.ID)
		}
		seen[b.ID] = true
		if len(b.Filters) > tft.MaxFilters {
			return fmt.Errorf("%s.bearer[%d]: at most %d filters", prefix, j, tft.MaxFilters)
		}
		for k := range b.Filters {
			if _, err := b.Filters[k].PacketFilter(); err != nil {
				return fmt.Errorf("%s.bearer[%d].filter[%d]: %w", prefix, j, k, err)
			}
		}
	}
	return nil
}

// BearerConfigs builds the bearers of the UE: those of the TFT file first,
// then the inline ones. A UE with neither gets a default bearer with id 1.
func (u *UeSpec) BearerConfigs() ([]BearerConfig, error) {
	var out []BearerConfig
	if u.TftFile != "" {
		loaded, err := tft.LoadTFTs(u.TftFile)
		if err != nil {
			return nil, err
		}
		for _, bt := range loaded {
			out = append(out, BearerConfig{ID: bt.BearerID, TFT: bt.TFT})
		}
	}
	for _, b := range u.Bearers {
		t, err := b.TFT()
		if err != nil {
			return nil, fmt.Errorf("bearer %d: %w", b.ID, err)
		}
		out = append(out, BearerConfig{ID: b.ID, TFT: t})
	}
	if len(out) == 0 {
		out = append(out, BearerConfig{ID: 1, TFT: tft.Default()})
	}
	if len(out) > MaxBearersPerUe {
		return nil, fmt.Errorf("at most %d bearers, got %d", MaxBearersPerUe, len(out))
	}
	return out, nil
}

// TFT builds the bearer's template.
func (b *BearerSpec) TFT() (*tft.TFT, error) {
	if len(b.Filters) == 0 {
		return tft.Default(), nil
	}
	t := tft.New()
	for i := range b.Filters {
		f, err := b.Filters[i].PacketFilter()
		if err != nil {
			return nil, err
		}
		t.Add(f)
	}
	return t, nil
}

// PacketFilter converts the YAML filter, starting from the match-all filter.
func (f *FilterSpec) PacketFilter() (tft.PacketFilter, error) {
	pf := tft.NewPacketFilter()
	d, err := tft.ParseDirection(f.Direction)
	if err != nil {
		return pf, err
	}
	pf.Direction = d
	if f.Precedence != nil {
		pf.Precedence = *f.Precedence
	}
	if f.RemoteAddress != "" {
		if pf.RemoteAddress, pf.RemoteMask, err = parseCIDR(f.RemoteAddress); err != nil {
			return pf, fmt.Errorf("remote_address: %w", err)
		}
	}
	if f.LocalAddress != "" {
		if pf.LocalAddress, pf.LocalMask, err = parseCIDR(f.LocalAddress); err != nil {
			return pf, fmt.Errorf("local_address: %w", err)
		}
	}
	if pf.RemotePortStart, pf.RemotePortEnd, err = portRange(f.RemotePorts); err != nil {
		return pf, fmt.Errorf("remote_ports: %w", err)
	}
	if pf.LocalPortStart, pf.LocalPortEnd, err = portRange(f.LocalPorts); err != nil {
		return pf, fmt.Errorf("local_ports: %w", err)
	}
	proto, ok := protocolNumbers[f.Protocol]
	if !ok {
		return pf, fmt.Errorf("unknown protocol %q; valid: udp, tcp, icmp", f.Protocol)
	}
	pf.Protocol = proto
	pf.TypeOfService = f.Tos
	pf.TypeOfServiceMask = f.TosMask
	return pf, nil
}

// parseCIDR accepts "a.b.c.d/n" or a bare address (host mask).
func parseCIDR(s string) (net.IP, net.IPMask, error) {
	if ip := net.ParseIP(s); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, net.CIDRMask(32, 32), nil
		}
		return ip, net.CIDRMask(128, 128), nil
	}
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		return nil, nil, err
	}
	return n.IP, n.Mask, nil
}

func portRange(p []uint16) (uint16, uint16, error) {
	switch len(p) {
	case 0:
		return 0, 65535, nil
	case 1:
		return p[0], p[0], nil
	case 2:
		if p[0] > p[1] {
			return 0, 0, fmt.Errorf("start %d after end %d", p[0], p[1])
		}
		return p[0], p[1], nil
	}
	return 0, 0, fmt.Errorf("expected [start, end], got %d values", len(p))
}
