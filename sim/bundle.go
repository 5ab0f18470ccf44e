package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ransim/ransim/sim/ffr"
	"github.com/ransim/ransim/sim/handover"
	"github.com/ransim/ransim/sim/mac"
	"github.com/ransim/ransim/sim/sap"
)

// MaxBandwidth is the widest supported cell bandwidth in resource blocks.
const MaxBandwidth = 110

// MaxCellID is the largest cell id. The PDCP header carries the source cell
// in one byte.
const MaxCellID = 255

// PolicyBundle holds control-loop policy defaults, loadable from a YAML file
// and applied to every cell of a scenario. Nil pointer fields and empty
// strings mean "not set in YAML"; they never override a cell's own setting.
type PolicyBundle struct {
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Handover  HandoverConfig  `yaml:"handover"`
	Ffr       FfrConfig       `yaml:"ffr"`
	Anr       AnrConfig       `yaml:"anr"`
	Rlc       RlcConfig       `yaml:"rlc"`
}

// LoadPolicyBundle reads and parses a YAML policy file. Unknown keys are rejected.
func LoadPolicyBundle(path string) (*PolicyBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy config: %w", err)
	}
	var bundle PolicyBundle
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("parsing policy config: %w", err)
	}
	return &bundle, nil
}

// Validate checks policy names and parameter ranges.
func (b *PolicyBundle) Validate() error {
	return validatePolicies("policy", b.Scheduler, b.Handover, b.Ffr, b.Rlc)
}

// ApplyTo fills every field c leaves unset with the bundle's value.
func (b *PolicyBundle) ApplyTo(c *CellConfig) {
	setString(&c.Scheduler.Name, b.Scheduler.Name)
	setString(&c.Scheduler.UlCqiFilter, b.Scheduler.UlCqiFilter)

	setString(&c.Handover.Algorithm, b.Handover.Algorithm)
	setPtr(&c.Handover.Hysteresis, b.Handover.Hysteresis)
	setPtr(&c.Handover.TimeToTriggerMs, b.Handover.TimeToTriggerMs)
	setPtr(&c.Handover.ServingCellThreshold, b.Handover.ServingCellThreshold)
	setPtr(&c.Handover.NeighbourCellOffset, b.Handover.NeighbourCellOffset)

	setString(&c.Ffr.Algorithm, b.Ffr.Algorithm)
	setPtr(&c.Ffr.RsrqThreshold, b.Ffr.RsrqThreshold)
	setPtr(&c.Ffr.DlCqiThreshold, b.Ffr.DlCqiThreshold)
	setPtr(&c.Ffr.UlSinrThreshold, b.Ffr.UlSinrThreshold)
	setPtr(&c.Ffr.CenterAreaPa, b.Ffr.CenterAreaPa)
	setPtr(&c.Ffr.EdgeAreaPa, b.Ffr.EdgeAreaPa)
	setPtr(&c.Ffr.CenterAreaTpc, b.Ffr.CenterAreaTpc)
	setPtr(&c.Ffr.EdgeAreaTpc, b.Ffr.EdgeAreaTpc)

	if b.Anr.Disabled {
		c.Anr.Disabled = true
	}
	setPtr(&c.Anr.Threshold, b.Anr.Threshold)
	setPtr(&c.Rlc.MaxTxBufferSize, b.Rlc.MaxTxBufferSize)
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setPtr[T any](dst **T, v *T) {
	if *dst == nil && v != nil {
		c := *v
		*dst = &c
	}
}

// Validate checks the cell's identity, bandwidths, neighbour list and policies.
func (c *CellConfig) Validate() error {
	prefix := fmt.Sprintf("cell[%d]", c.ID)
	if c.ID == 0 || c.ID > MaxCellID {
		return fmt.Errorf("cell id must be in [1, %d], got %d", MaxCellID, c.ID)
	}
	if c.DlBandwidth == 0 || c.DlBandwidth > MaxBandwidth {
		return fmt.Errorf("%s: dl_bandwidth must be in [1, %d], got %d", prefix, MaxBandwidth, c.DlBandwidth)
	}
	if c.UlBandwidth == 0 || c.UlBandwidth > MaxBandwidth {
		return fmt.Errorf("%s: ul_bandwidth must be in [1, %d], got %d", prefix, MaxBandwidth, c.UlBandwidth)
	}
	for _, n := range c.Neighbours {
		if n == c.ID {
			return fmt.Errorf("%s: a cell cannot be its own neighbour", prefix)
		}
		if n == 0 || n > MaxCellID {
			return fmt.Errorf("%s: neighbour id must be in [1, %d], got %d", prefix, MaxCellID, n)
		}
	}
	return validatePolicies(prefix, c.Scheduler, c.Handover, c.Ffr, c.Rlc)
}

func validatePolicies(prefix string, s SchedulerConfig, h HandoverConfig, f FfrConfig, r RlcConfig) error {
	if !mac.ValidSchedulers[s.Name] {
		return fmt.Errorf("%s: unknown scheduler %q", prefix, s.Name)
	}
	if !mac.ValidUlCqiFilters[s.UlCqiFilter] {
		return fmt.Errorf("%s: unknown ul_cqi_filter %q", prefix, s.UlCqiFilter)
	}
	if !handover.ValidAlgorithms[h.Algorithm] {
		return fmt.Errorf("%s: unknown handover algorithm %q", prefix, h.Algorithm)
	}
	if h.Hysteresis != nil && (*h.Hysteresis < 0 || *h.Hysteresis > 15 || math.IsNaN(*h.Hysteresis)) {
		return fmt.Errorf("%s: hysteresis_db must be in [0, 15], got %f", prefix, *h.Hysteresis)
	}
	if h.TimeToTriggerMs != nil && (*h.TimeToTriggerMs < 0 || *h.TimeToTriggerMs > math.MaxUint16) {
		return fmt.Errorf("%s: time_to_trigger_ms must be in [0, %d], got %d", prefix, math.MaxUint16, *h.TimeToTriggerMs)
	}
	if h.ServingCellThreshold != nil && *h.ServingCellThreshold > 34 {
		return fmt.Errorf("%s: serving_cell_threshold must be in [0, 34], got %d", prefix, *h.ServingCellThreshold)
	}
	if !ffr.ValidAlgorithms[f.Algorithm] {
		return fmt.Errorf("%s: unknown frequency reuse algorithm %q", prefix, f.Algorithm)
	}
	if f.DlCqiThreshold != nil && *f.DlCqiThreshold > mac.MaxCqi {
		return fmt.Errorf("%s: dl_cqi_threshold must be in [0, %d], got %d", prefix, mac.MaxCqi, *f.DlCqiThreshold)
	}
	for name, pa := range map[string]*float64{"center_area_pa_db": f.CenterAreaPa, "edge_area_pa_db": f.EdgeAreaPa} {
		if pa == nil {
			continue
		}
		if _, err := sap.PaFromDb(*pa); err != nil {
			return fmt.Errorf("%s: %s: %w", prefix, name, err)
		}
	}
	for name, tpc := range map[string]*uint8{"center_area_tpc": f.CenterAreaTpc, "edge_area_tpc": f.EdgeAreaTpc} {
		if tpc != nil && *tpc > 3 {
			return fmt.Errorf("%s: %s must be in [0, 3], got %d", prefix, name, *tpc)
		}
	}
	if r.MaxTxBufferSize != nil && *r.MaxTxBufferSize == 0 {
		return fmt.Errorf("%s: max_tx_buffer_size must be positive", prefix)
	}
	return nil
}
