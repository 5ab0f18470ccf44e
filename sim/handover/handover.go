// Package handover contains the handover algorithm contract and its
// implementations. An algorithm receives measurement reports from the cell's
// RRC and may call TriggerHandover on it while processing any report.
package handover

import (
	"fmt"

	"github.com/ransim/ransim/sim/sap"
)

// Kind enumerates the available algorithms.
type Kind uint8

const (
	Noop Kind = iota
	A3Rsrp
	A2A4Rsrq
)

var kindNames = map[Kind]string{
	Noop:     "noop",
	A3Rsrp:   "a3-rsrp",
	A2A4Rsrq: "a2-a4-rsrq",
}

// ValidAlgorithms is the set of recognized algorithm names. The empty
// string selects Noop.
var ValidAlgorithms = map[string]bool{"": true, "noop": true, "a3-rsrp": true, "a2-a4-rsrq": true}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	if name == "" {
		return Noop, nil
	}
	for k, s := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown handover algorithm %q", name)
}

// Algorithm is a handover decision policy bound to one cell.
type Algorithm interface {
	sap.HandoverProvider
	// SetHandoverUser binds the cell's RRC and registers the report
	// configurations the algorithm needs.
	SetHandoverUser(user sap.HandoverUser)
	// RemoveUe discards per-UE state after the UE left the cell.
	RemoveUe(rnti sap.Rnti)
	Kind() Kind
}

// Config parameterizes every algorithm; each one reads only its own fields.
type Config struct {
	// A3-RSRP: the neighbour must exceed the serving RSRP by Hysteresis dB
	// continuously for TimeToTrigger ticks. The UE measures the
	// time-to-trigger; it is carried in the report configuration.
	Hysteresis    float64
	TimeToTrigger int64

	// A2-A4-RSRQ: handover is considered once serving RSRQ is at or below
	// ServingCellThreshold and happens when the best neighbour is at least
	// NeighbourCellOffset better.
	ServingCellThreshold uint8
	NeighbourCellOffset  uint8
}

// DefaultConfig returns the usual parameter values.
func DefaultConfig() Config {
	return Config{
		Hysteresis:           3.0,
		TimeToTrigger:        256_000,
		ServingCellThreshold: 30,
		NeighbourCellOffset:  1,
	}
}

// NewAlgorithm creates an algorithm of the given kind.
// Panics on unrecognized kinds.
func NewAlgorithm(kind Kind, cfg Config) Algorithm {
	switch kind {
	case Noop:
		return &NoopAlgorithm{}
	case A3Rsrp:
		return NewA3Rsrp(cfg)
	case A2A4Rsrq:
		return NewA2A4Rsrq(cfg)
	default:
		panic(fmt.Sprintf("unknown handover algorithm %s", kind))
	}
}
