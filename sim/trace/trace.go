package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing.
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures handover and neighbour table decisions.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelAll also captures data-plane drops.
	TraceLevelAll TraceLevel = "all"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelAll:       true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// SimulationTrace collects records during a run. A nil trace records nothing.
type SimulationTrace struct {
	Level     TraceLevel
	Handovers []HandoverRecord
	Anr       []AnrRecord
	Drops     []DropRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording, or nil
// when level disables tracing.
func NewSimulationTrace(level TraceLevel) *SimulationTrace {
	if level == "" || level == TraceLevelNone {
		return nil
	}
	return &SimulationTrace{
		Level:     level,
		Handovers: make([]HandoverRecord, 0),
		Anr:       make([]AnrRecord, 0),
		Drops:     make([]DropRecord, 0),
	}
}

// RecordHandover appends a handover decision record.
func (st *SimulationTrace) RecordHandover(r HandoverRecord) {
	if st == nil {
		return
	}
	st.Handovers = append(st.Handovers, r)
}

// RecordAnr appends a neighbour table update.
func (st *SimulationTrace) RecordAnr(r AnrRecord) {
	if st == nil {
		return
	}
	st.Anr = append(st.Anr, r)
}

// RecordDrop appends a drop record when the level includes the data plane.
func (st *SimulationTrace) RecordDrop(r DropRecord) {
	if st == nil || st.Level != TraceLevelAll {
		return
	}
	st.Drops = append(st.Drops, r)
}
