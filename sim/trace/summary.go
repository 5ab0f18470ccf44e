package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	HandoverDecisions int
	ExecutedCount     int
	RefusedCount      int
	// TargetDistribution counts executed handovers per target cell.
	TargetDistribution map[uint16]int
	// RefusalReasons counts refused handovers per reason.
	RefusalReasons    map[string]int
	NeighboursCreated int
	NeighboursUpdated int
	Drops             int
	DroppedBytes      int64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		TargetDistribution: make(map[uint16]int),
		RefusalReasons:     make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.HandoverDecisions = len(st.Handovers)
	for _, h := range st.Handovers {
		if h.Executed {
			summary.ExecutedCount++
			summary.TargetDistribution[h.Target]++
		} else {
			summary.RefusedCount++
			summary.RefusalReasons[h.Reason]++
		}
	}
	for _, a := range st.Anr {
		if a.Created {
			summary.NeighboursCreated++
		} else {
			summary.NeighboursUpdated++
		}
	}
	summary.Drops = len(st.Drops)
	for _, d := range st.Drops {
		summary.DroppedBytes += int64(d.Size)
	}
	return summary
}
