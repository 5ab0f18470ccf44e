package trace

import "testing"

func TestSummarize_EmptyTrace_ZeroValues(t *testing.T) {
	// GIVEN an empty trace
	st := NewSimulationTrace(TraceLevelAll)

	// WHEN summarized
	summary := Summarize(st)

	// THEN all counts are zero
	if summary.HandoverDecisions != 0 || summary.ExecutedCount != 0 || summary.RefusedCount != 0 {
		t.Errorf("expected no handover decisions, got %+v", summary)
	}
	if summary.NeighboursCreated != 0 || summary.NeighboursUpdated != 0 {
		t.Error("expected no neighbour updates")
	}
	if len(summary.TargetDistribution) != 0 || len(summary.RefusalReasons) != 0 {
		t.Error("expected empty distributions")
	}
}

func TestSummarize_PopulatedTrace_CorrectCounts(t *testing.T) {
	// GIVEN a trace with mixed records
	st := NewSimulationTrace(TraceLevelAll)
	st.RecordHandover(HandoverRecord{Source: 1, Target: 2, Executed: true})
	st.RecordHandover(HandoverRecord{Source: 1, Target: 2, Executed: true})
	st.RecordHandover(HandoverRecord{Source: 2, Target: 3, Executed: true})
	st.RecordHandover(HandoverRecord{Source: 1, Target: 4, Reason: "unknown target"})
	st.RecordHandover(HandoverRecord{Source: 1, Target: 5, Reason: "noHo"})
	st.RecordHandover(HandoverRecord{Source: 1, Target: 5, Reason: "noHo"})
	st.RecordAnr(AnrRecord{Cell: 1, Neighbour: 2, Created: true})
	st.RecordAnr(AnrRecord{Cell: 1, Neighbour: 3})
	st.RecordDrop(DropRecord{Size: 100})
	st.RecordDrop(DropRecord{Size: 50})

	// WHEN summarized
	s := Summarize(st)

	// THEN every aggregate reflects the records
	if s.HandoverDecisions != 6 || s.ExecutedCount != 3 || s.RefusedCount != 3 {
		t.Errorf("handover counts: got %+v", s)
	}
	if s.TargetDistribution[2] != 2 || s.TargetDistribution[3] != 1 || len(s.TargetDistribution) != 2 {
		t.Errorf("target distribution: got %v", s.TargetDistribution)
	}
	if s.RefusalReasons["noHo"] != 2 || s.RefusalReasons["unknown target"] != 1 {
		t.Errorf("refusal reasons: got %v", s.RefusalReasons)
	}
	if s.NeighboursCreated != 1 || s.NeighboursUpdated != 1 {
		t.Errorf("anr counts: got %+v", s)
	}
	if s.Drops != 2 || s.DroppedBytes != 150 {
		t.Errorf("drops: got %d / %d bytes", s.Drops, s.DroppedBytes)
	}
}
