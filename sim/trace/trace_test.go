package trace

import "testing"

func TestNewSimulationTrace_NoneIsNil(t *testing.T) {
	if st := NewSimulationTrace(TraceLevelNone); st != nil {
		t.Fatalf("expected nil trace for level none, got %+v", st)
	}
	if st := NewSimulationTrace(""); st != nil {
		t.Fatalf("expected nil trace for empty level, got %+v", st)
	}
}

func TestSimulationTrace_NilIsSafe(t *testing.T) {
	// GIVEN a disabled trace
	var st *SimulationTrace

	// WHEN records are appended
	st.RecordHandover(HandoverRecord{Source: 1, Target: 2})
	st.RecordAnr(AnrRecord{Cell: 1, Neighbour: 2})
	st.RecordDrop(DropRecord{Cell: 1})

	// THEN nothing panics and the summary is empty
	if s := Summarize(st); s.HandoverDecisions != 0 || s.Drops != 0 {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestSimulationTrace_RecordHandover_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	st := NewSimulationTrace(TraceLevelDecisions)

	// WHEN a handover record is recorded
	st.RecordHandover(HandoverRecord{Clock: 1000, UeID: 3, Rnti: 7, Source: 1, Target: 2, Executed: true, TransferredBearers: 2})

	// THEN the trace contains it unchanged
	if len(st.Handovers) != 1 {
		t.Fatalf("expected 1 handover, got %d", len(st.Handovers))
	}
	if h := st.Handovers[0]; h.Target != 2 || !h.Executed || h.TransferredBearers != 2 {
		t.Errorf("unexpected record %+v", h)
	}
}

func TestSimulationTrace_DropsNeedLevelAll(t *testing.T) {
	decisions := NewSimulationTrace(TraceLevelDecisions)
	all := NewSimulationTrace(TraceLevelAll)

	decisions.RecordDrop(DropRecord{Cell: 1, Size: 10})
	all.RecordDrop(DropRecord{Cell: 1, Size: 10})

	if len(decisions.Drops) != 0 {
		t.Errorf("decisions level recorded %d drops, want 0", len(decisions.Drops))
	}
	if len(all.Drops) != 1 {
		t.Errorf("all level recorded %d drops, want 1", len(all.Drops))
	}
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, level := range []string{"", "none", "decisions", "all"} {
		if !IsValidTraceLevel(level) {
			t.Errorf("expected %q to be valid", level)
		}
	}
	if IsValidTraceLevel("verbose") {
		t.Error("expected verbose to be invalid")
	}
}
