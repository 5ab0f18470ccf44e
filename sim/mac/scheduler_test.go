package mac

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ransim/ransim/sim/sap"
)

// fakeFfr allows every RBG of the cell except those in blocked, and per UE
// only the RBGs listed in perUe (all when absent).
type fakeFfr struct {
	n       int
	blocked map[int]bool
	perUe   map[sap.Rnti]map[int]bool
	dl      []sap.DlCqiReport
	ul      []sap.UlCqiReport
}

func (f *fakeFfr) GetAvailableDlRbg() []bool {
	m := make([]bool, f.n)
	for i := range m {
		m[i] = !f.blocked[i]
	}
	return m
}

func (f *fakeFfr) IsDlRbgAvailableForUe(rbg int, rnti sap.Rnti) bool {
	allowed, ok := f.perUe[rnti]
	return !ok || allowed[rbg]
}
func (f *fakeFfr) GetAvailableUlRbg() []bool                     { return f.GetAvailableDlRbg() }
func (f *fakeFfr) IsUlRbgAvailableForUe(rbg int, r sap.Rnti) bool { return f.IsDlRbgAvailableForUe(rbg, r) }
func (f *fakeFfr) ReportDlCqiInfo(r sap.DlCqiReport)             { f.dl = append(f.dl, r) }
func (f *fakeFfr) ReportUlCqiInfo(r sap.UlCqiReport)             { f.ul = append(f.ul, r) }
func (f *fakeFfr) GetTpc(sap.Rnti) uint8                         { return 1 }
func (f *fakeFfr) GetMinContinuousUlBandwidth() uint8             { return 0 }

func TestUlCqiFilter_Accepts(t *testing.T) {
	types := []sap.UlCqiType{sap.UlCqiSrs, sap.UlCqiPusch, sap.UlCqiPucch1, sap.UlCqiPucch2, sap.UlCqiPrach}
	tests := []struct {
		filter UlCqiFilter
		want   []bool
	}{
		{SrsUlCqi, []bool{true, false, false, false, false}},
		{PuschUlCqi, []bool{false, true, false, false, false}},
		{AllUlCqi, []bool{true, true, true, true, true}},
	}
	for _, tc := range tests {
		t.Run(tc.filter.String(), func(t *testing.T) {
			for i, typ := range types {
				assert.Equal(t, tc.want[i], tc.filter.Accepts(typ), "type %s", typ)
			}
		})
	}
}

func TestParseUlCqiFilter(t *testing.T) {
	for name := range ValidUlCqiFilters {
		f, err := ParseUlCqiFilter(name)
		require.NoError(t, err)
		if name == "" {
			assert.Equal(t, SrsUlCqi, f)
		} else {
			assert.Equal(t, name, f.String())
		}
	}
	_, err := ParseUlCqiFilter("SINR")
	assert.Error(t, err)
}

func TestRbgSize(t *testing.T) {
	for bw, want := range map[uint8]int{6: 1, 10: 1, 15: 2, 25: 2, 26: 2, 27: 3, 50: 3, 63: 3, 64: 4, 75: 4, 100: 4} {
		assert.Equal(t, want, RbgSize(bw), "bandwidth %d", bw)
	}
	assert.Equal(t, 7, NumRbg(15))
	assert.Equal(t, 25, NumRbg(100))
	assert.Equal(t, 16, NumRbg(50))
}

func TestCqiStore_FilterAndSubbandFallback(t *testing.T) {
	s := NewCqiStore(PuschUlCqi)

	assert.False(t, s.UpdateUl(sap.UlCqiReport{Rnti: 1, Type: sap.UlCqiSrs, Sinr: []float64{3}}))
	assert.True(t, s.UpdateUl(sap.UlCqiReport{Rnti: 1, Type: sap.UlCqiPusch, Sinr: []float64{7}}))
	sinr, ok := s.UlSinr(1)
	require.True(t, ok)
	assert.Equal(t, []float64{7}, sinr)
	assert.Equal(t, 1, s.IgnoredUlReports())

	s.UpdateDl(sap.DlCqiReport{Rnti: 1, WidebandCqi: 9, SubbandCqi: []uint8{4, 12}})
	cqi, _ := s.DlSubband(1, 1)
	assert.Equal(t, uint8(12), cqi)
	cqi, _ = s.DlSubband(1, 5)
	assert.Equal(t, uint8(9), cqi, "outside the subband report the wideband value applies")

	s.Remove(1)
	_, ok = s.DlWideband(1)
	assert.False(t, ok)
}

func TestFirstFit_CoversQueueInRntiOrder(t *testing.T) {
	// GIVEN two UEs with CQI 15 on a 25-RB cell (12 RBGs of 2 RBs, 182 bytes each)
	s := NewFirstFit(Config{DlBandwidth: 25})
	s.SchedDlCqiInfoReq(DlCqiInfoReq{Reports: []sap.DlCqiReport{{Rnti: 2, WidebandCqi: 15}, {Rnti: 1, WidebandCqi: 15}}})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 2, Lcid: 3, TxQueueSize: 300})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 1, Lcid: 3, TxQueueSize: 400})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 1, Lcid: 4, TxQueueSize: 100})

	// WHEN one TTI is scheduled
	ind := s.SchedDlTriggerReq(DlTriggerReq{SfnSf: 1})

	// THEN RNTI 1 is served first with enough RBGs, then RNTI 2
	require.Len(t, ind.Allocations, 2)
	a1, a2 := ind.Allocations[0], ind.Allocations[1]
	assert.Equal(t, sap.Rnti(1), a1.Rnti)
	assert.Equal(t, []int{0, 1, 2}, a1.Rbgs)
	assert.Equal(t, uint32(3*182), a1.TbSize)
	want := []LcAllocation{{Lcid: 3, Bytes: 400}, {Lcid: 4, Bytes: 100}}
	if diff := cmp.Diff(want, a1.Lcs); diff != "" {
		t.Errorf("lc split mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, sap.Rnti(2), a2.Rnti)
	assert.Equal(t, []int{3, 4}, a2.Rbgs)

	// AND granted bytes are no longer queued
	assert.Zero(t, s.QueuedBytes(1))
	assert.Empty(t, s.SchedDlTriggerReq(DlTriggerReq{SfnSf: 2}).Allocations)
}

func TestFirstFit_RespectsFfrBitmaps(t *testing.T) {
	// GIVEN a cell where RBG 0 is reserved and UE 1 may only use RBGs 2 and 5
	ffr := &fakeFfr{n: 7, blocked: map[int]bool{0: true}, perUe: map[sap.Rnti]map[int]bool{1: {2: true, 5: true}}}
	s := NewScheduler("first-fit", Config{DlBandwidth: 15, Ffr: ffr})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 1, Lcid: 1, TxQueueSize: 10_000})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 2, Lcid: 1, TxQueueSize: 10_000})

	ind := s.SchedDlTriggerReq(DlTriggerReq{})

	require.Len(t, ind.Allocations, 2)
	assert.Equal(t, []int{2, 5}, ind.Allocations[0].Rbgs)
	assert.Equal(t, []int{1, 3, 4, 6}, ind.Allocations[1].Rbgs)
	assert.Equal(t, uint8(1), ind.Allocations[0].Tpc)
	assert.Equal(t, DefaultCqi, ind.Allocations[0].Cqi)
}

func TestFirstFit_ForwardsAcceptedCqiToFfr(t *testing.T) {
	ffr := &fakeFfr{n: 7}
	s := NewFirstFit(Config{DlBandwidth: 15, UlCqiFilter: SrsUlCqi, Ffr: ffr})

	s.SchedUlCqiInfoReq(UlCqiInfoReq{Report: sap.UlCqiReport{Rnti: 1, Type: sap.UlCqiPusch}})
	s.SchedUlCqiInfoReq(UlCqiInfoReq{Report: sap.UlCqiReport{Rnti: 1, Type: sap.UlCqiSrs}})
	s.SchedDlCqiInfoReq(DlCqiInfoReq{Reports: []sap.DlCqiReport{{Rnti: 1, WidebandCqi: 3}}})

	assert.Len(t, ffr.ul, 1)
	assert.Equal(t, sap.UlCqiSrs, ffr.ul[0].Type)
	assert.Len(t, ffr.dl, 1)
	assert.Equal(t, 1, s.Cqi().IgnoredUlReports())
}

func TestFirstFit_RemoveUeAndLc(t *testing.T) {
	s := NewFirstFit(Config{DlBandwidth: 6})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 1, Lcid: 1, TxQueueSize: 10})
	s.SchedDlRlcBufferReq(sap.ReportBufferStatusParams{Rnti: 1, Lcid: 2, TxQueueSize: 20})
	s.RemoveLc(1, 2)
	assert.Equal(t, uint32(10), s.QueuedBytes(1))
	s.RemoveUe(1)
	assert.Empty(t, s.SchedDlTriggerReq(DlTriggerReq{}).Allocations)
}

func TestNewScheduler_UnknownPanics(t *testing.T) {
	assert.Panics(t, func() { NewScheduler("proportional-fair", Config{}) })
	assert.NotNil(t, NewScheduler("", Config{DlBandwidth: 25}))
}
