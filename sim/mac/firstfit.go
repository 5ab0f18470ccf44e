package mac

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/ransim/ransim/sim/sap"
)

// DefaultCqi is assumed for a UE that has not reported downlink CQI yet.
const DefaultCqi uint8 = 1

// FirstFit is the reference allocation strategy. Every TTI it visits UEs in
// RNTI order and hands each one the lowest-indexed free RBGs it may use until
// its queued bytes are covered or the band is exhausted.
type FirstFit struct {
	cfg    Config
	numRbg int
	rbSize int
	cqi    *CqiStore

	// queued bytes per logical channel, as last reported minus what was granted since
	buffers map[sap.Rnti]map[sap.Lcid]uint32
}

var _ Scheduler = (*FirstFit)(nil)

// NewFirstFit creates a first-fit scheduler for cfg.
func NewFirstFit(cfg Config) *FirstFit {
	return &FirstFit{
		cfg:     cfg,
		numRbg:  NumRbg(cfg.DlBandwidth),
		rbSize:  RbgSize(cfg.DlBandwidth),
		cqi:     NewCqiStore(cfg.UlCqiFilter),
		buffers: make(map[sap.Rnti]map[sap.Lcid]uint32),
	}
}

// Cqi exposes the CQI store.
func (s *FirstFit) Cqi() *CqiStore { return s.cqi }

// QueuedBytes returns the scheduler's view of the queued bytes of rnti.
func (s *FirstFit) QueuedBytes(rnti sap.Rnti) uint32 {
	var total uint32
	for _, b := range s.buffers[rnti] {
		total += b
	}
	return total
}

func (s *FirstFit) SchedDlRlcBufferReq(params sap.ReportBufferStatusParams) {
	lcs, ok := s.buffers[params.Rnti]
	if !ok {
		lcs = make(map[sap.Lcid]uint32)
		s.buffers[params.Rnti] = lcs
	}
	lcs[params.Lcid] = params.TxQueueSize + params.RetxQueueSize + uint32(params.StatusPduSize)
}

func (s *FirstFit) SchedDlCqiInfoReq(req DlCqiInfoReq) {
	for _, r := range req.Reports {
		s.cqi.UpdateDl(r)
		if s.cfg.Ffr != nil {
			s.cfg.Ffr.ReportDlCqiInfo(r)
		}
	}
}

func (s *FirstFit) SchedUlCqiInfoReq(req UlCqiInfoReq) {
	if !s.cqi.UpdateUl(req.Report) {
		return
	}
	if s.cfg.Ffr != nil {
		s.cfg.Ffr.ReportUlCqiInfo(req.Report)
	}
}

func (s *FirstFit) SchedDlTriggerReq(req DlTriggerReq) DlConfigInd {
	ind := DlConfigInd{SfnSf: req.SfnSf}
	cellMap := s.availableRbgs()
	used := make([]bool, s.numRbg)

	rntis := make([]sap.Rnti, 0, len(s.buffers))
	for rnti := range s.buffers {
		if s.QueuedBytes(rnti) > 0 {
			rntis = append(rntis, rnti)
		}
	}
	slices.Sort(rntis)

	for _, rnti := range rntis {
		need := s.QueuedBytes(rnti)
		alloc := DlAllocation{Rnti: rnti}
		alloc.Cqi, _ = s.cqi.DlWideband(rnti)
		if alloc.Cqi == 0 {
			alloc.Cqi = DefaultCqi
		}
		for rbg := 0; rbg < s.numRbg && alloc.TbSize < need; rbg++ {
			if used[rbg] || rbg >= len(cellMap) || !cellMap[rbg] {
				continue
			}
			if s.cfg.Ffr != nil && !s.cfg.Ffr.IsDlRbgAvailableForUe(rbg, rnti) {
				continue
			}
			cqi, ok := s.cqi.DlSubband(rnti, rbg)
			if !ok || cqi == 0 {
				cqi = DefaultCqi
			}
			used[rbg] = true
			alloc.Rbgs = append(alloc.Rbgs, rbg)
			alloc.TbSize += RbCapacityBytes(cqi) * uint32(s.rbSize)
		}
		if len(alloc.Rbgs) == 0 {
			continue
		}
		if s.cfg.Ffr != nil {
			alloc.Tpc = s.cfg.Ffr.GetTpc(rnti)
		}
		alloc.Lcs = s.grant(rnti, alloc.TbSize)
		logrus.Debugf("first-fit sfn=%d rnti=%d rbgs=%v tb=%d", req.SfnSf, rnti, alloc.Rbgs, alloc.TbSize)
		ind.Allocations = append(ind.Allocations, alloc)
	}
	return ind
}

// grant splits a transport block across the UE's logical channels in LCID
// order and deducts it from the queued bytes.
func (s *FirstFit) grant(rnti sap.Rnti, tb uint32) []LcAllocation {
	lcs := s.buffers[rnti]
	ids := make([]sap.Lcid, 0, len(lcs))
	for lcid, b := range lcs {
		if b > 0 {
			ids = append(ids, lcid)
		}
	}
	slices.Sort(ids)

	var out []LcAllocation
	for _, lcid := range ids {
		if tb == 0 {
			break
		}
		n := min(lcs[lcid], tb)
		out = append(out, LcAllocation{Lcid: lcid, Bytes: n})
		lcs[lcid] -= n
		tb -= n
	}
	return out
}

func (s *FirstFit) availableRbgs() []bool {
	if s.cfg.Ffr != nil {
		return s.cfg.Ffr.GetAvailableDlRbg()
	}
	all := make([]bool, s.numRbg)
	for i := range all {
		all[i] = true
	}
	return all
}

func (s *FirstFit) RemoveUe(rnti sap.Rnti) {
	delete(s.buffers, rnti)
	s.cqi.Remove(rnti)
}

func (s *FirstFit) RemoveLc(rnti sap.Rnti, lcid sap.Lcid) {
	delete(s.buffers[rnti], lcid)
}
