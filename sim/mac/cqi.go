package mac

import (
	"github.com/sirupsen/logrus"

	"github.com/ransim/ransim/sim/sap"
)

// spectralEfficiency is bits/s/Hz per CQI index (CQI 0 = out of range).
var spectralEfficiency = [16]float64{
	0.0, 0.1523, 0.2344, 0.3770, 0.6016, 0.8770, 1.1758, 1.4766,
	1.9141, 2.4063, 2.7305, 3.3223, 3.9023, 4.5234, 5.1152, 5.5547,
}

// MaxCqi is the highest CQI index.
const MaxCqi = 15

// resource elements per RB per TTI available for data: 12 subcarriers x 11 symbols
const dataResourceElementsPerRb = 12 * 11

// SpectralEfficiency returns the efficiency of a CQI index, clamping above MaxCqi.
func SpectralEfficiency(cqi uint8) float64 {
	if cqi > MaxCqi {
		cqi = MaxCqi
	}
	return spectralEfficiency[cqi]
}

// RbCapacityBytes returns the bytes one resource block carries in one TTI at cqi.
func RbCapacityBytes(cqi uint8) uint32 {
	return uint32(SpectralEfficiency(cqi) * dataResourceElementsPerRb / 8)
}

// CqiStore keeps the latest channel quality reported for each UE and applies
// the uplink CQI filter.
type CqiStore struct {
	filter UlCqiFilter

	dlWideband map[sap.Rnti]uint8
	dlSubband  map[sap.Rnti][]uint8
	ulSinr     map[sap.Rnti][]float64

	ignoredUl int
}

// NewCqiStore returns an empty store using filter for uplink reports.
func NewCqiStore(filter UlCqiFilter) *CqiStore {
	return &CqiStore{
		filter:     filter,
		dlWideband: make(map[sap.Rnti]uint8),
		dlSubband:  make(map[sap.Rnti][]uint8),
		ulSinr:     make(map[sap.Rnti][]float64),
	}
}

// Filter returns the uplink filter mode.
func (s *CqiStore) Filter() UlCqiFilter { return s.filter }

// UpdateDl stores a downlink report, replacing the previous one.
func (s *CqiStore) UpdateDl(r sap.DlCqiReport) {
	s.dlWideband[r.Rnti] = r.WidebandCqi
	if len(r.SubbandCqi) > 0 {
		s.dlSubband[r.Rnti] = append([]uint8(nil), r.SubbandCqi...)
	}
}

// UpdateUl stores an uplink report if the filter accepts its source and
// reports whether it was stored.
func (s *CqiStore) UpdateUl(r sap.UlCqiReport) bool {
	if !s.filter.Accepts(r.Type) {
		s.ignoredUl++
		logrus.Debugf("CQI store: %s filter ignores %s report from rnti=%d", s.filter, r.Type, r.Rnti)
		return false
	}
	s.ulSinr[r.Rnti] = append([]float64(nil), r.Sinr...)
	return true
}

// IgnoredUlReports counts uplink reports rejected by the filter.
func (s *CqiStore) IgnoredUlReports() int { return s.ignoredUl }

// DlWideband returns the last wideband CQI of rnti.
func (s *CqiStore) DlWideband(rnti sap.Rnti) (uint8, bool) {
	cqi, ok := s.dlWideband[rnti]
	return cqi, ok
}

// DlSubband returns the CQI of one RBG, falling back to the wideband value
// when no subband report covers it.
func (s *CqiStore) DlSubband(rnti sap.Rnti, rbg int) (uint8, bool) {
	if sb := s.dlSubband[rnti]; rbg >= 0 && rbg < len(sb) {
		return sb[rbg], true
	}
	return s.DlWideband(rnti)
}

// UlSinr returns the last accepted per-RB uplink SINR vector of rnti.
func (s *CqiStore) UlSinr(rnti sap.Rnti) ([]float64, bool) {
	v, ok := s.ulSinr[rnti]
	return v, ok
}

// Remove forgets every report of rnti.
func (s *CqiStore) Remove(rnti sap.Rnti) {
	delete(s.dlWideband, rnti)
	delete(s.dlSubband, rnti)
	delete(s.ulSinr, rnti)
}
