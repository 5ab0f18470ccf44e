package workload

import (
	"fmt"
	"math"
	"sort"

	"github.com/iti/rngstream"

	"github.com/ransim/ransim/sim"
)

// CellMeasurement is what a UE measured for one cell, in 3GPP report ranges.
type CellMeasurement struct {
	Cell uint16
	Rsrp uint8 // 0..97
	Rsrq uint8 // 0..34
}

// MeasurementSample is one measurement instant of one UE, cells in id order.
type MeasurementSample struct {
	Time  int64
	Ue    int
	Cells []CellMeasurement
}

// Level returns the measurement of cell, if it was measured.
func (s MeasurementSample) Level(cell uint16) (CellMeasurement, bool) {
	for _, c := range s.Cells {
		if c.Cell == cell {
			return c, true
		}
	}
	return CellMeasurement{}, false
}

// RsrpRange maps an RSRP in dBm to its report range value.
func RsrpRange(dbm float64) uint8 {
	return uint8(clamp(math.Floor(dbm+141), 0, 97))
}

// RsrqRange maps an RSRQ in dB to its report range value.
func RsrqRange(db float64) uint8 {
	return uint8(clamp(math.Floor((db+20)*2), 0, 34))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// uniformSource is the part of a random stream shadowing needs.
type uniformSource interface {
	RandU01() float64
}

// normal draws a standard normal variate with the Box-Muller transform.
func normal(src uniformSource) float64 {
	u1 := src.RandU01()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	u2 := src.RandU01()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// GenerateMeasurements samples every trajectory at its report interval up
// to horizon ticks. Each UE draws log-normal shadowing from its own random
// stream, seeded from spec.Seed and the UE index. The result is sorted by
// time, trajectory order kept for ties.
func GenerateMeasurements(spec *WorkloadSpec, horizon int64) []MeasurementSample {
	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	var out []MeasurementSample
	for i := range spec.Trajectories {
		tr := &spec.Trajectories[i]
		name := sim.SubsystemUe(tr.Ue)
		stream := rngstream.New(fmt.Sprintf("shadowing-%s", name))
		if !stream.SetSeed(streamSeed(rng.SeedFor(name))) {
			panic(fmt.Sprintf("workload: illegal shadowing seed for %s", name))
		}
		out = append(out, sampleTrajectory(tr, stream, horizon)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time < out[j].Time
	})
	return out
}

// MRG32k3a moduli; every seed word must be below its component's modulus.
const (
	mrgM1 = 4294967087
	mrgM2 = 4294944443
)

// streamSeed expands seed into the six words of an rngstream state with
// splitmix64. Words are never zero.
func streamSeed(seed int64) []uint64 {
	x := uint64(seed)
	words := make([]uint64, 6)
	for i := range words {
		x += 0x9e3779b97f4a7c15
		z := x
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		z ^= z >> 31
		m := uint64(mrgM1)
		if i >= 3 {
			m = mrgM2
		}
		words[i] = 1 + z%(m-1)
	}
	return words
}

func sampleTrajectory(tr *TrajectorySpec, src uniformSource, horizon int64) []MeasurementSample {
	interval := sim.Milliseconds(tr.ReportIntervalMs)
	if interval <= 0 {
		return nil
	}
	var out []MeasurementSample
	for t := interval; t < horizon; t += interval {
		levels := interpolate(tr.Points, float64(t)/float64(sim.TicksPerMillisecond))
		cells := make([]uint16, 0, len(levels))
		for id := range levels {
			cells = append(cells, id)
		}
		sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

		sample := MeasurementSample{Time: t, Ue: tr.Ue, Cells: make([]CellMeasurement, 0, len(cells))}
		for _, id := range cells {
			l := levels[id]
			rsrp, rsrq := l.RsrpDbm, l.RsrqDb
			if tr.ShadowingStdDb > 0 {
				rsrp += tr.ShadowingStdDb * normal(src)
				rsrq += tr.ShadowingStdDb / 2 * normal(src)
			}
			sample.Cells = append(sample.Cells, CellMeasurement{Cell: id, Rsrp: RsrpRange(rsrp), Rsrq: RsrqRange(rsrq)})
		}
		out = append(out, sample)
	}
	return out
}

// interpolate returns the mean levels at atMs. A cell is measured only when
// both bracketing points list it.
func interpolate(points []TrajectoryPoint, atMs float64) map[uint16]CellLevel {
	if len(points) == 0 {
		return nil
	}
	if atMs <= float64(points[0].AtMs) {
		return points[0].Cells
	}
	last := points[len(points)-1]
	if atMs >= float64(last.AtMs) {
		return last.Cells
	}
	k := sort.Search(len(points), func(i int) bool { return float64(points[i].AtMs) > atMs })
	a, b := points[k-1], points[k]
	f := (atMs - float64(a.AtMs)) / float64(b.AtMs-a.AtMs)

	out := make(map[uint16]CellLevel, len(a.Cells))
	for id, la := range a.Cells {
		lb, ok := b.Cells[id]
		if !ok {
			continue
		}
		out[id] = CellLevel{
			RsrpDbm: la.RsrpDbm + f*(lb.RsrpDbm-la.RsrpDbm),
			RsrqDb:  la.RsrqDb + f*(lb.RsrqDb-la.RsrqDb),
		}
	}
	return out
}
