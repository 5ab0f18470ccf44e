package workload

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoissonSampler_MeanIAT_MatchesRate(t *testing.T) {
	// GIVEN a Poisson sampler at 100 pkt/s
	rng := rand.New(rand.NewSource(42))
	sampler := NewArrivalSampler(ArrivalSpec{Process: "poisson"}, 100.0/1e6)

	// WHEN 10000 IATs are sampled
	n := 10000
	sum := int64(0)
	for i := 0; i < n; i++ {
		sum += sampler.SampleIAT(rng)
	}

	// THEN the mean IAT is 1/rate = 10000 ticks within 5%
	assert.InDelta(t, 10000, float64(sum)/float64(n), 500)
}

func TestGammaSampler_HighCV_ProducesBurstierArrivals(t *testing.T) {
	// GIVEN a gamma sampler with CV=3.5 and a Poisson sampler at the same rate
	rng1 := rand.New(rand.NewSource(42))
	rng2 := rand.New(rand.NewSource(42))
	cv := 3.5
	rate := 100.0 / 1e6
	gamma := NewArrivalSampler(ArrivalSpec{Process: "gamma", CV: &cv}, rate)
	poisson := NewArrivalSampler(ArrivalSpec{Process: "poisson"}, rate)

	// WHEN 10000 IATs are sampled from each
	n := 10000
	g := make([]float64, n)
	p := make([]float64, n)
	for i := 0; i < n; i++ {
		g[i] = float64(gamma.SampleIAT(rng1))
		p[i] = float64(poisson.SampleIAT(rng2))
	}

	// THEN the gamma process is burstier
	assert.Greater(t, coefficientOfVariation(g), 2.0)
	assert.InDelta(t, 1.0, coefficientOfVariation(p), 0.2)
}

func TestGammaSampler_TinyShapeFallsBackToPoisson(t *testing.T) {
	cv := 20.0
	_, ok := NewArrivalSampler(ArrivalSpec{Process: "gamma", CV: &cv}, 1e-4).(*PoissonSampler)
	assert.True(t, ok)
}

func TestConstantArrivalSampler_ExactIntervals(t *testing.T) {
	// GIVEN a CBR flow of 50 pkt/s
	sampler := NewArrivalSampler(ArrivalSpec{Process: "constant"}, 50.0/1e6)

	// THEN every IAT is exactly 20 ms regardless of RNG state
	rng1 := rand.New(rand.NewSource(1))
	rng2 := rand.New(rand.NewSource(999))
	for i := 0; i < 50; i++ {
		assert.Equal(t, int64(20000), sampler.SampleIAT(rng1))
		assert.Equal(t, int64(20000), sampler.SampleIAT(rng2))
	}
}

func TestArrivalSamplers_MinimumOneTick(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, process := range []string{"constant", "poisson", "gamma"} {
		s := NewArrivalSampler(ArrivalSpec{Process: process}, 10.0)
		for i := 0; i < 100; i++ {
			assert.GreaterOrEqual(t, s.SampleIAT(rng), int64(1), process)
		}
	}
}

func coefficientOfVariation(vals []float64) float64 {
	n := float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean := sum / n
	sumSq := 0.0
	for _, v := range vals {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq/n) / mean
}
