package workload

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// ArrivalSampler generates packet inter-arrival times.
type ArrivalSampler interface {
	// SampleIAT returns the next inter-arrival time in ticks (>= 1).
	SampleIAT(rng *rand.Rand) int64
}

// PoissonSampler generates exponentially distributed inter-arrival times.
type PoissonSampler struct {
	ratePerTick float64
}

func (s *PoissonSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOneTick(rng.ExpFloat64() / s.ratePerTick)
}

// ConstantArrivalSampler emits packets at exact 1/rate intervals (CBR traffic).
type ConstantArrivalSampler struct {
	iat int64
}

func (s *ConstantArrivalSampler) SampleIAT(_ *rand.Rand) int64 { return s.iat }

// GammaSampler generates Gamma-distributed inter-arrival times; CV > 1
// gives bursty on/off-like traffic.
type GammaSampler struct {
	shape float64 // 1/CV²
	scale float64 // CV²/rate, in ticks
}

func (s *GammaSampler) SampleIAT(rng *rand.Rand) int64 {
	return atLeastOneTick(gammaRand(rng, s.shape, s.scale))
}

// gammaRand samples Gamma(shape, scale) with Marsaglia-Tsang, boosting
// shapes below 1 through Gamma(a) = Gamma(a+1) * U^(1/a).
func gammaRand(rng *rand.Rand, shape, scale float64) float64 {
	if shape < 1.0 {
		u := rng.Float64()
		return gammaRand(rng, shape+1.0, scale) * math.Pow(u, 1.0/shape)
	}
	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*(x*x)*(x*x) {
			return d * v * scale
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * scale
		}
	}
}

func atLeastOneTick(v float64) int64 {
	if iat := int64(v); iat >= 1 {
		return iat
	}
	return 1
}

// NewArrivalSampler creates an ArrivalSampler for a rate in packets per tick.
func NewArrivalSampler(spec ArrivalSpec, ratePerTick float64) ArrivalSampler {
	if ratePerTick < 1e-15 {
		ratePerTick = 1e-15
	}
	switch spec.Process {
	case "constant":
		return &ConstantArrivalSampler{iat: atLeastOneTick(1.0 / ratePerTick)}
	case "gamma":
		cv := 1.0
		if spec.CV != nil && *spec.CV > 0 {
			cv = *spec.CV
		}
		shape := 1.0 / (cv * cv)
		if shape < 0.01 {
			logrus.Warnf("gamma shape %.4f (CV=%.1f) is very small; falling back to poisson", shape, cv)
			return &PoissonSampler{ratePerTick: ratePerTick}
		}
		return &GammaSampler{shape: shape, scale: cv * cv / ratePerTick}
	default:
		return &PoissonSampler{ratePerTick: ratePerTick}
	}
}
