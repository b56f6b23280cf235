package arbitrage

import "math"

const ratioEpsilon = 1e-9

// RunningStats accumulates count, mean and variance in a single pass
// (Welford's algorithm).
type RunningStats struct {
	count int
	mean  float64
	m2    float64
}

func (s *RunningStats) Add(x float64) {
	s.count++
	delta := x - s.mean
	s.mean += delta / float64(s.count)
	delta2 := x - s.mean
	s.m2 += delta * delta2
}

func (s *RunningStats) Count() int {
	return s.count
}

// Mean returns fallback when nothing was added.
func (s *RunningStats) Mean(fallback float64) float64 {
	if s.count == 0 {
		return fallback
	}
	return s.mean
}

// Variance is the sample variance; zero below two observations.
func (s *RunningStats) Variance() float64 {
	if s.count < 2 {
		return 0
	}
	return s.m2 / float64(s.count-1)
}

func (s *RunningStats) StdDev() float64 {
	return math.Sqrt(s.Variance())
}
