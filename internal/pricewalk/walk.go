// Package pricewalk generates the synthetic per-subject YES-price series that
// drives the Market Mover bot. The walk is a slow drift with occasional jump
// spikes; the NO price is always derived as 1 - yes at the call site and never
// stored.
package pricewalk

import "math/rand/v2"

const (
	// First generation clamps wider than subsequent steps. The asymmetry is
	// deliberate product behavior; do not unify.
	initFloor = 0.01
	initCeil  = 0.99
	stepFloor = 0.05
	stepCeil  = 0.95

	driftMin = 0.001
	driftMax = 0.01

	spikeChance = 0.02
	spikeMin    = 0.05
	spikeMax    = 0.20

	// Seeding spreads the initial price within ±30% of the configured target
	// so a demo run reaches the trigger within a short observation window.
	seedSpread = 0.3
)

// Initialize produces the first price for a subject. When a YES target is
// configured the seed lands near it; a NO target seeds near 1 - targetNo;
// with no target the seed is uniform in [0.25, 0.75].
func Initialize(rng *rand.Rand, targetYes, targetNo *float64) float64 {
	var seed float64
	switch {
	case targetYes != nil:
		base := *targetYes
		seed = base + uniform(rng, -seedSpread*base, seedSpread*base)
	case targetNo != nil:
		base := 1 - *targetNo
		seed = base + uniform(rng, -seedSpread*base, seedSpread*base)
	default:
		seed = uniform(rng, 0.25, 0.75)
	}
	return clamp(seed, initFloor, initCeil)
}

// Step advances a price one tick: a small drift with random sign, plus a 2%
// chance of a larger spike with an independently drawn sign. Pure in
// (previous, rng).
func Step(rng *rand.Rand, previous float64) float64 {
	next := previous + uniform(rng, driftMin, driftMax)*sign(rng)
	if rng.Float64() < spikeChance {
		next += uniform(rng, spikeMin, spikeMax) * sign(rng)
	}
	return clamp(next, stepFloor, stepCeil)
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func sign(rng *rand.Rand) float64 {
	if rng.Float64() < 0.5 {
		return -1
	}
	return 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
