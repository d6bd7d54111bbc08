// Package algorithms implements the five positioning algorithms: Proximity,
// RSSI-Ratio, Weighted Centroid, Trilateration, and Maximum Likelihood.
// Each takes a matched AP set and config thresholds, and produces a
// position or reports that it cannot.
package algorithms

import "github.com/wifiloc/pipeline/positioning"

// Algorithm estimates a position from a set of matched access points.
// Estimate returns ok=false when the algorithm cannot produce a position
// for this input (e.g. unknown strongest AP, singular trilateration
// geometry).
type Algorithm interface {
	Name() string
	Estimate(matched []positioning.MatchedAP) (positioning.Position, bool)
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalize maps v linearly from [inLo, inHi] to [outLo, outHi], clamping
// v to the input range first.
func normalize(v, inLo, inHi, outLo, outHi float64) float64 {
	v = clamp(v, inLo, inHi)
	if inHi == inLo {
		return outLo
	}
	frac := (v - inLo) / (inHi - inLo)
	return outLo + frac*(outHi-outLo)
}
