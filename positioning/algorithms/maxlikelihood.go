package algorithms

import (
	"math"

	"github.com/wifiloc/pipeline/positioning"
)

// Maximum Likelihood convergence constants. Fixed by decided Open
// Question (see DESIGN.md): the source left these tunable without
// documenting defaults.
const (
	mlMaxIterations      = 25
	mlGradientStep       = 0.5 // meters per iteration, in degrees-equivalent step below
	mlConvergenceEpsilon = 0.1 // meters between iterations
	mlPathLossCoeff      = 20.0
	mlReferenceRSSIAt1m  = -40.0
	mlNoiseSigmaDBm      = 4.0
)

// metersPerDegreeLat approximates degrees-of-latitude to meters; adequate
// for the small local displacements gradient ascent takes per step.
const metersPerDegreeLat = 111320.0

// MaximumLikelihood starts from a Weighted Centroid estimate and iterates
// gradient ascent on the log-likelihood of observed RSSI given a Gaussian
// noise model in dBm, per spec.md §4.12.
type MaximumLikelihood struct {
	Centroid Centroid
}

func (MaximumLikelihood) Name() string { return "maximum_likelihood" }

func (a MaximumLikelihood) Estimate(matched []positioning.MatchedAP) (positioning.Position, bool) {
	if len(matched) == 0 {
		return positioning.Position{}, false
	}

	initial, ok := a.Centroid.Estimate(matched)
	if !ok {
		return positioning.Position{}, false
	}

	lat, lon := initial.Latitude, initial.Longitude
	step := mlGradientStep
	prevLL := logLikelihood(lat, lon, matched)
	converged := false

	for iter := 0; iter < mlMaxIterations; iter++ {
		gLat, gLon := logLikelihoodGradient(lat, lon, matched)
		gradNorm := math.Hypot(gLat, gLon)
		if gradNorm < 1e-12 {
			converged = true
			break
		}

		metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
		if metersPerDegreeLon == 0 {
			metersPerDegreeLon = metersPerDegreeLat
		}

		candidateLat := lat + step*(gLat/gradNorm)/metersPerDegreeLat
		candidateLon := lon + step*(gLon/gradNorm)/metersPerDegreeLon

		candidateLL := logLikelihood(candidateLat, candidateLon, matched)
		if candidateLL < prevLL {
			step /= 2
			continue
		}

		moveMeters := math.Hypot(
			(candidateLat-lat)*metersPerDegreeLat,
			(candidateLon-lon)*metersPerDegreeLon,
		)
		lat, lon = candidateLat, candidateLon
		if candidateLL-prevLL < mlConvergenceEpsilon && moveMeters < mlConvergenceEpsilon {
			prevLL = candidateLL
			converged = true
			break
		}
		prevLL = candidateLL
	}

	confidence := 0.5
	if converged {
		confidence = 0.75
	}
	meanRSSI := 0.0
	for _, m := range matched {
		meanRSSI += m.Observation.RSSIDBm
	}
	meanRSSI /= float64(len(matched))
	confidence *= normalize(meanRSSI, -95, -50, 0.5, 1.0)
	confidence = clamp(confidence, 0, 1)

	return positioning.Position{
		Latitude:    lat,
		Longitude:   lon,
		Altitude:    initial.Altitude,
		HasAltitude: initial.HasAltitude,
		AccuracyM:   initial.AccuracyM,
		Confidence:  confidence,
	}, true
}

func predictedRSSI(lat, lon float64, ap positioning.MatchedAP) float64 {
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	if metersPerDegreeLon == 0 {
		metersPerDegreeLon = metersPerDegreeLat
	}
	dx := (lon - ap.Reference.Longitude) * metersPerDegreeLon
	dy := (lat - ap.Reference.Latitude) * metersPerDegreeLat
	dist := math.Hypot(dx, dy)
	if dist < 1 {
		dist = 1
	}
	return mlReferenceRSSIAt1m - mlPathLossCoeff*math.Log10(dist)
}

// logLikelihood sums Gaussian log-density of each observed RSSI given the
// predicted RSSI at (lat, lon), dropping additive constants that don't
// affect the gradient ascent's direction.
func logLikelihood(lat, lon float64, matched []positioning.MatchedAP) float64 {
	var ll float64
	for _, m := range matched {
		residual := m.Observation.RSSIDBm - predictedRSSI(lat, lon, m)
		ll -= (residual * residual) / (2 * mlNoiseSigmaDBm * mlNoiseSigmaDBm)
	}
	return ll
}

// logLikelihoodGradient approximates the gradient of logLikelihood at
// (lat, lon) via central finite differences.
func logLikelihoodGradient(lat, lon float64, matched []positioning.MatchedAP) (gLat, gLon float64) {
	const h = 1e-6
	llLatPlus := logLikelihood(lat+h, lon, matched)
	llLatMinus := logLikelihood(lat-h, lon, matched)
	llLonPlus := logLikelihood(lat, lon+h, matched)
	llLonMinus := logLikelihood(lat, lon-h, matched)

	gLat = (llLatPlus - llLatMinus) / (2 * h)
	gLon = (llLonPlus - llLonMinus) / (2 * h)
	return gLat, gLon
}
