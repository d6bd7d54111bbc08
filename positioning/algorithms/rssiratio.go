package algorithms

import (
	"math"

	"github.com/wifiloc/pipeline/positioning"
)

// RSSIRatio combines pairwise position estimates weighted by relative
// signal strength, per spec.md §4.12. Requires at least two matched APs.
type RSSIRatio struct {
	PathLossCoeff float64
}

func (RSSIRatio) Name() string { return "rssi_ratio" }

func (a RSSIRatio) Estimate(matched []positioning.MatchedAP) (positioning.Position, bool) {
	if len(matched) < 2 {
		return positioning.Position{}, false
	}

	coeff := a.PathLossCoeff
	if coeff == 0 {
		coeff = 20
	}

	var sumLat, sumLon, sumAlt, sumAccuracy, sumConfidence, sumW, altWeight float64
	pairs := 0

	for i := 0; i < len(matched); i++ {
		for j := i + 1; j < len(matched); j++ {
			pi, pj := matched[i], matched[j]
			r := math.Pow(10, (pi.Observation.RSSIDBm-pj.Observation.RSSIDBm)/coeff)

			lat := (pi.Reference.Latitude + r*pj.Reference.Latitude) / (1 + r)
			lon := (pi.Reference.Longitude + r*pj.Reference.Longitude) / (1 + r)

			pairWeight := 1.0
			sumLat += pairWeight * lat
			sumLon += pairWeight * lon
			sumW += pairWeight

			if pi.Reference.HasAltitude && pj.Reference.HasAltitude {
				alt := (pi.Reference.Altitude + r*pj.Reference.Altitude) / (1 + r)
				sumAlt += pairWeight * alt
				altWeight += pairWeight
			}

			sumAccuracy += pairWeight * (pi.Reference.HorizontalAccuracyM + pj.Reference.HorizontalAccuracyM) / 2
			meanRSSI := (pi.Observation.RSSIDBm + pj.Observation.RSSIDBm) / 2
			sumConfidence += pairWeight * normalize(meanRSSI, -95, -40, 0.1, 0.75)
			pairs++
		}
	}

	if sumW == 0 || pairs == 0 {
		return positioning.Position{}, false
	}

	pos := positioning.Position{
		Latitude:   sumLat / sumW,
		Longitude:  sumLon / sumW,
		AccuracyM:  sumAccuracy / sumW,
		Confidence: clamp(sumConfidence/float64(pairs), 0, 1),
	}
	if altWeight > 0 {
		pos.Altitude = sumAlt / altWeight
		pos.HasAltitude = true
	}
	return pos, true
}
