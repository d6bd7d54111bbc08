package algorithms

import (
	"math"

	"github.com/wifiloc/pipeline/positioning"
)

// defaultHorizontalAccuracyM is used when a matched AP lacks a recorded
// horizontal accuracy.
const defaultHorizontalAccuracyM = 15.0

// Centroid computes an RSSI-weighted mean of matched AP positions, per
// spec.md §4.12.
type Centroid struct {
	// KnownAPCount is the total number of reference APs the store holds
	// for this device's feed, used for the confidence formula
	// min(0.8, (scanned/known) x 0.7). If zero, confidence falls back to
	// scanned-count alone.
	KnownAPCount int
}

func (Centroid) Name() string { return "weighted_centroid" }

func (c Centroid) Estimate(matched []positioning.MatchedAP) (positioning.Position, bool) {
	if len(matched) == 0 {
		return positioning.Position{}, false
	}

	var sumW, sumLat, sumLon, sumAlt, altW, sumAccuracy float64
	for _, m := range matched {
		normalized := normalize(m.Observation.RSSIDBm, -100, -30, 0, 1)
		w := math.Pow(10, normalized)
		sumW += w
		sumLat += w * m.Reference.Latitude
		sumLon += w * m.Reference.Longitude
		if m.Reference.HasAltitude {
			sumAlt += w * m.Reference.Altitude
			altW += w
		}
		accuracy := m.Reference.HorizontalAccuracyM
		if accuracy == 0 {
			accuracy = defaultHorizontalAccuracyM
		}
		sumAccuracy += accuracy
	}
	if sumW == 0 {
		return positioning.Position{}, false
	}

	known := c.KnownAPCount
	if known <= 0 {
		known = len(matched)
	}
	confidence := (float64(len(matched)) / float64(known)) * 0.7
	if confidence > 0.8 {
		confidence = 0.8
	}

	pos := positioning.Position{
		Latitude:   sumLat / sumW,
		Longitude:  sumLon / sumW,
		AccuracyM:  sumAccuracy / float64(len(matched)),
		Confidence: confidence,
	}
	if altW > 0 {
		pos.Altitude = sumAlt / altW
		pos.HasAltitude = true
	}
	return pos, true
}
