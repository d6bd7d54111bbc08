package algorithms

import "github.com/wifiloc/pipeline/positioning"

// Proximity picks the AP with the strongest RSSI and reports its position.
type Proximity struct{}

func (Proximity) Name() string { return "proximity" }

func (Proximity) Estimate(matched []positioning.MatchedAP) (positioning.Position, bool) {
	if len(matched) == 0 {
		return positioning.Position{}, false
	}

	best := matched[0]
	for _, m := range matched[1:] {
		if m.Observation.RSSIDBm > best.Observation.RSSIDBm {
			best = m
		}
	}

	confidence := normalize(best.Observation.RSSIDBm, -89, -35, 0, 0.85)

	return positioning.Position{
		Latitude:    best.Reference.Latitude,
		Longitude:   best.Reference.Longitude,
		Altitude:    best.Reference.Altitude,
		HasAltitude: best.Reference.HasAltitude,
		AccuracyM:   best.Reference.HorizontalAccuracyM,
		Confidence:  confidence,
	}, true
}
