package positioning

import (
	"math"

	"github.com/wifiloc/pipeline/config"
)

// zScoreOutlierThreshold is the |z| above which an RSSI sample is
// considered an outlier, per spec.md §4.10.
const zScoreOutlierThreshold = 2.0

// uniformStddevThreshold is the stddev (in dBm) below which a matched set
// is considered uniform absent any outliers.
const uniformStddevThreshold = 4.0

// Classifier maps a scan's matched APs to a FactorSet.
type Classifier struct {
	cfg config.Positioning
}

// NewClassifier constructs a Classifier from positioning thresholds.
func NewClassifier(cfg config.Positioning) *Classifier {
	return &Classifier{cfg: cfg}
}

// Match resolves scans against store, keeping only observations whose
// reference record exists and is eligible for positioning.
func Match(scans []ScanObservation, store APStore) []MatchedAP {
	matched := make([]MatchedAP, 0, len(scans))
	for _, s := range scans {
		ap, ok := store.Lookup(s.MAC)
		if !ok || !ap.Status.Eligible() {
			continue
		}
		matched = append(matched, MatchedAP{Observation: s, Reference: ap})
	}
	return matched
}

// Classify computes the four-factor FactorSet for a set of already-matched
// APs.
func (c *Classifier) Classify(matched []MatchedAP) FactorSet {
	return FactorSet{
		APCount:            classifyAPCount(len(matched)),
		SignalQuality:      c.classifySignalQuality(matched),
		SignalDistribution: classifySignalDistribution(matched),
		Geometry: classifyGeometry(matched,
			c.cfg.GDOPExcellent, c.cfg.GDOPGood, c.cfg.GDOPFair, c.cfg.CollinearityEpsilon),
	}
}

func classifyAPCount(n int) APCount {
	switch {
	case n <= 1:
		return APCountSingle
	case n == 2:
		return APCountTwo
	case n == 3:
		return APCountThree
	default:
		return APCountFourPlus
	}
}

func meanRSSI(matched []MatchedAP) float64 {
	if len(matched) == 0 {
		return 0
	}
	sum := 0.0
	for _, m := range matched {
		sum += m.Observation.RSSIDBm
	}
	return sum / float64(len(matched))
}

func (c *Classifier) classifySignalQuality(matched []MatchedAP) SignalQuality {
	mean := meanRSSI(matched)
	switch {
	case mean > c.cfg.RSSIStrong:
		return SignalStrong
	case mean > c.cfg.RSSIMedium:
		return SignalMedium
	case mean > c.cfg.RSSIWeak:
		return SignalWeak
	default:
		return SignalVeryWeak
	}
}

func classifySignalDistribution(matched []MatchedAP) SignalDistribution {
	if len(matched) < 2 {
		return DistributionUniform
	}

	mean := meanRSSI(matched)
	var sumSq float64
	for _, m := range matched {
		d := m.Observation.RSSIDBm - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / float64(len(matched)))

	hasOutlier := false
	if stddev > 0 {
		for _, m := range matched {
			z := (m.Observation.RSSIDBm - mean) / stddev
			if math.Abs(z) > zScoreOutlierThreshold {
				hasOutlier = true
				break
			}
		}
	}

	switch {
	case hasOutlier:
		return DistributionOutliers
	case stddev < uniformStddevThreshold:
		return DistributionUniform
	default:
		return DistributionMixed
	}
}
