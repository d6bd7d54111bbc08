package positioning

import (
	"testing"

	"github.com/wifiloc/pipeline/config"
)

func basePositioningConfig() config.Positioning {
	return config.Positioning{
		RSSIStrong:          -70,
		RSSIMedium:          -85,
		RSSIWeak:            -95,
		GDOPExcellent:       2.0,
		GDOPGood:            4.0,
		GDOPFair:            6.0,
		PathLossCoeff:       20,
		CollinearityEpsilon: 0.02,
	}
}

func ap(mac string, lat, lon float64) APRecord {
	return APRecord{MAC: mac, Latitude: lat, Longitude: lon, HorizontalAccuracyM: 10, Status: APStatusActive, Confidence: 1}
}

func TestMatchDropsUnknownAndIneligible(t *testing.T) {
	store := NewSnapshotAPStore([]APRecord{
		ap("aa:bb:cc:dd:ee:01", 1, 1),
		{MAC: "aa:bb:cc:dd:ee:02", Status: APStatusExpired},
	})
	scans := []ScanObservation{
		{MAC: "aa:bb:cc:dd:ee:01", RSSIDBm: -60},
		{MAC: "aa:bb:cc:dd:ee:02", RSSIDBm: -60},
		{MAC: "aa:bb:cc:dd:ee:99", RSSIDBm: -60},
	}
	matched := Match(scans, store)
	if len(matched) != 1 {
		t.Fatalf("expected 1 matched AP, got %d", len(matched))
	}
}

func TestClassifyAPCount(t *testing.T) {
	cases := []struct {
		n        int
		expected APCount
	}{
		{0, APCountSingle}, {1, APCountSingle}, {2, APCountTwo}, {3, APCountThree}, {4, APCountFourPlus}, {9, APCountFourPlus},
	}
	for _, c := range cases {
		if got := classifyAPCount(c.n); got != c.expected {
			t.Errorf("classifyAPCount(%d) = %s, want %s", c.n, got, c.expected)
		}
	}
}

func TestClassifySignalQualityBuckets(t *testing.T) {
	cfg := basePositioningConfig()
	classifier := NewClassifier(cfg)

	strong := []MatchedAP{{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("m1", 1, 1)}}
	weak := []MatchedAP{{Observation: ScanObservation{RSSIDBm: -92}, Reference: ap("m2", 1, 1)}}
	veryWeak := []MatchedAP{{Observation: ScanObservation{RSSIDBm: -98}, Reference: ap("m3", 1, 1)}}

	if got := classifier.Classify(strong).SignalQuality; got != SignalStrong {
		t.Errorf("expected STRONG, got %s", got)
	}
	if got := classifier.Classify(weak).SignalQuality; got != SignalWeak {
		t.Errorf("expected WEAK, got %s", got)
	}
	if got := classifier.Classify(veryWeak).SignalQuality; got != SignalVeryWeak {
		t.Errorf("expected VERY_WEAK, got %s", got)
	}
}

func TestSignalDistributionDetectsOutlier(t *testing.T) {
	matched := []MatchedAP{
		{Observation: ScanObservation{RSSIDBm: -60}},
		{Observation: ScanObservation{RSSIDBm: -61}},
		{Observation: ScanObservation{RSSIDBm: -62}},
		{Observation: ScanObservation{RSSIDBm: -60}},
		{Observation: ScanObservation{RSSIDBm: -61}},
		{Observation: ScanObservation{RSSIDBm: -62}},
		{Observation: ScanObservation{RSSIDBm: -95}},
	}
	// With only four samples no |z| can exceed sqrt(3); seven samples put
	// -95 at |z| of about 2.45.
	if got := classifySignalDistribution(matched); got != DistributionOutliers {
		t.Fatalf("expected OUTLIERS, got %s", got)
	}
}

func TestGeometryCollinearOverridesPoor(t *testing.T) {
	// Three APs on a near-perfect line.
	matched := []MatchedAP{
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("a", 0, 0)},
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("b", 0, 0.001)},
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("c", 0, 0.002)},
	}
	classifier := NewClassifier(basePositioningConfig())
	if got := classifier.Classify(matched).Geometry; got != GeometryCollinear {
		t.Fatalf("expected COLLINEAR, got %s", got)
	}
}

func TestGeometryExcellentForWellSpreadAPs(t *testing.T) {
	matched := []MatchedAP{
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("a", 0, 0)},
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("b", 0.001, 0)},
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("c", 0, 0.001)},
		{Observation: ScanObservation{RSSIDBm: -60}, Reference: ap("d", 0.001, 0.001)},
	}
	classifier := NewClassifier(basePositioningConfig())
	got := classifier.Classify(matched).Geometry
	if got == GeometryCollinear || got == GeometryPoor {
		t.Fatalf("expected a well-conditioned geometry bucket, got %s", got)
	}
}
