package positioning

import "testing"

func TestFuseEmptyReturnsFailure(t *testing.T) {
	f := NewFuser()
	_, ok := f.Fuse(nil)
	if ok {
		t.Fatal("expected failure value for empty candidates")
	}
}

func TestFuseWeightedAverage(t *testing.T) {
	f := NewFuser()
	candidates := []Candidate{
		{Name: "a", Weight: 0.75, Position: Position{Latitude: 10, Longitude: 10, AccuracyM: 5, Confidence: 0.9}},
		{Name: "b", Weight: 0.25, Position: Position{Latitude: 20, Longitude: 20, AccuracyM: 15, Confidence: 0.5}},
	}
	pos, ok := f.Fuse(candidates)
	if !ok {
		t.Fatal("expected success")
	}
	wantLat := 0.75*10 + 0.25*20
	if diff := pos.Latitude - wantLat; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected lat %v, got %v", wantLat, pos.Latitude)
	}
	if pos.Confidence <= 0 || pos.Confidence > 1 {
		t.Fatalf("confidence out of [0,1]: %v", pos.Confidence)
	}
}

func TestFuseAltitudeOnlyFromAltitudeBearingCandidates(t *testing.T) {
	f := NewFuser()
	candidates := []Candidate{
		{Name: "a", Weight: 0.5, Position: Position{Altitude: 100, HasAltitude: true}},
		{Name: "b", Weight: 0.5, Position: Position{HasAltitude: false}},
	}
	pos, ok := f.Fuse(candidates)
	if !ok {
		t.Fatal("expected success")
	}
	if !pos.HasAltitude {
		t.Fatal("expected fused position to carry altitude from the one candidate that has it")
	}
	if pos.Altitude != 100 {
		t.Fatalf("expected altitude 100 averaged over its own weight, got %v", pos.Altitude)
	}
}
