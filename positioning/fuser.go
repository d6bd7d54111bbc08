package positioning

// Candidate pairs an algorithm's name, normalized weight, and the position
// it produced.
type Candidate struct {
	Name     string
	Weight   float64
	Position Position
}

// Fuser combines candidate positions by their normalized final weights
// into a single fused Position, per spec.md §4.13.
type Fuser struct{}

// NewFuser constructs a Fuser.
func NewFuser() *Fuser { return &Fuser{} }

// Fuse returns the weighted fusion of candidates and true, or false if
// candidates is empty (the dedicated failure value case: no algorithm had
// non-zero weight).
func (Fuser) Fuse(candidates []Candidate) (Position, bool) {
	if len(candidates) == 0 {
		return Position{}, false
	}

	var sumW, sumLat, sumLon, sumAlt, altW, sumAccuracy, sumConfidence float64
	for _, c := range candidates {
		sumW += c.Weight
		sumLat += c.Weight * c.Position.Latitude
		sumLon += c.Weight * c.Position.Longitude
		sumAccuracy += c.Weight * c.Position.AccuracyM
		sumConfidence += c.Weight * c.Position.Confidence
		if c.Position.HasAltitude {
			sumAlt += c.Weight * c.Position.Altitude
			altW += c.Weight
		}
	}
	if sumW == 0 {
		return Position{}, false
	}

	confidence := sumConfidence / sumW
	if confidence > 1 {
		confidence = 1
	}

	fused := Position{
		Latitude:   sumLat / sumW,
		Longitude:  sumLon / sumW,
		AccuracyM:  sumAccuracy / sumW,
		Confidence: confidence,
	}
	if altW > 0 {
		fused.Altitude = sumAlt / altW
		fused.HasAltitude = true
	}
	return fused, true
}
