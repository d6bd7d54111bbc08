package positioning

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// weightedCentroid returns the RSSI-weighted centroid of aps, using weight
// 10^(rssi/10) per spec.md §4.10.
func weightedCentroid(aps []MatchedAP) (lat, lon float64) {
	var sumW, sumLat, sumLon float64
	for _, ap := range aps {
		w := math.Pow(10, ap.Observation.RSSIDBm/10)
		sumW += w
		sumLat += w * ap.Reference.Latitude
		sumLon += w * ap.Reference.Longitude
	}
	if sumW == 0 {
		return 0, 0
	}
	return sumLat / sumW, sumLon / sumW
}

// gdop computes the geometric dilution of precision for aps relative to
// their weighted centroid: build H as unit vectors from the centroid to
// each AP, then GDOP = sqrt(trace((HᵀH)^-1)).
//
// Returns (gdop, ok); ok is false when H is singular (degenerate or
// collinear geometry makes HᵀH non-invertible).
func gdop(aps []MatchedAP) (float64, bool) {
	if len(aps) < 2 {
		return 0, false
	}
	centerLat, centerLon := weightedCentroid(aps)

	h := mat.NewDense(len(aps), 2, nil)
	for i, ap := range aps {
		dx := ap.Reference.Longitude - centerLon
		dy := ap.Reference.Latitude - centerLat
		norm := math.Hypot(dx, dy)
		if norm == 0 {
			h.Set(i, 0, 0)
			h.Set(i, 1, 0)
			continue
		}
		h.Set(i, 0, dx/norm)
		h.Set(i, 1, dy/norm)
	}

	var hth mat.Dense
	hth.Mul(h.T(), h)

	var inv mat.Dense
	if err := inv.Inverse(&hth); err != nil {
		return 0, false
	}

	trace := inv.At(0, 0) + inv.At(1, 1)
	if trace < 0 || math.IsNaN(trace) || math.IsInf(trace, 0) {
		return 0, false
	}
	return math.Sqrt(trace), true
}

// isCollinear reports whether the matched APs' positions are approximately
// collinear via PCA: the minor axis's share of the total variance (the
// smaller principal component's variance divided by the sum of both) falls
// below epsilon.
func isCollinear(aps []MatchedAP, epsilon float64) bool {
	if len(aps) < 3 {
		return true
	}

	data := mat.NewDense(len(aps), 2, nil)
	for i, ap := range aps {
		data.Set(i, 0, ap.Reference.Longitude)
		data.Set(i, 1, ap.Reference.Latitude)
	}

	var pc stat.PC
	ok := pc.PrincipalComponents(data, nil)
	if !ok {
		return true
	}

	vars := pc.VarsTo(nil)
	if len(vars) < 2 {
		return true
	}
	total := vars[0] + vars[1]
	if total == 0 {
		return true
	}
	minorFraction := vars[1] / total
	return minorFraction < epsilon
}

// classifyGeometry maps a GDOP value (or collinearity) to a quality
// bucket per spec.md §4.10's thresholds.
func classifyGeometry(aps []MatchedAP, excellent, good, fair, collinearityEps float64) GeometricQuality {
	if isCollinear(aps, collinearityEps) {
		return GeometryCollinear
	}

	d, ok := gdop(aps)
	if !ok {
		return GeometryCollinear
	}

	switch {
	case d < excellent:
		return GeometryExcellent
	case d < good:
		return GeometryGood
	case d < fair:
		return GeometryFair
	default:
		return GeometryPoor
	}
}
