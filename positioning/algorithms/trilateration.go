package algorithms

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/wifiloc/pipeline/positioning"
)

// trilaterationMaxIterations bounds the Gauss-Newton solve.
const trilaterationMaxIterations = 20

// trilaterationConvergenceEpsilon is the step-size (degrees) below which
// iteration stops.
const trilaterationConvergenceEpsilon = 1e-9

// Trilateration requires at least three non-collinear APs with known
// positions; it estimates distances via log-distance path loss and solves
// for position with Gauss-Newton least squares.
type Trilateration struct {
	PathLossCoeff float64
	// ReferenceRSSIAt1m is the expected RSSI at one meter, used by the
	// log-distance path loss model. Defaults to -40 dBm if zero.
	ReferenceRSSIAt1m float64
}

func (Trilateration) Name() string { return "trilateration" }

func (t Trilateration) Estimate(matched []positioning.MatchedAP) (positioning.Position, bool) {
	if len(matched) < 3 {
		return positioning.Position{}, false
	}

	coeff := t.PathLossCoeff
	if coeff == 0 {
		coeff = 20
	}
	ref := t.ReferenceRSSIAt1m
	if ref == 0 {
		ref = -40
	}

	distances := make([]float64, len(matched))
	for i, m := range matched {
		distances[i] = math.Pow(10, (ref-m.Observation.RSSIDBm)/coeff)
	}

	lat, lon := initialCentroidGuess(matched)
	for iter := 0; iter < trilaterationMaxIterations; iter++ {
		jac := mat.NewDense(len(matched), 2, nil)
		residual := mat.NewVecDense(len(matched), nil)

		metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
		for i, m := range matched {
			dx := (lon - m.Reference.Longitude) * metersPerDegreeLon
			dy := (lat - m.Reference.Latitude) * metersPerDegreeLat
			dist := math.Hypot(dx, dy)
			if dist < 1e-9 {
				dist = 1e-9
			}
			residual.SetVec(i, dist-distances[i])
			jac.Set(i, 0, dy/dist*metersPerDegreeLat)
			jac.Set(i, 1, dx/dist*metersPerDegreeLon)
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtjInv mat.Dense
		if err := jtjInv.Inverse(&jtj); err != nil {
			return positioning.Position{}, false
		}

		var jtr mat.VecDense
		jtr.MulVec(jac.T(), residual)

		var step mat.VecDense
		step.MulVec(&jtjInv, &jtr)

		dLat, dLon := step.AtVec(0), step.AtVec(1)
		lat -= dLat
		lon -= dLon

		if math.Hypot(dLat, dLon) < trilaterationConvergenceEpsilon {
			break
		}
	}

	if math.IsNaN(lat) || math.IsNaN(lon) {
		return positioning.Position{}, false
	}

	var sumAccuracy, sumAlt, altW float64
	for _, m := range matched {
		accuracy := m.Reference.HorizontalAccuracyM
		if accuracy == 0 {
			accuracy = defaultHorizontalAccuracyM
		}
		sumAccuracy += accuracy
		if m.Reference.HasAltitude {
			sumAlt += m.Reference.Altitude
			altW++
		}
	}

	pos := positioning.Position{
		Latitude:   lat,
		Longitude:  lon,
		AccuracyM:  sumAccuracy / float64(len(matched)),
		Confidence: 0.7,
	}
	if altW > 0 {
		pos.Altitude = sumAlt / altW
		pos.HasAltitude = true
	}
	return pos, true
}

func initialCentroidGuess(matched []positioning.MatchedAP) (lat, lon float64) {
	for _, m := range matched {
		lat += m.Reference.Latitude
		lon += m.Reference.Longitude
	}
	n := float64(len(matched))
	return lat / n, lon / n
}
