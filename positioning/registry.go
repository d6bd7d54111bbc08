package positioning

// WeightTable gives one algorithm's base weight per AP count and its
// multipliers per signal quality, geometry, and signal distribution
// factor. A multiplier (or base weight) of 0 disables the algorithm for
// that factor value.
type WeightTable struct {
	Base              map[APCount]float64
	SignalQualityMult map[SignalQuality]float64
	GeometryMult      map[GeometricQuality]float64
	DistributionMult  map[SignalDistribution]float64
}

// Weight computes W(A) = base(apCount) × mult(signalQuality) ×
// mult(geometry) × mult(signalDistribution) for the given factors.
func (t WeightTable) Weight(f FactorSet) float64 {
	base, ok := t.Base[f.APCount]
	if !ok {
		base = 1
	}
	signal, ok := t.SignalQualityMult[f.SignalQuality]
	if !ok {
		signal = 1
	}
	geometry, ok := t.GeometryMult[f.Geometry]
	if !ok {
		geometry = 1
	}
	distribution, ok := t.DistributionMult[f.SignalDistribution]
	if !ok {
		distribution = 1
	}
	return base * signal * geometry * distribution
}

func fullTable(apCountAll float64) map[APCount]float64 {
	return map[APCount]float64{
		APCountSingle:   apCountAll,
		APCountTwo:      apCountAll,
		APCountThree:    apCountAll,
		APCountFourPlus: apCountAll,
	}
}

// DefaultRegistry returns the fixed five-algorithm weight tables per
// spec.md §4.11's disabling rules.
func DefaultRegistry() map[string]WeightTable {
	allSignal := map[SignalQuality]float64{
		SignalStrong: 1.0, SignalMedium: 1.0, SignalWeak: 1.0, SignalVeryWeak: 0,
	}
	allGeometry := map[GeometricQuality]float64{
		GeometryExcellent: 1.0, GeometryGood: 1.0, GeometryFair: 0.85, GeometryPoor: 0.6, GeometryCollinear: 0.6,
	}
	allDistribution := map[SignalDistribution]float64{
		DistributionUniform: 1.0, DistributionMixed: 0.9, DistributionOutliers: 0.6,
	}

	proximitySignal := map[SignalQuality]float64{
		SignalStrong: 1.0, SignalMedium: 1.0, SignalWeak: 1.0, SignalVeryWeak: 1.0,
	}

	return map[string]WeightTable{
		"proximity": {
			Base:             fullTable(1.0),
			SignalQualityMult: proximitySignal,
			GeometryMult:      allGeometry,
			DistributionMult:  allDistribution,
		},
		"rssi_ratio": {
			Base: map[APCount]float64{
				APCountSingle: 0, APCountTwo: 1.0, APCountThree: 1.0, APCountFourPlus: 1.0,
			},
			SignalQualityMult: allSignal,
			GeometryMult:      allGeometry,
			DistributionMult:  allDistribution,
		},
		"weighted_centroid": {
			Base:             fullTable(1.0),
			SignalQualityMult: allSignal,
			GeometryMult:      allGeometry,
			DistributionMult:  allDistribution,
		},
		"trilateration": {
			Base: map[APCount]float64{
				APCountSingle: 0, APCountTwo: 0, APCountThree: 1.0, APCountFourPlus: 1.0,
			},
			SignalQualityMult: allSignal,
			GeometryMult: map[GeometricQuality]float64{
				GeometryExcellent: 1.0, GeometryGood: 1.0, GeometryFair: 0.8, GeometryPoor: 0.4, GeometryCollinear: 0,
			},
			DistributionMult: allDistribution,
		},
		"maximum_likelihood": {
			Base: map[APCount]float64{
				APCountSingle: 0, APCountTwo: 0.5, APCountThree: 1.0, APCountFourPlus: 1.0,
			},
			SignalQualityMult: allSignal,
			GeometryMult: map[GeometricQuality]float64{
				GeometryExcellent: 1.0, GeometryGood: 1.0, GeometryFair: 0.8, GeometryPoor: 0.5, GeometryCollinear: 0,
			},
			DistributionMult: allDistribution,
		},
	}
}
