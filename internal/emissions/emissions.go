package emissions

// DefaultFactorKgPerKm is the transport emission factor in kg CO2e per km
const DefaultFactorKgPerKm = 0.002

// Estimator maps road distance to a transport-emissions estimate
type Estimator struct {
	FactorKgPerKm float64
}

// NewEstimator returns an Estimator; a negative factor falls back to the default
func NewEstimator(factorKgPerKm float64) Estimator {
	if factorKgPerKm < 0 {
		factorKgPerKm = DefaultFactorKgPerKm
	}
	return Estimator{FactorKgPerKm: factorKgPerKm}
}

// TransportCO2 returns kg CO2e for the given distance.
// Negative distances are treated as zero.
func (e Estimator) TransportCO2(distanceKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	return distanceKm * e.FactorKgPerKm
}

// TransportCO2 uses DefaultFactorKgPerKm
func TransportCO2(distanceKm float64) float64 {
	return Estimator{FactorKgPerKm: DefaultFactorKgPerKm}.TransportCO2(distanceKm)
}
