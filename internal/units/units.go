// Package units converts the pipeline's native m/s speeds into the units
// requested by CLI flags and API clients.
package units

// Supported unit names.
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// factors maps a unit name to its multiplier from m/s.
var factors = map[string]float64{
	MPS:  1.0,
	MPH:  2.23694,
	KMPH: 3.6,
	KPH:  3.6,
}

// IsValid reports whether unit names a supported speed unit.
func IsValid(unit string) bool {
	_, ok := factors[unit]
	return ok
}

// GetValidUnitsString lists the supported units for flag help and errors.
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed in m/s to the target units. Unknown units
// pass the value through unchanged.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	if f, ok := factors[targetUnits]; ok {
		return speedMPS * f
	}
	return speedMPS
}
