package rf

import "math"

// DBToLinear converts a gain in dB to a linear multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/10)
}

// LinearToDB converts a linear power ratio to dB.
func LinearToDB(ratio float64) float64 {
	return 10 * math.Log10(ratio)
}

// SNRdB returns the signal-to-noise ratio of a received power against a
// noise power, in dB.
func SNRdB(rxPower, noise float64) float64 {
	return LinearToDB(rxPower / noise)
}

// Detectable reports whether rxPower clears noise by at least minSNRdB.
// NaN or non-positive powers are never detectable; the engine passes them
// through unchanged so receivers must apply this (or an equivalent) check.
func Detectable(rxPower, noise, minSNRdB float64) bool {
	if math.IsNaN(rxPower) || rxPower <= 0 || math.IsNaN(noise) {
		return false
	}
	if noise <= 0 {
		return true
	}
	return SNRdB(rxPower, noise) >= minSNRdB
}
