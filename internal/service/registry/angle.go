package registry

import "math"

// ReferenceAngle is the seat the backend assigns to the host.
const ReferenceAngle = 180.0

// Normalize maps any angle in degrees into [0, 360).
func Normalize(deg float64) float64 {
	r := math.Mod(math.Mod(deg, 360)+360, 360)
	// Tiny negative inputs round up to exactly 360.
	if r >= 360 {
		return 0
	}
	return r
}
