// Package geo provides spherical-Earth distance, bearing, and projection
// helpers used by the tracking engine. Inputs are degrees; distances are
// meters. Non-finite inputs propagate NaN and must be filtered by callers.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius of the spherical model.
const EarthRadiusMeters = 6371000.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

func toDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// DistanceMeters returns the great-circle distance between two points using
// the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// BearingDegrees returns the initial bearing from point 1 toward point 2,
// normalized to [0, 360).
func BearingDegrees(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dLambda := toRadians(lon2 - lon1)

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := toDegrees(math.Atan2(y, x))
	return math.Mod(deg+360, 360)
}

// DestinationPoint projects a point forward along a bearing for the given
// distance and returns the resulting latitude and longitude.
func DestinationPoint(lat, lon, bearingDeg, distanceMeters float64) (float64, float64) {
	phi1 := toRadians(lat)
	lambda1 := toRadians(lon)
	theta := toRadians(bearingDeg)
	delta := distanceMeters / EarthRadiusMeters

	phi2 := math.Asin(math.Sin(phi1)*math.Cos(delta) +
		math.Cos(phi1)*math.Sin(delta)*math.Cos(theta))
	lambda2 := lambda1 + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi1),
		math.Cos(delta)-math.Sin(phi1)*math.Sin(phi2))

	return toDegrees(phi2), toDegrees(lambda2)
}
