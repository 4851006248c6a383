// README: Pure geographic computation helpers.
package geo

import (
	"math"

	"haul/internal/types"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters is the haversine great-circle distance between two points.
func DistanceMeters(a, b types.Point) float64 {
	return haversineMeters(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radiansToDegrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// boundingBox returns a lat/lng box containing every point within radius of
// center. Boxes that would cross the antimeridian widen to the full range.
func boundingBox(center types.Point, radiusMeters float64) (minLat, minLng, maxLat, maxLng float64) {
	delta := radiusMeters / earthRadiusMeters
	dLat := radiansToDegrees(delta)
	minLat = math.Max(center.Lat-dLat, -90)
	maxLat = math.Min(center.Lat+dLat, 90)

	cos := math.Cos(degreesToRadians(center.Lat))
	if cos < 1e-9 || minLat == -90 || maxLat == 90 {
		return minLat, -180, maxLat, 180
	}
	// Widest longitude reached on the circle, at the tangent point.
	s := math.Sin(delta) / cos
	if delta >= math.Pi/2 || s >= 1 {
		return minLat, -180, maxLat, 180
	}
	dLng := radiansToDegrees(math.Asin(s))
	minLng = center.Lng - dLng
	maxLng = center.Lng + dLng
	if minLng < -180 || maxLng > 180 {
		return minLat, -180, maxLat, 180
	}
	return minLat, minLng, maxLat, maxLng
}

// sortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function.
func sortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
