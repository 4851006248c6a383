// README: GeoIndex contract shared by the Redis, R-tree and geohash-cell implementations.
package geo

import (
	"context"
	"fmt"

	"haul/internal/types"
)

// Index answers "entities within radius of point" per layer. A layer is an
// independent keyspace, e.g. the pickup points of open small-van bookings.
type Index interface {
	Upsert(ctx context.Context, layer string, id types.ID, p types.Point) error
	Remove(ctx context.Context, layer string, id types.ID) error
	// Within returns hits ordered nearest first. Callers must re-check
	// membership against the authoritative store: index entries may be stale.
	Within(ctx context.Context, layer string, center types.Point, radiusMeters float64) ([]Hit, error)
	Position(ctx context.Context, layer string, id types.ID) (types.Point, bool, error)
}

type Hit struct {
	ID             types.ID
	Position       types.Point
	DistanceMeters float64
}

// BookingLayer holds pickup points of bookings waiting for a driver.
func BookingLayer(class types.VehicleClass) string {
	return fmt.Sprintf("geo:bookings:%s", class.Slug())
}

// DriverLayer holds the latest position of every driver of a class.
func DriverLayer(class types.VehicleClass) string {
	return fmt.Sprintf("geo:drivers:%s", class.Slug())
}
