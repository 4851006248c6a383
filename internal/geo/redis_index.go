// README: GeoIndex backed by Redis GEO sorted sets, one key per layer.
package geo

import (
	"context"

	"github.com/redis/go-redis/v9"

	"haul/internal/types"
)

// Redis measures on a slightly larger sphere than haversineMeters; pad the
// query so the exact re-check is the only filter that drops boundary hits.
const redisRadiusPad = 1.001

type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{redis: client}
}

func (r *RedisIndex) Upsert(ctx context.Context, layer string, id types.ID, p types.Point) error {
	return r.redis.GeoAdd(ctx, layer, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, layer string, id types.ID) error {
	return r.redis.ZRem(ctx, layer, string(id)).Err()
}

func (r *RedisIndex) Within(ctx context.Context, layer string, center types.Point, radiusMeters float64) ([]Hit, error) {
	locs, err := r.redis.GeoSearchLocation(ctx, layer, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusMeters * redisRadiusPad,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(locs))
	for _, l := range locs {
		p := types.Point{Lat: l.Latitude, Lng: l.Longitude}
		d := DistanceMeters(center, p)
		if d > radiusMeters {
			continue
		}
		hits = append(hits, Hit{ID: types.ID(l.Name), Position: p, DistanceMeters: d})
	}
	return hits, nil
}

func (r *RedisIndex) Position(ctx context.Context, layer string, id types.ID) (types.Point, bool, error) {
	pos, err := r.redis.GeoPos(ctx, layer, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, true, nil
}
