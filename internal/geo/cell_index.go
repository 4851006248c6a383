// README: In-process GeoIndex bucketing points by geohash cell; queries scan the centre cell and its 8 neighbours.
package geo

import (
	"context"
	"math"
	"sync"

	"github.com/mmcloughlin/geohash"

	"haul/internal/types"
)

const (
	maxCellPrecision = 12
	metersPerDegree  = earthRadiusMeters * math.Pi / 180
	// Neighbour lookups degrade near the poles; fall back to a scan there.
	polarCutoffLat = 85.0
)

type cellLayer struct {
	cells map[string]map[types.ID]types.Point
	where map[types.ID]string
}

type CellIndex struct {
	mu        sync.RWMutex
	precision uint
	layers    map[string]*cellLayer
}

// NewCellIndex picks the finest geohash precision whose cells are still at
// least maxRadiusMeters tall, so a 3x3 block always covers the query circle.
func NewCellIndex(maxRadiusMeters float64) *CellIndex {
	return &CellIndex{
		precision: precisionFor(maxRadiusMeters),
		layers:    make(map[string]*cellLayer),
	}
}

func precisionFor(radiusMeters float64) uint {
	best := uint(1)
	for p := uint(1); p <= maxCellPrecision; p++ {
		latDeg, _ := cellSize(p)
		if latDeg*metersPerDegree < radiusMeters {
			break
		}
		best = p
	}
	return best
}

// cellSize returns a cell's height and width in degrees at precision p.
func cellSize(p uint) (latDeg, lngDeg float64) {
	bits := 5 * p
	latBits := bits / 2
	lngBits := bits - latBits
	return 180 / math.Pow(2, float64(latBits)), 360 / math.Pow(2, float64(lngBits))
}

func (c *CellIndex) Precision() uint {
	return c.precision
}

func (c *CellIndex) layer(name string) *cellLayer {
	l, ok := c.layers[name]
	if !ok {
		l = &cellLayer{cells: make(map[string]map[types.ID]types.Point), where: make(map[types.ID]string)}
		c.layers[name] = l
	}
	return l
}

func (c *CellIndex) Upsert(_ context.Context, layer string, id types.ID, p types.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.layer(layer)
	l.remove(id)
	hash := geohash.EncodeWithPrecision(p.Lat, p.Lng, c.precision)
	cell, ok := l.cells[hash]
	if !ok {
		cell = make(map[types.ID]types.Point)
		l.cells[hash] = cell
	}
	cell[id] = p
	l.where[id] = hash
	return nil
}

func (c *CellIndex) Remove(_ context.Context, layer string, id types.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.layers[layer]; ok {
		l.remove(id)
	}
	return nil
}

func (l *cellLayer) remove(id types.ID) {
	hash, ok := l.where[id]
	if !ok {
		return
	}
	delete(l.where, id)
	if cell, ok := l.cells[hash]; ok {
		delete(cell, id)
		if len(cell) == 0 {
			delete(l.cells, hash)
		}
	}
}

func (c *CellIndex) Within(_ context.Context, layer string, center types.Point, radiusMeters float64) ([]Hit, error) {
	if radiusMeters <= 0 {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[layer]
	if !ok {
		return nil, nil
	}

	var hits []Hit
	collect := func(cell map[types.ID]types.Point) {
		for id, p := range cell {
			d := DistanceMeters(center, p)
			if d <= radiusMeters {
				hits = append(hits, Hit{ID: id, Position: p, DistanceMeters: d})
			}
		}
	}

	if c.covers(center, radiusMeters) {
		hash := geohash.EncodeWithPrecision(center.Lat, center.Lng, c.precision)
		collect(l.cells[hash])
		for _, n := range geohash.Neighbors(hash) {
			collect(l.cells[n])
		}
	} else {
		for _, cell := range l.cells {
			collect(cell)
		}
	}
	sortByDistance(hits, func(h Hit) float64 { return h.DistanceMeters })
	return hits, nil
}

// covers reports whether the 3x3 neighbourhood around center is guaranteed
// to contain the whole query circle.
func (c *CellIndex) covers(center types.Point, radiusMeters float64) bool {
	if math.Abs(center.Lat) > polarCutoffLat {
		return false
	}
	latDeg, lngDeg := cellSize(c.precision)
	height := latDeg * metersPerDegree
	// Width is narrowest on the cell edge farthest from the equator.
	edgeLat := math.Min(math.Abs(center.Lat)+latDeg, 90)
	width := lngDeg * metersPerDegree * math.Cos(degreesToRadians(edgeLat))
	return radiusMeters <= height && radiusMeters <= width
}

func (c *CellIndex) Position(_ context.Context, layer string, id types.ID) (types.Point, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.layers[layer]
	if !ok {
		return types.Point{}, false, nil
	}
	hash, ok := l.where[id]
	if !ok {
		return types.Point{}, false, nil
	}
	return l.cells[hash][id], true, nil
}
