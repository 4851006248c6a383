// README: In-process GeoIndex on an R-tree per layer (rtreego).
package geo

import (
	"context"
	"sync"

	"github.com/dhconnelly/rtreego"

	"haul/internal/types"
)

const pointTolerance = 1e-9

type treeEntry struct {
	id  types.ID
	pos types.Point
}

func (e *treeEntry) Bounds() rtreego.Rect {
	return rtreego.Point{e.pos.Lat, e.pos.Lng}.ToRect(pointTolerance)
}

type treeLayer struct {
	tree    *rtreego.Rtree
	entries map[types.ID]*treeEntry
}

// TreeIndex is safe for concurrent use; rtreego itself is not.
type TreeIndex struct {
	mu     sync.Mutex
	layers map[string]*treeLayer
}

func NewTreeIndex() *TreeIndex {
	return &TreeIndex{layers: make(map[string]*treeLayer)}
}

func (t *TreeIndex) layer(name string) *treeLayer {
	l, ok := t.layers[name]
	if !ok {
		l = &treeLayer{tree: rtreego.NewTree(2, 25, 50), entries: make(map[types.ID]*treeEntry)}
		t.layers[name] = l
	}
	return l
}

func (t *TreeIndex) Upsert(_ context.Context, layer string, id types.ID, p types.Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.layer(layer)
	if old, ok := l.entries[id]; ok {
		l.tree.Delete(old)
	}
	e := &treeEntry{id: id, pos: p}
	l.entries[id] = e
	l.tree.Insert(e)
	return nil
}

func (t *TreeIndex) Remove(_ context.Context, layer string, id types.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.layers[layer]
	if !ok {
		return nil
	}
	if old, ok := l.entries[id]; ok {
		l.tree.Delete(old)
		delete(l.entries, id)
	}
	return nil
}

func (t *TreeIndex) Within(_ context.Context, layer string, center types.Point, radiusMeters float64) ([]Hit, error) {
	if radiusMeters <= 0 {
		return nil, nil
	}
	minLat, minLng, maxLat, maxLng := boundingBox(center, radiusMeters)
	box, err := rtreego.NewRect(rtreego.Point{minLat, minLng}, []float64{maxLat - minLat, maxLng - minLng})
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	l, ok := t.layers[layer]
	var found []rtreego.Spatial
	if ok {
		found = l.tree.SearchIntersect(box)
	}
	t.mu.Unlock()

	hits := make([]Hit, 0, len(found))
	for _, s := range found {
		e := s.(*treeEntry)
		d := DistanceMeters(center, e.pos)
		if d > radiusMeters {
			continue
		}
		hits = append(hits, Hit{ID: e.id, Position: e.pos, DistanceMeters: d})
	}
	sortByDistance(hits, func(h Hit) float64 { return h.DistanceMeters })
	return hits, nil
}

func (t *TreeIndex) Position(_ context.Context, layer string, id types.ID) (types.Point, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.layers[layer]
	if !ok {
		return types.Point{}, false, nil
	}
	e, ok := l.entries[id]
	if !ok {
		return types.Point{}, false, nil
	}
	return e.pos, true, nil
}
