// pkg/physics/spatial.go
package physics

import (
	"math"
	"slices"
)

// pairKey orders two slot indices so (a,b) and (b,a) hash the same.
type pairKey [2]uint32

func makePairKey(a, b uint32) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

func comparePairKeys(x, y pairKey) int {
	if x[0] != y[0] {
		if x[0] < y[0] {
			return -1
		}
		return 1
	}
	switch {
	case x[1] < y[1]:
		return -1
	case x[1] > y[1]:
		return 1
	}
	return 0
}

type cellKey struct{ X, Y int32 }

// SpatialHash buckets slot indices by uniform grid cell. Buckets are
// truncated, not freed, between ticks so steady-state rebuilds do not allocate.
type SpatialHash struct {
	cellSize float64
	cells    map[cellKey][]uint32
	used     []cellKey
	seen     map[pairKey]struct{}
}

// NewSpatialHash creates a hash with the given cell edge length.
func NewSpatialHash(cellSize float64) *SpatialHash {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &SpatialHash{
		cellSize: cellSize,
		cells:    make(map[cellKey][]uint32),
		seen:     make(map[pairKey]struct{}),
	}
}

// Clear empties every bucket and keeps their capacity.
func (g *SpatialHash) Clear() {
	for _, k := range g.used {
		g.cells[k] = g.cells[k][:0]
	}
	g.used = g.used[:0]
}

func (g *SpatialHash) cellRange(c Circle) (minX, minY, maxX, maxY int32) {
	minX = int32(math.Floor((c.Center.X - c.Radius) / g.cellSize))
	minY = int32(math.Floor((c.Center.Y - c.Radius) / g.cellSize))
	maxX = int32(math.Floor((c.Center.X + c.Radius) / g.cellSize))
	maxY = int32(math.Floor((c.Center.Y + c.Radius) / g.cellSize))
	return
}

// Insert registers idx in every cell overlapped by c's bounding box.
func (g *SpatialHash) Insert(idx uint32, c Circle) {
	minX, minY, maxX, maxY := g.cellRange(c)
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			k := cellKey{cx, cy}
			bucket := g.cells[k]
			if len(bucket) == 0 {
				g.used = append(g.used, k)
			}
			g.cells[k] = append(bucket, idx)
		}
	}
}

// Pairs appends every unique candidate pair to dst, sorted by key.
func (g *SpatialHash) Pairs(dst []pairKey) []pairKey {
	clear(g.seen)
	for _, k := range g.used {
		bucket := g.cells[k]
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				pk := makePairKey(bucket[i], bucket[j])
				if _, dup := g.seen[pk]; dup {
					continue
				}
				g.seen[pk] = struct{}{}
				dst = append(dst, pk)
			}
		}
	}
	slices.SortFunc(dst, comparePairKeys)
	return dst
}
