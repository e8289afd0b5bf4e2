package terrain

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const craterDepthRatio = 0.5

// ErrPatchOutOfOrder is returned when a patch does not directly follow the
// terrain's current version.
var ErrPatchOutOfOrder = errors.New("terrain patch out of order")

// Crater is a persistent dent left by an explosion.
type Crater struct {
	ID       string           `json:"id" msgpack:"id"`
	Position physics.Vector2D `json:"position" msgpack:"position"`
	Radius   float64          `json:"radius" msgpack:"radius"`
	Depth    float64          `json:"depth" msgpack:"depth"`
}

// Patch is the set of columns changed by one crater, for incremental sync.
type Patch struct {
	Version uint64    `json:"version" msgpack:"version"`
	FromX   int       `json:"fromX" msgpack:"fromX"`
	Heights []float64 `json:"heights" msgpack:"heights"`
	Crater  Crater    `json:"crater" msgpack:"crater"`
}

// CreateCrater lowers the ground around pos with a quadratic falloff, deepest
// at the center, and returns the crater and the changed columns. A
// non-positive radius leaves the terrain untouched and returns zero values.
func (t *Terrain) CreateCrater(pos physics.Vector2D, radius float64) (Crater, Patch) {
	if radius <= 0 || math.IsNaN(radius) || !pos.IsFinite() {
		return Crater{}, Patch{}
	}

	t.craterSeq++
	c := Crater{
		ID:       fmt.Sprintf("crater-%d", t.craterSeq),
		Position: pos,
		Radius:   radius,
		Depth:    radius * craterDepthRatio,
	}
	t.craters = append(t.craters, c)

	from := max(0, int(math.Ceil(pos.X-radius)))
	to := min(len(t.heights)-1, int(math.Floor(pos.X+radius)))
	for x := from; x <= to; x++ {
		dx := (float64(x) - pos.X) / radius
		if dx*dx > 1 {
			continue
		}
		// y grows downward, so adding lowers the ground.
		lowered := t.heights[x] + c.Depth*(1-dx*dx)
		t.heights[x] = math.Min(lowered, t.height*maxHeightFraction)
	}

	t.version++
	p := Patch{Version: t.version, FromX: from, Crater: c}
	if from <= to {
		t.refreshCollisionCache(from, to)
		p.Heights = slices.Clone(t.heights[from : to+1])
	}
	return c, p
}

// ApplyPatch replays a patch produced by another terrain with the same
// generation parameters.
func (t *Terrain) ApplyPatch(p Patch) error {
	if p.Version != t.version+1 {
		return fmt.Errorf("%w: have version %d, patch is %d", ErrPatchOutOfOrder, t.version, p.Version)
	}
	if p.FromX < 0 || p.FromX+len(p.Heights) > len(t.heights) {
		return fmt.Errorf("terrain patch covers columns %d..%d outside 0..%d",
			p.FromX, p.FromX+len(p.Heights)-1, len(t.heights)-1)
	}

	copy(t.heights[p.FromX:], p.Heights)
	if len(p.Heights) > 0 {
		t.refreshCollisionCache(p.FromX, p.FromX+len(p.Heights)-1)
	}
	t.craters = append(t.craters, p.Crater)
	t.craterSeq++
	t.version = p.Version
	return nil
}
