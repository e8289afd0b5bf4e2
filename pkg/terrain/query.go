package terrain

import (
	"math"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const (
	slopeSpan         = 5.0
	collisionScanStep = 5.0
)

// GetHeightAt returns the ground height at x, interpolating linearly between
// integer columns. x is clamped into the terrain.
func (t *Terrain) GetHeightAt(x float64) float64 {
	last := len(t.heights) - 1
	if math.IsNaN(x) || x <= 0 {
		return t.heights[0]
	}
	if x >= float64(last) {
		return t.heights[last]
	}
	i := int(x)
	frac := x - float64(i)
	return t.heights[i] + (t.heights[i+1]-t.heights[i])*frac
}

// GetSlopeAt returns the surface angle at x in radians, from a central
// difference over 5 units either side.
func (t *Terrain) GetSlopeAt(x float64) float64 {
	rise := t.GetHeightAt(x+slopeSpan) - t.GetHeightAt(x-slopeSpan)
	return math.Atan(rise / (2 * slopeSpan))
}

// CheckCollision reports whether the bottom edge of bounds touches or sinks
// below the ground anywhere across its width.
func (t *Terrain) CheckCollision(bounds physics.Rect) bool {
	min, max := bounds.Min(), bounds.Max()
	for x := min.X; x <= max.X; x += collisionScanStep {
		if max.Y >= t.GetHeightAt(x) {
			return true
		}
	}
	return false
}

// IsUnderground reports whether p is at or below the surface.
func (t *Terrain) IsUnderground(p physics.Vector2D) bool {
	return p.Y >= t.GetHeightAt(p.X)
}
