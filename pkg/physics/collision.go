// pkg/physics/collision.go
package physics

// Circle is the only collision shape bodies use.
type Circle struct {
	Center Vector2D
	Radius float64
}

// Collides reports strict overlap; touching circles do not collide.
func (c Circle) Collides(other Circle) bool {
	r := c.Radius + other.Radius
	return c.Center.Sub(other.Center).LengthSquared() < r*r
}

// Bounds returns the axis-aligned box enclosing the circle.
func (c Circle) Bounds() Rect {
	return Rect{Center: c.Center, Width: 2 * c.Radius, Height: 2 * c.Radius}
}

// CollisionResult describes the contact between two overlapping circles.
type CollisionResult struct {
	Collided     bool
	Normal       Vector2D // unit, from A towards B
	Penetration  float64
	ContactPoint Vector2D
}

// fallbackNormal is used when two centers coincide.
var fallbackNormal = Vector2D{X: 1, Y: 0}

// CheckCollision tests a against b. The contact point lies on a's surface.
func CheckCollision(a, b Circle) CollisionResult {
	delta := b.Center.Sub(a.Center)
	radii := a.Radius + b.Radius
	distSq := delta.LengthSquared()
	if distSq >= radii*radii {
		return CollisionResult{}
	}

	dist := delta.Length()
	normal := fallbackNormal
	if dist > 0 {
		normal = Vector2D{X: delta.X / dist, Y: delta.Y / dist}
	}

	return CollisionResult{
		Collided:     true,
		Normal:       normal,
		Penetration:  radii - dist,
		ContactPoint: a.Center.Add(normal.Scale(a.Radius)),
	}
}

// Rect is an axis-aligned box given by its center and size.
type Rect struct {
	Center Vector2D `json:"center" msgpack:"center"`
	Width  float64  `json:"width" msgpack:"width"`
	Height float64  `json:"height" msgpack:"height"`
}

// RectFromMinMax builds a Rect from two corners.
func RectFromMinMax(min, max Vector2D) Rect {
	return Rect{
		Center: Vector2D{X: (min.X + max.X) / 2, Y: (min.Y + max.Y) / 2},
		Width:  max.X - min.X,
		Height: max.Y - min.Y,
	}
}

// Min returns the top-left corner.
func (r Rect) Min() Vector2D {
	return Vector2D{X: r.Center.X - r.Width/2, Y: r.Center.Y - r.Height/2}
}

// Max returns the bottom-right corner.
func (r Rect) Max() Vector2D {
	return Vector2D{X: r.Center.X + r.Width/2, Y: r.Center.Y + r.Height/2}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Vector2D) bool {
	min, max := r.Min(), r.Max()
	return p.X >= min.X && p.X <= max.X && p.Y >= min.Y && p.Y <= max.Y
}

// Intersects reports whether two boxes overlap.
func (r Rect) Intersects(o Rect) bool {
	amin, amax := r.Min(), r.Max()
	bmin, bmax := o.Min(), o.Max()
	return amin.X <= bmax.X && amax.X >= bmin.X && amin.Y <= bmax.Y && amax.Y >= bmin.Y
}
