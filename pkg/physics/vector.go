// pkg/physics/vector.go
package physics

import "math"

// Vector2D is a point or direction in world space. Y grows downward.
type Vector2D struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Vec is shorthand for Vector2D{X: x, Y: y}.
func Vec(x, y float64) Vector2D {
	return Vector2D{X: x, Y: y}
}

// Add returns v + o.
func (v Vector2D) Add(o Vector2D) Vector2D {
	return Vector2D{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v - o.
func (v Vector2D) Sub(o Vector2D) Vector2D {
	return Vector2D{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale returns v multiplied by s.
func (v Vector2D) Scale(s float64) Vector2D {
	return Vector2D{X: v.X * s, Y: v.Y * s}
}

// AddInPlace adds o to v without allocating a new value.
func (v *Vector2D) AddInPlace(o Vector2D) {
	v.X += o.X
	v.Y += o.Y
}

// AddScaledInPlace adds o*s to v.
func (v *Vector2D) AddScaledInPlace(o Vector2D, s float64) {
	v.X += o.X * s
	v.Y += o.Y * s
}

// ScaleInPlace multiplies both components by s.
func (v *Vector2D) ScaleInPlace(s float64) {
	v.X *= s
	v.Y *= s
}

// Dot returns the dot product.
func (v Vector2D) Dot(o Vector2D) float64 {
	return v.X*o.X + v.Y*o.Y
}

// LengthSquared avoids the square root for comparisons.
func (v Vector2D) LengthSquared() float64 {
	return v.Dot(v)
}

// Length returns the magnitude of v.
func (v Vector2D) Length() float64 {
	return math.Hypot(v.X, v.Y)
}

// Normalize returns the unit vector of v, or the zero vector when v is zero.
func (v Vector2D) Normalize() Vector2D {
	l := v.Length()
	if l == 0 {
		return Vector2D{}
	}
	return Vector2D{X: v.X / l, Y: v.Y / l}
}

// Distance returns |v - o|.
func (v Vector2D) Distance(o Vector2D) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// ClampMagnitude returns v shortened to at most max. Shorter vectors are unchanged.
func (v Vector2D) ClampMagnitude(max float64) Vector2D {
	lsq := v.LengthSquared()
	if lsq <= max*max || lsq == 0 {
		return v
	}
	return v.Scale(max / math.Sqrt(lsq))
}

// Angle returns the heading of v in radians.
func (v Vector2D) Angle() float64 {
	return math.Atan2(v.Y, v.X)
}

// Rotate turns v by angle radians.
func (v Vector2D) Rotate(angle float64) Vector2D {
	sin, cos := math.Sincos(angle)
	return Vector2D{X: v.X*cos - v.Y*sin, Y: v.X*sin + v.Y*cos}
}

// Perp returns v rotated a quarter turn.
func (v Vector2D) Perp() Vector2D {
	return Vector2D{X: -v.Y, Y: v.X}
}

// IsFinite reports whether neither component is NaN or infinite.
func (v Vector2D) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// FromAngle builds a vector of the given magnitude pointing along angle.
func FromAngle(angle, magnitude float64) Vector2D {
	sin, cos := math.Sincos(angle)
	return Vector2D{X: magnitude * cos, Y: magnitude * sin}
}
