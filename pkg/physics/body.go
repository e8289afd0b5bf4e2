// pkg/physics/body.go
package physics

// Layer is a collision category bitmask.
type Layer uint32

const (
	LayerTank Layer = 1 << iota
	LayerBullet
	LayerScenery

	// LayerAll matches every category.
	LayerAll Layer = ^Layer(0)
)

// IntegrationEnv carries the per-tick inputs an Integrable needs.
type IntegrationEnv struct {
	Dt            float64 // seconds
	Gravity       float64
	WindStrength  float64
	WindDirection float64 // radians
	NowMs         int64   // simulation clock, not wall time
}

// Integrable is implemented by anything that advances its own motion each tick.
type Integrable interface {
	Integrate(env IntegrationEnv)
}

// IntegrateAll advances every item once, in slice order.
func IntegrateAll[T Integrable](env IntegrationEnv, items []T) {
	for _, it := range items {
		it.Integrate(env)
	}
}

// Collider is the shape and filtering a Collidable exposes to the engine.
type Collider struct {
	Shape    Circle
	Velocity Vector2D
	Layer    Layer
	Mask     Layer
}

// Collidable is implemented by game entities that take part in body-body
// collision. The engine mirrors them as kinematic bodies.
type Collidable interface {
	BodyID() string
	Collider() Collider
}

// Body is a rigid circle registered with an Engine.
type Body struct {
	ID string

	Position        Vector2D
	Velocity        Vector2D
	Acceleration    Vector2D
	Rotation        float64
	AngularVelocity float64

	Mass   float64
	Radius float64

	Layer Layer
	Mask  Layer

	// IsStatic bodies never move and absorb no correction.
	IsStatic bool
	// IsKinematic bodies are positioned by their Host rather than integrated.
	IsKinematic bool
	Host        Collidable

	// Friction is the fraction of velocity kept per second.
	Friction   float64
	Bounciness float64

	OnCollision func(other *Body, normal Vector2D)
}

// NewBody returns a dynamic body with unit friction and default bounciness.
func NewBody(id string, pos Vector2D, radius, mass float64) *Body {
	return &Body{
		ID:         id,
		Position:   pos,
		Radius:     radius,
		Mass:       mass,
		Layer:      LayerScenery,
		Mask:       LayerAll,
		Friction:   1,
		Bounciness: 0.5,
	}
}

// Movable reports whether the engine integrates and corrects this body.
func (b *Body) Movable() bool {
	return !b.IsStatic && !b.IsKinematic
}

// InverseMass is zero for bodies that must not be pushed by collisions.
func (b *Body) InverseMass() float64 {
	if !b.Movable() || b.Mass <= 0 {
		return 0
	}
	return 1 / b.Mass
}

// Circle returns the body's collision circle.
func (b *Body) Circle() Circle {
	return Circle{Center: b.Position, Radius: b.Radius}
}

// accepts reports whether either side's mask admits the other's layer.
func (b *Body) accepts(o *Body) bool {
	return b.Mask&o.Layer != 0 || o.Mask&b.Layer != 0
}

func (b *Body) syncFromHost() {
	c := b.Host.Collider()
	b.Position = c.Shape.Center
	b.Radius = c.Shape.Radius
	b.Velocity = c.Velocity
	b.Layer = c.Layer
	b.Mask = c.Mask
}
