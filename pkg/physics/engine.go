// pkg/physics/engine.go
package physics

import (
	"fmt"
	"math"
)

// Engine defaults.
const (
	DefaultCellSize        = 100.0
	DefaultMaxVelocity     = 1000.0
	DefaultAngularFriction = 0.98
)

// EngineConfig holds the global constants of a physics world.
type EngineConfig struct {
	CellSize        float64
	MaxVelocity     float64
	AngularFriction float64
}

// DefaultEngineConfig returns the stock engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CellSize:        DefaultCellSize,
		MaxVelocity:     DefaultMaxVelocity,
		AngularFriction: DefaultAngularFriction,
	}
}

// Handle addresses a body in an Engine. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("body#%d.%d", h.index, h.gen)
}

type slot struct {
	body *Body
	gen  uint32
}

// CollisionRecord is one contact detected and resolved during Update.
type CollisionRecord struct {
	BodyA, BodyB     Handle
	IDA, IDB         string
	Point            Vector2D
	Normal           Vector2D // from A towards B
	Penetration      float64
	RelativeVelocity Vector2D // B minus A, before resolution
}

// RaycastHit is the nearest body intersected by a ray.
type RaycastHit struct {
	Body     Handle
	ID       string
	Point    Vector2D
	Normal   Vector2D
	Distance float64
}

// Engine is a per-match rigid body world. It is not safe for concurrent use;
// the owning match serializes all calls.
type Engine struct {
	cfg   EngineConfig
	slots []slot
	free  []uint32
	byID  map[string]Handle
	grid  *SpatialHash
	pairs []pairKey
}

// NewEngine creates an empty world. Zero fields in cfg take their defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultCellSize
	}
	if cfg.MaxVelocity <= 0 {
		cfg.MaxVelocity = DefaultMaxVelocity
	}
	if cfg.AngularFriction <= 0 {
		cfg.AngularFriction = DefaultAngularFriction
	}
	return &Engine{
		cfg:  cfg,
		byID: make(map[string]Handle),
		grid: NewSpatialHash(cfg.CellSize),
	}
}

// Config returns the engine's settings.
func (e *Engine) Config() EngineConfig { return e.cfg }

// AddBody registers b and returns its handle. A body already registered
// under the same ID is removed first. Dynamic bodies without a positive mass
// are given unit mass.
func (e *Engine) AddBody(b *Body) Handle {
	if old, ok := e.byID[b.ID]; ok {
		e.RemoveBody(old)
	}
	if b.Movable() && b.Mass <= 0 {
		b.Mass = 1
	}

	var idx uint32
	if n := len(e.free); n > 0 {
		idx = e.free[n-1]
		e.free = e.free[:n-1]
	} else {
		idx = uint32(len(e.slots))
		e.slots = append(e.slots, slot{})
	}
	s := &e.slots[idx]
	s.gen++
	s.body = b

	h := Handle{index: idx, gen: s.gen}
	e.byID[b.ID] = h
	return h
}

// AddCollidable mirrors a game entity as a kinematic body.
func (e *Engine) AddCollidable(c Collidable) Handle {
	b := &Body{ID: c.BodyID(), IsKinematic: true, Host: c, Friction: 1}
	b.syncFromHost()
	return e.AddBody(b)
}

// RemoveBody frees h. Removing a stale handle panics.
func (e *Engine) RemoveBody(h Handle) {
	b := e.Body(h)
	s := &e.slots[h.index]
	s.body = nil
	// Bump the generation so outstanding copies of h go stale.
	s.gen++
	e.free = append(e.free, h.index)
	if cur, ok := e.byID[b.ID]; ok && cur == h {
		delete(e.byID, b.ID)
	}
}

// Body returns the body addressed by h. A stale or zero handle is a
// programming error and panics.
func (e *Engine) Body(h Handle) *Body {
	if b, ok := e.get(h); ok {
		return b
	}
	panic(fmt.Sprintf("physics: unknown body handle %v", h))
}

// Valid reports whether h still addresses a live body.
func (e *Engine) Valid(h Handle) bool {
	_, ok := e.get(h)
	return ok
}

func (e *Engine) get(h Handle) (*Body, bool) {
	if h.IsZero() || int(h.index) >= len(e.slots) {
		return nil, false
	}
	s := e.slots[h.index]
	if s.gen != h.gen || s.body == nil {
		return nil, false
	}
	return s.body, true
}

// Lookup finds the handle registered under id.
func (e *Engine) Lookup(id string) (Handle, bool) {
	h, ok := e.byID[id]
	return h, ok
}

// Len returns the number of live bodies.
func (e *Engine) Len() int { return len(e.byID) }

// Each visits live bodies in slot order.
func (e *Engine) Each(fn func(Handle, *Body)) {
	for i, s := range e.slots {
		if s.body != nil {
			fn(Handle{index: uint32(i), gen: s.gen}, s.body)
		}
	}
}

// ApplyForce adds f/m to the body's acceleration for the next Update.
func (e *Engine) ApplyForce(h Handle, f Vector2D) {
	b := e.Body(h)
	if b.IsStatic {
		return
	}
	b.Acceleration.AddScaledInPlace(f, 1/massOf(b))
}

// ApplyImpulse changes velocity immediately by j/m.
func (e *Engine) ApplyImpulse(h Handle, j Vector2D) {
	b := e.Body(h)
	if b.IsStatic {
		return
	}
	b.Velocity.AddScaledInPlace(j, 1/massOf(b))
}

// ApplyTorque changes angular velocity by t/m.
func (e *Engine) ApplyTorque(h Handle, t float64) {
	b := e.Body(h)
	if b.IsStatic {
		return
	}
	b.AngularVelocity += t / massOf(b)
}

func massOf(b *Body) float64 {
	if b.Mass <= 0 {
		return 1
	}
	return b.Mass
}

// Update advances the world by dt seconds and returns the contacts found.
func (e *Engine) Update(dt float64) []CollisionRecord {
	e.integrate(dt)

	e.grid.Clear()
	for i, s := range e.slots {
		if s.body != nil {
			e.grid.Insert(uint32(i), s.body.Circle())
		}
	}
	e.pairs = e.grid.Pairs(e.pairs[:0])

	var records []CollisionRecord
	for _, pk := range e.pairs {
		sa, sb := e.slots[pk[0]], e.slots[pk[1]]
		a, b := sa.body, sb.body
		if !a.accepts(b) {
			continue
		}
		res := CheckCollision(a.Circle(), b.Circle())
		if !res.Collided {
			continue
		}
		records = append(records, CollisionRecord{
			BodyA:            Handle{index: pk[0], gen: sa.gen},
			BodyB:            Handle{index: pk[1], gen: sb.gen},
			IDA:              a.ID,
			IDB:              b.ID,
			Point:            res.ContactPoint,
			Normal:           res.Normal,
			Penetration:      res.Penetration,
			RelativeVelocity: b.Velocity.Sub(a.Velocity),
		})
		resolve(a, b, res)
	}

	// Callbacks may remove bodies; contacts with a removed body are skipped.
	for _, r := range records {
		a, okA := e.get(r.BodyA)
		b, okB := e.get(r.BodyB)
		if !okA || !okB {
			continue
		}
		if a.OnCollision != nil {
			a.OnCollision(b, r.Normal)
		}
		if !e.Valid(r.BodyA) || !e.Valid(r.BodyB) {
			continue
		}
		if b.OnCollision != nil {
			b.OnCollision(a, r.Normal.Scale(-1))
		}
	}
	return records
}

func (e *Engine) integrate(dt float64) {
	for _, s := range e.slots {
		b := s.body
		if b == nil || b.IsStatic {
			continue
		}
		if b.IsKinematic {
			if b.Host != nil {
				b.syncFromHost()
			}
			continue
		}

		b.Velocity.AddScaledInPlace(b.Acceleration, dt)
		if b.Friction < 1 {
			b.Velocity.ScaleInPlace(math.Pow(math.Max(b.Friction, 0), dt))
		}
		b.Velocity = b.Velocity.ClampMagnitude(e.cfg.MaxVelocity)
		b.Position.AddScaledInPlace(b.Velocity, dt)

		b.Rotation += b.AngularVelocity * dt
		b.AngularVelocity *= e.cfg.AngularFriction

		b.Acceleration = Vector2D{}
	}
}

// resolve separates a and b along the contact normal and exchanges impulse.
func resolve(a, b *Body, res CollisionResult) {
	invA, invB := a.InverseMass(), b.InverseMass()
	total := invA + invB
	if total == 0 {
		return
	}

	n := res.Normal
	correction := res.Penetration / total
	a.Position.AddScaledInPlace(n, -correction*invA)
	b.Position.AddScaledInPlace(n, correction*invB)

	velAlongNormal := b.Velocity.Sub(a.Velocity).Dot(n)
	if velAlongNormal > 0 {
		return
	}
	restitution := math.Min(a.Bounciness, b.Bounciness)
	j := -(1 + restitution) * velAlongNormal / total
	a.Velocity.AddScaledInPlace(n, -j*invA)
	b.Velocity.AddScaledInPlace(n, j*invB)
}

// QueryPoint returns every body containing p. A zero mask matches all layers.
func (e *Engine) QueryPoint(p Vector2D, mask Layer) []Handle {
	return e.QueryCircle(p, 0, mask)
}

// QueryCircle returns every body whose circle touches the given one, in slot order.
func (e *Engine) QueryCircle(center Vector2D, radius float64, mask Layer) []Handle {
	var out []Handle
	for i, s := range e.slots {
		b := s.body
		if b == nil || !layerMatch(b, mask) {
			continue
		}
		r := radius + b.Radius
		if b.Position.Sub(center).LengthSquared() <= r*r {
			out = append(out, Handle{index: uint32(i), gen: s.gen})
		}
	}
	return out
}

// Raycast finds the closest body hit by the ray from origin along dir within
// maxDist. A ray starting inside a body hits it at distance 0.
func (e *Engine) Raycast(origin, dir Vector2D, maxDist float64, mask Layer) (RaycastHit, bool) {
	d := dir.Normalize()
	if d == (Vector2D{}) {
		return RaycastHit{}, false
	}

	var (
		best  RaycastHit
		found bool
	)
	for i, s := range e.slots {
		b := s.body
		if b == nil || !layerMatch(b, mask) {
			continue
		}
		oc := b.Position.Sub(origin)
		rsq := b.Radius * b.Radius
		t := oc.Dot(d)

		var dist float64
		if oc.LengthSquared() <= rsq {
			dist = 0
		} else {
			if t < 0 {
				continue
			}
			perpSq := oc.LengthSquared() - t*t
			if perpSq > rsq {
				continue
			}
			dist = t - math.Sqrt(rsq-perpSq)
		}
		if dist > maxDist || (found && dist >= best.Distance) {
			continue
		}

		point := origin.Add(d.Scale(dist))
		normal := point.Sub(b.Position).Normalize()
		if normal == (Vector2D{}) {
			normal = d.Scale(-1)
		}
		best = RaycastHit{
			Body:     Handle{index: uint32(i), gen: s.gen},
			ID:       b.ID,
			Point:    point,
			Normal:   normal,
			Distance: dist,
		}
		found = true
	}
	return best, found
}

func layerMatch(b *Body, mask Layer) bool {
	return mask == 0 || b.Layer&mask != 0
}
