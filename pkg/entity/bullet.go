// pkg/entity/bullet.go
package entity

import (
	"math"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const (
	BulletLifespanMs = 10000
	TrailLength      = 5

	// bulletDrag is applied once per update, independent of dt.
	bulletDrag = 0.99
	// ticksPerSecond rescales velocities tuned per-tick into per-second motion.
	ticksPerSecond = 60
	maxDamageScale = 2.0
)

// Bullet is a ballistic projectile.
type Bullet struct {
	BaseEntity

	PlayerID   string
	Power      int
	WeaponType WeaponType
	Active     bool
	CreatedMs  int64
	Trail      []physics.Vector2D

	spec WeaponSpec
}

// NewBullet spawns a projectile from a shot.
func NewBullet(id, playerID string, shot ShotResult, nowMs int64) *Bullet {
	wt := shot.WeaponType.Resolve()
	return &Bullet{
		BaseEntity: BaseEntity{
			ID:       id,
			Position: shot.Position,
			Velocity: shot.Velocity,
			Rotation: shot.Angle,
		},
		PlayerID:   playerID,
		Power:      shot.Power,
		WeaponType: wt,
		Active:     true,
		CreatedMs:  nowMs,
		Trail:      make([]physics.Vector2D, 0, TrailLength+1),
		spec:       wt.Spec(),
	}
}

// UpdatePhysics advances the bullet by one tick. Drag is applied per call,
// so the constants assume a 60 Hz cadence.
func (b *Bullet) UpdatePhysics(dt, gravity, windStrength, windDirection float64) {
	if !b.Active {
		return
	}

	b.Trail = append(b.Trail, b.Position)
	if len(b.Trail) > TrailLength {
		b.Trail = append(b.Trail[:0], b.Trail[len(b.Trail)-TrailLength:]...)
	}

	b.Velocity.Y += gravity * dt
	b.Velocity.ScaleInPlace(bulletDrag)

	if windStrength != 0 {
		push := windStrength * dt / b.spec.Mass
		b.Velocity.AddInPlace(physics.FromAngle(windDirection, push))
	}

	b.Position.AddScaledInPlace(b.Velocity, dt*ticksPerSecond)
	b.Rotation = b.Velocity.Angle()
}

// Expire deactivates the bullet once its lifespan has passed.
func (b *Bullet) Expire(nowMs int64) bool {
	if b.Active && nowMs-b.CreatedMs > BulletLifespanMs {
		b.Active = false
		return true
	}
	return false
}

// Integrate implements physics.Integrable.
func (b *Bullet) Integrate(env physics.IntegrationEnv) {
	b.UpdatePhysics(env.Dt, env.Gravity, env.WindStrength, env.WindDirection)
	b.Expire(env.NowMs)
}

// Deactivate marks the bullet spent.
func (b *Bullet) Deactivate() {
	b.Active = false
}

// Speed is the magnitude of the velocity.
func (b *Bullet) Speed() float64 {
	return b.Velocity.Length()
}

// Angle is the heading of the velocity in radians.
func (b *Bullet) Angle() float64 {
	return b.Velocity.Angle()
}

// Mass is fixed by the weapon type.
func (b *Bullet) Mass() float64 { return b.spec.Mass }

// Size is the edge of the bullet's square bounds.
func (b *Bullet) Size() float64 { return b.spec.Size }

// ExplosionRadius is the crater and splash radius on impact.
func (b *Bullet) ExplosionRadius() float64 { return b.spec.ExplosionRadius }

// GetImpactDamage scales power by speed/10, capped at 2x.
func (b *Bullet) GetImpactDamage() int {
	scale := math.Min(b.Speed()/10, maxDamageScale)
	return int(math.Floor(float64(b.Power) * scale))
}

// GetBounds is the weapon-sized box centered on the bullet.
func (b *Bullet) GetBounds() physics.Rect {
	return physics.Rect{Center: b.Position, Width: b.spec.Size, Height: b.spec.Size}
}

// Collider implements physics.Collidable.
func (b *Bullet) Collider() physics.Collider {
	c := physics.Collider{
		Shape:    physics.Circle{Center: b.Position, Radius: b.spec.Size / 2},
		Velocity: b.Velocity,
	}
	if b.Active {
		c.Layer = physics.LayerBullet
		c.Mask = physics.LayerTank
	}
	return c
}
