// pkg/entity/bullet_test.go
package entity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const testDt = 1.0 / 60

func newTestBullet(vel physics.Vector2D, power int, wt WeaponType) *Bullet {
	return NewBullet("bullet-1", "p1", ShotResult{
		Position:   physics.Vec(100, 100),
		Velocity:   vel,
		Power:      power,
		WeaponType: wt,
	}, 0)
}

func TestNewBullet_WeaponProperties(t *testing.T) {
	tests := []struct {
		name       string
		weapon     WeaponType
		expectType WeaponType
		mass       float64
		size       float64
		radius     float64
	}{
		{"standard", WeaponStandard, WeaponStandard, 1.0, 5, 45},
		{"heavy", WeaponHeavy, WeaponHeavy, 2.0, 8, 60},
		{"light", WeaponLight, WeaponLight, 0.5, 3, 30},
		{"empty_defaults_to_standard", "", WeaponStandard, 1.0, 5, 45},
		{"unknown_defaults_to_standard", "plasma", WeaponStandard, 1.0, 5, 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBullet(physics.Vector2D{}, 50, tt.weapon)
			assert.Equal(t, tt.expectType, b.WeaponType)
			assert.Equal(t, tt.mass, b.Mass())
			assert.Equal(t, tt.size, b.Size())
			assert.Equal(t, tt.radius, b.ExplosionRadius())

			bounds := b.GetBounds()
			assert.Equal(t, b.Position, bounds.Center)
			assert.Equal(t, tt.size, bounds.Width)
			assert.Equal(t, tt.size, bounds.Height)
		})
	}
}

func TestBullet_UpdatePhysicsFromRest(t *testing.T) {
	b := newTestBullet(physics.Vector2D{}, 50, WeaponStandard)

	b.UpdatePhysics(testDt, 0.5, 0, 0)

	assert.InDelta(t, 0.00825, b.Velocity.Y, 1e-9)
	assert.Zero(t, b.Velocity.X)
	assert.InDelta(t, 100+0.00825, b.Position.Y, 1e-9)
	assert.Equal(t, []physics.Vector2D{physics.Vec(100, 100)}, b.Trail)
	assert.InDelta(t, math.Pi/2, b.Rotation, 1e-9)
}

func TestBullet_DragIsPerCall(t *testing.T) {
	b := newTestBullet(physics.Vec(10, 0), 50, WeaponStandard)
	b.UpdatePhysics(1, 0, 0, 0)
	assert.InDelta(t, 9.9, b.Velocity.X, 1e-9)
	assert.InDelta(t, 100+9.9*60, b.Position.X, 1e-9)
}

func TestBullet_WindScalesWithMass(t *testing.T) {
	tests := []struct {
		name   string
		weapon WeaponType
		push   float64
	}{
		{"standard", WeaponStandard, 0.2 * testDt},
		{"heavy", WeaponHeavy, 0.1 * testDt},
		{"light", WeaponLight, 0.4 * testDt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBullet(physics.Vector2D{}, 50, tt.weapon)
			b.UpdatePhysics(testDt, 0, 0.2, 0)
			assert.InDelta(t, tt.push, b.Velocity.X, 1e-12)
			assert.InDelta(t, 0, b.Velocity.Y, 1e-12)
		})
	}

	t.Run("direction", func(t *testing.T) {
		b := newTestBullet(physics.Vector2D{}, 50, WeaponStandard)
		b.UpdatePhysics(1, 0, 1, math.Pi/2)
		assert.InDelta(t, 0, b.Velocity.X, 1e-12)
		assert.InDelta(t, 1, b.Velocity.Y, 1e-12)
	})
}

func TestBullet_TrailKeepsMostRecent(t *testing.T) {
	b := newTestBullet(physics.Vec(1, 0), 50, WeaponStandard)

	var positions []physics.Vector2D
	for i := 0; i < 8; i++ {
		positions = append(positions, b.Position)
		b.UpdatePhysics(testDt, 0, 0, 0)
	}

	require.Len(t, b.Trail, TrailLength)
	assert.Equal(t, positions[3:], b.Trail)
}

func TestBullet_InactiveIsFrozen(t *testing.T) {
	b := newTestBullet(physics.Vec(5, 5), 50, WeaponStandard)
	b.Deactivate()

	b.UpdatePhysics(testDt, 0.5, 1, 0)

	assert.Equal(t, physics.Vec(100, 100), b.Position)
	assert.Equal(t, physics.Vec(5, 5), b.Velocity)
	assert.Empty(t, b.Trail)

	c := b.Collider()
	assert.Zero(t, c.Layer)
	assert.Zero(t, c.Mask)
}

func TestBullet_Lifespan(t *testing.T) {
	b := NewBullet("bullet-1", "p1", ShotResult{Power: 50}, 2000)

	assert.False(t, b.Expire(2000+BulletLifespanMs), "lifespan is inclusive")
	assert.True(t, b.Active)

	assert.True(t, b.Expire(2001+BulletLifespanMs))
	assert.False(t, b.Active)
	assert.False(t, b.Expire(50000), "already expired")
}

func TestBullet_IntegrateUsesEnvironment(t *testing.T) {
	b := newTestBullet(physics.Vector2D{}, 50, WeaponStandard)
	b.Integrate(physics.IntegrationEnv{Dt: testDt, Gravity: 0.5, NowMs: 20000})

	assert.InDelta(t, 0.00825, b.Velocity.Y, 1e-9)
	assert.False(t, b.Active)
}

func TestBullet_GetImpactDamage(t *testing.T) {
	tests := []struct {
		name     string
		power    int
		velocity physics.Vector2D
		expected int
	}{
		{"speed_ten_is_unscaled", 50, physics.Vec(8, 6), 50},
		{"capped_at_double", 50, physics.Vec(30, 0), 100},
		{"half_speed", 50, physics.Vec(0, 5), 25},
		{"floors", 33, physics.Vec(0, 5), 16},
		{"at_rest", 80, physics.Vector2D{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBullet(tt.velocity, tt.power, WeaponStandard)
			assert.Equal(t, tt.expected, b.GetImpactDamage())
		})
	}
}

func TestBullet_Collider(t *testing.T) {
	b := newTestBullet(physics.Vec(3, 4), 50, WeaponHeavy)
	c := b.Collider()

	assert.Equal(t, physics.LayerBullet, c.Layer)
	assert.Equal(t, physics.LayerTank, c.Mask)
	assert.Equal(t, 4.0, c.Shape.Radius)
	assert.Equal(t, physics.Vec(3, 4), c.Velocity)
	assert.Equal(t, "bullet-1", b.BodyID())
}

func TestBullet_SnapshotRoundTrip(t *testing.T) {
	b := newTestBullet(physics.Vec(6, -8), 70, WeaponLight)
	b.UpdatePhysics(testDt, 0.5, 0, 0)
	b.UpdatePhysics(testDt, 0.5, 0, 0)

	snap := b.Snapshot()
	assert.Equal(t, WeaponLight, snap.WeaponType)
	assert.Len(t, snap.Trail, 2)
	assert.InDelta(t, b.Speed(), snap.Speed, 1e-12)

	snap.Trail[0] = physics.Vec(-1, -1)
	assert.NotEqual(t, snap.Trail[0], b.Trail[0], "snapshot trail is a copy")

	rebuilt := BulletFromSnapshot(b.Snapshot(), b.CreatedMs)
	assert.Equal(t, b.Snapshot(), rebuilt.Snapshot())
	assert.Equal(t, b.CreatedMs, rebuilt.CreatedMs)

	empty := newTestBullet(physics.Vec(1, 0), 10, "").Snapshot()
	assert.NotNil(t, empty.Trail)
}
