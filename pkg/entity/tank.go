// pkg/entity/tank.go
package entity

import (
	"fmt"
	"math"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

// TankSpecs are the movement and weapon constants of a tank.
type TankSpecs struct {
	MaxSpeed     float64
	Acceleration float64
	Friction     float64
	TurretSpeed  float64
	CooldownMs   int64
	Width        float64
	Height       float64
}

// DefaultTankSpecs returns the stock tank.
func DefaultTankSpecs() TankSpecs {
	return TankSpecs{
		MaxSpeed:     3.0,
		Acceleration: 0.5,
		Friction:     0.8,
		TurretSpeed:  2.0,
		CooldownMs:   1000,
		Width:        32,
		Height:       24,
	}
}

const (
	MaxHealth    = 100
	DefaultPower = 50
	MinPower     = 10
	MaxPower     = 100

	// GroundClearance is how far above the surface a tank's center sits.
	GroundClearance = 20.0

	muzzleOffset       = 20.0
	powerToVelocity    = 0.2
	tankColliderRadius = 16.0
	fullTurn           = 2 * math.Pi
)

// Ground is the part of the terrain a tank needs for movement.
type Ground interface {
	CheckCollision(bounds physics.Rect) bool
	GetHeightAt(x float64) float64
}

// ShotResult is what a successful shot asks the match to spawn.
type ShotResult struct {
	Position   physics.Vector2D
	Velocity   physics.Vector2D
	Angle      float64
	Power      int
	WeaponType WeaponType
}

// Tank is a player-controlled artillery piece.
type Tank struct {
	BaseEntity

	PlayerID   string
	PlayerName string
	Color      string

	TurretAngle float64 // [0, 2π)
	Health      int
	Alive       bool
	Power       int

	// LastShotMs is the simulation time of the last shot; only meaningful
	// once HasFired is set.
	LastShotMs int64
	HasFired   bool
	// DiedAtMs is the simulation time the tank was destroyed.
	DiedAtMs int64

	Specs TankSpecs
}

// NewTank creates a live tank for playerID at the given spawn.
func NewTank(playerID, playerName, color string, pos physics.Vector2D, rotation float64) *Tank {
	return &Tank{
		BaseEntity: BaseEntity{
			ID:       TankID(playerID),
			Position: pos,
			Rotation: rotation,
		},
		PlayerID:   playerID,
		PlayerName: playerName,
		Color:      color,
		Health:     MaxHealth,
		Alive:      true,
		Power:      DefaultPower,
		Specs:      DefaultTankSpecs(),
	}
}

// Bounds is the tank's hull box centered on its position.
func (t *Tank) Bounds() physics.Rect {
	return physics.Rect{Center: t.Position, Width: t.Specs.Width, Height: t.Specs.Height}
}

// Collider implements physics.Collidable. Destroyed tanks collide with nothing.
func (t *Tank) Collider() physics.Collider {
	c := physics.Collider{
		Shape:    physics.Circle{Center: t.Position, Radius: tankColliderRadius},
		Velocity: t.Velocity,
	}
	if t.Alive {
		c.Layer = physics.LayerTank
		c.Mask = physics.LayerBullet
	}
	return c
}

// HandleMovement applies a movement or aiming action. Unknown action types
// are accepted and ignored.
func (t *Tank) HandleMovement(a Action, ground Ground) error {
	if !t.Alive {
		return ErrTankDestroyed
	}

	prevVX := t.Velocity.X
	switch a.Type {
	case ActionMoveLeft:
		t.Velocity.X = math.Max(t.Velocity.X-t.Specs.Acceleration, -t.Specs.MaxSpeed)
		return t.advance(ground, prevVX)
	case ActionMoveRight:
		t.Velocity.X = math.Min(t.Velocity.X+t.Specs.Acceleration, t.Specs.MaxSpeed)
		return t.advance(ground, prevVX)
	case ActionStop:
		t.Velocity.X *= t.Specs.Friction
		return t.advance(ground, prevVX)
	case ActionRotateTurret:
		step := a.Delta * t.Specs.TurretSpeed
		if !finite(step) {
			return fmt.Errorf("%w: turret delta %v", ErrInvalidAction, a.Delta)
		}
		t.TurretAngle = normalizeAngle(t.TurretAngle + step)
	case ActionSetPower:
		if !finite(a.Power) {
			return fmt.Errorf("%w: power %v", ErrInvalidAction, a.Power)
		}
		t.Power = clampPower(a.Power)
	}
	return nil
}

// advance moves the hull by the current x velocity. If that runs into the
// ground the move is undone and the velocity goes back to prevVX, its value
// before the action.
func (t *Tank) advance(ground Ground, prevVX float64) error {
	prevX := t.Position.X
	t.Position.X += t.Velocity.X
	if ground != nil && ground.CheckCollision(t.Bounds()) {
		t.Position.X = prevX
		t.Velocity.X = prevVX
		return ErrTerrainCollision
	}
	return nil
}

// SettleOnGround rests the tank on the surface below its center.
func (t *Tank) SettleOnGround(ground Ground) {
	t.Position.Y = ground.GetHeightAt(t.Position.X) - GroundClearance
}

// Shoot fires along rotation+turret. nowMs comes from the match clock.
func (t *Tank) Shoot(a Action, nowMs int64) (ShotResult, error) {
	if !t.Alive {
		return ShotResult{}, ErrTankDestroyed
	}
	power := t.Power
	if a.Power != 0 {
		if !finite(a.Power) {
			return ShotResult{}, fmt.Errorf("%w: power %v", ErrInvalidAction, a.Power)
		}
		power = clampPower(a.Power)
	}
	if t.HasFired && nowMs-t.LastShotMs < t.Specs.CooldownMs {
		return ShotResult{}, fmt.Errorf("%w: %dms remaining", ErrCooldown, t.Specs.CooldownMs-(nowMs-t.LastShotMs))
	}

	t.Power = power

	angle := t.Rotation + t.TurretAngle
	dir := physics.FromAngle(angle, 1)
	t.LastShotMs = nowMs
	t.HasFired = true

	return ShotResult{
		Position:   t.Position.Add(dir.Scale(muzzleOffset)),
		Velocity:   dir.Scale(float64(t.Power) * powerToVelocity),
		Angle:      angle,
		Power:      t.Power,
		WeaponType: a.WeaponType.Resolve(),
	}, nil
}

// CooldownRemaining returns how long until the tank may fire again.
func (t *Tank) CooldownRemaining(nowMs int64) int64 {
	if !t.HasFired {
		return 0
	}
	return max(0, t.Specs.CooldownMs-(nowMs-t.LastShotMs))
}

// TakeDamage subtracts amount from health and reports whether this hit
// destroyed the tank.
func (t *Tank) TakeDamage(amount int) bool {
	if !t.Alive || amount <= 0 {
		return false
	}
	t.Health -= amount
	if t.Health > 0 {
		return false
	}
	t.Health = 0
	t.Alive = false
	t.Velocity = physics.Vector2D{}
	return true
}

// Respawn restores the tank to full health at pos.
func (t *Tank) Respawn(pos physics.Vector2D, rotation float64) {
	t.Position = pos
	t.Rotation = rotation
	t.Velocity = physics.Vector2D{}
	t.Health = MaxHealth
	t.Alive = true
	t.TurretAngle = 0
	t.HasFired = false
	t.LastShotMs = 0
	t.DiedAtMs = 0
}

func normalizeAngle(a float64) float64 {
	a = math.Mod(a, fullTurn)
	if a < 0 {
		a += fullTurn
	}
	// Adding a full turn to a tiny negative remainder can round up to 2π.
	if a >= fullTurn {
		a = 0
	}
	return a
}

func clampPower(p float64) int {
	return int(math.Round(math.Max(MinPower, math.Min(MaxPower, p))))
}
