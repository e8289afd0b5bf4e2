package entity

import (
	"github.com/opd-ai/go-tankwars/pkg/physics"
)

// TankSnapshot is the broadcast form of a Tank.
type TankSnapshot struct {
	ID          string           `json:"id" msgpack:"id"`
	PlayerID    string           `json:"playerId" msgpack:"playerId"`
	PlayerName  string           `json:"playerName" msgpack:"playerName"`
	Position    physics.Vector2D `json:"position" msgpack:"position"`
	Rotation    float64          `json:"rotation" msgpack:"rotation"`
	Velocity    physics.Vector2D `json:"velocity" msgpack:"velocity"`
	TurretAngle float64          `json:"turretAngle" msgpack:"turretAngle"`
	Health      int              `json:"health" msgpack:"health"`
	MaxHealth   int              `json:"maxHealth" msgpack:"maxHealth"`
	Alive       bool             `json:"alive" msgpack:"alive"`
	Color       string           `json:"color" msgpack:"color"`
	Power       int              `json:"power" msgpack:"power"`
}

// Snapshot captures the tank's observable state.
func (t *Tank) Snapshot() TankSnapshot {
	return TankSnapshot{
		ID:          t.ID,
		PlayerID:    t.PlayerID,
		PlayerName:  t.PlayerName,
		Position:    t.Position,
		Rotation:    t.Rotation,
		Velocity:    t.Velocity,
		TurretAngle: t.TurretAngle,
		Health:      t.Health,
		MaxHealth:   MaxHealth,
		Alive:       t.Alive,
		Color:       t.Color,
		Power:       t.Power,
	}
}

// TankFromSnapshot rebuilds a tank. Cooldown state is not part of the
// snapshot, so the rebuilt tank may fire immediately.
func TankFromSnapshot(s TankSnapshot) *Tank {
	t := NewTank(s.PlayerID, s.PlayerName, s.Color, s.Position, s.Rotation)
	t.ID = s.ID
	t.Velocity = s.Velocity
	t.TurretAngle = s.TurretAngle
	t.Health = s.Health
	t.Alive = s.Alive
	t.Power = s.Power
	return t
}

// BulletSnapshot is the broadcast form of a Bullet.
type BulletSnapshot struct {
	ID         string             `json:"id" msgpack:"id"`
	PlayerID   string             `json:"playerId" msgpack:"playerId"`
	Position   physics.Vector2D   `json:"position" msgpack:"position"`
	Velocity   physics.Vector2D   `json:"velocity" msgpack:"velocity"`
	Power      int                `json:"power" msgpack:"power"`
	WeaponType WeaponType         `json:"weaponType" msgpack:"weaponType"`
	Active     bool               `json:"active" msgpack:"active"`
	Trail      []physics.Vector2D `json:"trail" msgpack:"trail"`
	Angle      float64            `json:"angle" msgpack:"angle"`
	Speed      float64            `json:"speed" msgpack:"speed"`
}

// Snapshot captures the bullet's observable state.
func (b *Bullet) Snapshot() BulletSnapshot {
	return BulletSnapshot{
		ID:         b.ID,
		PlayerID:   b.PlayerID,
		Position:   b.Position,
		Velocity:   b.Velocity,
		Power:      b.Power,
		WeaponType: b.WeaponType,
		Active:     b.Active,
		Trail:      append([]physics.Vector2D{}, b.Trail...),
		Angle:      b.Angle(),
		Speed:      b.Speed(),
	}
}

// BulletFromSnapshot rebuilds a bullet; angle and speed are derived from
// velocity. createdMs restores the lifespan bookkeeping.
func BulletFromSnapshot(s BulletSnapshot, createdMs int64) *Bullet {
	b := NewBullet(s.ID, s.PlayerID, ShotResult{
		Position:   s.Position,
		Velocity:   s.Velocity,
		Power:      s.Power,
		WeaponType: s.WeaponType,
		Angle:      s.Angle,
	}, createdMs)
	b.Active = s.Active
	b.Trail = append(b.Trail, s.Trail...)
	return b
}
