package entity

import (
	"errors"
	"math"
)

// ActionType names a player command.
type ActionType string

const (
	ActionMoveLeft     ActionType = "move_left"
	ActionMoveRight    ActionType = "move_right"
	ActionStop         ActionType = "stop"
	ActionRotateTurret ActionType = "rotate_turret"
	ActionSetPower     ActionType = "set_power"
	ActionShoot        ActionType = "shoot"
)

// Rule violations reported by tank operations.
var (
	ErrTankDestroyed    = errors.New("tank is destroyed")
	ErrCooldown         = errors.New("weapon is cooling down")
	ErrTerrainCollision = errors.New("movement blocked by terrain")
	ErrInvalidAction    = errors.New("invalid action")
)

// Action is one command from a player, applied at the start of a tick.
type Action struct {
	Type       ActionType `json:"type" msgpack:"type"`
	PlayerID   string     `json:"playerId" msgpack:"playerId"`
	Delta      float64    `json:"delta,omitempty" msgpack:"delta,omitempty"`
	Power      float64    `json:"power,omitempty" msgpack:"power,omitempty"`
	WeaponType WeaponType `json:"weaponType,omitempty" msgpack:"weaponType,omitempty"`
}

// Known reports whether t is one of the defined action types.
func (t ActionType) Known() bool {
	switch t {
	case ActionMoveLeft, ActionMoveRight, ActionStop, ActionRotateTurret, ActionSetPower, ActionShoot:
		return true
	}
	return false
}

// Horizontal reports whether t moves the tank along the ground.
func (t ActionType) Horizontal() bool {
	return t == ActionMoveLeft || t == ActionMoveRight || t == ActionStop
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
