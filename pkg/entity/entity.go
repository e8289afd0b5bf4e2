// pkg/entity/entity.go
package entity

import (
	"strconv"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

// BaseEntity holds the motion state shared by tanks and bullets.
type BaseEntity struct {
	ID       string
	Position physics.Vector2D
	Velocity physics.Vector2D
	Rotation float64
}

// BodyID returns the identifier the physics engine registers the entity under.
func (e *BaseEntity) BodyID() string {
	return e.ID
}

// IDSource hands out sequential identifiers with a fixed prefix. Each match
// owns its own sources so identifiers are reproducible across replays.
type IDSource struct {
	prefix string
	next   uint64
}

// NewIDSource creates a source producing prefix-1, prefix-2, ...
func NewIDSource(prefix string) *IDSource {
	return &IDSource{prefix: prefix}
}

// Next returns the next identifier.
func (s *IDSource) Next() string {
	s.next++
	return s.prefix + "-" + strconv.FormatUint(s.next, 10)
}

// TankID derives a tank identifier from its owning player.
func TankID(playerID string) string {
	return "tank-" + playerID
}
