// pkg/event/event.go
package event

import (
	"sync"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

// Type represents the type of event
type Type string

// Match event types
const (
	BulletFired   Type = "bullet_fired"
	TankHit       Type = "tank_hit"
	TankDestroyed Type = "tank_destroyed"
	TankRespawned Type = "tank_respawned"
	CraterCreated Type = "crater_created"
	PlayerJoined  Type = "player_joined"
	PlayerLeft    Type = "player_left"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
	Tick      uint64
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription identifies a registered handler. Cancel removes it.
type Subscription struct {
	ID     uint64
	Type   Type
	Cancel func()
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatching. Handlers run
// synchronously on the publishing goroutine.
type Bus struct {
	handlers map[Type][]registration
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registration),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registration{id: id, handler: handler})

	var once sync.Once
	return &Subscription{
		ID:   id,
		Type: eventType,
		Cancel: func() {
			once.Do(func() { b.unsubscribe(eventType, id) })
		},
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[eventType]
	for i, r := range regs {
		if r.id == id {
			// Copy so in-flight Publish calls keep their snapshot intact.
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			b.handlers[eventType] = append(next, regs[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	regs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, r := range regs {
		r.handler(event)
	}
}

// BulletEvent reports a bullet leaving a muzzle.
type BulletEvent struct {
	BaseEvent
	BulletID   string
	PlayerID   string
	Position   physics.Vector2D
	Velocity   physics.Vector2D
	WeaponType string
}

// NewBulletFiredEvent creates a BulletFired event.
func NewBulletFiredEvent(source interface{}, tick uint64, bulletID, playerID string, pos, vel physics.Vector2D, weapon string) *BulletEvent {
	return &BulletEvent{
		BaseEvent:  BaseEvent{EventType: BulletFired, Source: source, Tick: tick},
		BulletID:   bulletID,
		PlayerID:   playerID,
		Position:   pos,
		Velocity:   vel,
		WeaponType: weapon,
	}
}

// TankEvent covers hits, kills and respawns. ShooterID and Damage are
// empty for respawns.
type TankEvent struct {
	BaseEvent
	TankID    string
	PlayerID  string
	ShooterID string
	Damage    int
	Health    int
	Position  physics.Vector2D
}

// NewTankEvent creates a tank event of the given type.
func NewTankEvent(eventType Type, source interface{}, tick uint64, tankID, playerID, shooterID string, damage, health int, pos physics.Vector2D) *TankEvent {
	return &TankEvent{
		BaseEvent: BaseEvent{EventType: eventType, Source: source, Tick: tick},
		TankID:    tankID,
		PlayerID:  playerID,
		ShooterID: shooterID,
		Damage:    damage,
		Health:    health,
		Position:  pos,
	}
}

// CraterEvent reports terrain deformation.
type CraterEvent struct {
	BaseEvent
	CraterID string
	Position physics.Vector2D
	Radius   float64
	Version  uint64
}

// NewCraterEvent creates a CraterCreated event.
func NewCraterEvent(source interface{}, tick uint64, craterID string, pos physics.Vector2D, radius float64, version uint64) *CraterEvent {
	return &CraterEvent{
		BaseEvent: BaseEvent{EventType: CraterCreated, Source: source, Tick: tick},
		CraterID:  craterID,
		Position:  pos,
		Radius:    radius,
		Version:   version,
	}
}

// PlayerEvent reports a player joining or leaving a match.
type PlayerEvent struct {
	BaseEvent
	PlayerID   string
	PlayerName string
}

// NewPlayerEvent creates a PlayerJoined or PlayerLeft event.
func NewPlayerEvent(eventType Type, source interface{}, tick uint64, playerID, playerName string) *PlayerEvent {
	return &PlayerEvent{
		BaseEvent:  BaseEvent{EventType: eventType, Source: source, Tick: tick},
		PlayerID:   playerID,
		PlayerName: playerName,
	}
}
