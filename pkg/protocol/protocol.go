// pkg/protocol/protocol.go
package protocol

import (
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
)

// MessageType names the payload carried by an Envelope.
type MessageType string

// Client -> server
const (
	MsgJoin   MessageType = "join"
	MsgAction MessageType = "action"
)

// Server -> client
const (
	MsgJoined   MessageType = "joined"
	MsgRejected MessageType = "rejected"
	MsgSnapshot MessageType = "snapshot"
	MsgTerrain  MessageType = "terrain"
	MsgPatch    MessageType = "patch"
	MsgError    MessageType = "error"
)

// Envelope wraps every message on the wire.
type Envelope struct {
	Type MessageType `json:"t" msgpack:"t"`
	Data any         `json:"d,omitempty" msgpack:"d,omitempty"`
}

// JoinRequest asks for a tank in the server's match.
type JoinRequest struct {
	Name string `json:"name" msgpack:"name"`
}

// Joined confirms a join.
type Joined struct {
	MatchID  string              `json:"matchId" msgpack:"matchId"`
	PlayerID string              `json:"playerId" msgpack:"playerId"`
	Tank     entity.TankSnapshot `json:"tank" msgpack:"tank"`
}

// Rejected reports an action the server refused, either on intake or when
// the tick applied it.
type Rejected struct {
	Action entity.Action `json:"action" msgpack:"action"`
	Reason string        `json:"reason" msgpack:"reason"`
}

// Patches carries the terrain changes of one tick, oldest first.
type Patches struct {
	Patches []terrain.Patch `json:"patches" msgpack:"patches"`
}

// Error is a free-form failure sent before the server closes or ignores a
// request.
type Error struct {
	Message string `json:"message" msgpack:"message"`
}

// NewSnapshot wraps a match snapshot.
func NewSnapshot(s engine.Snapshot) Envelope {
	return Envelope{Type: MsgSnapshot, Data: s}
}

// NewTerrain wraps a full terrain snapshot, sent once on join.
func NewTerrain(s terrain.Snapshot) Envelope {
	return Envelope{Type: MsgTerrain, Data: s}
}

// NewPatches wraps the terrain patches of a tick.
func NewPatches(p []terrain.Patch) Envelope {
	return Envelope{Type: MsgPatch, Data: Patches{Patches: p}}
}

// NewRejected wraps a refused action.
func NewRejected(a entity.Action, reason string) Envelope {
	return Envelope{Type: MsgRejected, Data: Rejected{Action: a, Reason: reason}}
}

// NewError wraps an error message.
func NewError(msg string) Envelope {
	return Envelope{Type: MsgError, Data: Error{Message: msg}}
}
