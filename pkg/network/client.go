// pkg/network/client.go
package network

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/protocol"
	"github.com/opd-ai/go-tankwars/pkg/validation"
)

const (
	pongWait    = 60 * time.Second
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 256
)

type outbound struct {
	data   []byte
	binary bool
}

// Client is one websocket connection. Its ID doubles as the player ID once
// it has joined.
type Client struct {
	id     string
	server *GameServer
	conn   *websocket.Conn
	codec  protocol.Codec
	send   chan outbound
	ctx    context.Context

	mu    sync.Mutex
	arena Arena
	// terrainVersion is the version of the terrain snapshot sent on join.
	// Patches up to it are already part of that snapshot.
	terrainVersion uint64
}

func newClient(s *GameServer, conn *websocket.Conn, id string, codec protocol.Codec) *Client {
	return &Client{
		id:     id,
		server: s,
		conn:   conn,
		codec:  codec,
		send:   make(chan outbound, sendBufSize),
		ctx:    logging.WithCorrelationID(context.Background(), id),
	}
}

func (c *Client) joinedArena() Arena {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena
}

func (c *Client) joinState() (Arena, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.arena, c.terrainVersion
}

func (c *Client) matchID() string {
	if a := c.joinedArena(); a != nil {
		return a.ID()
	}
	return ""
}

// queue drops the frame when the client is too slow to keep up.
func (c *Client) queue(out outbound) {
	select {
	case c.send <- out:
	default:
	}
}

func (c *Client) sendEnvelope(env protocol.Envelope) {
	raw, err := c.codec.Encode(env)
	if err != nil {
		c.server.logger.Error(c.ctx, "encoding message failed", err, "type", string(env.Type))
		return
	}
	c.queue(outbound{data: raw, binary: c.codec.Binary()})
}

func (c *Client) sendError(msg string) {
	c.sendEnvelope(protocol.NewError(msg))
}

func (c *Client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(validation.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn(c.ctx, "websocket read failed", "error", err.Error())
			}
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind := websocket.TextMessage
			if out.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, out.data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	if err := c.server.validator.ValidateMessage(raw, c.id); err != nil {
		c.sendError(err.Error())
		return
	}

	f, err := c.codec.Decode(raw)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	switch f.Type {
	case protocol.MsgJoin:
		c.handleJoin(f)
	case protocol.MsgAction:
		c.handleAction(f)
	default:
		c.sendError("unknown message type " + string(f.Type))
	}
}

func (c *Client) handleJoin(f protocol.Frame) {
	if c.joinedArena() != nil {
		c.sendError("already joined")
		return
	}
	arena := c.server.currentArena()
	if arena == nil {
		c.sendError(ErrNoArena.Error())
		return
	}

	var req protocol.JoinRequest
	if err := f.Decode(&req); err != nil {
		c.sendError(err.Error())
		return
	}
	name, err := validation.ValidatePlayerName(req.Name)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	tank, err := arena.AddTank(c.id, name)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	// Broadcasts wait on c.mu, so no patch can be queued between the
	// terrain snapshot and the frames carrying it.
	c.mu.Lock()
	ts := arena.TerrainSnapshot()
	c.arena = arena
	c.terrainVersion = ts.Version
	c.sendEnvelope(protocol.Envelope{Type: protocol.MsgJoined, Data: protocol.Joined{
		MatchID:  arena.ID(),
		PlayerID: c.id,
		Tank:     tank,
	}})
	c.sendEnvelope(protocol.NewTerrain(ts))
	c.mu.Unlock()

	c.server.logger.Info(c.ctx, "player joined", "match_id", arena.ID(), "player_name", name)
}

func (c *Client) handleAction(f protocol.Frame) {
	arena := c.joinedArena()
	if arena == nil {
		c.sendError("join before sending actions")
		return
	}

	var a entity.Action
	if err := f.Decode(&a); err != nil {
		c.sendError(err.Error())
		return
	}
	a.PlayerID = c.id

	if err := validation.ValidateAction(a); err != nil {
		c.sendEnvelope(protocol.NewRejected(a, err.Error()))
		return
	}
	if err := arena.Enqueue(a); err != nil {
		c.sendEnvelope(protocol.NewRejected(a, err.Error()))
	}
}
