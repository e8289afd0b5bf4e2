// pkg/network/server.go
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/protocol"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
	"github.com/opd-ai/go-tankwars/pkg/validation"
)

// ErrNoArena is sent to clients that join before a match is attached.
var ErrNoArena = errors.New("no match attached")

// Arena is the match a server seats its clients in. *engine.Match
// implements it.
type Arena interface {
	ID() string
	AddTank(playerID, playerName string) (entity.TankSnapshot, error)
	RemoveTank(playerID string) error
	Enqueue(a entity.Action) error
	TerrainSnapshot() terrain.Snapshot
}

// GameServer accepts websocket clients, feeds their actions into the match
// and fans tick output back out. It implements engine.Broadcaster.
type GameServer struct {
	cfg       config.NetworkConfig
	logger    *logging.Logger
	limiter   *validation.RateLimiter
	validator *validation.MessageValidator
	upgrader  websocket.Upgrader

	arenaMu sync.RWMutex
	arena   Arena

	clientsLock sync.RWMutex
	clients     map[string]*Client

	httpServer *http.Server
	listener   net.Listener
}

// NewGameServer creates a server. Attach a match before clients join.
func NewGameServer(cfg config.NetworkConfig, logger *logging.Logger) *GameServer {
	if logger == nil {
		logger = logging.NewLogger()
	}
	limiter := validation.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	return &GameServer{
		cfg:       cfg,
		logger:    logger,
		limiter:   limiter,
		validator: validation.NewMessageValidator(limiter),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*Client),
	}
}

// Attach seats future joins in arena.
func (s *GameServer) Attach(arena Arena) {
	s.arenaMu.Lock()
	s.arena = arena
	s.arenaMu.Unlock()
}

func (s *GameServer) currentArena() Arena {
	s.arenaMu.RLock()
	defer s.arenaMu.RUnlock()
	return s.arena
}

// Handler serves the websocket endpoint at /ws.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *GameServer) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), "game server stopped", err)
		}
	}()

	s.logger.Info(context.Background(), "game server started", "address", ln.Addr().String())
	return nil
}

// Addr is the bound listen address, or "" before Start.
func (s *GameServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and closes every client.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Hijacked websocket connections are not tracked by http.Server.
	s.clientsLock.RLock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clientsLock.RUnlock()

	s.limiter.Close()
	s.logger.Info(ctx, "game server stopped")
	return err
}

// ClientCount is the number of open connections.
func (s *GameServer) ClientCount() int {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	return len(s.clients)
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.ClientCount() >= s.cfg.MaxClients {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}

	c := newClient(s, conn, uuid.NewString(), codec)
	s.clientsLock.Lock()
	s.clients[c.id] = c
	s.clientsLock.Unlock()

	s.logger.Debug(r.Context(), "client connected",
		"client_id", c.id, "codec", codec.Name(), "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// removeClient forgets c and takes its tank out of the match.
func (s *GameServer) removeClient(c *Client) {
	s.clientsLock.Lock()
	if _, ok := s.clients[c.id]; !ok {
		s.clientsLock.Unlock()
		return
	}
	delete(s.clients, c.id)
	close(c.send)
	s.clientsLock.Unlock()

	s.validator.Forget(c.id)
	if arena := c.joinedArena(); arena != nil {
		if err := arena.RemoveTank(c.id); err != nil && !errors.Is(err, engine.ErrUnknownPlayer) {
			s.logger.Warn(context.Background(), "removing tank failed", "client_id", c.id, "error", err.Error())
		}
	}
	s.logger.Debug(context.Background(), "client disconnected", "client_id", c.id)
}

// broadcast encodes env once per codec and queues it for every joined
// client of matchID.
func (s *GameServer) broadcast(matchID string, env protocol.Envelope) {
	encoded := make(map[string]outbound, 2)

	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, c := range s.clients {
		if c.matchID() != matchID {
			continue
		}
		out, ok := encoded[c.codec.Name()]
		if !ok {
			raw, err := c.codec.Encode(env)
			if err != nil {
				s.logger.Error(context.Background(), "encoding broadcast failed", err, "type", string(env.Type))
				return
			}
			out = outbound{data: raw, binary: c.codec.Binary()}
			encoded[c.codec.Name()] = out
		}
		c.queue(out)
	}
}

// BroadcastSnapshot sends a match snapshot to its clients.
func (s *GameServer) BroadcastSnapshot(matchID string, snap engine.Snapshot) {
	s.broadcast(matchID, protocol.NewSnapshot(snap))
}

// BroadcastPatches sends the terrain changes of a tick. Patches already
// contained in a client's join snapshot are left out for that client.
func (s *GameServer) BroadcastPatches(matchID string, patches []terrain.Patch) {
	env := protocol.NewPatches(patches)
	encoded := make(map[string]outbound, 2)

	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, c := range s.clients {
		arena, seen := c.joinState()
		if arena == nil || arena.ID() != matchID {
			continue
		}
		fresh := unseenPatches(patches, seen)
		if len(fresh) == 0 {
			continue
		}
		if len(fresh) < len(patches) {
			c.sendEnvelope(protocol.NewPatches(fresh))
			continue
		}
		out, ok := encoded[c.codec.Name()]
		if !ok {
			raw, err := c.codec.Encode(env)
			if err != nil {
				s.logger.Error(context.Background(), "encoding broadcast failed", err, "type", string(env.Type))
				return
			}
			out = outbound{data: raw, binary: c.codec.Binary()}
			encoded[c.codec.Name()] = out
		}
		c.queue(out)
	}
}

func unseenPatches(patches []terrain.Patch, version uint64) []terrain.Patch {
	for i, p := range patches {
		if p.Version > version {
			return patches[i:]
		}
	}
	return nil
}

// NotifyRejections tells each player which of their actions the tick
// refused.
func (s *GameServer) NotifyRejections(matchID string, rejections []engine.Rejection) {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	for _, r := range rejections {
		c, ok := s.clients[r.PlayerID]
		if !ok || c.matchID() != matchID {
			continue
		}
		c.sendEnvelope(protocol.NewRejected(r.Action, r.Reason))
	}
}
