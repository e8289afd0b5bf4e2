package network

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/physics"
	"github.com/opd-ai/go-tankwars/pkg/protocol"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
)

type testEnv struct {
	server *GameServer
	match  *engine.Match
	url    string
}

func startTestServer(t *testing.T, mutate func(*config.GameConfig), opts ...engine.Option) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	logger := logging.NewLoggerWithWriter(io.Discard, slog.LevelError)

	s := NewGameServer(cfg.Network, logger)
	m := engine.NewMatch("arena-1", cfg, opts...)
	s.Attach(m)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		srv.Close()
	})
	return &testEnv{
		server: s,
		match:  m,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, codec protocol.Codec, env protocol.Envelope) {
	t.Helper()
	raw, err := codec.Encode(env)
	require.NoError(t, err)
	kind := websocket.TextMessage
	if codec.Binary() {
		kind = websocket.BinaryMessage
	}
	require.NoError(t, conn.WriteMessage(kind, raw))
}

func read(t *testing.T, conn *websocket.Conn, codec protocol.Codec) protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	if codec.Binary() {
		require.Equal(t, websocket.BinaryMessage, kind)
	} else {
		require.Equal(t, websocket.TextMessage, kind)
	}
	f, err := codec.Decode(raw)
	require.NoError(t, err)
	return f
}

func join(t *testing.T, conn *websocket.Conn, codec protocol.Codec, name string) protocol.Joined {
	t.Helper()
	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: name}})

	f := read(t, conn, codec)
	require.Equal(t, protocol.MsgJoined, f.Type)
	var joined protocol.Joined
	require.NoError(t, f.Decode(&joined))

	f = read(t, conn, codec)
	require.Equal(t, protocol.MsgTerrain, f.Type)
	return joined
}

func readError(t *testing.T, conn *websocket.Conn, codec protocol.Codec) string {
	t.Helper()
	f := read(t, conn, codec)
	require.Equal(t, protocol.MsgError, f.Type)
	var e protocol.Error
	require.NoError(t, f.Decode(&e))
	return e.Message
}

func TestGameServer_JoinSendsTankAndTerrain(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSONCodec{}, protocol.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			env := startTestServer(t, nil)
			conn := dial(t, env.url+"?codec="+codec.Name())

			send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: "  Alice "}})

			f := read(t, conn, codec)
			require.Equal(t, protocol.MsgJoined, f.Type)
			var joined protocol.Joined
			require.NoError(t, f.Decode(&joined))
			assert.Equal(t, "arena-1", joined.MatchID)
			assert.NotEmpty(t, joined.PlayerID)
			assert.Equal(t, "Alice", joined.Tank.PlayerName)
			assert.Equal(t, joined.PlayerID, joined.Tank.PlayerID)

			f = read(t, conn, codec)
			require.Equal(t, protocol.MsgTerrain, f.Type)
			var snap terrain.Snapshot
			require.NoError(t, f.Decode(&snap))
			want := env.match.TerrainSnapshot()
			assert.Equal(t, want.MapName, snap.MapName)
			assert.Equal(t, want.HeightMap, snap.HeightMap)
			assert.Equal(t, want.SpawnPoints, snap.SpawnPoints)
			assert.Empty(t, snap.Craters)

			assert.Equal(t, []string{joined.PlayerID}, env.match.Players())
		})
	}
}

func TestGameServer_JoinErrors(t *testing.T) {
	codec := protocol.JSONCodec{}
	env := startTestServer(t, nil)
	conn := dial(t, env.url)

	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgAction, Data: entity.Action{Type: entity.ActionStop}})
	assert.Contains(t, readError(t, conn, codec), "join before")

	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: "bad@name"}})
	assert.Contains(t, readError(t, conn, codec), "invalid characters")

	send(t, conn, codec, protocol.Envelope{Type: "chat"})
	assert.Contains(t, readError(t, conn, codec), "unknown message type")

	join(t, conn, codec, "Alice")
	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: "Alice"}})
	assert.Contains(t, readError(t, conn, codec), "already joined")
}

func TestGameServer_JoinWithoutArena(t *testing.T) {
	codec := protocol.JSONCodec{}
	s := NewGameServer(config.DefaultConfig().Network, logging.NewLoggerWithWriter(io.Discard, slog.LevelError))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: "Alice"}})
	assert.Equal(t, ErrNoArena.Error(), readError(t, conn, codec))
}

func TestGameServer_ActionsReachTheMatch(t *testing.T) {
	codec := protocol.JSONCodec{}
	env := startTestServer(t, nil)
	conn := dial(t, env.url)
	joined := join(t, conn, codec, "Alice")

	// PlayerID from the client is ignored.
	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgAction, Data: entity.Action{Type: entity.ActionSetPower, PlayerID: "someone-else", Power: 80}})
	require.Eventually(t, func() bool {
		env.match.Step()
		tank, _ := env.match.Tank(joined.PlayerID)
		return tank.Power == 80
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGameServer_InvalidActionIsRejected(t *testing.T) {
	codec := protocol.MsgpackCodec{}
	env := startTestServer(t, nil)
	conn := dial(t, env.url+"?codec=msgpack")
	join(t, conn, codec, "Alice")

	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgAction, Data: entity.Action{Type: entity.ActionSetPower, Power: 500}})
	f := read(t, conn, codec)
	require.Equal(t, protocol.MsgRejected, f.Type)
	var rej protocol.Rejected
	require.NoError(t, f.Decode(&rej))
	assert.Equal(t, entity.ActionSetPower, rej.Action.Type)
	assert.Contains(t, rej.Reason, "out of range")
}

func TestGameServer_RateLimit(t *testing.T) {
	codec := protocol.JSONCodec{}
	env := startTestServer(t, func(c *config.GameConfig) {
		c.Network.RateLimit = 2
		c.Network.RateWindow = time.Hour
	})
	conn := dial(t, env.url)
	join(t, conn, codec, "Alice")

	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgAction, Data: entity.Action{Type: entity.ActionStop}})
	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgAction, Data: entity.Action{Type: entity.ActionStop}})
	assert.Contains(t, readError(t, conn, codec), "rate limit")
}

func TestGameServer_Broadcasts(t *testing.T) {
	env := startTestServer(t, nil)
	jsonConn := dial(t, env.url)
	packConn := dial(t, env.url+"?codec=msgpack")
	idle := dial(t, env.url) // never joins
	a := join(t, jsonConn, protocol.JSONCodec{}, "Alice")
	join(t, packConn, protocol.MsgpackCodec{}, "Bob")

	env.match.Step()
	snap := env.match.Snapshot()
	env.server.BroadcastSnapshot("arena-1", snap)
	env.server.BroadcastSnapshot("other-match", snap)

	for _, tc := range []struct {
		conn  *websocket.Conn
		codec protocol.Codec
	}{{jsonConn, protocol.JSONCodec{}}, {packConn, protocol.MsgpackCodec{}}} {
		f := read(t, tc.conn, tc.codec)
		require.Equal(t, protocol.MsgSnapshot, f.Type)
		var got engine.Snapshot
		require.NoError(t, f.Decode(&got))
		assert.Equal(t, snap.Tick, got.Tick)
		assert.Len(t, got.Tanks, 2)
	}

	patch := terrain.Patch{Version: 1, FromX: 10, Heights: []float64{500, 501}}
	env.server.BroadcastPatches("arena-1", []terrain.Patch{patch})
	f := read(t, jsonConn, protocol.JSONCodec{})
	require.Equal(t, protocol.MsgPatch, f.Type)
	var p protocol.Patches
	require.NoError(t, f.Decode(&p))
	assert.Equal(t, []terrain.Patch{patch}, p.Patches)

	// Rejections go only to the player concerned.
	env.server.NotifyRejections("arena-1", []engine.Rejection{{
		PlayerID: a.PlayerID,
		Action:   entity.Action{Type: entity.ActionShoot, PlayerID: a.PlayerID},
		Reason:   "weapon cooling down",
	}})
	f = read(t, jsonConn, protocol.JSONCodec{})
	require.Equal(t, protocol.MsgRejected, f.Type)
	var rej protocol.Rejected
	require.NoError(t, f.Decode(&rej))
	assert.Equal(t, "weapon cooling down", rej.Reason)

	// Bob saw the patch but no rejection; the idle client saw nothing.
	f = read(t, packConn, protocol.MsgpackCodec{})
	assert.Equal(t, protocol.MsgPatch, f.Type)
	packConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := packConn.ReadMessage()
	assert.Error(t, err)
	idle.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = idle.ReadMessage()
	assert.Error(t, err)
}

func TestGameServer_PatchesAlreadyInJoinSnapshotAreSkipped(t *testing.T) {
	cfg := config.DefaultConfig()
	ground := terrain.Generate(cfg.Match.MapName, cfg.Match.WorldWidth, cfg.Match.WorldHeight, cfg.Match.Seed)
	_, stale := ground.CreateCrater(physics.Vec(600, ground.GetHeightAt(600)), 30)
	require.Equal(t, uint64(1), stale.Version)

	env := startTestServer(t, nil, engine.WithTerrain(ground))
	conn := dial(t, env.url)
	codec := protocol.JSONCodec{}

	send(t, conn, codec, protocol.Envelope{Type: protocol.MsgJoin, Data: protocol.JoinRequest{Name: "Alice"}})
	require.Equal(t, protocol.MsgJoined, read(t, conn, codec).Type)
	f := read(t, conn, codec)
	require.Equal(t, protocol.MsgTerrain, f.Type)
	var ts terrain.Snapshot
	require.NoError(t, f.Decode(&ts))
	assert.Equal(t, uint64(1), ts.Version)

	fresh := terrain.Patch{Version: 2, FromX: 10, Heights: []float64{500}}
	env.server.BroadcastPatches("arena-1", []terrain.Patch{stale})
	env.server.BroadcastPatches("arena-1", []terrain.Patch{stale, fresh})

	f = read(t, conn, codec)
	require.Equal(t, protocol.MsgPatch, f.Type)
	var p protocol.Patches
	require.NoError(t, f.Decode(&p))
	require.Len(t, p.Patches, 1)
	assert.Equal(t, uint64(2), p.Patches[0].Version)

	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "the stale-only broadcast must not reach the client")
}

func TestGameServer_DisconnectRemovesTank(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dial(t, env.url)
	joined := join(t, conn, protocol.JSONCodec{}, "Alice")
	require.Equal(t, 1, env.server.ClientCount())

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool {
		return env.server.ClientCount() == 0 && !slices.Contains(env.match.Players(), joined.PlayerID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGameServer_RefusesConnections(t *testing.T) {
	env := startTestServer(t, func(c *config.GameConfig) { c.Network.MaxClients = 1 })
	dial(t, env.url)
	require.Eventually(t, func() bool { return env.server.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(env.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(env.url+"?codec=xml", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGameServer_StartAndShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Network.ListenAddress = "127.0.0.1:0"
	s := NewGameServer(cfg.Network, logging.NewLoggerWithWriter(io.Discard, slog.LevelError))
	assert.Empty(t, s.Addr())

	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotEmpty(t, addr)

	conn := dial(t, "ws://"+addr+"/ws")
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
