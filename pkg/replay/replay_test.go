// pkg/replay/replay_test.go
package replay

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewLoggerWithWriter(io.Discard, slog.LevelError)
}

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func replayConfig() *config.GameConfig {
	cfg := config.DefaultConfig()
	cfg.Match.MapName = "canyon"
	cfg.Match.Seed = 7
	return cfg
}

func TestStore_BeginMatchAndConfig(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "replay.db"))
	cfg := replayConfig()

	require.NoError(t, s.BeginMatch("m1", cfg))
	assert.Error(t, s.BeginMatch("m1", cfg), "duplicate match IDs are refused")

	got, err := s.MatchConfig("m1")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = s.MatchConfig("missing")
	assert.ErrorIs(t, err, ErrUnknownMatch)
}

func TestStore_RecordAndLoadActions(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "replay.db"))
	require.NoError(t, s.BeginMatch("m1", replayConfig()))

	entries := []engine.JournalEntry{
		{Tick: 0, Seq: 1, Kind: engine.JournalJoin, PlayerID: "p1", PlayerName: "Alice"},
		{Tick: 3, Seq: 2, Kind: engine.JournalAction, PlayerID: "p1",
			Action: entity.Action{Type: entity.ActionShoot, PlayerID: "p1", Power: 72.5, WeaponType: entity.WeaponHeavy}},
		{Tick: 3, Seq: 3, Kind: engine.JournalAction, PlayerID: "p1",
			Action: entity.Action{Type: entity.ActionRotateTurret, PlayerID: "p1", Delta: -0.25}},
		{Tick: 9, Seq: 4, Kind: engine.JournalLeave, PlayerID: "p1"},
	}
	// Written out of order; reads come back by sequence.
	for _, i := range []int{2, 0, 3, 1} {
		require.NoError(t, s.RecordAction("m1", entries[i]))
	}

	got, err := s.Actions("m1")
	require.NoError(t, err)
	assert.Equal(t, entries, got)

	empty, err := s.Actions("other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_RecordRequiresMatch(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "replay.db"))
	err := s.RecordAction("never-begun", engine.JournalEntry{Seq: 1, Kind: engine.JournalJoin, PlayerID: "p1"})
	assert.Error(t, err)

	s.Journal("never-begun")(engine.JournalEntry{Seq: 1, Kind: engine.JournalJoin, PlayerID: "p1"})
	assert.Equal(t, int64(1), s.Failures())
}

func TestStore_Matches(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "replay.db"))
	factory := s.JournalFactory()

	j, err := factory("a", replayConfig())
	require.NoError(t, err)
	j(engine.JournalEntry{Seq: 1, Kind: engine.JournalJoin, PlayerID: "p1", PlayerName: "Alice"})
	j(engine.JournalEntry{Seq: 2, Kind: engine.JournalJoin, PlayerID: "p2", PlayerName: "Bob"})
	_, err = factory("b", replayConfig())
	require.NoError(t, err)

	infos, err := s.Matches()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	counts := map[string]int{}
	for _, info := range infos {
		counts[info.ID] = info.Actions
		assert.False(t, info.CreatedAt.IsZero())
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 0}, counts)
	assert.Zero(t, s.Failures())
}

func TestReplay_ReproducesLiveMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.db")
	s := openStore(t, path)
	cfg := replayConfig()

	journal, err := s.JournalFactory()("live", cfg)
	require.NoError(t, err)
	live := engine.NewMatch("live", cfg, engine.WithJournal(journal))

	_, err = live.AddTank("p1", "Alice")
	require.NoError(t, err)
	_, err = live.AddTank("p2", "Bob")
	require.NoError(t, err)

	const ticks = 300
	for i := 0; i < ticks; i++ {
		switch {
		case i%50 == 0:
			require.NoError(t, live.Enqueue(entity.Action{Type: entity.ActionShoot, PlayerID: "p1", Power: float64(40 + i/10)}))
		case i%50 == 25:
			require.NoError(t, live.Enqueue(entity.Action{Type: entity.ActionShoot, PlayerID: "p2", WeaponType: entity.WeaponLight}))
		case i%7 == 0:
			require.NoError(t, live.Enqueue(entity.Action{Type: entity.ActionRotateTurret, PlayerID: "p1", Delta: -0.1}))
		case i%11 == 0:
			require.NoError(t, live.Enqueue(entity.Action{Type: entity.ActionMoveRight, PlayerID: "p2"}))
		}
		if i == 120 {
			_, err := live.AddTank("p3", "Carol")
			require.NoError(t, err)
		}
		if i == 200 {
			require.NoError(t, live.RemoveTank("p3"))
		}
		live.Step()
	}
	require.Zero(t, s.Failures())

	// Reopen to read back what was persisted.
	require.NoError(t, s.Close())
	reopened := openStore(t, path)

	got, err := Replay(reopened, "live", ticks)
	require.NoError(t, err)
	assert.Equal(t, live.Snapshot(), got)

	early, err := Replay(reopened, "live", 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), early.Tick)
	assert.Len(t, early.Tanks, 2)
}

func TestReplay_UnknownMatch(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "replay.db"))
	_, err := Replay(s, "missing", 10)
	assert.ErrorIs(t, err, ErrUnknownMatch)
}
