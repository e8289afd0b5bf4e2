// pkg/replay/store.go
package replay

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
)

// ErrUnknownMatch is returned for matches that were never begun.
var ErrUnknownMatch = errors.New("match not recorded")

const schema = `
CREATE TABLE IF NOT EXISTS matches (
	id TEXT PRIMARY KEY,
	config TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	match_id TEXT NOT NULL REFERENCES matches(id),
	seq INTEGER NOT NULL,
	tick INTEGER NOT NULL,
	kind TEXT NOT NULL,
	player_id TEXT NOT NULL,
	player_name TEXT NOT NULL DEFAULT '',
	action_type TEXT NOT NULL DEFAULT '',
	delta REAL NOT NULL DEFAULT 0,
	power REAL NOT NULL DEFAULT 0,
	weapon TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (match_id, seq)
);
`

// MatchInfo describes a recorded match.
type MatchInfo struct {
	ID        string
	CreatedAt time.Time
	Actions   int
}

// Store is a sqlite log of match inputs.
type Store struct {
	db       *sql.DB
	logger   *logging.Logger
	failures atomic.Int64

	breaker         *gobreaker.CircuitBreaker
	breakerFailures int
	breakerTimeout  time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for journal write failures.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens (or creates) the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening replay store: %w", err)
	}
	// Journal writes come from every match goroutine; one connection keeps
	// sqlite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring replay store: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating replay store: %w", err)
	}

	s := &Store{
		db:              db,
		breakerFailures: DefaultBreakerFailures,
		breakerTimeout:  DefaultBreakerTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}
	s.breaker = newBreaker(s.breakerFailures, s.breakerTimeout, s.logger)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Failures is the number of journal entries that could not be written.
func (s *Store) Failures() int64 {
	return s.failures.Load()
}

// BeginMatch records a match and the configuration it runs with.
func (s *Store) BeginMatch(id string, cfg *config.GameConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config for match %s: %w", id, err)
	}
	_, err = s.db.Exec(
		"INSERT INTO matches (id, config, created_at) VALUES (?, ?, ?)",
		id, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording match %s: %w", id, err)
	}
	return nil
}

// MatchConfig returns the configuration a match was begun with.
func (s *Store) MatchConfig(id string) (*config.GameConfig, error) {
	var raw string
	err := s.db.QueryRow("SELECT config FROM matches WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading match %s: %w", id, err)
	}
	var cfg config.GameConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decoding config for match %s: %w", id, err)
	}
	return &cfg, nil
}

// Matches lists recorded matches, oldest first.
func (s *Store) Matches() ([]MatchInfo, error) {
	rows, err := s.db.Query(`
		SELECT m.id, m.created_at, COUNT(a.seq)
		FROM matches m LEFT JOIN actions a ON a.match_id = m.id
		GROUP BY m.id
		ORDER BY m.created_at, m.id`)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var out []MatchInfo
	for rows.Next() {
		var (
			info    MatchInfo
			created int64
		)
		if err := rows.Scan(&info.ID, &created, &info.Actions); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		info.CreatedAt = time.UnixMilli(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// RecordAction appends one journal entry.
func (s *Store) RecordAction(matchID string, e engine.JournalEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO actions (match_id, seq, tick, kind, player_id, player_name, action_type, delta, power, weapon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		matchID, int64(e.Seq), int64(e.Tick), string(e.Kind), e.PlayerID, e.PlayerName,
		string(e.Action.Type), e.Action.Delta, e.Action.Power, string(e.Action.WeaponType),
	)
	if err != nil {
		return fmt.Errorf("recording %s for match %s: %w", e.Kind, matchID, err)
	}
	return nil
}

// Actions returns a match's journal in the order it was written.
func (s *Store) Actions(matchID string) ([]engine.JournalEntry, error) {
	rows, err := s.db.Query(`
		SELECT seq, tick, kind, player_id, player_name, action_type, delta, power, weapon
		FROM actions WHERE match_id = ? ORDER BY seq`, matchID)
	if err != nil {
		return nil, fmt.Errorf("loading actions for match %s: %w", matchID, err)
	}
	defer rows.Close()

	var out []engine.JournalEntry
	for rows.Next() {
		var (
			e                 engine.JournalEntry
			seq, tick         int64
			kind, typ, weapon string
		)
		if err := rows.Scan(&seq, &tick, &kind, &e.PlayerID, &e.PlayerName, &typ, &e.Action.Delta, &e.Action.Power, &weapon); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		e.Seq, e.Tick = uint64(seq), uint64(tick)
		e.Kind = engine.JournalKind(kind)
		e.Action.Type = entity.ActionType(typ)
		e.Action.WeaponType = entity.WeaponType(weapon)
		if e.Kind == engine.JournalAction {
			e.Action.PlayerID = e.PlayerID
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// JournalFactory records every match the runner creates.
func (s *Store) JournalFactory() engine.JournalFactory {
	return func(matchID string, cfg *config.GameConfig) (engine.Journal, error) {
		if err := s.BeginMatch(matchID, cfg); err != nil {
			return nil, err
		}
		return s.Journal(matchID), nil
	}
}
