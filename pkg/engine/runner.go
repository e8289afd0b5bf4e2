// pkg/engine/runner.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
)

// ErrUnknownMatch is returned for match IDs the runner does not own.
var ErrUnknownMatch = errors.New("unknown match")

// Broadcaster delivers tick output to connected clients.
type Broadcaster interface {
	BroadcastSnapshot(matchID string, s Snapshot)
	BroadcastPatches(matchID string, patches []terrain.Patch)
	NotifyRejections(matchID string, rejections []Rejection)
}

// JournalFactory opens the input log for a new match. A nil Journal
// disables logging for that match.
type JournalFactory func(matchID string, cfg *config.GameConfig) (Journal, error)

type runningMatch struct {
	match  *Match
	cfg    *config.GameConfig
	cancel context.CancelFunc
}

// Runner drives every match on its own ticker goroutine.
type Runner struct {
	broadcaster Broadcaster
	journals    JournalFactory
	metrics     *Metrics
	logger      *logging.Logger

	mu      sync.RWMutex
	matches map[string]*runningMatch
	group   *errgroup.Group
	ctx     context.Context

	lastTick atomic.Int64 // unix nanoseconds
}

// NewRunner creates a runner. broadcaster and journals may be nil.
func NewRunner(broadcaster Broadcaster, journals JournalFactory, metrics *Metrics, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewLogger()
	}
	return &Runner{
		broadcaster: broadcaster,
		journals:    journals,
		metrics:     metrics,
		logger:      logger,
		matches:     make(map[string]*runningMatch),
	}
}

// Create starts a new match with a fresh ID. If the runner is already
// running the match begins ticking immediately.
func (r *Runner) Create(cfg *config.GameConfig) (*Match, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.NewString()

	opts := []Option{WithMetrics(r.metrics)}
	if r.journals != nil {
		j, err := r.journals(id, cfg)
		if err != nil {
			return nil, logging.WrapError(err, "opening journal for match %s", id)
		}
		if j != nil {
			opts = append(opts, WithJournal(j))
		}
	}
	m := NewMatch(id, cfg, opts...)

	r.mu.Lock()
	defer r.mu.Unlock()
	rm := &runningMatch{match: m, cfg: cfg}
	r.matches[id] = rm
	if r.group != nil {
		r.startLocked(rm)
	}

	r.logger.Info(context.Background(), "match created",
		"match_id", id, "map", cfg.Match.MapName, "seed", cfg.Match.Seed)
	return m, nil
}

// Run ticks every match until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.group != nil {
		r.mu.Unlock()
		return errors.New("runner already running")
	}
	g, gctx := errgroup.WithContext(ctx)
	r.group, r.ctx = g, gctx
	// Keeps the group alive while no match is running.
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	for _, rm := range r.matches {
		r.startLocked(rm)
	}
	r.mu.Unlock()

	err := g.Wait()

	r.mu.Lock()
	r.group, r.ctx = nil, nil
	r.mu.Unlock()
	return err
}

func (r *Runner) startLocked(rm *runningMatch) {
	ctx, cancel := context.WithCancel(r.ctx)
	rm.cancel = cancel
	r.group.Go(func() error {
		return r.loop(ctx, rm)
	})
}

func (r *Runner) loop(ctx context.Context, rm *runningMatch) error {
	ticker := time.NewTicker(rm.cfg.Physics.TickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.step(rm)
		}
	}
}

func (r *Runner) step(rm *runningMatch) {
	m := rm.match
	report := m.Step()
	r.lastTick.Store(time.Now().UnixNano())

	if r.broadcaster == nil {
		return
	}
	if len(report.Rejections) > 0 {
		r.broadcaster.NotifyRejections(m.ID(), report.Rejections)
	}
	if len(report.TerrainPatches) > 0 {
		r.broadcaster.BroadcastPatches(m.ID(), report.TerrainPatches)
	}
	if report.Tick%uint64(rm.cfg.Network.SnapshotEvery) == 0 {
		r.broadcaster.BroadcastSnapshot(m.ID(), m.Snapshot())
	}
}

// Match returns a match by ID.
func (r *Runner) Match(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.matches[id]
	if !ok {
		return nil, false
	}
	return rm.match, true
}

// MatchIDs lists the matches the runner owns.
func (r *Runner) MatchIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.matches))
	for id := range r.matches {
		ids = append(ids, id)
	}
	return ids
}

// Enqueue forwards an action to a match.
func (r *Runner) Enqueue(matchID string, a entity.Action) error {
	m, ok := r.Match(matchID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	return m.Enqueue(a)
}

// Stop halts and forgets a match.
func (r *Runner) Stop(matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.matches[matchID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	if rm.cancel != nil {
		rm.cancel()
	}
	delete(r.matches, matchID)
	r.logger.Info(context.Background(), "match stopped", "match_id", matchID, "tick", rm.match.Tick())
	return nil
}

// Running reports whether Run is active.
func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.group != nil
}

// LastTick is the wall time of the most recent tick of any match.
func (r *Runner) LastTick() time.Time {
	ns := r.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
