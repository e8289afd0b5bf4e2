// pkg/replay/replay.go
package replay

import (
	"fmt"

	"github.com/opd-ai/go-tankwars/pkg/engine"
)

// Replay rebuilds a recorded match and runs it for ticks ticks. Inputs
// journaled at tick n are applied right before tick n+1, the order they
// were accepted in live. The result is the match state after the last tick.
func Replay(s *Store, matchID string, ticks uint64) (engine.Snapshot, error) {
	cfg, err := s.MatchConfig(matchID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	entries, err := s.Actions(matchID)
	if err != nil {
		return engine.Snapshot{}, err
	}

	m := engine.NewMatch(matchID, cfg)
	next := 0
	for n := uint64(0); n < ticks; n++ {
		for next < len(entries) && entries[next].Tick <= n {
			e := entries[next]
			if err := m.Apply(e); err != nil {
				return engine.Snapshot{}, fmt.Errorf("replaying seq %d of match %s: %w", e.Seq, matchID, err)
			}
			next++
		}
		m.Step()
	}
	return m.Snapshot(), nil
}
