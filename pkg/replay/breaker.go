// pkg/replay/breaker.go
package replay

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/logging"
)

// Breaker defaults, used unless WithBreaker is given.
const (
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// WithBreaker sets how many consecutive journal write failures open the
// breaker and how long it stays open.
func WithBreaker(failures int, timeout time.Duration) Option {
	return func(s *Store) {
		s.breakerFailures = failures
		s.breakerTimeout = timeout
	}
}

func newBreaker(failures int, timeout time.Duration, logger *logging.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "replay-journal",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "journal breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// BreakerState reports whether journal writes are currently flowing.
func (s *Store) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Journal returns a match journal writing to s. Writes go through the
// breaker; while it is open entries are dropped without touching the
// database. Failures are logged and counted, never returned to the match.
func (s *Store) Journal(matchID string) engine.Journal {
	return func(e engine.JournalEntry) {
		_, err := s.breaker.Execute(func() (interface{}, error) {
			return nil, s.RecordAction(matchID, e)
		})
		if err == nil {
			return
		}
		s.failures.Add(1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return
		}
		s.logger.Error(context.Background(), "journal write failed", err,
			"match_id", matchID, "seq", e.Seq)
	}
}
