// pkg/engine/clock.go
package engine

// Clock is the simulation time source. Game rules read NowMs instead of wall
// time so a recorded action log always replays to the same state.
type Clock struct {
	tick uint64
	rate int
}

// NewClock creates a clock advancing rate ticks per simulated second.
func NewClock(rate int) *Clock {
	if rate <= 0 {
		rate = 60
	}
	return &Clock{rate: rate}
}

// Tick returns the number of completed ticks.
func (c *Clock) Tick() uint64 { return c.tick }

// Rate returns ticks per second.
func (c *Clock) Rate() int { return c.rate }

// Advance completes one tick and returns the new tick number.
func (c *Clock) Advance() uint64 {
	c.tick++
	return c.tick
}

// NowMs is the simulated time in milliseconds.
func (c *Clock) NowMs() int64 {
	return int64(c.tick) * 1000 / int64(c.rate)
}

// Dt is the length of one tick in seconds.
func (c *Clock) Dt() float64 {
	return 1 / float64(c.rate)
}
