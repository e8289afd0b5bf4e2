// pkg/engine/match.go
package engine

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/event"
	"github.com/opd-ai/go-tankwars/pkg/physics"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
)

// Match errors returned to callers or carried in rejections.
var (
	ErrMatchFull     = errors.New("match is full")
	ErrPlayerExists  = errors.New("player already in match")
	ErrUnknownPlayer = errors.New("unknown player")
	ErrBulletLimit   = errors.New("too many bullets in flight")
)

var tankColors = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#bfef45",
}

// JournalKind tags an entry in a match's input log.
type JournalKind string

const (
	JournalJoin   JournalKind = "join"
	JournalLeave  JournalKind = "leave"
	JournalAction JournalKind = "action"
)

// JournalEntry is one accepted input. Tick is the number of completed ticks
// when the input arrived, so applying entries with Tick == n right before
// the (n+1)-th Tick reproduces the match.
type JournalEntry struct {
	Tick       uint64
	Seq        uint64
	Kind       JournalKind
	PlayerID   string
	PlayerName string
	Action     entity.Action
}

// Journal receives every accepted input, in order, while the match lock is
// held. It must not call back into the match.
type Journal func(JournalEntry)

// Rejection is an action that game rules refused during a tick.
type Rejection struct {
	PlayerID string
	Action   entity.Action
	Reason   string
	Err      error
}

// Hit is damage dealt to a tank by a bullet.
type Hit struct {
	BulletID  string
	ShooterID string
	PlayerID  string
	Damage    int
	Killed    bool
	Splash    bool
}

// TickReport summarizes what one tick changed.
type TickReport struct {
	Tick           uint64
	NowMs          int64
	Collisions     []physics.CollisionRecord
	Rejections     []Rejection
	BulletsFired   []string
	Hits           []Hit
	TerrainPatches []terrain.Patch
	Respawned      []string
}

// PlayerScore is a player's running tally.
type PlayerScore struct {
	PlayerID string `json:"playerId" msgpack:"playerId"`
	Kills    int    `json:"kills" msgpack:"kills"`
	Deaths   int    `json:"deaths" msgpack:"deaths"`
	Shots    int    `json:"shots" msgpack:"shots"`
}

// Wind is the constant wind of a match.
type Wind struct {
	Strength  float64 `json:"strength" msgpack:"strength"`
	Direction float64 `json:"direction" msgpack:"direction"`
}

// Snapshot is the broadcast state of a match.
type Snapshot struct {
	MatchID        string                  `json:"matchId" msgpack:"matchId"`
	Tick           uint64                  `json:"tick" msgpack:"tick"`
	TimeMs         int64                   `json:"timeMs" msgpack:"timeMs"`
	Tanks          []entity.TankSnapshot   `json:"tanks" msgpack:"tanks"`
	Bullets        []entity.BulletSnapshot `json:"bullets" msgpack:"bullets"`
	Scores         []PlayerScore           `json:"scores" msgpack:"scores"`
	TerrainVersion uint64                  `json:"terrainVersion" msgpack:"terrainVersion"`
	Wind           Wind                    `json:"wind" msgpack:"wind"`
}

type bodyRef struct {
	handle physics.Handle
	host   physics.Collidable
}

// Match is one arena: a terrain, its tanks and the bullets in flight. All
// methods are safe for concurrent use; Step is expected to be driven by a
// single goroutine.
type Match struct {
	id      string
	cfg     config.GameConfig
	clock   *Clock
	terrain *terrain.Terrain
	world   *physics.Engine

	tanks   map[string]*entity.Tank // by player ID
	order   []string                // player IDs in join order
	scores  map[string]*PlayerScore
	bullets []*entity.Bullet
	bodies  map[string]bodyRef // by body ID

	bulletIDs   *entity.IDSource
	queue       []entity.Action
	spawnCursor int
	seq         uint64

	journal Journal
	bus     *event.Bus
	metrics *Metrics
	pending []event.Event

	mu sync.Mutex
}

// Option customizes a Match.
type Option func(*Match)

// WithTerrain replaces the generated terrain.
func WithTerrain(t *terrain.Terrain) Option {
	return func(m *Match) { m.terrain = t }
}

// WithEventBus publishes match events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(m *Match) { m.bus = bus }
}

// WithMetrics records tick telemetry.
func WithMetrics(mt *Metrics) Option {
	return func(m *Match) { m.metrics = mt }
}

// WithJournal logs every accepted input.
func WithJournal(j Journal) Option {
	return func(m *Match) { m.journal = j }
}

// NewMatch creates a match from cfg. The terrain is generated from the
// match section unless WithTerrain is given.
func NewMatch(id string, cfg *config.GameConfig, opts ...Option) *Match {
	m := &Match{
		id:        id,
		cfg:       *cfg,
		clock:     NewClock(cfg.Physics.TickRate),
		world:     physics.NewEngine(cfg.Physics.EngineConfig()),
		tanks:     make(map[string]*entity.Tank),
		scores:    make(map[string]*PlayerScore),
		bodies:    make(map[string]bodyRef),
		bulletIDs: entity.NewIDSource("bullet"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.terrain == nil {
		mc := cfg.Match
		m.terrain = terrain.Generate(mc.MapName, mc.WorldWidth, mc.WorldHeight, mc.Seed)
	}
	if m.bus == nil {
		m.bus = event.NewEventBus()
	}
	return m
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.id }

// Events returns the bus match events are published on.
func (m *Match) Events() *event.Bus { return m.bus }

// Tick returns the number of completed ticks.
func (m *Match) Tick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock.Tick()
}

// Players returns player IDs in join order.
func (m *Match) Players() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// Tank returns the current state of a player's tank.
func (m *Match) Tank(playerID string) (entity.TankSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tanks[playerID]
	if !ok {
		return entity.TankSnapshot{}, false
	}
	return t.Snapshot(), true
}

// AddTank spawns a tank for a new player.
func (m *Match) AddTank(playerID, playerName string) (entity.TankSnapshot, error) {
	m.mu.Lock()
	snap, err := m.addTank(playerID, playerName)
	events := m.takePending()
	m.mu.Unlock()

	m.publish(events)
	return snap, err
}

func (m *Match) addTank(playerID, playerName string) (entity.TankSnapshot, error) {
	if _, ok := m.tanks[playerID]; ok {
		return entity.TankSnapshot{}, fmt.Errorf("%w: %s", ErrPlayerExists, playerID)
	}
	if len(m.order) >= m.cfg.Match.MaxPlayers {
		return entity.TankSnapshot{}, ErrMatchFull
	}

	sp := m.terrain.SpawnPoint(m.spawnCursor)
	color := tankColors[m.spawnCursor%len(tankColors)]
	m.spawnCursor++

	t := entity.NewTank(playerID, playerName, color, sp.Position, sp.Rotation)
	t.SettleOnGround(m.terrain)
	m.tanks[playerID] = t
	m.order = append(m.order, playerID)
	m.scores[playerID] = &PlayerScore{PlayerID: playerID}
	m.bodies[t.ID] = bodyRef{handle: m.world.AddCollidable(t), host: t}

	m.record(JournalEntry{Kind: JournalJoin, PlayerID: playerID, PlayerName: playerName})
	m.emit(event.NewPlayerEvent(event.PlayerJoined, m, m.clock.Tick(), playerID, playerName))
	return t.Snapshot(), nil
}

// RemoveTank takes a player's tank out of the match. Its bullets stay in
// flight.
func (m *Match) RemoveTank(playerID string) error {
	m.mu.Lock()
	err := m.removeTank(playerID)
	events := m.takePending()
	m.mu.Unlock()

	m.publish(events)
	return err
}

func (m *Match) removeTank(playerID string) error {
	t, ok := m.tanks[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	m.world.RemoveBody(m.bodies[t.ID].handle)
	delete(m.bodies, t.ID)
	delete(m.tanks, playerID)
	delete(m.scores, playerID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == playerID })

	m.record(JournalEntry{Kind: JournalLeave, PlayerID: playerID})
	m.emit(event.NewPlayerEvent(event.PlayerLeft, m, m.clock.Tick(), playerID, t.PlayerName))
	return nil
}

// Enqueue queues an action for the next tick.
func (m *Match) Enqueue(a entity.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueue(a)
}

func (m *Match) enqueue(a entity.Action) error {
	if _, ok := m.tanks[a.PlayerID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, a.PlayerID)
	}
	m.queue = append(m.queue, a)
	m.record(JournalEntry{Kind: JournalAction, PlayerID: a.PlayerID, Action: a})
	return nil
}

// Apply replays a journal entry.
func (m *Match) Apply(e JournalEntry) error {
	switch e.Kind {
	case JournalJoin:
		_, err := m.AddTank(e.PlayerID, e.PlayerName)
		return err
	case JournalLeave:
		return m.RemoveTank(e.PlayerID)
	case JournalAction:
		a := e.Action
		a.PlayerID = e.PlayerID
		return m.Enqueue(a)
	default:
		return fmt.Errorf("unknown journal entry kind %q", e.Kind)
	}
}

func (m *Match) record(e JournalEntry) {
	m.seq++
	if m.journal == nil {
		return
	}
	e.Tick = m.clock.Tick()
	e.Seq = m.seq
	m.journal(e)
}

func (m *Match) emit(e event.Event) {
	m.pending = append(m.pending, e)
}

func (m *Match) takePending() []event.Event {
	events := m.pending
	m.pending = nil
	return events
}

// publish runs outside the lock so handlers may query the match.
func (m *Match) publish(events []event.Event) {
	for _, e := range events {
		m.bus.Publish(e)
	}
}

// Step advances the match by one tick.
func (m *Match) Step() TickReport {
	start := time.Now()

	m.mu.Lock()
	report := m.step()
	events := m.takePending()
	m.mu.Unlock()

	m.metrics.record(m.id, time.Since(start), &report)
	m.publish(events)
	return report
}

func (m *Match) step() TickReport {
	tick := m.clock.Advance()
	now := m.clock.NowMs()
	r := TickReport{Tick: tick, NowMs: now}

	m.applyActions(&r, now)
	m.integrateBullets(now)
	r.Collisions = m.world.Update(m.clock.Dt())
	m.resolveHits(&r, now)
	m.resolveTerrainImpacts(&r, now)
	m.cullBullets()
	m.respawnTanks(&r, now)
	return r
}

func (m *Match) applyActions(r *TickReport, now int64) {
	for _, a := range m.queue {
		if err := m.applyAction(r, a, now); err != nil {
			r.Rejections = append(r.Rejections, Rejection{
				PlayerID: a.PlayerID,
				Action:   a,
				Reason:   err.Error(),
				Err:      err,
			})
		}
	}
	clear(m.queue)
	m.queue = m.queue[:0]
}

func (m *Match) applyAction(r *TickReport, a entity.Action, now int64) error {
	t, ok := m.tanks[a.PlayerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, a.PlayerID)
	}

	if a.Type != entity.ActionShoot {
		err := t.HandleMovement(a, m.terrain)
		if err == nil && a.Type.Horizontal() {
			t.SettleOnGround(m.terrain)
		}
		return err
	}

	if t.Alive && len(m.bullets) >= m.cfg.Match.MaxBullets {
		return ErrBulletLimit
	}
	shot, err := t.Shoot(a, now)
	if err != nil {
		return err
	}
	m.spawnBullet(r, t, shot, now)
	return nil
}

func (m *Match) spawnBullet(r *TickReport, t *entity.Tank, shot entity.ShotResult, now int64) {
	id := m.bulletIDs.Next()
	b := entity.NewBullet(id, t.PlayerID, shot, now)
	m.bullets = append(m.bullets, b)
	m.bodies[id] = bodyRef{handle: m.world.AddCollidable(b), host: b}
	m.scores[t.PlayerID].Shots++

	r.BulletsFired = append(r.BulletsFired, id)
	m.emit(event.NewBulletFiredEvent(m, r.Tick, id, t.PlayerID, b.Position, b.Velocity, string(b.WeaponType)))
}

func (m *Match) integrateBullets(now int64) {
	env := physics.IntegrationEnv{
		Dt:            m.clock.Dt(),
		Gravity:       m.cfg.Physics.Gravity,
		WindStrength:  m.cfg.Physics.WindStrength,
		WindDirection: m.cfg.Physics.WindDirection,
		NowMs:         now,
	}
	physics.IntegrateAll(env, m.bullets)
}

// resolveHits turns bullet-tank contacts into damage. Owners are immune to
// their own direct hits.
func (m *Match) resolveHits(r *TickReport, now int64) {
	for _, c := range r.Collisions {
		b, t := m.bulletAndTank(c.IDA, c.IDB)
		if b == nil || t == nil || !b.Active || !t.Alive || b.PlayerID == t.PlayerID {
			continue
		}
		damage := b.GetImpactDamage()
		b.Deactivate()
		m.damageTank(r, t, b, damage, false, now)
	}
}

func (m *Match) bulletAndTank(idA, idB string) (*entity.Bullet, *entity.Tank) {
	var (
		b *entity.Bullet
		t *entity.Tank
	)
	for _, id := range [2]string{idA, idB} {
		switch h := m.bodies[id].host.(type) {
		case *entity.Bullet:
			b = h
		case *entity.Tank:
			t = h
		}
	}
	return b, t
}

func (m *Match) damageTank(r *TickReport, t *entity.Tank, b *entity.Bullet, damage int, splash bool, now int64) {
	if damage <= 0 {
		return
	}
	killed := t.TakeDamage(damage)
	r.Hits = append(r.Hits, Hit{
		BulletID:  b.ID,
		ShooterID: b.PlayerID,
		PlayerID:  t.PlayerID,
		Damage:    damage,
		Killed:    killed,
		Splash:    splash,
	})
	m.emit(event.NewTankEvent(event.TankHit, m, r.Tick, t.ID, t.PlayerID, b.PlayerID, damage, t.Health, t.Position))

	if !killed {
		return
	}
	t.DiedAtMs = now
	m.scores[t.PlayerID].Deaths++
	if s, ok := m.scores[b.PlayerID]; ok && b.PlayerID != t.PlayerID {
		s.Kills++
	}
	m.emit(event.NewTankEvent(event.TankDestroyed, m, r.Tick, t.ID, t.PlayerID, b.PlayerID, damage, 0, t.Position))
}

func (m *Match) resolveTerrainImpacts(r *TickReport, now int64) {
	cratered := false
	for _, b := range m.bullets {
		if !b.Active {
			continue
		}
		if m.terrain.OutOfWorld(b.Position) {
			b.Deactivate()
			continue
		}
		if !m.terrain.CheckCollision(b.GetBounds()) {
			continue
		}
		b.Deactivate()
		m.explode(r, b, now)
		cratered = true
	}

	if !cratered {
		return
	}
	for _, id := range m.order {
		if t := m.tanks[id]; t.Alive {
			t.SettleOnGround(m.terrain)
		}
	}
}

func (m *Match) explode(r *TickReport, b *entity.Bullet, now int64) {
	crater, patch := m.terrain.CreateCrater(b.Position, b.ExplosionRadius())
	if patch.Version != 0 {
		r.TerrainPatches = append(r.TerrainPatches, patch)
		m.emit(event.NewCraterEvent(m, r.Tick, crater.ID, crater.Position, crater.Radius, patch.Version))
	}
	if m.cfg.Physics.SplashDamage {
		m.splash(r, b, now)
	}
}

// splash damages every live tank touching the blast, falling off linearly
// with distance. Unlike direct hits it also reaches the shooter.
func (m *Match) splash(r *TickReport, b *entity.Bullet, now int64) {
	base := float64(b.GetImpactDamage())
	radius := b.ExplosionRadius()
	for _, h := range m.world.QueryCircle(b.Position, radius, physics.LayerTank) {
		body := m.world.Body(h)
		t, ok := m.bodies[body.ID].host.(*entity.Tank)
		if !ok || !t.Alive {
			continue
		}
		reach := radius + body.Radius
		falloff := 1 - t.Position.Distance(b.Position)/reach
		m.damageTank(r, t, b, int(math.Floor(base*falloff)), true, now)
	}
}

func (m *Match) cullBullets() {
	kept := m.bullets[:0]
	for _, b := range m.bullets {
		if b.Active {
			kept = append(kept, b)
			continue
		}
		m.world.RemoveBody(m.bodies[b.ID].handle)
		delete(m.bodies, b.ID)
	}
	clear(m.bullets[len(kept):])
	m.bullets = kept
}

func (m *Match) respawnTanks(r *TickReport, now int64) {
	for _, id := range m.order {
		t := m.tanks[id]
		if t.Alive || now-t.DiedAtMs < m.cfg.Match.RespawnDelayMs {
			continue
		}
		sp := m.terrain.SpawnPoint(m.spawnCursor)
		m.spawnCursor++
		t.Respawn(sp.Position, sp.Rotation)
		t.SettleOnGround(m.terrain)

		r.Respawned = append(r.Respawned, id)
		m.emit(event.NewTankEvent(event.TankRespawned, m, r.Tick, t.ID, id, "", 0, t.Health, t.Position))
	}
}

// Snapshot captures the broadcast state. Tanks are listed in join order and
// bullets in firing order.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		MatchID:        m.id,
		Tick:           m.clock.Tick(),
		TimeMs:         m.clock.NowMs(),
		Tanks:          make([]entity.TankSnapshot, 0, len(m.order)),
		Bullets:        make([]entity.BulletSnapshot, 0, len(m.bullets)),
		Scores:         make([]PlayerScore, 0, len(m.order)),
		TerrainVersion: m.terrain.Version(),
		Wind: Wind{
			Strength:  m.cfg.Physics.WindStrength,
			Direction: m.cfg.Physics.WindDirection,
		},
	}
	for _, id := range m.order {
		s.Tanks = append(s.Tanks, m.tanks[id].Snapshot())
		s.Scores = append(s.Scores, *m.scores[id])
	}
	for _, b := range m.bullets {
		s.Bullets = append(s.Bullets, b.Snapshot())
	}
	return s
}

// TerrainSnapshot returns the full terrain for newly joined clients.
func (m *Match) TerrainSnapshot() terrain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terrain.Snapshot()
}
