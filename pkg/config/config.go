// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/physics"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
	"github.com/opd-ai/go-tankwars/pkg/validation"
)

// EnvPrefix prefixes every environment override, e.g. TANKWARS_MATCH_MAPNAME.
const EnvPrefix = "TANKWARS"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// GameConfig contains the configuration of a tank server.
type GameConfig struct {
	Match    MatchConfig   `json:"match" mapstructure:"match"`
	Physics  PhysicsConfig `json:"physics" mapstructure:"physics"`
	Network  NetworkConfig `json:"network" mapstructure:"network"`
	Replay   ReplayConfig  `json:"replay" mapstructure:"replay"`
	LogLevel string        `json:"logLevel" mapstructure:"logLevel"`
}

// MatchConfig describes the arena and its rules.
type MatchConfig struct {
	MapName        string  `json:"mapName" mapstructure:"mapName"`
	WorldWidth     float64 `json:"worldWidth" mapstructure:"worldWidth"`
	WorldHeight    float64 `json:"worldHeight" mapstructure:"worldHeight"`
	MaxPlayers     int     `json:"maxPlayers" mapstructure:"maxPlayers"`
	MaxBullets     int     `json:"maxBullets" mapstructure:"maxBullets"`
	RespawnDelayMs int64   `json:"respawnDelayMs" mapstructure:"respawnDelayMs"`
	Seed           uint64  `json:"seed" mapstructure:"seed"`
}

// PhysicsConfig contains the constants of the simulation.
type PhysicsConfig struct {
	TickRate        int     `json:"tickRate" mapstructure:"tickRate"`
	Gravity         float64 `json:"gravity" mapstructure:"gravity"`
	WindStrength    float64 `json:"windStrength" mapstructure:"windStrength"`
	WindDirection   float64 `json:"windDirection" mapstructure:"windDirection"`
	CellSize        float64 `json:"cellSize" mapstructure:"cellSize"`
	MaxVelocity     float64 `json:"maxVelocity" mapstructure:"maxVelocity"`
	AngularFriction float64 `json:"angularFriction" mapstructure:"angularFriction"`
	SplashDamage    bool    `json:"splashDamage" mapstructure:"splashDamage"`
}

// NetworkConfig contains transport settings.
type NetworkConfig struct {
	ListenAddress string        `json:"listenAddress" mapstructure:"listenAddress"`
	HealthAddress string        `json:"healthAddress" mapstructure:"healthAddress"`
	SnapshotEvery int           `json:"snapshotEvery" mapstructure:"snapshotEvery"`
	MaxClients    int           `json:"maxClients" mapstructure:"maxClients"`
	RateLimit     int           `json:"rateLimit" mapstructure:"rateLimit"`
	RateWindow    time.Duration `json:"rateWindow" mapstructure:"rateWindow"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
}

// ReplayConfig controls the action log.
type ReplayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
	// BreakerFailures consecutive write failures stop journaling for
	// BreakerTimeout before a trial write is attempted.
	BreakerFailures int           `json:"breakerFailures" mapstructure:"breakerFailures"`
	BreakerTimeout  time.Duration `json:"breakerTimeout" mapstructure:"breakerTimeout"`
}

// DefaultConfig returns a default game configuration
func DefaultConfig() *GameConfig {
	return &GameConfig{
		Match: MatchConfig{
			MapName:        terrain.DefaultMap,
			WorldWidth:     1200,
			WorldHeight:    800,
			MaxPlayers:     8,
			MaxBullets:     64,
			RespawnDelayMs: 3000,
			Seed:           1,
		},
		Physics: PhysicsConfig{
			TickRate:        60,
			Gravity:         0.5,
			CellSize:        physics.DefaultCellSize,
			MaxVelocity:     physics.DefaultMaxVelocity,
			AngularFriction: physics.DefaultAngularFriction,
			SplashDamage:    true,
		},
		Network: NetworkConfig{
			ListenAddress: ":8080",
			HealthAddress: ":8081",
			SnapshotEvery: 3,
			MaxClients:    32,
			RateLimit:     30,
			RateWindow:    time.Second,
			WriteTimeout:  10 * time.Second,
		},
		Replay: ReplayConfig{
			Enabled:         false,
			Path:            "tankwars.db",
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		LogLevel: "info",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("match.mapName", d.Match.MapName)
	v.SetDefault("match.worldWidth", d.Match.WorldWidth)
	v.SetDefault("match.worldHeight", d.Match.WorldHeight)
	v.SetDefault("match.maxPlayers", d.Match.MaxPlayers)
	v.SetDefault("match.maxBullets", d.Match.MaxBullets)
	v.SetDefault("match.respawnDelayMs", d.Match.RespawnDelayMs)
	v.SetDefault("match.seed", d.Match.Seed)

	v.SetDefault("physics.tickRate", d.Physics.TickRate)
	v.SetDefault("physics.gravity", d.Physics.Gravity)
	v.SetDefault("physics.windStrength", d.Physics.WindStrength)
	v.SetDefault("physics.windDirection", d.Physics.WindDirection)
	v.SetDefault("physics.cellSize", d.Physics.CellSize)
	v.SetDefault("physics.maxVelocity", d.Physics.MaxVelocity)
	v.SetDefault("physics.angularFriction", d.Physics.AngularFriction)
	v.SetDefault("physics.splashDamage", d.Physics.SplashDamage)

	v.SetDefault("network.listenAddress", d.Network.ListenAddress)
	v.SetDefault("network.healthAddress", d.Network.HealthAddress)
	v.SetDefault("network.snapshotEvery", d.Network.SnapshotEvery)
	v.SetDefault("network.maxClients", d.Network.MaxClients)
	v.SetDefault("network.rateLimit", d.Network.RateLimit)
	v.SetDefault("network.rateWindow", d.Network.RateWindow)
	v.SetDefault("network.writeTimeout", d.Network.WriteTimeout)

	v.SetDefault("replay.enabled", d.Replay.Enabled)
	v.SetDefault("replay.path", d.Replay.Path)
	v.SetDefault("replay.breakerFailures", d.Replay.BreakerFailures)
	v.SetDefault("replay.breakerTimeout", d.Replay.BreakerTimeout)

	v.SetDefault("logLevel", d.LogLevel)
}

// Load builds a configuration from defaults, the optional JSON file at path
// and TANKWARS_* environment variables, in increasing precedence.
func Load(path string) (*GameConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg GameConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(cfg *GameConfig, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate reports every out-of-range setting, each wrapping ErrInvalidConfig.
func (c *GameConfig) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	m := c.Match
	if err := validation.ValidateMapName(m.MapName); err != nil {
		bad("%v", err)
	}
	if m.WorldWidth <= 0 || m.WorldHeight <= 0 {
		bad("world size %vx%v must be positive", m.WorldWidth, m.WorldHeight)
	}
	if m.MaxPlayers < 1 {
		bad("maxPlayers %d must be at least 1", m.MaxPlayers)
	}
	if m.MaxBullets < 1 {
		bad("maxBullets %d must be at least 1", m.MaxBullets)
	}
	if m.RespawnDelayMs < 0 {
		bad("respawnDelayMs %d must not be negative", m.RespawnDelayMs)
	}

	p := c.Physics
	if p.TickRate < 1 || p.TickRate > 1000 {
		bad("tickRate %d outside [1, 1000]", p.TickRate)
	}
	if p.CellSize <= 0 {
		bad("cellSize %v must be positive", p.CellSize)
	}
	if p.MaxVelocity <= 0 {
		bad("maxVelocity %v must be positive", p.MaxVelocity)
	}
	if p.AngularFriction <= 0 || p.AngularFriction > 1 {
		bad("angularFriction %v outside (0, 1]", p.AngularFriction)
	}

	n := c.Network
	if n.SnapshotEvery < 1 {
		bad("snapshotEvery %d must be at least 1", n.SnapshotEvery)
	}
	if n.MaxClients < 1 {
		bad("maxClients %d must be at least 1", n.MaxClients)
	}
	if n.RateLimit < 1 || n.RateWindow <= 0 {
		bad("rate limit %d per %v must be positive", n.RateLimit, n.RateWindow)
	}
	if n.WriteTimeout <= 0 {
		bad("writeTimeout %v must be positive", n.WriteTimeout)
	}

	if r := c.Replay; r.Enabled {
		if r.Path == "" {
			bad("replay enabled without a path")
		}
		if r.BreakerFailures < 1 || r.BreakerTimeout <= 0 {
			bad("replay breaker %d failures / %v must be positive", r.BreakerFailures, r.BreakerTimeout)
		}
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		bad("unknown log level %q", c.LogLevel)
	}

	return errors.Join(errs...)
}

// EngineConfig converts the physics section for physics.NewEngine.
func (p PhysicsConfig) EngineConfig() physics.EngineConfig {
	return physics.EngineConfig{
		CellSize:        p.CellSize,
		MaxVelocity:     p.MaxVelocity,
		AngularFriction: p.AngularFriction,
	}
}

// TickInterval is the wall-clock period of one tick.
func (p PhysicsConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(p.TickRate)
}
