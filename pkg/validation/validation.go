// Package validation checks client input before it reaches a match.
package validation

import (
	"errors"
	"fmt"
	"html"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/opd-ai/go-tankwars/pkg/entity"
	"github.com/opd-ai/go-tankwars/pkg/terrain"
)

// Message size and content limits.
const (
	MaxMessageSize   = 16 * 1024
	MaxPlayerNameLen = 20

	// MaxTurretDelta bounds a single rotate_turret request, in turret steps.
	MaxTurretDelta = 100.0
)

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid input")

var validPlayerNameChars = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.<>()]+$`)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// MessageValidator gates raw frames by size and per-client rate.
type MessageValidator struct {
	limiter *RateLimiter
}

// NewMessageValidator wraps limiter.
func NewMessageValidator(limiter *RateLimiter) *MessageValidator {
	return &MessageValidator{limiter: limiter}
}

// ValidateMessage checks a frame's size and spends one token of the
// client's budget.
func (v *MessageValidator) ValidateMessage(data []byte, clientID string) error {
	if len(data) > MaxMessageSize {
		return invalid("message too large: %d bytes (max %d)", len(data), MaxMessageSize)
	}
	if !v.limiter.Allow(clientID) {
		return ErrRateLimited
	}
	return nil
}

// Forget drops a client's rate state.
func (v *MessageValidator) Forget(clientID string) {
	v.limiter.Forget(clientID)
}

// ValidatePlayerName validates and sanitizes a player name.
func ValidatePlayerName(name string) (string, error) {
	if name == "" {
		return "", invalid("player name cannot be empty")
	}
	if !utf8.ValidString(name) {
		return "", invalid("player name contains invalid UTF-8 characters")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", invalid("player name cannot be only whitespace")
	}
	if n := utf8.RuneCountInString(trimmed); n > MaxPlayerNameLen {
		return "", invalid("player name too long: %d characters (max %d)", n, MaxPlayerNameLen)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", invalid("player name contains control characters")
		}
	}
	if !validPlayerNameChars.MatchString(trimmed) {
		return "", invalid("player name contains invalid characters")
	}

	return html.EscapeString(trimmed), nil
}

// ValidateAction checks a client action's shape. Game rules such as
// cooldowns are left to the match.
func ValidateAction(a entity.Action) error {
	if !a.Type.Known() {
		return invalid("unknown action type %q", a.Type)
	}
	if !finite(a.Delta) || !finite(a.Power) {
		return invalid("non-finite value in %s", a.Type)
	}

	switch a.Type {
	case entity.ActionRotateTurret:
		if math.Abs(a.Delta) > MaxTurretDelta {
			return invalid("turret delta %v out of range", a.Delta)
		}
	case entity.ActionSetPower:
		if a.Power < entity.MinPower || a.Power > entity.MaxPower {
			return invalid("power %v out of range [%d, %d]", a.Power, entity.MinPower, entity.MaxPower)
		}
	case entity.ActionShoot:
		// Zero keeps the tank's current power.
		if a.Power != 0 && (a.Power < entity.MinPower || a.Power > entity.MaxPower) {
			return invalid("power %v out of range [%d, %d]", a.Power, entity.MinPower, entity.MaxPower)
		}
		if a.WeaponType != "" && !a.WeaponType.Known() {
			return invalid("unknown weapon %q", a.WeaponType)
		}
	}
	return nil
}

// ValidateMapName rejects names the terrain generator does not know.
func ValidateMapName(name string) error {
	if _, resolved := terrain.ResolveMap(name); resolved != name {
		return invalid("unknown map %q (known: %s)", name, strings.Join(terrain.MapNames(), ", "))
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
