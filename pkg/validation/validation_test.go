package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/opd-ai/go-tankwars/pkg/entity"
)

func TestValidatePlayerName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        string
		wantErr     bool
		errContains string
	}{
		{
			name:  "valid simple name",
			input: "Player1",
			want:  "Player1",
		},
		{
			name:  "valid name with spaces",
			input: "Player One",
			want:  "Player One",
		},
		{
			name:  "valid name with hyphen and underscore",
			input: "Tank-Ace_2",
			want:  "Tank-Ace_2",
		},
		{
			name:  "name with leading/trailing spaces",
			input: "  Player1  ",
			want:  "Player1",
		},
		{
			name:  "length is counted after trimming",
			input: "   " + strings.Repeat("a", MaxPlayerNameLen) + "   ",
			want:  strings.Repeat("a", MaxPlayerNameLen),
		},
		{
			name:        "empty name",
			input:       "",
			wantErr:     true,
			errContains: "cannot be empty",
		},
		{
			name:        "only whitespace",
			input:       "   ",
			wantErr:     true,
			errContains: "cannot be only whitespace",
		},
		{
			name:        "too long name",
			input:       strings.Repeat("a", MaxPlayerNameLen+1),
			wantErr:     true,
			errContains: "too long",
		},
		{
			name:        "name with special characters",
			input:       "Player@#$",
			wantErr:     true,
			errContains: "invalid characters",
		},
		{
			name:        "name with control character",
			input:       "Player\x00One",
			wantErr:     true,
			errContains: "control characters",
		},
		{
			name:        "invalid utf8",
			input:       "Player\xff",
			wantErr:     true,
			errContains: "UTF-8",
		},
		{
			name:  "HTML entities should be escaped",
			input: "Player<script>",
			want:  "Player&lt;script&gt;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePlayerName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlayerName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("ValidatePlayerName() error = %v, want ErrInvalidInput", err)
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ValidatePlayerName() error = %v, should contain %q", err, tt.errContains)
				}
			}
			if got != tt.want {
				t.Errorf("ValidatePlayerName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateAction(t *testing.T) {
	tests := []struct {
		name    string
		action  entity.Action
		wantErr bool
	}{
		{"move left", entity.Action{Type: entity.ActionMoveLeft}, false},
		{"move right", entity.Action{Type: entity.ActionMoveRight}, false},
		{"stop", entity.Action{Type: entity.ActionStop}, false},
		{"rotate turret", entity.Action{Type: entity.ActionRotateTurret, Delta: -3}, false},
		{"rotate turret too far", entity.Action{Type: entity.ActionRotateTurret, Delta: MaxTurretDelta + 1}, true},
		{"rotate turret NaN", entity.Action{Type: entity.ActionRotateTurret, Delta: math.NaN()}, true},
		{"set power in range", entity.Action{Type: entity.ActionSetPower, Power: 10}, false},
		{"set power too low", entity.Action{Type: entity.ActionSetPower, Power: 9.5}, true},
		{"set power too high", entity.Action{Type: entity.ActionSetPower, Power: 100.5}, true},
		{"set power infinite", entity.Action{Type: entity.ActionSetPower, Power: math.Inf(1)}, true},
		{"shoot with current power", entity.Action{Type: entity.ActionShoot}, false},
		{"shoot with override", entity.Action{Type: entity.ActionShoot, Power: 100, WeaponType: entity.WeaponHeavy}, false},
		{"shoot with bad power", entity.Action{Type: entity.ActionShoot, Power: 150}, true},
		{"shoot with unknown weapon", entity.Action{Type: entity.ActionShoot, WeaponType: "nuke"}, true},
		{"empty type", entity.Action{}, true},
		{"unknown type", entity.Action{Type: "jump"}, true},
		{"NaN power on movement", entity.Action{Type: entity.ActionMoveLeft, Power: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAction(tt.action)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ValidateAction() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestValidateMapName(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"default", false},
		{"desert", false},
		{"mountains", false},
		{"canyon", false},
		{"flatlands", false},
		{"", true},
		{"Desert", true},
		{"moon", true},
	}

	for _, tt := range tests {
		t.Run("map_"+tt.input, func(t *testing.T) {
			err := ValidateMapName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMapName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMessageValidator(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	defer rl.Close()
	v := NewMessageValidator(rl)

	if err := v.ValidateMessage(make([]byte, MaxMessageSize+1), "c1"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized message: error = %v, want ErrInvalidInput", err)
	}
	if rl.Clients() != 0 {
		t.Errorf("oversized message should not spend a token")
	}

	for i := 0; i < 2; i++ {
		if err := v.ValidateMessage([]byte(`{"t":"action"}`), "c1"); err != nil {
			t.Fatalf("message %d: unexpected error %v", i, err)
		}
	}
	if err := v.ValidateMessage([]byte(`{"t":"action"}`), "c1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third message: error = %v, want ErrRateLimited", err)
	}
	// Binary frames are not JSON and still pass.
	if err := v.ValidateMessage([]byte{0x82, 0xa1, 't'}, "c2"); err != nil {
		t.Errorf("binary frame: unexpected error %v", err)
	}

	v.Forget("c1")
	if err := v.ValidateMessage([]byte(`{}`), "c1"); err != nil {
		t.Errorf("after Forget: unexpected error %v", err)
	}
}
