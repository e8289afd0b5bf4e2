package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDSource_Sequential(t *testing.T) {
	bullets := NewIDSource("bullet")
	other := NewIDSource("bullet")

	assert.Equal(t, "bullet-1", bullets.Next())
	assert.Equal(t, "bullet-2", bullets.Next())
	assert.Equal(t, "bullet-1", other.Next(), "sources are independent")
}

func TestTankID(t *testing.T) {
	assert.Equal(t, "tank-abc", TankID("abc"))
}

func TestActionType_Classification(t *testing.T) {
	tests := []struct {
		action     ActionType
		known      bool
		horizontal bool
	}{
		{ActionMoveLeft, true, true},
		{ActionMoveRight, true, true},
		{ActionStop, true, true},
		{ActionRotateTurret, true, false},
		{ActionSetPower, true, false},
		{ActionShoot, true, false},
		{"dance", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.known, tt.action.Known())
			assert.Equal(t, tt.horizontal, tt.action.Horizontal())
		})
	}
}

func TestWeaponType_Known(t *testing.T) {
	assert.True(t, WeaponType("").Known())
	assert.True(t, WeaponHeavy.Known())
	assert.False(t, WeaponType("railgun").Known())
	assert.Equal(t, WeaponStandard.Spec(), WeaponType("railgun").Spec())
}
