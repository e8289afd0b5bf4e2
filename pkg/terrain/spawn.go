package terrain

import (
	"math"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const (
	safeSpawnAttempts = 50
	maxSafeSlope      = math.Pi / 6
)

// SpawnPoint is a place a tank may enter the match.
type SpawnPoint struct {
	Position physics.Vector2D `json:"position" msgpack:"position"`
	Rotation float64          `json:"rotation" msgpack:"rotation"`
	Safe     bool             `json:"safe" msgpack:"safe"`
}

func (t *Terrain) placeSpawns() {
	t.spawns = make([]SpawnPoint, 0, spawnCount)
	for i := 1; i <= spawnCount; i++ {
		x := t.width / float64(spawnCount+1) * float64(i)
		t.spawns = append(t.spawns, t.spawnAt(x, true))
	}
}

func (t *Terrain) spawnAt(x float64, safe bool) SpawnPoint {
	return SpawnPoint{
		Position: physics.Vector2D{X: x, Y: t.GetHeightAt(x) - spawnClearance},
		Safe:     safe,
	}
}

// GetSpawnPoints returns n spawn points. Up to 8 are spread evenly over the
// precomputed set; any beyond that come from a randomized search for level
// ground.
func (t *Terrain) GetSpawnPoints(n int) []SpawnPoint {
	if n <= 0 || len(t.spawns) == 0 {
		return nil
	}
	if n <= len(t.spawns) {
		step := len(t.spawns) / n
		out := make([]SpawnPoint, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, t.spawns[i*step])
		}
		return out
	}

	out := make([]SpawnPoint, 0, n)
	out = append(out, t.spawns...)
	for len(out) < n {
		out = append(out, t.findSafeSpawn())
	}
	return out
}

// SpawnPoint returns the i-th precomputed spawn, wrapping around.
func (t *Terrain) SpawnPoint(i int) SpawnPoint {
	if len(t.spawns) == 0 {
		return t.spawnAt(t.width/2, false)
	}
	if i < 0 {
		i = -i
	}
	return t.spawns[i%len(t.spawns)]
}

// findSafeSpawn samples random columns for one with a gentle slope. If none
// is found it returns the map center flagged unsafe.
func (t *Terrain) findSafeSpawn() SpawnPoint {
	for i := 0; i < safeSpawnAttempts; i++ {
		x := t.rng.Float64() * t.width
		if math.Abs(t.GetSlopeAt(x)) < maxSafeSlope {
			return t.spawnAt(x, true)
		}
	}
	return t.spawnAt(t.width/2, false)
}
