// Package terrain implements the destructible heightfield a match is played on.
//
// Heights are measured in world units from the top of the world, so a larger
// value means lower ground. Generation is fully deterministic for a given map
// name and size; the seed only drives the randomized spawn search.
package terrain

import (
	"math"
	"math/rand/v2"
	"slices"

	"github.com/opd-ai/go-tankwars/pkg/physics"
)

const (
	// DefaultMap is used for unknown map names.
	DefaultMap = "default"

	minHeightFraction = 0.3
	maxHeightFraction = 0.9

	octaves        = 3
	hillRadius     = 200.0
	smoothRadius   = 2
	collisionStep  = 10
	snapshotStep   = 5
	spawnCount     = 8
	spawnClearance = 20.0
)

// Settings shapes the generated surface.
type Settings struct {
	GroundLevel float64 `json:"groundLevel"`
	Roughness   float64 `json:"roughness"`
	HillCount   int     `json:"hillCount"`
	ValleyCount int     `json:"valleyCount"`
	NoiseScale  float64 `json:"noiseScale"`
}

var mapSettings = map[string]Settings{
	"default":   {GroundLevel: 0.7, Roughness: 50, HillCount: 3, ValleyCount: 2, NoiseScale: 0.01},
	"desert":    {GroundLevel: 0.75, Roughness: 30, HillCount: 2, ValleyCount: 1, NoiseScale: 0.008},
	"mountains": {GroundLevel: 0.6, Roughness: 100, HillCount: 5, ValleyCount: 3, NoiseScale: 0.015},
	"canyon":    {GroundLevel: 0.65, Roughness: 80, HillCount: 2, ValleyCount: 4, NoiseScale: 0.02},
	"flatlands": {GroundLevel: 0.8, Roughness: 15, HillCount: 1, ValleyCount: 1, NoiseScale: 0.005},
}

// ResolveMap returns the settings for name and the name actually used.
func ResolveMap(name string) (Settings, string) {
	if s, ok := mapSettings[name]; ok {
		return s, name
	}
	return mapSettings[DefaultMap], DefaultMap
}

// MapNames lists the known maps in sorted order.
func MapNames() []string {
	names := make([]string, 0, len(mapSettings))
	for name := range mapSettings {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Terrain is one match's heightfield. It is owned by a single match and is
// not safe for concurrent mutation.
type Terrain struct {
	width    float64
	height   float64
	mapName  string
	settings Settings

	heights   []float64
	collision []float64
	spawns    []SpawnPoint
	craters   []Crater

	version   uint64
	craterSeq int
	rng       *rand.Rand
}

func newTerrain(mapName string, width, height float64, seed uint64) *Terrain {
	settings, resolved := ResolveMap(mapName)
	cols := int(width)
	if cols < 1 {
		cols = 1
	}
	return &Terrain{
		width:    width,
		height:   height,
		mapName:  resolved,
		settings: settings,
		heights:  make([]float64, cols),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Generate builds a terrain for the named map. Unknown names fall back to
// DefaultMap. It never fails.
func Generate(mapName string, width, height float64, seed uint64) *Terrain {
	t := newTerrain(mapName, width, height, seed)
	s := t.settings

	for x := range t.heights {
		fx := float64(x)
		h := height * s.GroundLevel
		for i := 0; i < octaves; i++ {
			scale := math.Exp2(float64(i))
			h += noise(fx*s.NoiseScale*scale) * s.Roughness / scale
		}
		for k := 0; k < s.HillCount; k++ {
			center := width / float64(s.HillCount+1) * float64(k+1)
			if d := math.Abs(fx - center); d < hillRadius {
				h -= (1 - d/hillRadius) * s.Roughness * 2
			}
		}
		t.heights[x] = t.clampHeight(h)
	}

	t.smooth()
	t.rebuildCollisionCache()
	t.placeSpawns()
	return t
}

// noise is a cheap periodic stand-in for gradient noise.
func noise(x float64) float64 {
	return (math.Sin(x) + math.Sin(1.3*x) + math.Sin(1.7*x)) / 3
}

func (t *Terrain) clampHeight(h float64) float64 {
	return math.Max(t.height*minHeightFraction, math.Min(t.height*maxHeightFraction, h))
}

// smooth applies a box filter, leaving the outermost columns as generated.
func (t *Terrain) smooth() {
	src := slices.Clone(t.heights)
	for x := smoothRadius; x < len(src)-smoothRadius; x++ {
		var sum float64
		for k := -smoothRadius; k <= smoothRadius; k++ {
			sum += src[x+k]
		}
		t.heights[x] = sum / float64(2*smoothRadius+1)
	}
}

func (t *Terrain) rebuildCollisionCache() {
	n := (len(t.heights) + collisionStep - 1) / collisionStep
	t.collision = make([]float64, n)
	t.refreshCollisionCache(0, len(t.heights)-1)
}

func (t *Terrain) refreshCollisionCache(fromX, toX int) {
	for i := fromX / collisionStep; i <= toX/collisionStep && i < len(t.collision); i++ {
		t.collision[i] = t.heights[i*collisionStep]
	}
}

// Width is the world width in units.
func (t *Terrain) Width() float64 { return t.width }

// Height is the world height in units.
func (t *Terrain) Height() float64 { return t.height }

// MapName is the resolved map name.
func (t *Terrain) MapName() string { return t.mapName }

// Settings returns the profile the terrain was generated from.
func (t *Terrain) Settings() Settings { return t.settings }

// Version increases by one for every crater.
func (t *Terrain) Version() uint64 { return t.version }

// Columns returns the number of height samples.
func (t *Terrain) Columns() int { return len(t.heights) }

// CollisionSamples returns a copy of the coarse cache, one sample every 10 columns.
func (t *Terrain) CollisionSamples() []float64 {
	return slices.Clone(t.collision)
}

// Craters returns a copy of the craters carved so far.
func (t *Terrain) Craters() []Crater {
	return slices.Clone(t.craters)
}

// Bounds is the whole world rectangle.
func (t *Terrain) Bounds() physics.Rect {
	return physics.RectFromMinMax(physics.Vector2D{}, physics.Vector2D{X: t.width, Y: t.height})
}

// OutOfWorld reports whether p has left the playable area. Positions above
// the top edge still count as inside so lobbed shots can come back down.
func (t *Terrain) OutOfWorld(p physics.Vector2D) bool {
	return p.X < 0 || p.X > t.width || p.Y > t.height
}
