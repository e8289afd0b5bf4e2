package terrain

import (
	"slices"
)

// HeightSample is one point of the broadcast height profile.
type HeightSample struct {
	X      float64 `json:"x" msgpack:"x"`
	Height float64 `json:"height" msgpack:"height"`
}

// Bounds is the world rectangle as sent to clients.
type Bounds struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`
}

// Snapshot is the terrain as broadcast to clients.
type Snapshot struct {
	Width       float64        `json:"width" msgpack:"width"`
	Height      float64        `json:"height" msgpack:"height"`
	MapName     string         `json:"mapName" msgpack:"mapName"`
	HeightMap   []HeightSample `json:"heightMap" msgpack:"heightMap"`
	SpawnPoints []SpawnPoint   `json:"spawnPoints" msgpack:"spawnPoints"`
	Craters     []Crater       `json:"craters" msgpack:"craters"`
	Bounds      Bounds         `json:"bounds" msgpack:"bounds"`
	Version     uint64         `json:"version" msgpack:"version"`
}

// Snapshot samples the surface every 5 columns.
func (t *Terrain) Snapshot() Snapshot {
	samples := make([]HeightSample, 0, len(t.heights)/snapshotStep+1)
	for x := 0; x < len(t.heights); x += snapshotStep {
		samples = append(samples, HeightSample{X: float64(x), Height: t.heights[x]})
	}
	return Snapshot{
		Width:       t.width,
		Height:      t.height,
		MapName:     t.mapName,
		HeightMap:   samples,
		SpawnPoints: append([]SpawnPoint{}, t.spawns...),
		Craters:     append([]Crater{}, t.craters...),
		Bounds:      Bounds{Width: t.width, Height: t.height},
		Version:     t.version,
	}
}

// FromSnapshot rebuilds a terrain from its broadcast form. Columns between
// samples are interpolated, so sampled columns are reproduced exactly and a
// second Snapshot matches the first.
func FromSnapshot(s Snapshot, seed uint64) *Terrain {
	t := newTerrain(s.MapName, s.Width, s.Height, seed)
	t.mapName = s.MapName

	samples := s.HeightMap
	if len(samples) == 0 {
		samples = []HeightSample{{X: 0, Height: s.Height * t.settings.GroundLevel}}
	}
	seg := 0
	for x := range t.heights {
		fx := float64(x)
		for seg+1 < len(samples) && samples[seg+1].X <= fx {
			seg++
		}
		a := samples[seg]
		if seg+1 >= len(samples) || fx <= a.X {
			t.heights[x] = a.Height
			continue
		}
		b := samples[seg+1]
		t.heights[x] = a.Height + (b.Height-a.Height)*(fx-a.X)/(b.X-a.X)
	}

	t.spawns = slices.Clone(s.SpawnPoints)
	t.craters = slices.Clone(s.Craters)
	if t.spawns == nil {
		t.spawns = []SpawnPoint{}
	}
	t.craterSeq = len(s.Craters)
	t.version = s.Version
	t.rebuildCollisionCache()
	return t
}
