package tactics

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig controls procedural board generation.
type GenConfig struct {
	Cols          int
	Rows          int
	Players       int      // 2..4
	Towers        int      // neutral towers besides each player's home tower
	Seed          int64    // 0 picks a random seed
	StartingUnits []string // unit kinds placed next to each lord
}

// Generator limits. Towers keep two tiles apart, so one fits per
// towerArea tiles at best.
const (
	MinBoardSide = 8
	MaxBoardSide = 64
	towerArea    = 16
)

// MaxTowers is the most neutral towers Generate accepts on a cols x rows board.
func MaxTowers(cols, rows int) int {
	return cols * rows / towerArea
}

// DefaultGenConfig is a small two-player skirmish.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Cols:          16,
		Rows:          12,
		Players:       2,
		Towers:        4,
		StartingUnits: []string{"soldier", "archer"},
	}
}

// Generate builds a board from layered noise, places one home tower and
// lord per player, scatters neutral towers, and returns the seed used.
// The same config and seed always produce the same board.
func Generate(r *Rules, cfg GenConfig) (*Board, int64, error) {
	if err := cfg.validate(); err != nil {
		return nil, 0, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	elevNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)

	b := NewBoard(Bounds{Cols: cfg.Cols, Rows: cfg.Rows}, Plains)
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Cols; col++ {
			// Offset coords to cartesian so the noise field is not skewed.
			x := float64(col) + 0.5*float64(row&1)
			y := float64(row) * math.Sqrt(3) / 2
			elev := octaveNoise(elevNoise, x, y, 3, 0.12, 0.5)
			moist := octaveNoise(moistNoise, x, y, 2, 0.10, 0.5)
			b.SetTerrain(Position{Col: col, Row: row}, deriveTerrain(elev, moist))
		}
	}

	spawns := spawnPoints(b.Bounds(), cfg.Players)
	for i, home := range spawns {
		owner := PlayerID(i + 1)
		clearAround(b, home)
		b.SetTerrain(home, Tower)
		b.SetOwner(home, owner)

		slots := Neighbors(home, b.Bounds())
		lord, err := NewUnit(r, "lord", owner, slots[0])
		if err != nil {
			return nil, 0, fmt.Errorf("generate: %w", err)
		}
		if err := b.PlaceUnit(lord); err != nil {
			return nil, 0, fmt.Errorf("generate: %w", err)
		}
		for j, kind := range cfg.StartingUnits {
			if j+1 >= len(slots) {
				break
			}
			u, err := NewUnit(r, kind, owner, slots[j+1])
			if err != nil {
				return nil, 0, fmt.Errorf("generate: %w", err)
			}
			if err := b.PlaceUnit(u); err != nil {
				return nil, 0, fmt.Errorf("generate: %w", err)
			}
		}
	}

	placed := 0
	for attempts := 0; placed < cfg.Towers && attempts < cfg.Towers*50; attempts++ {
		p := Position{Col: 1 + rng.Intn(cfg.Cols-2), Row: 1 + rng.Intn(cfg.Rows-2)}
		if b.TerrainAt(p) == Water || b.TerrainAt(p) == Tower || b.UnitAt(p) != nil {
			continue
		}
		if nearAny(p, spawns, 3) || nearAny(p, b.Towers(), 2) {
			continue
		}
		b.SetTerrain(p, Tower)
		placed++
	}
	return b, seed, nil
}

// validate runs before anything is allocated, so oversized requests cost
// nothing.
func (cfg GenConfig) validate() error {
	if cfg.Cols < MinBoardSide || cfg.Rows < MinBoardSide {
		return fmt.Errorf("generate: board %dx%d too small, want at least %dx%d", cfg.Cols, cfg.Rows, MinBoardSide, MinBoardSide)
	}
	if cfg.Cols > MaxBoardSide || cfg.Rows > MaxBoardSide {
		return fmt.Errorf("generate: board %dx%d too large, want at most %dx%d", cfg.Cols, cfg.Rows, MaxBoardSide, MaxBoardSide)
	}
	if cfg.Players < 2 || cfg.Players > 4 {
		return fmt.Errorf("generate: %d players, want 2..4", cfg.Players)
	}
	if limit := MaxTowers(cfg.Cols, cfg.Rows); cfg.Towers < 0 || cfg.Towers > limit {
		return fmt.Errorf("generate: %d towers, want 0..%d on a %dx%d board", cfg.Towers, limit, cfg.Cols, cfg.Rows)
	}
	return nil
}

func deriveTerrain(elev, moist float64) Terrain {
	switch {
	case elev < 0.22:
		return Water
	case elev < 0.30 && moist > 0.55:
		return Swamp
	case elev > 0.80:
		return Mountain
	case elev > 0.66:
		return Hills
	case moist > 0.60:
		return Forest
	default:
		return Plains
	}
}

// octaveNoise layers several noise frequencies into one [0,1] value.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

// spawnPoints returns home tower positions in opposite corners first.
func spawnPoints(b Bounds, players int) []Position {
	corners := []Position{
		{Col: 2, Row: 2},
		{Col: b.Cols - 3, Row: b.Rows - 3},
		{Col: b.Cols - 3, Row: 2},
		{Col: 2, Row: b.Rows - 3},
	}
	return corners[:players]
}

// clearAround flattens p and its neighbors so spawns are never walled in.
func clearAround(b *Board, p Position) {
	b.SetTerrain(p, Plains)
	for _, n := range Neighbors(p, b.Bounds()) {
		b.SetTerrain(n, Plains)
	}
}

func nearAny(p Position, others []Position, radius int) bool {
	for _, o := range others {
		if HexDistance(p, o) <= radius {
			return true
		}
	}
	return false
}
