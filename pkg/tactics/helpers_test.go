package tactics

import (
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
)

func init() {
	StrictRetrace = true
}

func newTestPathfinder() *Pathfinder {
	return NewPathfinder(DefaultRules(), zerolog.Nop())
}

// corridor is a water board with a single plains lane along row 1.
func corridor(cols int) *Board {
	b := NewBoard(Bounds{Cols: cols, Rows: 3}, Water)
	for c := 0; c < cols; c++ {
		b.SetTerrain(Position{Col: c, Row: 1}, Plains)
	}
	return b
}

func place(t *testing.T, b *Board, kind string, owner PlayerID, p Position) *Unit {
	t.Helper()
	u, err := NewUnit(DefaultRules(), kind, owner, p)
	if err != nil {
		t.Fatalf("NewUnit(%s): %v", kind, err)
	}
	if err := b.PlaceUnit(u); err != nil {
		t.Fatalf("PlaceUnit(%s): %v", p, err)
	}
	return u
}

var randomTerrains = []Terrain{Plains, Plains, Plains, Forest, Hills, Mountain, Water, Swamp}

func randomBoard(rng *rand.Rand, cols, rows int) *Board {
	b := NewBoard(Bounds{Cols: cols, Rows: rows}, Plains)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			b.SetTerrain(Position{Col: c, Row: r}, randomTerrains[rng.Intn(len(randomTerrains))])
		}
	}
	return b
}

func randomPlains(rng *rand.Rand, b *Board) Position {
	for {
		p := Position{Col: rng.Intn(b.Bounds().Cols), Row: rng.Intn(b.Bounds().Rows)}
		if b.TerrainAt(p) == Plains && b.UnitAt(p) == nil {
			return p
		}
	}
}

// refCosts is a plain relaxation over the whole board, ignoring units and
// zone of control. Every source starts at cost 0.
func refCosts(b *Board, r *Rules, class MovementClass, sources []Position) map[Position]int {
	dist := make(map[Position]int)
	for _, s := range sources {
		dist[s] = 0
	}
	for changed := true; changed; {
		changed = false
		for p, d := range dist {
			for _, n := range Neighbors(p, b.Bounds()) {
				step := r.Cost(b.TerrainAt(n), class)
				if step >= ImpassableCost {
					continue
				}
				if old, ok := dist[n]; !ok || d+step < old {
					dist[n] = d + step
					changed = true
				}
			}
		}
	}
	return dist
}

// checkPath verifies a retraced path is a connected walk from start to dest
// over passable terrain and returns the terrain cost of walking it.
func checkPath(t *testing.T, b *Board, r *Rules, u *Unit, path []Position, start, dest Position) int {
	t.Helper()
	if len(path) == 0 {
		t.Fatalf("empty path %s -> %s", start, dest)
	}
	if path[0] != start || path[len(path)-1] != dest {
		t.Fatalf("path %v does not run %s -> %s", path, start, dest)
	}
	cost := 0
	for i := 1; i < len(path); i++ {
		if !Adjacent(path[i-1], path[i]) {
			t.Fatalf("path %v: %s and %s not adjacent", path, path[i-1], path[i])
		}
		step := r.Cost(b.TerrainAt(path[i]), u.Class)
		if step >= ImpassableCost {
			t.Fatalf("path %v crosses impassable %s", path, path[i])
		}
		cost += step
	}
	return cost
}
