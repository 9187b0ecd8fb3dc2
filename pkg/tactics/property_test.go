package tactics

import (
	"math/rand"
	"testing"
)

// With no other units on the board a full fill must agree with a plain
// relaxation capped at the unit's movement.
func TestFullFill_MatchesReference(t *testing.T) {
	pf := newTestPathfinder()
	r := pf.Rules()
	for seed := int64(1); seed <= 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 12, 12)
		u := place(t, b, "soldier", 1, randomPlains(rng, b))

		m, err := pf.FullFill(b, u)
		if err != nil {
			t.Fatalf("seed %d: FullFill: %v", seed, err)
		}
		ref := refCosts(b, r, u.Class, []Position{u.Pos})
		for row := 0; row < 12; row++ {
			for col := 0; col < 12; col++ {
				p := Position{col, row}
				want, ok := ref[p]
				got := m.Dist(p)
				if ok && want <= u.Movement {
					if got != want {
						t.Errorf("seed %d: Dist(%s): expected %d, got %d", seed, p, want, got)
					}
					continue
				}
				if got >= 0 {
					t.Errorf("seed %d: %s reported %d, beyond budget (ref %d, %v)", seed, p, got, want, ok)
				}
			}
		}

		for _, p := range m.Reachable() {
			path := pf.Retrace(b, m, p)
			if cost := checkPath(t, b, r, u, path, u.Pos, p); cost != m.Dist(p) {
				t.Errorf("seed %d: path to %s costs %d, matrix says %d", seed, p, cost, m.Dist(p))
			}
		}
	}
}

// On an enemy-free board every reached tile q satisfies
// dist(q) <= dist(p) + cost(q) for each reached neighbour p, with equality
// for at least one of them, and no passable tile within budget of a reached
// neighbour is left unreached.
func TestFullFill_NeighborProperty(t *testing.T) {
	pf := newTestPathfinder()
	r := pf.Rules()
	for seed := int64(1); seed <= 60; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 12, 12)
		kind := []string{"soldier", "rider", "drake"}[seed%3]
		u := place(t, b, kind, 1, randomPlains(rng, b))

		m, err := pf.FullFill(b, u)
		if err != nil {
			t.Fatalf("seed %d: FullFill: %v", seed, err)
		}
		for row := 0; row < 12; row++ {
			for col := 0; col < 12; col++ {
				q := Position{col, row}
				t0 := b.TerrainAt(q)
				if !r.Passable(t0, u.Class) {
					continue
				}
				cost := r.Cost(t0, u.Class)
				dq := m.Dist(q)
				tight := false
				for _, p := range Neighbors(q, b.Bounds()) {
					dp := m.Dist(p)
					if dp < 0 {
						continue
					}
					via := dp + cost
					if dq < 0 {
						if via <= u.Movement {
							t.Errorf("seed %d: %s unreached but %s at %d plus cost %d fits budget %d", seed, q, p, dp, cost, u.Movement)
						}
						continue
					}
					if dq > via {
						t.Errorf("seed %d: Dist(%s)=%d exceeds %d via %s", seed, q, dq, via, p)
					}
					if dq == via {
						tight = true
					}
				}
				if dq > 0 && !tight {
					t.Errorf("seed %d: Dist(%s)=%d has no neighbour it was relaxed from", seed, q, dq)
				}
			}
		}
	}
}

func TestFullFill_UnitCostRoundTrip(t *testing.T) {
	pf := newTestPathfinder()
	b := NewBoard(Bounds{Cols: 10, Rows: 10}, Plains)
	u := place(t, b, "drake", 1, Position{4, 5})
	m, err := pf.FullFill(b, u)
	if err != nil {
		t.Fatalf("FullFill: %v", err)
	}
	for _, p := range m.Reachable() {
		path := pf.Retrace(b, m, p)
		if len(path) != m.Dist(p)+1 {
			t.Errorf("path to %s: expected %d tiles, got %d", p, m.Dist(p)+1, len(path))
		}
	}
}

func TestFullFill_Monotonic(t *testing.T) {
	pf := newTestPathfinder()
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 10, 10)
		u := place(t, b, "soldier", 1, randomPlains(rng, b))

		var prev *DistanceMatrix
		for mv := 1; mv <= 6; mv++ {
			u.Movement = mv
			m, err := pf.FullFill(b, u)
			if err != nil {
				t.Fatalf("seed %d: FullFill: %v", seed, err)
			}
			if prev != nil {
				for _, p := range prev.Reachable() {
					if m.Dist(p) != prev.Dist(p) {
						t.Errorf("seed %d mv %d: %s went from %d to %d", seed, mv, p, prev.Dist(p), m.Dist(p))
					}
				}
				if len(m.Reachable()) < len(prev.Reachable()) {
					t.Errorf("seed %d mv %d: reachable set shrank", seed, mv)
				}
			}
			prev = m
		}
	}
}

// bruteForceTurn returns the virtual turn on which a unit with the given
// budget first reaches a free tile satisfying match, or 0. Each turn may
// start from any tile reached so far.
func bruteForceTurn(b *Board, r *Rules, u *Unit, maxTurns int, match func(Position) bool) int {
	reached := []Position{u.Pos}
	seen := map[Position]bool{u.Pos: true}
	for k := 1; k <= maxTurns; k++ {
		added := false
		for p, d := range refCosts(b, r, u.Class, reached) {
			if d > u.Movement || seen[p] {
				continue
			}
			seen[p] = true
			reached = append(reached, p)
			added = true
		}
		for p := range seen {
			if match(p) {
				return k
			}
		}
		if !added && k > 1 {
			return 0
		}
	}
	return 0
}

func TestTowerSearch_MatchesBruteForce(t *testing.T) {
	pf := newTestPathfinder()
	r := pf.Rules()
	found := 0
	for seed := int64(1); seed <= 40; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 12, 12)
		u := place(t, b, "soldier", 1, randomPlains(rng, b))
		for i := 0; i < 2; i++ {
			p := randomPlains(rng, b)
			b.SetTerrain(p, Tower)
		}
		isTower := func(p Position) bool { return b.TerrainAt(p) == Tower }

		m, err := pf.TowerSearch(b, u)
		if err != nil {
			t.Fatalf("seed %d: TowerSearch: %v", seed, err)
		}
		want := bruteForceTurn(b, r, u, r.MaxVirtualTurns(), isTower)
		if want == 0 {
			if m.HasEnd {
				t.Errorf("seed %d: expected no tower, got %s", seed, m.End)
			}
			continue
		}
		if !m.HasEnd {
			t.Errorf("seed %d: expected a tower on turn %d, found none", seed, want)
			continue
		}
		found++
		if !isTower(m.End) {
			t.Errorf("seed %d: end %s is %s", seed, m.End, b.TerrainAt(m.End))
		}
		if got := m.Turn(m.End); got != want {
			t.Errorf("seed %d: expected turn %d, got %d", seed, want, got)
		}
		if want == 1 {
			ref := refCosts(b, r, u.Class, []Position{u.Pos})
			best := -1
			for _, tp := range b.Towers() {
				if d, ok := ref[tp]; ok && (best < 0 || d < best) {
					best = d
				}
			}
			if m.Dist(m.End) != best {
				t.Errorf("seed %d: expected cheapest tower at %d, got %d", seed, best, m.Dist(m.End))
			}
		}
		checkPath(t, b, r, u, pf.Retrace(b, m, m.End), u.Pos, m.End)
	}
	if found == 0 {
		t.Fatal("no seed produced a reachable tower")
	}
}

func TestSearches_RetraceWithEnemies(t *testing.T) {
	pf := newTestPathfinder()
	r := pf.Rules()
	kinds := []SearchKind{SearchTower, SearchEnemyUnit}
	for seed := int64(1); seed <= 30; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 12, 12)
		u := place(t, b, "soldier", 1, randomPlains(rng, b))
		for i := 0; i < 3; i++ {
			place(t, b, "soldier", 2, randomPlains(rng, b))
		}
		place(t, b, "archer", 1, randomPlains(rng, b))
		b.SetTerrain(randomPlains(rng, b), Tower)

		for _, kind := range kinds {
			m, err := pf.Search(b, u, kind)
			if err != nil {
				t.Fatalf("seed %d %s: %v", seed, kind, err)
			}
			if !m.HasEnd {
				continue
			}
			checkPath(t, b, r, u, pf.Retrace(b, m, m.End), u.Pos, m.End)
		}

		m, err := pf.FullFill(b, u)
		if err != nil {
			t.Fatalf("seed %d: FullFill: %v", seed, err)
		}
		for _, p := range m.Reachable() {
			checkPath(t, b, r, u, pf.Retrace(b, m, p), u.Pos, p)
		}
	}
}

func TestPointToPoint_MatchesReference(t *testing.T) {
	pf := newTestPathfinder()
	r := pf.Rules()
	for seed := int64(1); seed <= 30; seed++ {
		rng := rand.New(rand.NewSource(seed))
		b := randomBoard(rng, 12, 12)
		u := place(t, b, "rider", 1, randomPlains(rng, b))
		dest := randomPlains(rng, b)

		m, err := pf.PointToPoint(b, u, dest)
		if err != nil {
			t.Fatalf("seed %d: PointToPoint: %v", seed, err)
		}
		ref := refCosts(b, r, u.Class, []Position{u.Pos})
		want, ok := ref[dest]
		if !ok {
			if m.Reached(dest) {
				t.Errorf("seed %d: %s unreachable but got %d", seed, dest, m.Dist(dest))
			}
			continue
		}
		if got := m.Dist(dest); got != want {
			t.Errorf("seed %d: expected %d, got %d", seed, want, got)
		}
		path := pf.Retrace(b, m, dest)
		if cost := checkPath(t, b, r, u, path, u.Pos, dest); cost != want {
			t.Errorf("seed %d: path cost %d, expected %d", seed, cost, want)
		}
	}
}
