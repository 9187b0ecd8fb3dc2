package tactics

import "sort"

// Distance sentinels. Real costs are always >= 0.
const (
	Unexplored = -1 // never reached
	Impassable = -2 // reached, but the terrain blocks this unit
)

// DistanceMatrix is the result of one search for one unit: cumulative
// movement cost per reached tile, the tiles the unit may act on, and the
// bookkeeping the retracer needs. A matrix is filled once and then only
// read.
type DistanceMatrix struct {
	Unit       *Unit
	Start      Position
	End        Position
	HasEnd     bool
	TurnBudget int  // movement per virtual turn
	ZOC        bool // whether zone of control shaped the fill

	dist       map[Position]int
	heuristic  map[Position]int
	accessible map[Position]struct{}
	turn       map[Position]int
	layers     []map[Position]int // per virtual turn; layers[0] is dist
	expansions int
}

func newMatrix(u *Unit, start Position) *DistanceMatrix {
	return &DistanceMatrix{
		Unit:       u,
		Start:      start,
		TurnBudget: u.Movement,
		dist:       make(map[Position]int),
		heuristic:  make(map[Position]int),
		accessible: make(map[Position]struct{}),
		turn:       make(map[Position]int),
	}
}

// Dist returns the cost to reach p, or one of the sentinels.
func (m *DistanceMatrix) Dist(p Position) int {
	if d, ok := m.dist[p]; ok {
		return d
	}
	return Unexplored
}

// Reached reports whether p has a real cost.
func (m *DistanceMatrix) Reached(p Position) bool {
	return m.Dist(p) >= 0
}

// Accessible reports whether the unit can move to or attack p.
func (m *DistanceMatrix) Accessible(p Position) bool {
	_, ok := m.accessible[p]
	return ok
}

// AccessibleSet returns the accessible tiles in row-major order.
func (m *DistanceMatrix) AccessibleSet() []Position {
	out := make([]Position, 0, len(m.accessible))
	for p := range m.accessible {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// Reachable returns every tile with a real cost, in row-major order.
func (m *DistanceMatrix) Reachable() []Position {
	out := make([]Position, 0, len(m.dist))
	for p, d := range m.dist {
		if d >= 0 {
			out = append(out, p)
		}
	}
	sortPositions(out)
	return out
}

// Heuristic returns the hex distance from p to End, computed on first use.
// End must not change once a search has started consulting this.
func (m *DistanceMatrix) Heuristic(p Position) int {
	if h, ok := m.heuristic[p]; ok {
		return h
	}
	h := HexDistance(p, m.End)
	m.heuristic[p] = h
	return h
}

// Turn returns the virtual turn on which p was first reached (1-based),
// or 0 when it was not.
func (m *DistanceMatrix) Turn(p Position) int { return m.turn[p] }

// layer returns the distances as seen by virtual turn k (1-based).
func (m *DistanceMatrix) layer(k int) map[Position]int {
	if k < 1 || k > len(m.layers) {
		return m.dist
	}
	return m.layers[k-1]
}

// Turns is the number of virtual turns the search spanned.
func (m *DistanceMatrix) Turns() int { return len(m.layers) }

// Expansions is the number of tiles popped off the frontier.
func (m *DistanceMatrix) Expansions() int { return m.expansions }

// Len is the number of recorded entries, sentinels included.
func (m *DistanceMatrix) Len() int { return len(m.dist) }

func (m *DistanceMatrix) set(p Position, d, turn int) {
	m.dist[p] = d
	m.turn[p] = turn
}

func (m *DistanceMatrix) markImpassable(p Position) {
	if _, ok := m.dist[p]; !ok {
		m.dist[p] = Impassable
	}
}

func (m *DistanceMatrix) addAccessible(p Position) {
	m.accessible[p] = struct{}{}
}

func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Row != ps[j].Row {
			return ps[i].Row < ps[j].Row
		}
		return ps[i].Col < ps[j].Col
	})
}
