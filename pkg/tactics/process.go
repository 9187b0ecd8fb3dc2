package tactics

import "errors"

// ErrSearchRunaway is returned when a pass pops more tiles than
// Rules.MaxExpansions. The matrix is left partially filled and must not be
// trusted.
var ErrSearchRunaway = errors.New("search exceeded expansion cap")

// pass is one run of the exploration loop over one distance layer. The
// processors differ only in how they configure it.
type pass struct {
	dist       map[Position]int
	ceiling    int // inclusive cost bound; <= 0 means unbounded
	zoc        bool
	accessible bool // record move/attack targets (first turn only)
	exempt     func(p Position) bool
	stop       func(p Position) bool
	priority   func(p Position, cost int) int
}

func costPriority(_ Position, cost int) int { return cost }

// run drains the frontier. It returns the first popped tile satisfying the
// stop predicate, if any.
func (ps *pass) run(b BoardView, r *Rules, m *DistanceMatrix, f *frontier) (Position, bool, error) {
	closed := make(map[Position]bool, len(ps.dist))
	bounds := b.Bounds()
	pops := 0

	for !f.empty() {
		p := f.pop().pos
		if closed[p] {
			continue
		}
		closed[p] = true
		pops++
		m.expansions++
		if pops > r.MaxExpansions() {
			return Position{}, false, ErrSearchRunaway
		}

		cost := ps.dist[p]
		occupant := b.UnitAt(p)
		free := occupant == nil || occupant == m.Unit
		if ps.accessible && free {
			m.addAccessible(p)
		}
		if ps.stop != nil && free && ps.stop(p) {
			return p, true, nil
		}

		if ps.zoc {
			enemies := b.AdjacentEnemies(p, m.Unit.Owner)
			if len(enemies) > 0 {
				if ps.accessible {
					for _, e := range enemies {
						m.addAccessible(e.Pos)
					}
				}
				if !ps.exempt(p) {
					continue
				}
			}
		}

		for _, n := range Neighbors(p, bounds) {
			if closed[n] {
				continue
			}
			if m.Unit.HostileTo(b.UnitAt(n)) {
				continue
			}
			step := r.Cost(b.TerrainAt(n), m.Unit.Class)
			if step >= ImpassableCost {
				m.markImpassable(n)
				continue
			}
			next := cost + step
			if ps.ceiling > 0 && next > ps.ceiling {
				continue
			}
			if old, ok := ps.dist[n]; ok && old >= 0 && old <= next {
				continue
			}
			ps.dist[n] = next
			f.push(ps.priority(n, next), n)
		}
	}
	return Position{}, false, nil
}

// fillFirstTurn runs the single-turn pass shared by the full fill and the
// first leg of every condition search.
func fillFirstTurn(b BoardView, r *Rules, m *DistanceMatrix, stop func(Position) bool) (Position, bool, error) {
	m.ZOC = true
	m.set(m.Start, 0, 1)
	f := &frontier{}
	f.push(0, m.Start)
	ps := &pass{
		dist:       m.dist,
		ceiling:    m.TurnBudget,
		zoc:        true,
		accessible: true,
		exempt:     func(p Position) bool { return p == m.Start },
		stop:       stop,
		priority:   costPriority,
	}
	end, found, err := ps.run(b, r, m, f)
	for p, d := range m.dist {
		if d >= 0 && m.turn[p] == 0 {
			m.turn[p] = 1
		}
	}
	m.layers = append(m.layers, m.dist)
	return end, found, err
}

// fullFill explores every tile the unit can reach this turn.
func fullFill(b BoardView, r *Rules, m *DistanceMatrix) error {
	_, _, err := fillFirstTurn(b, r, m, nil)
	return err
}
