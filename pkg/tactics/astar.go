package tactics

// unitBlind hides every unit from a search, so the route only answers to
// terrain.
type unitBlind struct{ BoardView }

func (unitBlind) UnitAt(Position) *Unit                     { return nil }
func (unitBlind) AdjacentEnemies(Position, PlayerID) []*Unit { return nil }

// pointToPoint runs A* from m.Start to m.End with no cost ceiling. Units
// and zone of control are ignored. The search stops the moment the
// destination is popped, so near destinations touch very few tiles.
func pointToPoint(b BoardView, r *Rules, m *DistanceMatrix) error {
	m.ZOC = false
	m.HasEnd = true
	m.set(m.Start, 0, 1)
	f := &frontier{}
	f.push(m.Heuristic(m.Start), m.Start)
	dest := m.End
	ps := &pass{
		dist:     m.dist,
		exempt:   func(Position) bool { return true },
		stop:     func(p Position) bool { return p == dest },
		priority: func(p Position, cost int) int { return cost + m.Heuristic(p) },
	}
	_, _, err := ps.run(unitBlind{b}, r, m, f)
	for p, d := range m.dist {
		if d >= 0 && m.turn[p] == 0 {
			m.turn[p] = 1
		}
	}
	m.layers = append(m.layers, m.dist)
	return err
}
