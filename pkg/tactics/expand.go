package tactics

// conditionSearch looks for the cheapest tile satisfying match. When the
// first turn's budget is not enough it keeps going across virtual turns:
// every tile reached so far where the unit could end its move becomes a
// fresh start for the next turn, costed at the turn's base.
func conditionSearch(b BoardView, r *Rules, m *DistanceMatrix, match func(Position) bool) error {
	end, found, err := fillFirstTurn(b, r, m, match)
	if err != nil {
		return err
	}
	if found {
		m.End, m.HasEnd = end, true
		return nil
	}
	if m.TurnBudget <= 0 {
		return nil
	}

	for k := 2; k <= r.MaxVirtualTurns(); k++ {
		base := (k - 1) * m.TurnBudget
		scratch := make(map[Position]int, len(m.dist))
		f := &frontier{}
		for _, p := range m.Reachable() {
			// A unit cannot end a turn on top of another unit.
			if occ := b.UnitAt(p); occ != nil && occ != m.Unit {
				continue
			}
			scratch[p] = base
			f.push(base, p)
		}
		if f.empty() {
			return nil
		}

		ps := &pass{
			dist:     scratch,
			ceiling:  k * m.TurnBudget,
			zoc:      true,
			exempt:   func(p Position) bool { return scratch[p] == base },
			stop:     match,
			priority: costPriority,
		}
		end, found, err := ps.run(b, r, m, f)
		if err != nil {
			return err
		}

		// Earlier values stay authoritative; only new tiles are merged.
		added := 0
		for p, d := range scratch {
			if old, ok := m.dist[p]; ok && old >= 0 {
				continue
			}
			m.set(p, d, k)
			added++
		}
		m.layers = append(m.layers, scratch)

		if found {
			m.End, m.HasEnd = end, true
			return nil
		}
		if added == 0 {
			return nil
		}
	}
	return nil
}
