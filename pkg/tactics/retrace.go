package tactics

import (
	"fmt"

	"github.com/rs/zerolog"
)

// StrictRetrace makes the retracer panic when the matrix and the retracer
// disagree about a path. Tests and dev builds turn it on; production logs
// the inconsistency and reports "no path".
var StrictRetrace bool

// retrace walks back from dest to m.Start. Each step picks the first
// neighbor whose cost differs from the current tile's by exactly the cost
// of entering the current tile. Across a virtual-turn boundary the
// predecessor is the tile the unit ended the previous turn on.
func retrace(b BoardView, r *Rules, m *DistanceMatrix, dest Position, log zerolog.Logger) []Position {
	if !m.Reached(dest) {
		return nil
	}
	bounds := b.Bounds()
	k := max(m.Turn(dest), 1)
	path := []Position{dest}
	cur := dest

	for steps := 0; cur != m.Start; steps++ {
		if steps > m.Len()+len(m.layers) {
			return retraceFailed(m, dest, cur, "step cap exceeded", log)
		}
		layer := m.layer(k)
		base := (k - 1) * m.TurnBudget
		d, ok := layer[cur]
		if !ok || d < 0 {
			return retraceFailed(m, dest, cur, "tile missing from layer", log)
		}
		if k > 1 && d == base {
			// cur is where the unit ended turn k-1; continue on the turn it
			// was first reached.
			k = m.Turn(cur)
			continue
		}

		want := d - r.Cost(b.TerrainAt(cur), m.Unit.Class)
		next, found := Position{}, false
		for _, q := range Neighbors(cur, bounds) {
			qd, ok := layer[q]
			if !ok || qd < 0 || qd != want {
				continue
			}
			if m.ZOC && !waypointLegal(b, m, q, k > 1 && qd == base) {
				continue
			}
			next, found = q, true
			break
		}
		if !found {
			return retraceFailed(m, dest, cur, "no predecessor", log)
		}
		path = append(path, next)
		cur = next
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// waypointLegal reports whether q may sit inside a zone-of-control path:
// a tile next to an enemy is only allowed where the unit starts a turn.
func waypointLegal(b BoardView, m *DistanceMatrix, q Position, turnStart bool) bool {
	if q == m.Start || turnStart {
		return true
	}
	return len(b.AdjacentEnemies(q, m.Unit.Owner)) == 0
}

func retraceFailed(m *DistanceMatrix, dest, at Position, reason string, log zerolog.Logger) []Position {
	msg := fmt.Sprintf("retrace %s -> %s stuck at %s: %s", m.Start, dest, at, reason)
	if StrictRetrace {
		panic(msg)
	}
	log.Error().
		Str("unit", m.Unit.String()).
		Str("start", m.Start.String()).
		Str("dest", dest.String()).
		Str("at", at.String()).
		Str("reason", reason).
		Msg("Path retrace inconsistent with matrix")
	return nil
}
