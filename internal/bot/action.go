package bot

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/pkg/tactics"
)

// Decision is what DoAction chose for one unit.
type Decision struct {
	Kind      ActionKind
	Target    tactics.Position
	HasTarget bool
	Path      []tactics.Position
	Reason    string
}

// DoAction decides and executes one unit's action for this turn:
//
//  1. pick a target: the cheapest tower the owner does not hold, else the
//     nearest enemy lord
//  2. move onto the target if it can be reached this turn
//  3. otherwise close in on the enemy it would beat in the fewest turns
//  4. otherwise advance along a unit-blind route toward the target
//
// A search that exceeds the expansion cap abandons the decision; the unit
// skips and is tried again next turn.
func DoAction(w World, u *tactics.Unit) (Decision, error) {
	b := w.Board()
	pf := w.Pathfinder()

	d, err := decide(w, b, pf, u)
	if errors.Is(err, tactics.ErrSearchRunaway) {
		return Decision{Kind: ActionSkip, Reason: "search runaway"}, nil
	}
	if err != nil {
		return Decision{Kind: ActionSkip}, err
	}
	if d.Kind != ActionMove {
		return d, nil
	}
	if err := w.MoveUnit(u, d.Path); err != nil {
		return Decision{Kind: ActionSkip}, fmt.Errorf("move %s: %w", u, err)
	}
	return d, nil
}

func decide(w World, b *tactics.Board, pf *tactics.Pathfinder, u *tactics.Unit) (Decision, error) {
	target, hasTarget, err := acquireTarget(b, pf, u)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Kind: ActionSkip, Target: target, HasTarget: hasTarget}

	fill, err := pf.FullFill(b, u)
	if err != nil {
		return Decision{}, err
	}

	if hasTarget && fill.Accessible(target) && b.UnitAt(target) == nil {
		if path := pf.Retrace(b, fill, target); path != nil {
			d.Kind, d.Path, d.Reason = ActionMove, path, "reach target"
			return d, nil
		}
	}

	if enemy, rng, ok := pickVictim(w, b, fill, u); ok {
		if dest, ok := approachTile(b, fill, u, enemy.Pos); ok {
			log.Debug().
				Str("unit", u.String()).
				Str("enemy", enemy.String()).
				Str("range", rng.String()).
				Msg("Closing to attack; combat is resolved by the match")
			if path := pf.Retrace(b, fill, dest); path != nil {
				d.Kind, d.Path, d.Reason = ActionMove, path, "attack"
				return d, nil
			}
		}
	}

	if !hasTarget {
		d.Reason = "no target"
		return d, nil
	}
	return advance(b, pf, fill, u, d)
}

// acquireTarget returns the first capturable tower a tower search reaches
// within the virtual-turn horizon, else the nearest enemy lord.
func acquireTarget(b *tactics.Board, pf *tactics.Pathfinder, u *tactics.Unit) (tactics.Position, bool, error) {
	m, err := pf.TowerSearch(b, u)
	if err != nil {
		return tactics.Position{}, false, err
	}
	if m.HasEnd {
		return m.End, true, nil
	}

	var best *tactics.Unit
	bestDist := 0
	for _, lord := range b.Lords() {
		if !u.HostileTo(lord) {
			continue
		}
		if dist := tactics.HexDistance(u.Pos, lord.Pos); best == nil || dist < bestDist {
			best, bestDist = lord, dist
		}
	}
	if best == nil {
		return tactics.Position{}, false, nil
	}
	return best.Pos, true, nil
}

// pickVictim chooses among the enemies in reach the (enemy, range) pair
// minimising ceil(u.HP / damage). That counts turns against the acting
// unit's own hit points, not the defender's.
func pickVictim(w World, b *tactics.Board, fill *tactics.DistanceMatrix, u *tactics.Unit) (*tactics.Unit, tactics.AttackRange, bool) {
	var (
		best      *tactics.Unit
		bestRange tactics.AttackRange
		bestTurns = math.MaxInt
	)
	for _, p := range fill.AccessibleSet() {
		enemy := b.UnitAt(p)
		if !u.HostileTo(enemy) {
			continue
		}
		for _, rng := range tactics.AttackRanges {
			dmg := w.ExpectedDamage(u, enemy, rng)
			if dmg <= 0 {
				continue
			}
			turns := int(math.Ceil(float64(u.HP) / dmg))
			if turns < bestTurns {
				best, bestRange, bestTurns = enemy, rng, turns
			}
		}
	}
	return best, bestRange, best != nil
}

// approachTile returns the cheapest free tile next to target that the
// unit can end on this turn.
func approachTile(b *tactics.Board, fill *tactics.DistanceMatrix, u *tactics.Unit, target tactics.Position) (tactics.Position, bool) {
	var best tactics.Position
	found := false
	for _, q := range tactics.Neighbors(target, b.Bounds()) {
		if !standable(b, fill, u, q) {
			continue
		}
		if !found || fill.Dist(q) < fill.Dist(best) {
			best, found = q, true
		}
	}
	return best, found
}

// advance walks a unit-blind route toward the target and stops at the
// furthest tile of it reachable this turn.
func advance(b *tactics.Board, pf *tactics.Pathfinder, fill *tactics.DistanceMatrix, u *tactics.Unit, d Decision) (Decision, error) {
	route, err := pf.PathTo(b, u, d.Target)
	if err != nil {
		return Decision{}, err
	}
	switch len(route) {
	case 0:
		d.Reason = "target unreachable"
		return d, nil
	case 1:
		d.Reason = "holding target"
		return d, nil
	}

	waypoint, found := u.Pos, false
	for i := len(route) - 1; i > 0; i-- {
		if fill.Reached(route[i]) {
			waypoint, found = route[i], true
			break
		}
	}
	if !found {
		d.Reason = "blocked"
		return d, nil
	}

	if !standable(b, fill, u, waypoint) {
		alt, ok := approachTile(b, fill, u, waypoint)
		if !ok || alt == u.Pos {
			d.Reason = "waypoint occupied"
			return d, nil
		}
		waypoint = alt
	}

	path := pf.Retrace(b, fill, waypoint)
	if path == nil {
		d.Reason = "no path"
		return d, nil
	}
	d.Kind, d.Path, d.Reason = ActionMove, path, "advance"
	return d, nil
}

// standable reports whether the unit can end its move on p this turn.
func standable(b *tactics.Board, fill *tactics.DistanceMatrix, u *tactics.Unit, p tactics.Position) bool {
	if !fill.Accessible(p) || !fill.Reached(p) {
		return false
	}
	occ := b.UnitAt(p)
	return occ == nil || occ == u
}
