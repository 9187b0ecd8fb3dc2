package tactics

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// SearchKind names a condition search.
type SearchKind int

const (
	SearchTower SearchKind = iota
	SearchEnemyTerrain
	SearchOwnTerrain
	SearchEnemyUnit
)

var searchKindNames = map[SearchKind]string{
	SearchTower:        "tower",
	SearchEnemyTerrain: "enemy-terrain",
	SearchOwnTerrain:   "own-terrain",
	SearchEnemyUnit:    "enemy-unit",
}

func (k SearchKind) String() string {
	if s, ok := searchKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("search(%d)", int(k))
}

// ParseSearchKind is the inverse of SearchKind.String.
func ParseSearchKind(s string) (SearchKind, error) {
	for k, name := range searchKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown search kind %q", s)
}

// Pathfinder builds distance matrices and paths. It pairs each query kind
// with the processor and retracer that fit it.
type Pathfinder struct {
	rules *Rules
	log   zerolog.Logger
}

// NewPathfinder returns a Pathfinder over the given rules.
func NewPathfinder(r *Rules, log zerolog.Logger) *Pathfinder {
	return &Pathfinder{rules: r, log: log.With().Str("component", "pathfinder").Logger()}
}

// Rules returns the rules the pathfinder was built with.
func (pf *Pathfinder) Rules() *Rules { return pf.rules }

// checkUnit rejects queries for a unit that is not where the board says.
func checkUnit(b BoardView, u *Unit) error {
	if u == nil {
		return ErrNoUnit
	}
	if !b.IsValid(u.Pos) {
		return fmt.Errorf("unit %d at %s: %w", u.ID, u.Pos, ErrInvalidPosition)
	}
	if b.UnitAt(u.Pos) != u {
		return fmt.Errorf("unit %d not found at %s: %w", u.ID, u.Pos, ErrNoUnit)
	}
	return nil
}

func (pf *Pathfinder) finish(m *DistanceMatrix, query string, err error) (*DistanceMatrix, error) {
	if errors.Is(err, ErrSearchRunaway) {
		pf.log.Warn().
			Str("query", query).
			Str("unit", m.Unit.String()).
			Int("expansions", m.expansions).
			Int("cap", pf.rules.MaxExpansions()).
			Msg("Search runaway, abandoning query")
		return m, fmt.Errorf("%s from %s: %w", query, m.Start, err)
	}
	pf.log.Debug().
		Str("query", query).
		Str("unit", m.Unit.String()).
		Int("expansions", m.expansions).
		Int("reached", len(m.dist)).
		Bool("hasEnd", m.HasEnd).
		Msg("Matrix filled")
	return m, err
}

// FullFill returns every tile the unit can reach or attack this turn.
func (pf *Pathfinder) FullFill(b BoardView, u *Unit) (*DistanceMatrix, error) {
	if err := checkUnit(b, u); err != nil {
		return nil, err
	}
	m := newMatrix(u, u.Pos)
	return pf.finish(m, "full-fill", fullFill(b, pf.rules, m))
}

// Search runs a condition search of the given kind. On success m.HasEnd is
// set and m.End is the matching tile; otherwise nothing matched within the
// virtual-turn horizon.
func (pf *Pathfinder) Search(b BoardView, u *Unit, kind SearchKind) (*DistanceMatrix, error) {
	if err := checkUnit(b, u); err != nil {
		return nil, err
	}
	var match func(Position) bool
	switch kind {
	case SearchTower:
		match = func(p Position) bool {
			return b.TerrainAt(p) == Tower && b.TileOwner(p) != u.Owner
		}
	case SearchEnemyTerrain:
		match = func(p Position) bool {
			o := b.TileOwner(p)
			return o != Neutral && o != u.Owner
		}
	case SearchOwnTerrain:
		match = func(p Position) bool { return b.TileOwner(p) == u.Owner }
	case SearchEnemyUnit:
		match = func(p Position) bool { return len(b.AdjacentEnemies(p, u.Owner)) > 0 }
	default:
		return nil, fmt.Errorf("unknown search kind %s", kind)
	}
	m := newMatrix(u, u.Pos)
	return pf.finish(m, kind.String()+"-search", conditionSearch(b, pf.rules, m, match))
}

// TowerSearch finds the cheapest tower the unit's owner does not hold.
func (pf *Pathfinder) TowerSearch(b BoardView, u *Unit) (*DistanceMatrix, error) {
	return pf.Search(b, u, SearchTower)
}

// EnemyTerrainSearch finds the cheapest tile held by another player.
func (pf *Pathfinder) EnemyTerrainSearch(b BoardView, u *Unit) (*DistanceMatrix, error) {
	return pf.Search(b, u, SearchEnemyTerrain)
}

// OwnTerrainSearch finds the cheapest tile held by the unit's owner.
func (pf *Pathfinder) OwnTerrainSearch(b BoardView, u *Unit) (*DistanceMatrix, error) {
	return pf.Search(b, u, SearchOwnTerrain)
}

// EnemyUnitSearch finds the cheapest tile from which an enemy is adjacent.
func (pf *Pathfinder) EnemyUnitSearch(b BoardView, u *Unit) (*DistanceMatrix, error) {
	return pf.Search(b, u, SearchEnemyUnit)
}

// PointToPoint finds the cheapest terrain-only route from the unit to dest.
// Units and zone of control are ignored.
func (pf *Pathfinder) PointToPoint(b BoardView, u *Unit, dest Position) (*DistanceMatrix, error) {
	if err := checkUnit(b, u); err != nil {
		return nil, err
	}
	if !b.IsValid(dest) {
		return nil, fmt.Errorf("destination %s: %w", dest, ErrInvalidPosition)
	}
	m := newMatrix(u, u.Pos)
	m.End = dest
	if !pf.rules.Passable(b.TerrainAt(dest), u.Class) {
		m.markImpassable(dest)
		return m, nil
	}
	return pf.finish(m, "point-to-point", pointToPoint(b, pf.rules, m))
}

// Retrace turns a filled matrix into the ordered tiles from its start to
// dest, both included. Nil when dest was not reached.
func (pf *Pathfinder) Retrace(b BoardView, m *DistanceMatrix, dest Position) []Position {
	return retrace(b, pf.rules, m, dest, pf.log)
}

// PathTo is PointToPoint followed by Retrace.
func (pf *Pathfinder) PathTo(b BoardView, u *Unit, dest Position) ([]Position, error) {
	m, err := pf.PointToPoint(b, u, dest)
	if err != nil {
		return nil, err
	}
	return pf.Retrace(b, m, dest), nil
}

// TurnsAlong counts the turns u needs to walk path on terrain alone. A turn
// ends when the next tile costs more than the movement left. A path of one
// tile or less takes no turns.
func TurnsAlong(b BoardView, r *Rules, u *Unit, path []Position) int {
	if len(path) < 2 || u.Movement <= 0 {
		return 0
	}
	turns, left := 1, u.Movement
	for _, p := range path[1:] {
		c := r.Cost(b.TerrainAt(p), u.Class)
		if c > left {
			turns++
			left = u.Movement
		}
		left -= c
	}
	return turns
}
