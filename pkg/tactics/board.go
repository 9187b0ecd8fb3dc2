package tactics

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrInvalidPosition = errors.New("position outside board")
	ErrOccupied        = errors.New("tile occupied")
	ErrNoUnit          = errors.New("no such unit")
)

// BoardView is the read-only board surface the processors search over.
type BoardView interface {
	Bounds() Bounds
	IsValid(p Position) bool
	TerrainAt(p Position) Terrain
	TileOwner(p Position) PlayerID
	UnitAt(p Position) *Unit
	AdjacentEnemies(p Position, owner PlayerID) []*Unit
}

// Tile is one hex of terrain plus its current owner.
type Tile struct {
	Terrain Terrain  `json:"terrain"`
	Owner   PlayerID `json:"owner,omitempty"`
}

// Board is a rectangular hex map with units on it.
type Board struct {
	bounds Bounds
	tiles  []Tile
	units  map[Position]*Unit
	byID   map[int]*Unit
	nextID int
}

// NewBoard returns a board of the given size filled with one terrain.
func NewBoard(b Bounds, fill Terrain) *Board {
	tiles := make([]Tile, b.Area())
	for i := range tiles {
		tiles[i].Terrain = fill
	}
	return &Board{
		bounds: b,
		tiles:  tiles,
		units:  make(map[Position]*Unit),
		byID:   make(map[int]*Unit),
		nextID: 1,
	}
}

func (b *Board) index(p Position) int { return p.Row*b.bounds.Cols + p.Col }

func (b *Board) Bounds() Bounds { return b.bounds }

func (b *Board) IsValid(p Position) bool { return b.bounds.Contains(p) }

// Tile returns the tile at p; the zero Tile for invalid positions.
func (b *Board) Tile(p Position) Tile {
	if !b.IsValid(p) {
		return Tile{Terrain: terrainCount}
	}
	return b.tiles[b.index(p)]
}

// TerrainAt returns the terrain at p. Invalid positions report a terrain
// no class can enter.
func (b *Board) TerrainAt(p Position) Terrain { return b.Tile(p).Terrain }

func (b *Board) TileOwner(p Position) PlayerID { return b.Tile(p).Owner }

// SetTerrain changes the terrain at p.
func (b *Board) SetTerrain(p Position, t Terrain) {
	if b.IsValid(p) {
		b.tiles[b.index(p)].Terrain = t
	}
}

// SetOwner changes who owns the tile at p.
func (b *Board) SetOwner(p Position, owner PlayerID) {
	if b.IsValid(p) {
		b.tiles[b.index(p)].Owner = owner
	}
}

func (b *Board) UnitAt(p Position) *Unit { return b.units[p] }

// Unit returns the unit with the given ID, or nil.
func (b *Board) Unit(id int) *Unit { return b.byID[id] }

// AdjacentEnemies returns the units next to p that are hostile to owner.
func (b *Board) AdjacentEnemies(p Position, owner PlayerID) []*Unit {
	var out []*Unit
	for _, n := range Neighbors(p, b.bounds) {
		if u := b.units[n]; u != nil && u.Owner != Neutral && u.Owner != owner {
			out = append(out, u)
		}
	}
	return out
}

// PlaceUnit puts u on the board, assigning an ID when it has none.
func (b *Board) PlaceUnit(u *Unit) error {
	if !b.IsValid(u.Pos) {
		return fmt.Errorf("place %s: %w", u.Pos, ErrInvalidPosition)
	}
	if b.units[u.Pos] != nil {
		return fmt.Errorf("place %s: %w", u.Pos, ErrOccupied)
	}
	if u.ID == 0 {
		u.ID = b.nextID
	}
	if _, dup := b.byID[u.ID]; dup {
		return fmt.Errorf("place unit %d: duplicate id", u.ID)
	}
	if u.ID >= b.nextID {
		b.nextID = u.ID + 1
	}
	b.units[u.Pos] = u
	b.byID[u.ID] = u
	return nil
}

// MoveUnit relocates a unit. It does not check reachability.
func (b *Board) MoveUnit(id int, to Position) error {
	u := b.byID[id]
	if u == nil {
		return fmt.Errorf("move unit %d: %w", id, ErrNoUnit)
	}
	if !b.IsValid(to) {
		return fmt.Errorf("move unit %d to %s: %w", id, to, ErrInvalidPosition)
	}
	if occ := b.units[to]; occ != nil && occ != u {
		return fmt.Errorf("move unit %d to %s: %w", id, to, ErrOccupied)
	}
	delete(b.units, u.Pos)
	u.Pos = to
	b.units[to] = u
	return nil
}

// RemoveUnit takes a unit off the board.
func (b *Board) RemoveUnit(id int) {
	if u := b.byID[id]; u != nil {
		delete(b.units, u.Pos)
		delete(b.byID, id)
	}
}

// Units returns every unit ordered by ID.
func (b *Board) Units() []*Unit {
	out := make([]*Unit, 0, len(b.byID))
	for _, u := range b.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnitsOf returns the owner's units ordered by ID.
func (b *Board) UnitsOf(owner PlayerID) []*Unit {
	var out []*Unit
	for _, u := range b.Units() {
		if u.Owner == owner {
			out = append(out, u)
		}
	}
	return out
}

// LordOf returns the owner's lord, or nil once it has fallen.
func (b *Board) LordOf(owner PlayerID) *Unit {
	for _, u := range b.UnitsOf(owner) {
		if u.Lord {
			return u
		}
	}
	return nil
}

// Lords returns every lord on the board.
func (b *Board) Lords() []*Unit {
	var out []*Unit
	for _, u := range b.Units() {
		if u.Lord {
			out = append(out, u)
		}
	}
	return out
}

// Towers returns the positions of all tower tiles in row-major order.
func (b *Board) Towers() []Position {
	var out []Position
	for i, t := range b.tiles {
		if t.Terrain == Tower {
			out = append(out, Position{Col: i % b.bounds.Cols, Row: i / b.bounds.Cols})
		}
	}
	return out
}

// ResetMoved clears the moved flag on the owner's units.
func (b *Board) ResetMoved(owner PlayerID) {
	for _, u := range b.byID {
		if u.Owner == owner {
			u.Moved = false
		}
	}
}

// Clone returns a deep copy.
func (b *Board) Clone() *Board {
	c := &Board{
		bounds: b.bounds,
		tiles:  append([]Tile(nil), b.tiles...),
		units:  make(map[Position]*Unit, len(b.units)),
		byID:   make(map[int]*Unit, len(b.byID)),
		nextID: b.nextID,
	}
	for id, u := range b.byID {
		cu := *u
		c.units[cu.Pos] = &cu
		c.byID[id] = &cu
	}
	return c
}

type boardJSON struct {
	Bounds Bounds  `json:"bounds"`
	Tiles  []Tile  `json:"tiles"`
	Units  []*Unit `json:"units"`
	NextID int     `json:"next_id"`
}

func (b *Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(boardJSON{
		Bounds: b.bounds,
		Tiles:  b.tiles,
		Units:  b.Units(),
		NextID: b.nextID,
	})
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var raw boardJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Tiles) != raw.Bounds.Area() {
		return fmt.Errorf("board snapshot: %d tiles for %dx%d", len(raw.Tiles), raw.Bounds.Cols, raw.Bounds.Rows)
	}
	*b = Board{
		bounds: raw.Bounds,
		tiles:  raw.Tiles,
		units:  make(map[Position]*Unit, len(raw.Units)),
		byID:   make(map[int]*Unit, len(raw.Units)),
		nextID: max(raw.NextID, 1),
	}
	for _, u := range raw.Units {
		if err := b.PlaceUnit(u); err != nil {
			return fmt.Errorf("board snapshot: %w", err)
		}
	}
	return nil
}
