package tactics

import (
	"fmt"
	"strconv"
	"strings"
)

// Position is a tile on the board in offset coordinates. Odd rows are
// shifted half a hex to the right ("odd-r" layout).
type Position struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Bounds holds the board dimensions.
type Bounds struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Contains reports whether p lies on a board of these dimensions.
func (b Bounds) Contains(p Position) bool {
	return p.Col >= 0 && p.Row >= 0 && p.Col < b.Cols && p.Row < b.Rows
}

// Area returns the number of tiles.
func (b Bounds) Area() int { return b.Cols * b.Rows }

func (p Position) String() string {
	return strconv.Itoa(p.Col) + "," + strconv.Itoa(p.Row)
}

// ParsePosition parses the "col,row" form produced by Position.String.
func ParsePosition(s string) (Position, error) {
	c, r, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return Position{}, fmt.Errorf("position %q: want col,row", s)
	}
	col, err := strconv.Atoi(strings.TrimSpace(c))
	if err != nil {
		return Position{}, fmt.Errorf("position %q: bad column: %w", s, err)
	}
	row, err := strconv.Atoi(strings.TrimSpace(r))
	if err != nil {
		return Position{}, fmt.Errorf("position %q: bad row: %w", s, err)
	}
	return Position{Col: col, Row: row}, nil
}

// Neighbor offsets. East and west are the same on every row; the four
// diagonals mirror between even and odd rows.
var (
	evenRowOffsets = [6]Position{
		{1, 0}, {-1, 0},
		{-1, -1}, {0, -1},
		{-1, 1}, {0, 1},
	}
	oddRowOffsets = [6]Position{
		{1, 0}, {-1, 0},
		{0, -1}, {1, -1},
		{0, 1}, {1, 1},
	}
)

// Neighbors returns the up-to-six tiles adjacent to p that lie within b,
// in a fixed order: east, west, then the upper and lower diagonals.
func Neighbors(p Position, b Bounds) []Position {
	offsets := &evenRowOffsets
	if p.Row&1 == 1 {
		offsets = &oddRowOffsets
	}
	out := make([]Position, 0, 6)
	for _, d := range offsets {
		n := Position{Col: p.Col + d.Col, Row: p.Row + d.Row}
		if b.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Adjacent reports whether a and b share an edge.
func Adjacent(a, b Position) bool {
	return HexDistance(a, b) == 1
}

// cube converts odd-r offset coordinates to cube coordinates.
func cube(p Position) (x, y, z int) {
	x = p.Col - (p.Row-(p.Row&1))/2
	z = p.Row
	y = -x - z
	return x, y, z
}

// HexDistance returns the number of hex steps between a and b, ignoring
// terrain.
func HexDistance(a, b Position) int {
	ax, ay, az := cube(a)
	bx, by, bz := cube(b)
	return max(abs(ax-bx), abs(ay-by), abs(az-bz))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
