package entity

import (
	"fmt"

	"github.com/thraizz/skirmish-server-go/internal/game/violation"
)

// Grid dimensions. The board is a fixed 25x25 coordinate space.
const (
	GridWidth  = 25
	GridHeight = 25
)

// Position is an integer grid coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pos is shorthand for Position{X: x, Y: y}.
func Pos(x, y int) Position {
	return Position{X: x, Y: y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// InBounds reports whether p lies on the board.
func (p Position) InBounds() bool {
	return p.X >= 0 && p.Y >= 0 && p.X < GridWidth && p.Y < GridHeight
}

// ManhattanDistance returns |dx| + |dy|.
func (p Position) ManhattanDistance(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

// ChebyshevDistance returns max(|dx|, |dy|), the number of king steps between cells.
func (p Position) ChebyshevDistance(o Position) int {
	dx, dy := abs(p.X-o.X), abs(p.Y-o.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// Adjacent reports whether o is one of the eight cells around p.
func (p Position) Adjacent(o Position) bool {
	return p.ChebyshevDistance(o) == 1
}

// Neighbors returns the in-bounds cells adjacent to p in row-major order.
func (p Position) Neighbors() []Position {
	out := make([]Position, 0, 8)
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := Position{X: p.X + dx, Y: p.Y + dy}
			if n.InBounds() {
				out = append(out, n)
			}
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// OccupantKind identifies what stands on a cell.
type OccupantKind string

const (
	OccupantUnit OccupantKind = "unit"
	OccupantBase OccupantKind = "base"
	OccupantNode OccupantKind = "node"
)

// Occupant is the single entity holding a cell.
type Occupant struct {
	Kind OccupantKind
	ID   string
}

// Grid tracks cell occupancy. A cell holds at most one occupant.
type Grid struct {
	cells map[Position]Occupant
}

// NewGrid creates an empty grid.
func NewGrid() *Grid {
	return &Grid{cells: make(map[Position]Occupant)}
}

// Place puts an occupant on a cell, failing if the cell is off the board or taken.
func (g *Grid) Place(pos Position, occ Occupant) error {
	if err := g.CheckFree(pos); err != nil {
		return err
	}
	g.cells[pos] = occ
	return nil
}

// At returns the occupant of pos, if any.
func (g *Grid) At(pos Position) (Occupant, bool) {
	occ, ok := g.cells[pos]
	return occ, ok
}

// Occupied reports whether pos holds an occupant.
func (g *Grid) Occupied(pos Position) bool {
	_, ok := g.cells[pos]
	return ok
}

// CheckFree returns nil when pos is on the board and empty.
func (g *Grid) CheckFree(pos Position) error {
	if !pos.InBounds() {
		return violation.Newf(violation.CodeOutOfBounds, "position %s is outside the %dx%d grid", pos, GridWidth, GridHeight)
	}
	if existing, ok := g.cells[pos]; ok {
		return violation.WithMetadata(violation.CodeOccupiedCell,
			fmt.Sprintf("cell %s is occupied by %s %s", pos, existing.Kind, existing.ID),
			map[string]string{"occupant_id": existing.ID, "occupant_kind": string(existing.Kind)})
	}
	return nil
}

// Len returns the number of occupied cells.
func (g *Grid) Len() int {
	return len(g.cells)
}
