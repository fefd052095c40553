package world

import (
	"fmt"
	"math"
	"sort"
)

// CellCoord addresses one square bucket of the spatial grid.
type CellCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid buckets entity ids by position so radius queries only touch nearby
// cells. Cell size equals the query radius, so a radius query scans at most
// the 3×3 block around the origin cell.
type Grid struct {
	CellSize float64
	cells    map[CellCoord][]uint64
	pos      map[uint64]Vec2
}

// NewGrid creates an empty grid. cellSize must be positive.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		CellSize: cellSize,
		cells:    make(map[CellCoord][]uint64),
		pos:      make(map[uint64]Vec2),
	}
}

// CellOf returns the cell containing p.
func (g *Grid) CellOf(p Vec2) CellCoord {
	return CellCoord{
		X: int(math.Floor(p.X / g.CellSize)),
		Y: int(math.Floor(p.Y / g.CellSize)),
	}
}

// Insert places id at p. Re-inserting an id moves it.
func (g *Grid) Insert(id uint64, p Vec2) {
	if _, ok := g.pos[id]; ok {
		g.Remove(id)
	}
	c := g.CellOf(p)
	g.cells[c] = append(g.cells[c], id)
	g.pos[id] = p
}

// Remove drops id from the grid.
func (g *Grid) Remove(id uint64) {
	p, ok := g.pos[id]
	if !ok {
		return
	}
	c := g.CellOf(p)
	ids := g.cells[c]
	for i, other := range ids {
		if other == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(g.cells, c)
	} else {
		g.cells[c] = ids
	}
	delete(g.pos, id)
}

// Len returns the number of ids in the grid.
func (g *Grid) Len() int {
	return len(g.pos)
}

// Within returns the ids within radius of p (inclusive), ascending by id.
func (g *Grid) Within(p Vec2, radius float64) []uint64 {
	span := int(math.Ceil(radius / g.CellSize))
	center := g.CellOf(p)
	var out []uint64
	for dx := -span; dx <= span; dx++ {
		for dy := -span; dy <= span; dy++ {
			for _, id := range g.cells[CellCoord{X: center.X + dx, Y: center.Y + dy}] {
				if Distance(g.pos[id], p) <= radius {
					out = append(out, id)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Partitions groups ids by cell, ordered by cell then id. Used to batch work
// by spatial locality.
func (g *Grid) Partitions() [][]uint64 {
	coords := make([]CellCoord, 0, len(g.cells))
	for c := range g.cells {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})

	out := make([][]uint64, 0, len(coords))
	for _, c := range coords {
		ids := append([]uint64(nil), g.cells[c]...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	return out
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(cell=%.1f, cells=%d, entities=%d)", g.CellSize, len(g.cells), len(g.pos))
}
