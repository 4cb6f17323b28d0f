package world

// AOIGrid buckets beings into square cells so Nearby only looks at a 3x3
// neighbourhood. Coordinates are tiles of the current map.
// Accessed only from the main loop, no locks.

const cellSize = 16

type cellKey struct {
	cx, cy int32
}

func toCellCoord(v int32) int32 {
	if v < 0 {
		return (v - cellSize + 1) / cellSize
	}
	return v / cellSize
}

// AOIGrid tracks which beings are in which cells.
type AOIGrid struct {
	cells map[cellKey]map[int32]struct{}
}

func NewAOIGrid() *AOIGrid {
	return &AOIGrid{cells: make(map[cellKey]map[int32]struct{})}
}

func (g *AOIGrid) key(x, y int32) cellKey {
	return cellKey{cx: toCellCoord(x), cy: toCellCoord(y)}
}

// Add places a being into the grid.
func (g *AOIGrid) Add(id int32, x, y int32) {
	k := g.key(x, y)
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[int32]struct{})
		g.cells[k] = cell
	}
	cell[id] = struct{}{}
}

// Remove takes a being out of the grid.
func (g *AOIGrid) Remove(id int32, x, y int32) {
	k := g.key(x, y)
	if cell := g.cells[k]; cell != nil {
		delete(cell, id)
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Move updates a being's cell if it crossed a boundary.
func (g *AOIGrid) Move(id int32, oldX, oldY, newX, newY int32) {
	if g.key(oldX, oldY) == g.key(newX, newY) {
		return
	}
	g.Remove(id, oldX, oldY)
	g.Add(id, newX, newY)
}

// Candidates returns the ids in the 3x3 cells around (x, y). Callers still
// filter by exact distance.
func (g *AOIGrid) Candidates(x, y int32) []int32 {
	c := g.key(x, y)
	var out []int32
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for id := range g.cells[cellKey{cx: c.cx + dx, cy: c.cy + dy}] {
				out = append(out, id)
			}
		}
	}
	return out
}

func (g *AOIGrid) Clear() {
	clear(g.cells)
}
