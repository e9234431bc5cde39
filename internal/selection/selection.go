// Package selection implements rectangle (rubber band) selection over the
// rendered file grid.
package selection

import "sort"

// Point is a position in grid pixels.
type Point struct {
	X, Y int
}

// Rect is an axis aligned rectangle. Use NewRect to get a normalized one.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// NewRect builds a normalized rectangle from two corners in any order.
func NewRect(a, b Point) Rect {
	r := Rect{X0: a.X, Y0: a.Y, X1: b.X, Y1: b.Y}
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

// Intersects reports whether the rectangles overlap. Touching edges count.
func (r Rect) Intersects(o Rect) bool {
	return r.X0 <= o.X1 && o.X0 <= r.X1 && r.Y0 <= o.Y1 && o.Y0 <= r.Y1
}

// Gesture tracks one drag from Begin to End.
type Gesture struct {
	active   bool
	origin   Point
	selected map[string]bool
}

// Begin starts a drag at p. With additive set the prior selection is kept
// and extended; otherwise the drag starts from an empty selection.
func (g *Gesture) Begin(p Point, additive bool, prior []string) {
	g.active = true
	g.origin = p
	g.selected = make(map[string]bool)
	if additive {
		for _, id := range prior {
			g.selected[id] = true
		}
	}
}

// Active reports whether a drag is in progress.
func (g *Gesture) Active() bool {
	return g.active
}

// Move extends the drag to p and unions every box the rectangle touches into
// the selection. Ids are never removed during a drag. It returns the current
// selection, sorted.
func (g *Gesture) Move(p Point, boxes map[string]Rect) []string {
	if !g.active {
		return nil
	}
	band := NewRect(g.origin, p)
	for id, box := range boxes {
		if band.Intersects(box) {
			g.selected[id] = true
		}
	}
	return g.ids()
}

// End finishes the drag and returns the final selection, sorted.
func (g *Gesture) End() []string {
	ids := g.ids()
	g.active = false
	g.selected = nil
	return ids
}

func (g *Gesture) ids() []string {
	ids := make([]string, 0, len(g.selected))
	for id := range g.selected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GridLayout places ids row by row into cells of cellW x cellH separated by
// gap, the way the shell renders the grid view.
func GridLayout(ids []string, columns, cellW, cellH, gap int) map[string]Rect {
	if columns <= 0 {
		columns = 1
	}
	boxes := make(map[string]Rect, len(ids))
	for i, id := range ids {
		col, row := i%columns, i/columns
		x := col * (cellW + gap)
		y := row * (cellH + gap)
		boxes[id] = Rect{X0: x, Y0: y, X1: x + cellW - 1, Y1: y + cellH - 1}
	}
	return boxes
}
