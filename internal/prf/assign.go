package prf

import (
	"fmt"
	"math"
)

// CellState tags the ownership of one pixel.
type CellState uint8

const (
	// CellUnassigned means no source owns the pixel. After Assign returns
	// this also covers pixels claimed by more than one source.
	CellUnassigned CellState = iota
	// CellAssigned means exactly one source owns the pixel.
	CellAssigned
	// CellShared marks an ambiguous pixel while assignment is running.
	// Assign collapses it to CellUnassigned before returning.
	CellShared
)

func (s CellState) String() string {
	switch s {
	case CellUnassigned:
		return "unassigned"
	case CellAssigned:
		return "assigned"
	case CellShared:
		return "shared"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// Cell is the per-pixel assignment. XOff and YOff locate the pixel centre
// relative to the owning source; Norm and ZeroPoint are copied from that
// source. Unassigned cells hold NaN in all four values and Source == -1.
type Cell struct {
	State     CellState
	Source    int
	XOff      float64
	YOff      float64
	Norm      float64
	ZeroPoint float64
}

// Valid reports whether the cell has exactly one owning source.
func (c Cell) Valid() bool { return c.State == CellAssigned }

var invalidCell = Cell{
	State:     CellUnassigned,
	Source:    -1,
	XOff:      math.NaN(),
	YOff:      math.NaN(),
	Norm:      math.NaN(),
	ZeroPoint: math.NaN(),
}

// AssignmentGrid is a dense, row-major grid of Cells matching the image.
type AssignmentGrid struct {
	Resolution Resolution
	Cells      []Cell
}

// At returns the cell for pixel (x, y).
func (g *AssignmentGrid) At(x, y int) Cell {
	return g.Cells[g.Resolution.Index(x, y)]
}

// Patch returns a row-major copy of the cells inside region.
func (g *AssignmentGrid) Patch(region Region) ([]Cell, error) {
	if err := region.Within(g.Resolution); err != nil {
		return nil, err
	}
	out := make([]Cell, 0, region.Pixels())
	for y := region.YMin; y < region.YMax; y++ {
		row := g.Resolution.Index(region.XMin, y)
		out = append(out, g.Cells[row:row+region.XMax-region.XMin]...)
	}
	return out, nil
}

// ValidCount returns the number of assigned cells.
func (g *AssignmentGrid) ValidCount() int {
	n := 0
	for i := range g.Cells {
		if g.Cells[i].Valid() {
			n++
		}
	}
	return n
}

// Rect returns the pixel rectangle covered by a source's extraction
// rectangle, clipped to the image. The rectangle is empty when the source
// lies entirely outside.
func Rect(s Source, r PRFRange, res Resolution) Region {
	minX := int(math.Max(math.Floor(s.X-r.XOffset), 0))
	maxX := int(math.Min(math.Ceil(s.X-r.XOffset+r.Width), float64(res.Width)))
	minY := int(math.Max(math.Floor(s.Y-r.YOffset), 0))
	maxY := int(math.Min(math.Ceil(s.Y-r.YOffset+r.Height), float64(res.Height)))
	return Region{XMin: minX, XMax: maxX, YMin: minY, YMax: maxY}
}

// Assign maps every pixel to at most one owning source.
//
// Crowded and disabled sources mark their whole rectangle shared. Any
// other source claims unowned pixels and marks already claimed ones
// shared. A final pass turns every shared pixel into an unassigned one, so
// the set of valid pixels does not depend on source order.
func Assign(sources []Source, r PRFRange, res Resolution, crowdingDistance float64) (*AssignmentGrid, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(crowdingDistance) || crowdingDistance < 0 {
		return nil, fmt.Errorf("%w: crowding distance must be non-negative, got %g",
			ErrConfiguration, crowdingDistance)
	}

	g := &AssignmentGrid{
		Resolution: res,
		Cells:      make([]Cell, res.Pixels()),
	}
	for i := range g.Cells {
		g.Cells[i] = invalidCell
	}

	crowded := NewCrowdingIndex(sources, crowdingDistance).CrowdedFlags()
	numCrowded := 0
	for _, c := range crowded {
		if c {
			numCrowded++
		}
	}

	for idx, src := range sources {
		rect := Rect(src, r, res)
		if rect.Empty() {
			Tracef("source %s at (%.3f, %.3f) has no pixels in the image", src.ID, src.X, src.Y)
			continue
		}

		exclusive := !crowded[idx] && src.Enabled

		for py := rect.YMin; py < rect.YMax; py++ {
			yOff := float64(py) - src.Y + 0.5
			row := res.Index(0, py)
			for px := rect.XMin; px < rect.XMax; px++ {
				cell := &g.Cells[row+px]
				if !exclusive || cell.State != CellUnassigned {
					cell.State = CellShared
					continue
				}
				*cell = Cell{
					State:     CellAssigned,
					Source:    idx,
					XOff:      float64(px) - src.X + 0.5,
					YOff:      yOff,
					Norm:      src.Flux,
					ZeroPoint: src.Background,
				}
			}
		}
	}

	for i := range g.Cells {
		if g.Cells[i].State == CellShared {
			g.Cells[i] = invalidCell
		}
	}

	Diagf("assigned %d of %d pixels to %d sources (%d crowded, distance %g)",
		g.ValidCount(), len(g.Cells), len(sources), numCrowded, crowdingDistance)
	return g, nil
}
