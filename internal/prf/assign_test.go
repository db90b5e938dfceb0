package prf

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRange = PRFRange{Width: 11, Height: 8, XOffset: 4, YOffset: 4}

func src(id string, x, y float64) Source {
	return Source{ID: id, X: x, Y: y, Flux: 100, Background: 5, Enabled: true}
}

func TestAssign_IsolatedSource(t *testing.T) {
	res := Resolution{Width: 20, Height: 20}
	s := src("a", 10, 10)
	g, err := Assign([]Source{s}, testRange, res, 1.0)
	require.NoError(t, err)

	c := g.At(10, 10)
	assert.Equal(t, CellAssigned, c.State)
	assert.Equal(t, 0, c.Source)
	assert.Equal(t, 0.5, c.XOff)
	assert.Equal(t, 0.5, c.YOff)
	assert.Equal(t, 100.0, c.Norm)
	assert.Equal(t, 5.0, c.ZeroPoint)

	rect := Rect(s, testRange, res)
	assert.Equal(t, Region{XMin: 6, XMax: 17, YMin: 6, YMax: 14}, rect)
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			c := g.At(x, y)
			inside := x >= rect.XMin && x < rect.XMax && y >= rect.YMin && y < rect.YMax
			if !inside {
				assert.Equal(t, CellUnassigned, c.State, "(%d, %d)", x, y)
				assert.True(t, math.IsNaN(c.XOff) && math.IsNaN(c.Norm), "(%d, %d)", x, y)
				assert.Equal(t, -1, c.Source)
				continue
			}
			require.Equal(t, CellAssigned, c.State, "(%d, %d)", x, y)
			assert.Equal(t, float64(x)-10+0.5, c.XOff)
			assert.Equal(t, float64(y)-10+0.5, c.YOff)
		}
	}
	assert.Equal(t, rect.Pixels(), g.ValidCount())
}

func TestAssign_CrowdedPair(t *testing.T) {
	res := Resolution{Width: 20, Height: 20}
	g, err := Assign([]Source{src("a", 10, 10), src("b", 10.5, 10)}, testRange, res, 1.0)
	require.NoError(t, err)
	assert.Zero(t, g.ValidCount())
	for _, c := range g.Cells {
		assert.Equal(t, CellUnassigned, c.State)
	}
}

func validSet(g *AssignmentGrid) map[int]bool {
	out := make(map[int]bool)
	for i, c := range g.Cells {
		if c.Valid() {
			out[i] = true
		}
	}
	return out
}

func TestAssign_OverlapIsOrderIndependent(t *testing.T) {
	res := Resolution{Width: 30, Height: 20}
	a, b := src("a", 5, 8), src("b", 12, 9)

	ab, err := Assign([]Source{a, b}, testRange, res, 1.0)
	require.NoError(t, err)
	ba, err := Assign([]Source{b, a}, testRange, res, 1.0)
	require.NoError(t, err)

	ra, rb := Rect(a, testRange, res), Rect(b, testRange, res)
	overlap := 0
	for y := max(ra.YMin, rb.YMin); y < min(ra.YMax, rb.YMax); y++ {
		for x := max(ra.XMin, rb.XMin); x < min(ra.XMax, rb.XMax); x++ {
			assert.False(t, ab.At(x, y).Valid(), "(%d, %d)", x, y)
			assert.False(t, ba.At(x, y).Valid(), "(%d, %d)", x, y)
			overlap++
		}
	}
	require.NotZero(t, overlap)
	assert.Equal(t, validSet(ab), validSet(ba))
	assert.Equal(t, ra.Pixels()+rb.Pixels()-2*overlap, ab.ValidCount())

	// Pixels owned by a carry a's offsets whichever order it came in.
	c1, c2 := ab.At(2, 8), ba.At(2, 8)
	assert.Equal(t, c1.XOff, c2.XOff)
	assert.Equal(t, 0, c1.Source)
	assert.Equal(t, 1, c2.Source)
}

func TestAssign_Deterministic(t *testing.T) {
	res := Resolution{Width: 40, Height: 30}
	sources := []Source{src("a", 5, 5), src("b", 12, 7), src("c", 30, 20), src("d", 30.4, 20.2)}
	g1, err := Assign(sources, testRange, res, 1.0)
	require.NoError(t, err)
	g2, err := Assign(sources, testRange, res, 1.0)
	require.NoError(t, err)
	if diff := cmp.Diff(g1, g2, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("assignment differs between runs (-first +second):\n%s", diff)
	}
}

func TestAssign_DisabledSourceSharesItsRectangle(t *testing.T) {
	res := Resolution{Width: 20, Height: 20}
	off := src("off", 10, 10)
	off.Enabled = false
	g, err := Assign([]Source{off}, testRange, res, 1.0)
	require.NoError(t, err)
	assert.Zero(t, g.ValidCount())

	// A disabled source still invalidates pixels it shares with an enabled one.
	g, err = Assign([]Source{src("on", 4, 10), off}, testRange, res, 1.0)
	require.NoError(t, err)
	assert.False(t, g.At(8, 10).Valid())
	assert.True(t, g.At(1, 10).Valid())
}

func TestAssign_SourceOutsideImage(t *testing.T) {
	res := Resolution{Width: 10, Height: 10}
	g, err := Assign([]Source{src("far", 100, 100)}, testRange, res, 1.0)
	require.NoError(t, err)
	assert.Zero(t, g.ValidCount())
}

func TestAssign_Errors(t *testing.T) {
	res := Resolution{Width: 10, Height: 10}
	_, err := Assign(nil, PRFRange{Width: 0, Height: 1}, res, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Assign(nil, testRange, Resolution{}, 1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Assign(nil, testRange, res, -1)
	assert.ErrorIs(t, err, ErrConfiguration)
	_, err = Assign(nil, testRange, res, math.NaN())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestAssignmentGrid_Patch(t *testing.T) {
	res := Resolution{Width: 20, Height: 20}
	g, err := Assign([]Source{src("a", 10, 10)}, testRange, res, 1.0)
	require.NoError(t, err)

	patch, err := g.Patch(Region{XMin: 9, XMax: 12, YMin: 10, YMax: 12})
	require.NoError(t, err)
	require.Len(t, patch, 6)
	assert.Equal(t, -0.5, patch[0].XOff)
	assert.Equal(t, 0.5, patch[0].YOff)
	assert.Equal(t, 1.5, patch[5].XOff)
	assert.Equal(t, 1.5, patch[5].YOff)

	_, err = g.Patch(Region{XMax: 21, YMax: 1})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestCellState_String(t *testing.T) {
	assert.Equal(t, "unassigned", CellUnassigned.String())
	assert.Equal(t, "assigned", CellAssigned.String())
	assert.Equal(t, "shared", CellShared.String())
	assert.Equal(t, "CellState(9)", CellState(9).String())
}

func TestAssign_CountsCrowdedSourcesOffImage(t *testing.T) {
	var diag bytes.Buffer
	SetLogWriters(LogWriters{Diag: &diag})
	defer SetLogWriters(LogWriters{})

	res := Resolution{Width: 20, Height: 20}
	sources := []Source{
		src("in", 10, 10),
		// A crowded pair whose rectangles miss the image entirely.
		src("off1", -50, -50),
		src("off2", -49, -50),
	}
	g, err := Assign(sources, testRange, res, 3)
	require.NoError(t, err)
	assert.Equal(t, 11*8, g.ValidCount())
	assert.Contains(t, diag.String(), "to 3 sources (2 crowded")
}
