package prf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Region is a half-open pixel rectangle [XMin, XMax) x [YMin, YMax).
type Region struct {
	XMin, XMax int
	YMin, YMax int
}

// FullRegion covers the whole image.
func FullRegion(res Resolution) Region {
	return Region{XMax: res.Width, YMax: res.Height}
}

// Empty reports whether the region contains no pixels.
func (r Region) Empty() bool { return r.XMax <= r.XMin || r.YMax <= r.YMin }

// Pixels returns the number of pixels in the region.
func (r Region) Pixels() int {
	if r.Empty() {
		return 0
	}
	return (r.XMax - r.XMin) * (r.YMax - r.YMin)
}

// Within checks that the region lies inside an image of resolution res.
func (r Region) Within(res Resolution) error {
	if r.XMin < 0 || r.YMin < 0 || r.XMax > res.Width || r.YMax > res.Height || r.XMax < r.XMin || r.YMax < r.YMin {
		return fmt.Errorf("%w: region %v outside %dx%d image", ErrConfiguration, r, res.Width, res.Height)
	}
	return nil
}

// Center returns the centre of the region in pixel coordinates.
func (r Region) Center() (x, y float64) {
	return float64(r.XMin+r.XMax) / 2.0, float64(r.YMin+r.YMax) / 2.0
}

// Label names the region by its centre.
func (r Region) Label() string {
	x, y := r.Center()
	return fmt.Sprintf("(%f, %f)", x, y)
}

func (r Region) String() string {
	return fmt.Sprintf("x[%d:%d] y[%d:%d]", r.XMin, r.XMax, r.YMin, r.YMax)
}

// Split is a boundary along one image axis.
type Split struct {
	Axis  byte // 'x' or 'y'
	Value int
}

func (s Split) String() string { return fmt.Sprintf("%c=%d", s.Axis, s.Value) }

// ParseSplit parses a split of the form "x=1024" (spaces allowed).
func ParseSplit(text string) (Split, error) {
	axis, value, ok := strings.Cut(text, "=")
	if !ok {
		return Split{}, fmt.Errorf("%w: image split %q must look like x=<value> or y=<value>", ErrConfiguration, text)
	}
	axis = strings.TrimSpace(axis)
	if axis != "x" && axis != "y" {
		return Split{}, fmt.Errorf("%w: image split axis must be x or y, got %q", ErrConfiguration, axis)
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return Split{}, fmt.Errorf("%w: invalid image split value in %q: %v", ErrConfiguration, text, err)
	}
	return Split{Axis: axis[0], Value: v}, nil
}

// Regions partitions the image along the given splits. Each axis is cut
// at its sorted split values; the result is the cross product of the x and
// y pieces, x outer, y inner. Splits on or outside the image edges, and
// repeated splits, are ignored.
func Regions(res Resolution, splits []Split) []Region {
	bounds := map[byte][]int{
		'x': {0, res.Width},
		'y': {0, res.Height},
	}
	sorted := append([]Split(nil), splits...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Axis != sorted[j].Axis {
			return sorted[i].Axis < sorted[j].Axis
		}
		return sorted[i].Value < sorted[j].Value
	})
	for _, s := range sorted {
		b, ok := bounds[s.Axis]
		if !ok {
			continue
		}
		limit := b[len(b)-1]
		if s.Value <= b[len(b)-2] || s.Value >= limit {
			continue
		}
		bounds[s.Axis] = append(b[:len(b)-1], s.Value, limit)
	}

	xs, ys := bounds['x'], bounds['y']
	regions := make([]Region, 0, (len(xs)-1)*(len(ys)-1))
	for i := 0; i+1 < len(xs); i++ {
		for j := 0; j+1 < len(ys); j++ {
			regions = append(regions, Region{XMin: xs[i], XMax: xs[i+1], YMin: ys[j], YMax: ys[j+1]})
		}
	}
	return regions
}
