package prf

import (
	"fmt"
	"math"
)

// Source is a catalogue source with the photometry measured for it.
type Source struct {
	ID               string
	X, Y             float64 // Image position (pixels)
	Flux             float64 // Flux normalization of the PRF
	Background       float64 // Local background level (zero point)
	BackgroundErr    float64
	BackgroundPixels uint64
	Enabled          bool
}

// PRFRange describes the extraction rectangle around each source.
// XOffset and YOffset locate the source centre measured from the
// lower-left corner of the rectangle.
type PRFRange struct {
	Width, Height    float64
	XOffset, YOffset float64
}

// Validate checks that the rectangle has positive extent.
func (r PRFRange) Validate() error {
	if !(r.Width > 0) || !(r.Height > 0) {
		return fmt.Errorf("%w: prf range must have positive width and height, got %gx%g",
			ErrConfiguration, r.Width, r.Height)
	}
	if math.IsNaN(r.XOffset) || math.IsNaN(r.YOffset) ||
		math.IsInf(r.XOffset, 0) || math.IsInf(r.YOffset, 0) {
		return fmt.Errorf("%w: prf range offsets must be finite", ErrConfiguration)
	}
	return nil
}

// Bounds returns the rectangle in source-centred offset coordinates.
func (r PRFRange) Bounds() Domain {
	return Domain{
		XMin: -r.XOffset,
		XMax: r.Width - r.XOffset,
		YMin: -r.YOffset,
		YMax: r.Height - r.YOffset,
	}
}

// Resolution is the pixel size of an image. Width counts columns (x) and
// Height counts rows (y); dense grids are stored row-major.
type Resolution struct {
	Width, Height int
}

// Validate checks that both dimensions are positive.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("%w: image resolution must be positive, got %dx%d",
			ErrConfiguration, r.Width, r.Height)
	}
	return nil
}

// Pixels returns Width*Height.
func (r Resolution) Pixels() int { return r.Width * r.Height }

// Index returns the row-major index of pixel (x, y).
func (r Resolution) Index(x, y int) int { return y*r.Width + x }

// Image holds calibrated pixel values with their standard deviations and
// quality mask. All arrays are row-major and share Resolution. Mask may be
// nil; when present it is carried along but never interpreted here.
type Image struct {
	Resolution Resolution
	Values     []float64
	StdDev     []float64
	Mask       []uint8
}

// Validate checks that every array matches the resolution.
func (img *Image) Validate() error {
	if img == nil {
		return fmt.Errorf("%w: nil image", ErrConfiguration)
	}
	if err := img.Resolution.Validate(); err != nil {
		return err
	}
	n := img.Resolution.Pixels()
	if len(img.Values) != n {
		return fmt.Errorf("%w: pixel array has %d values, want %d", ErrConfiguration, len(img.Values), n)
	}
	if len(img.StdDev) != n {
		return fmt.Errorf("%w: stddev array has %d values, want %d", ErrConfiguration, len(img.StdDev), n)
	}
	if img.Mask != nil && len(img.Mask) != n {
		return fmt.Errorf("%w: mask array has %d values, want %d", ErrConfiguration, len(img.Mask), n)
	}
	return nil
}

// Sample is one normalized PRF measurement at an offset from a source
// centre.
type Sample struct {
	XOff, YOff float64
	Value      float64
	Err        float64
}

// Domain is an axis-aligned rectangle in offset coordinates.
type Domain struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Contains reports whether (x, y) lies in the closed rectangle.
func (d Domain) Contains(x, y float64) bool {
	return x >= d.XMin && x <= d.XMax && y >= d.YMin && y <= d.YMax
}

// ContainsStrict reports whether (x, y) lies in the open rectangle.
func (d Domain) ContainsStrict(x, y float64) bool {
	return x > d.XMin && x < d.XMax && y > d.YMin && y < d.YMax
}

// Encloses reports whether o lies strictly inside d on every side.
func (d Domain) Encloses(o Domain) bool {
	return d.XMin < o.XMin && d.XMax > o.XMax && d.YMin < o.YMin && d.YMax > o.YMax
}

func (d Domain) String() string {
	return fmt.Sprintf("[%g, %g]x[%g, %g]", d.XMin, d.XMax, d.YMin, d.YMax)
}
