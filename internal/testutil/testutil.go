// Package testutil builds synthetic frames and catalogues for tests.
//
// Frames are rendered from an analytic PRF so that extracted samples can be
// compared against known values.
package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/prf-explorer/internal/fitsio"
	"github.com/banshee-data/prf-explorer/internal/prf"
)

// PRFFunc is an analytic PRF evaluated at an offset from the source centre.
type PRFFunc func(dx, dy float64) float64

// Gaussian returns a unit-integral circular Gaussian PRF.
func Gaussian(sigma float64) PRFFunc {
	norm := 1 / (2 * math.Pi * sigma * sigma)
	return func(dx, dy float64) float64 {
		return norm * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
	}
}

// Frame renders sources onto a frame of resolution res. Each pixel holds
// the first source's background plus, for every source, flux times f at
// the pixel centre offset. The standard deviation is constant.
func Frame(res prf.Resolution, sources []prf.Source, f PRFFunc, stddev float64) *prf.Image {
	n := res.Pixels()
	img := &prf.Image{
		Resolution: res,
		Values:     make([]float64, n),
		StdDev:     make([]float64, n),
		Mask:       make([]uint8, n),
	}
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			i := res.Index(x, y)
			img.StdDev[i] = stddev
			for _, s := range sources {
				img.Values[i] += s.Flux * f(float64(x)-s.X+0.5, float64(y)-s.Y+0.5)
			}
		}
	}
	if len(sources) > 0 {
		bg := sources[0].Background
		for i := range img.Values {
			img.Values[i] += bg
		}
	}
	return img
}

// Source returns an enabled source with background error and pixel count
// filled in.
func Source(id string, x, y, flux, bg float64) prf.Source {
	return prf.Source{
		ID:               id,
		X:                x,
		Y:                y,
		Flux:             flux,
		Background:       bg,
		BackgroundErr:    0.1,
		BackgroundPixels: 50,
		Enabled:          true,
	}
}

// Grid returns sources on a regular lattice with the given spacing, all
// sharing flux and background. Sub-pixel phases vary with the index so the
// extracted offsets cover the PRF range.
func Grid(res prf.Resolution, spacing int, flux, bg float64) []prf.Source {
	var sources []prf.Source
	k := 0
	for y := spacing / 2; y < res.Height; y += spacing {
		for x := spacing / 2; x < res.Width; x += spacing {
			phase := float64(k%7) / 7
			sources = append(sources, Source(fmt.Sprintf("%05d", k),
				float64(x)+phase, float64(y)+float64((k*3)%5)/5, flux, bg))
			k++
		}
	}
	return sources
}

// WriteCatalogue writes sources in catalogue format to a file under
// t.TempDir and returns its path.
func WriteCatalogue(t testing.TB, sources []prf.Source) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("# ID x y flux bg bg_err bg_npix enabled\n")
	for _, s := range sources {
		enabled := 0
		if s.Enabled {
			enabled = 1
		}
		fmt.Fprintf(&b, "%s %.6f %.6f %.6f %.6f %.6f %d %d\n",
			s.ID, s.X, s.Y, s.Flux, s.Background, s.BackgroundErr, s.BackgroundPixels, enabled)
	}
	path := filepath.Join(t.TempDir(), "catalogue.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("failed to write catalogue: %v", err)
	}
	return path
}

// WriteFrame saves img as a FITS frame under t.TempDir and returns its
// path.
func WriteFrame(t testing.TB, img *prf.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.fits")
	if err := fitsio.SaveFrame(path, img); err != nil {
		t.Fatalf("failed to write frame: %v", err)
	}
	return path
}
