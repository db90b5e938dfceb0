// Package catalogue reads projected source catalogues with photometry.
//
// Each non-comment line holds whitespace-separated columns:
//
//	ID x y flux bg bg_err bg_npix [enabled]
//
// Positions are image pixels. Lines starting with '#' and blank lines are
// ignored. The optional enabled column accepts 1/0, true/false or T/F.
package catalogue

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

const minColumns = 7

// Options controls how the catalogue columns are interpreted.
type Options struct {
	// Magnitudes marks the flux column as magnitudes, converted to flux
	// with Magnitude1ADU as the zero point.
	Magnitudes    bool
	Magnitude1ADU float64
}

// FluxFromMagnitude returns the flux of a source of the given magnitude.
func FluxFromMagnitude(magnitude, magnitude1ADU float64) float64 {
	return math.Pow(10, (magnitude1ADU-magnitude)/2.5)
}

// InImage reports whether (x, y) projects onto an image of resolution res.
// The bounds follow the one-based pixel convention of the catalogue.
func InImage(x, y float64, res prf.Resolution) bool {
	return x > 0 && x < float64(res.Width)+1 && y > 0 && y < float64(res.Height)+1
}

// Load reads the catalogue at path and keeps the sources inside res.
func Load(path string, res prf.Resolution, opts Options) ([]prf.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	defer f.Close()

	all, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("catalogue %s: %w", path, err)
	}
	kept := Filter(all, res)
	log.Printf("Loaded catalogue %s: %d sources, %d inside the %dx%d image",
		path, len(all), len(kept), res.Width, res.Height)
	return kept, nil
}

// Filter returns the sources projecting onto an image of resolution res.
func Filter(sources []prf.Source, res prf.Resolution) []prf.Source {
	kept := make([]prf.Source, 0, len(sources))
	for _, s := range sources {
		if InImage(s.X, s.Y, res) {
			kept = append(kept, s)
		}
	}
	return kept
}

// Parse reads every source in r.
func Parse(r io.Reader, opts Options) ([]prf.Source, error) {
	var sources []prf.Source
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		s, err := parseLine(strings.Fields(text), opts)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", prf.ErrConfiguration, line, err)
		}
		sources = append(sources, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}
	return sources, nil
}

func parseLine(cols []string, opts Options) (prf.Source, error) {
	if len(cols) < minColumns {
		return prf.Source{}, fmt.Errorf("%d columns, want at least %d", len(cols), minColumns)
	}
	var vals [5]float64
	for i := range vals {
		v, err := strconv.ParseFloat(cols[i+1], 64)
		if err != nil {
			return prf.Source{}, fmt.Errorf("column %d: %w", i+2, err)
		}
		vals[i] = v
	}
	npix, err := strconv.ParseUint(cols[6], 10, 64)
	if err != nil {
		return prf.Source{}, fmt.Errorf("bg_npix: %w", err)
	}
	s := prf.Source{
		ID:               cols[0],
		X:                vals[0],
		Y:                vals[1],
		Flux:             vals[2],
		Background:       vals[3],
		BackgroundErr:    vals[4],
		BackgroundPixels: npix,
		Enabled:          true,
	}
	if opts.Magnitudes {
		s.Flux = FluxFromMagnitude(s.Flux, opts.Magnitude1ADU)
	}
	if len(cols) > minColumns {
		switch strings.ToLower(cols[7]) {
		case "1", "t", "true":
		case "0", "f", "false":
			s.Enabled = false
		default:
			return prf.Source{}, fmt.Errorf("invalid enabled flag %q", cols[7])
		}
	}
	return s, nil
}
