package fitsio

import (
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

// FrameHDUs is the number of consecutive image HDUs making up a
// calibrated frame: pixel values, standard deviations and quality mask.
const FrameHDUs = 3

// LoadFrame reads a calibrated frame from path.
func LoadFrame(path string) (*prf.Image, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".fz") {
		return nil, fmt.Errorf("%w: tile-compressed frame %s is not supported; uncompress it first",
			prf.ErrConfiguration, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()

	hdus, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame %s: %w", path, err)
	}
	img, err := FrameFromHDUs(hdus)
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", path, err)
	}
	log.Printf("Loaded frame %s: %dx%d", path, img.Resolution.Width, img.Resolution.Height)
	return img, nil
}

// FrameFromHDUs assembles an Image from decoded HDUs. The pixel values
// live in the primary HDU, or in the first extension when the primary is
// empty; standard deviations and mask follow in the next two HDUs.
func FrameFromHDUs(hdus []*HDU) (*prf.Image, error) {
	first := 0
	if len(hdus) > 0 && hdus[0].Empty() {
		first = 1
	}
	if len(hdus) < first+FrameHDUs {
		return nil, fmt.Errorf("%w: frame has %d HDUs, need %d image HDUs from index %d",
			prf.ErrConfiguration, len(hdus), FrameHDUs, first)
	}

	pixels := hdus[first]
	if !pixels.Is2D() {
		return nil, fmt.Errorf("%w: pixel HDU %d has %d axes, want 2", prf.ErrConfiguration, first, len(pixels.Naxis))
	}
	res := prf.Resolution{Width: pixels.Naxis[0], Height: pixels.Naxis[1]}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	for i := first + 1; i < first+FrameHDUs; i++ {
		u := hdus[i]
		if !u.Is2D() || u.Naxis[0] != res.Width || u.Naxis[1] != res.Height {
			return nil, fmt.Errorf("%w: HDU %d shape %v does not match pixel shape %dx%d",
				prf.ErrConfiguration, i, u.Naxis, res.Width, res.Height)
		}
	}

	mask := make([]uint8, res.Pixels())
	for i, v := range hdus[first+2].Data {
		if math.IsNaN(v) || v < 0 || v > math.MaxUint8 {
			return nil, fmt.Errorf("%w: mask value %g at index %d is not a byte", prf.ErrConfiguration, v, i)
		}
		mask[i] = uint8(v)
	}

	img := &prf.Image{
		Resolution: res,
		Values:     pixels.Data,
		StdDev:     hdus[first+1].Data,
		Mask:       mask,
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}
