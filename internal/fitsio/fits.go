// Package fitsio reads and writes calibrated image frames stored as FITS
// files on top of github.com/astrogo/fitsio.
//
// Only image HDUs carry data here. Pixel arrays are converted to float64
// with BSCALE and BZERO applied.
package fitsio

import (
	"errors"
	"fmt"
	"io"

	fits "github.com/astrogo/fitsio"
)

// BlockSize is the FITS logical record length.
const BlockSize = 2880

// ErrNotFITS is returned for streams that do not decode as FITS.
var ErrNotFITS = errors.New("not a FITS stream")

// HDU is one decoded header/data unit.
type HDU struct {
	Header *fits.Header
	Bitpix int
	// Naxis holds the axis lengths, fastest varying first.
	Naxis []int
	// Data holds the scaled pixel values in file order.
	Data []float64
}

// Empty reports whether the HDU carries no data array.
func (u *HDU) Empty() bool { return len(u.Naxis) == 0 }

// Is2D reports whether the HDU holds a two dimensional image.
func (u *HDU) Is2D() bool { return len(u.Naxis) == 2 }

// Float returns the numeric value of key, or def when it is absent.
func (u *HDU) Float(key string, def float64) (float64, error) {
	return headerFloat(u.Header, key, def)
}

// Read decodes every HDU in r. Table extensions are kept without data so
// indices match the file layout.
func Read(r io.Reader) ([]*HDU, error) {
	f, err := fits.Open(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFITS, err)
	}
	defer f.Close()

	var hdus []*HDU
	for i, h := range f.HDUs() {
		hdr := h.Header()
		u := &HDU{Header: hdr, Bitpix: hdr.Bitpix()}
		img, ok := h.(fits.Image)
		if !ok || h.Type() != fits.IMAGE_HDU {
			hdus = append(hdus, u)
			continue
		}
		u.Naxis = append([]int(nil), hdr.Axes()...)
		if !u.Empty() {
			if u.Data, err = readImage(img, u.Naxis); err != nil {
				return nil, fmt.Errorf("hdu %d: %w", i, err)
			}
		}
		hdus = append(hdus, u)
	}
	if len(hdus) == 0 {
		return nil, ErrNotFITS
	}
	return hdus, nil
}

type pixel interface {
	~uint8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// readAs reads img into a slice of the Go type matching its BITPIX.
func readAs[T pixel](img fits.Image, n int) ([]float64, error) {
	raw := make([]T, n)
	if err := img.Read(&raw); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i, v := range raw {
		out[i] = float64(v)
	}
	return out, nil
}

func readImage(img fits.Image, naxis []int) ([]float64, error) {
	n := 1
	for _, v := range naxis {
		n *= v
	}

	var data []float64
	var err error
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 8:
		data, err = readAs[uint8](img, n)
	case 16:
		data, err = readAs[int16](img, n)
	case 32:
		data, err = readAs[int32](img, n)
	case 64:
		data, err = readAs[int64](img, n)
	case -32:
		data, err = readAs[float32](img, n)
	case -64:
		data, err = readAs[float64](img, n)
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pixels: %w", err)
	}

	bscale, err := headerFloat(img.Header(), "BSCALE", 1)
	if err != nil {
		return nil, err
	}
	bzero, err := headerFloat(img.Header(), "BZERO", 0)
	if err != nil {
		return nil, err
	}
	if bscale != 1 || bzero != 0 {
		for i, v := range data {
			data[i] = bzero + bscale*v
		}
	}
	return data, nil
}

func headerFloat(hdr *fits.Header, key string, def float64) (float64, error) {
	card := hdr.Get(key)
	if card == nil {
		return def, nil
	}
	switch v := card.Value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("invalid %s value %v", key, card.Value)
}
