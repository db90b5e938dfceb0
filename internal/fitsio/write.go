package fitsio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	fits "github.com/astrogo/fitsio"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

// Extension names of the frame HDUs following the primary pixel array.
const (
	StdDevExtName = "STDDEV"
	MaskExtName   = "MASK"
)

// newImage builds an image HDU holding data. An empty extname makes a
// primary HDU.
func newImage(bitpix int, res prf.Resolution, extname string, data any) (fits.Image, error) {
	img := fits.NewImage(bitpix, []int{res.Width, res.Height})
	if extname != "" {
		if err := img.Header().Append(fits.Card{Name: "EXTNAME", Value: extname}); err != nil {
			return nil, err
		}
	}
	if err := img.Write(data); err != nil {
		return nil, err
	}
	return img, nil
}

// WriteFrame encodes img in the layout LoadFrame reads: values and
// standard deviations as 64-bit floats in the primary HDU and first
// extension, the mask as bytes in the second extension.
func WriteFrame(w io.Writer, img *prf.Image) error {
	if err := img.Validate(); err != nil {
		return err
	}
	res := img.Resolution
	mask := img.Mask
	if mask == nil {
		mask = make([]uint8, res.Pixels())
	}
	values := append([]float64(nil), img.Values...)
	stddev := append([]float64(nil), img.StdDev...)

	// f.Close closes w when it is an io.Closer; the wrapper keeps the
	// caller's file open.
	bw := bufio.NewWriter(w)
	f, err := fits.Create(bw)
	if err != nil {
		return fmt.Errorf("failed to create FITS stream: %w", err)
	}

	hdus := []struct {
		what    string
		bitpix  int
		extname string
		data    any
	}{
		{"pixel", -64, "", &values},
		{"stddev", -64, StdDevExtName, &stddev},
		{"mask", 8, MaskExtName, &mask},
	}
	for _, h := range hdus {
		hdu, err := newImage(h.bitpix, res, h.extname, h.data)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to encode %s HDU: %w", h.what, err)
		}
		if err := f.Write(hdu); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s HDU: %w", h.what, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to finish FITS stream: %w", err)
	}
	return bw.Flush()
}

// SaveFrame writes img to path, creating parent directories.
func SaveFrame(path string, img *prf.Image) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create frame dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close frame: %w", cerr)
		}
	}()
	return WriteFrame(f, img)
}
