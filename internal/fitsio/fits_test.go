package fitsio

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	fits "github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

type testHDU struct {
	bitpix int
	naxis  []int
	cards  []fits.Card
	data   []float64
}

// typed converts data to the slice type the writer expects for bitpix.
func typed[T pixel](data []float64) *[]T {
	out := make([]T, len(data))
	for i, v := range data {
		out[i] = T(v)
	}
	return &out
}

func (h testHDU) image(t *testing.T, ext int) fits.Image {
	t.Helper()
	img := fits.NewImage(h.bitpix, h.naxis)
	if ext > 0 {
		require.NoError(t, img.Header().Append(fits.Card{Name: "EXTNAME", Value: fmt.Sprintf("EXT%d", ext)}))
	}
	require.NoError(t, img.Header().Append(h.cards...))
	if len(h.naxis) == 0 {
		return img
	}
	var data any
	switch h.bitpix {
	case 8:
		data = typed[uint8](h.data)
	case 16:
		data = typed[int16](h.data)
	case 32:
		data = typed[int32](h.data)
	case 64:
		data = typed[int64](h.data)
	case -32:
		data = typed[float32](h.data)
	case -64:
		data = typed[float64](h.data)
	default:
		t.Fatalf("bitpix %d", h.bitpix)
	}
	require.NoError(t, img.Write(data))
	return img
}

// encodeFile writes hdus as a FITS stream; the first one is the primary.
func encodeFile(t *testing.T, hdus ...testHDU) []byte {
	t.Helper()
	var buf bytes.Buffer
	f, err := fits.Create(&buf)
	require.NoError(t, err)
	for i, h := range hdus {
		require.NoError(t, f.Write(h.image(t, i)))
	}
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestRead_AllBitpix(t *testing.T) {
	values := []float64{0, 1, 2, 100, 127, 3}
	for _, bitpix := range []int{8, 16, 32, 64, -32, -64} {
		t.Run(fmt.Sprintf("bitpix_%d", bitpix), func(t *testing.T) {
			raw := encodeFile(t, testHDU{bitpix: bitpix, naxis: []int{3, 2}, data: values})
			assert.Zero(t, len(raw)%BlockSize)

			hdus, err := Read(bytes.NewReader(raw))
			require.NoError(t, err)
			require.Len(t, hdus, 1)
			assert.Equal(t, bitpix, hdus[0].Bitpix)
			assert.Equal(t, []int{3, 2}, hdus[0].Naxis)
			assert.Equal(t, values, hdus[0].Data)
		})
	}
}

func TestRead_ScaleAndZero(t *testing.T) {
	raw := encodeFile(t, testHDU{
		bitpix: 16,
		naxis:  []int{2, 1},
		cards:  []fits.Card{{Name: "BSCALE", Value: 2.0}, {Name: "BZERO", Value: 100}},
		data:   []float64{-1, 5},
	})
	hdus, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, []float64{98, 110}, hdus[0].Data)
}

func TestRead_HeaderValues(t *testing.T) {
	raw := encodeFile(t, testHDU{
		bitpix: 8,
		cards: []fits.Card{
			{Name: "OBJECT", Value: "HAT-P field", Comment: "the target"},
			{Name: "EXPTIME", Value: 15.5, Comment: "seconds"},
		},
	})
	hdus, err := Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, hdus, 1)
	u := hdus[0]
	assert.True(t, u.Empty())
	assert.Nil(t, u.Data)

	obj := u.Header.Get("OBJECT")
	require.NotNil(t, obj)
	assert.Equal(t, "HAT-P field", obj.Value)

	exp, err := u.Float("EXPTIME", 0)
	require.NoError(t, err)
	assert.Equal(t, 15.5, exp)

	def, err := u.Float("GAIN", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, def)

	_, err = u.Float("OBJECT", 0)
	assert.ErrorContains(t, err, "invalid OBJECT")
}

func TestRead_Errors(t *testing.T) {
	t.Run("not fits", func(t *testing.T) {
		_, err := Read(bytes.NewReader(bytes.Repeat([]byte("not a fits card "), BlockSize/16)))
		assert.ErrorIs(t, err, ErrNotFITS)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := Read(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrNotFITS)
	})
	t.Run("truncated data", func(t *testing.T) {
		raw := encodeFile(t, testHDU{bitpix: -64, naxis: []int{40, 40}, data: make([]float64, 1600)})
		_, err := Read(bytes.NewReader(raw[:BlockSize+10]))
		assert.Error(t, err)
	})
}

func frameHDUs(emptyPrimary bool) []testHDU {
	values := []float64{1, 2, 3, 4, 5, 6}
	stddev := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	mask := []float64{0, 0, 1, 0, 2, 0}
	hdus := []testHDU{
		{bitpix: -64, naxis: []int{3, 2}, data: values},
		{bitpix: -32, naxis: []int{3, 2}, data: stddev},
		{bitpix: 8, naxis: []int{3, 2}, data: mask},
	}
	if emptyPrimary {
		hdus = append([]testHDU{{bitpix: 8}}, hdus...)
	}
	return hdus
}

func writeFrameFile(t *testing.T, path string, hdus ...testHDU) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, encodeFile(t, hdus...), 0644))
}

func TestLoadFrame(t *testing.T) {
	for _, emptyPrimary := range []bool{false, true} {
		t.Run(fmt.Sprintf("empty_primary_%v", emptyPrimary), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "frame.fits")
			writeFrameFile(t, path, frameHDUs(emptyPrimary)...)

			img, err := LoadFrame(path)
			require.NoError(t, err)
			assert.Equal(t, prf.Resolution{Width: 3, Height: 2}, img.Resolution)
			assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, img.Values)
			assert.Equal(t, []uint8{0, 0, 1, 0, 2, 0}, img.Mask)
			require.Len(t, img.StdDev, 6)
			for i, want := range []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6} {
				assert.InDelta(t, want, img.StdDev[i], 1e-6)
			}
			// pixel (x=2, y=1) is the last value of the second row
			assert.Equal(t, 6.0, img.Values[img.Resolution.Index(2, 1)])
		})
	}
}

func TestLoadFrame_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("compressed", func(t *testing.T) {
		_, err := LoadFrame(filepath.Join(dir, "frame.fits.fz"))
		assert.ErrorIs(t, err, prf.ErrConfiguration)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadFrame(filepath.Join(dir, "missing.fits"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("too few hdus", func(t *testing.T) {
		path := filepath.Join(dir, "short.fits")
		writeFrameFile(t, path, frameHDUs(false)[:2]...)
		_, err := LoadFrame(path)
		assert.ErrorIs(t, err, prf.ErrConfiguration)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		hdus := frameHDUs(false)
		hdus[1].naxis = []int{2, 3}
		path := filepath.Join(dir, "mismatch.fits")
		writeFrameFile(t, path, hdus...)
		_, err := LoadFrame(path)
		assert.ErrorIs(t, err, prf.ErrConfiguration)
	})

	t.Run("mask out of range", func(t *testing.T) {
		hdus := frameHDUs(false)
		hdus[2].bitpix = -64
		hdus[2].data = []float64{0, 0, math.NaN(), 0, 0, 0}
		path := filepath.Join(dir, "mask.fits")
		writeFrameFile(t, path, hdus...)
		_, err := LoadFrame(path)
		assert.ErrorIs(t, err, prf.ErrConfiguration)
	})
}
