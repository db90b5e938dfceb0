package fitsio

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

func TestWriteFrame_RoundTrip(t *testing.T) {
	res := prf.Resolution{Width: 5, Height: 3}
	img := &prf.Image{
		Resolution: res,
		Values:     make([]float64, res.Pixels()),
		StdDev:     make([]float64, res.Pixels()),
		Mask:       make([]uint8, res.Pixels()),
	}
	for i := range img.Values {
		img.Values[i] = float64(i) * 1.5
		img.StdDev[i] = 0.25
		img.Mask[i] = uint8(i % 3)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, img))
	assert.Zero(t, buf.Len()%BlockSize)

	hdus, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, hdus, FrameHDUs)
	assert.Equal(t, 8, hdus[2].Bitpix)
	name := hdus[2].Header.Get("EXTNAME")
	require.NotNil(t, name)
	assert.Equal(t, MaskExtName, name.Value)

	got, err := FrameFromHDUs(hdus)
	require.NoError(t, err)
	if diff := cmp.Diff(img, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFrame_NilMask(t *testing.T) {
	res := prf.Resolution{Width: 2, Height: 2}
	img := &prf.Image{Resolution: res, Values: []float64{1, 2, 3, 4}, StdDev: []float64{1, 1, 1, 1}}

	path := filepath.Join(t.TempDir(), "sub", "frame.fits")
	require.NoError(t, SaveFrame(path, img))

	got, err := LoadFrame(path)
	require.NoError(t, err)
	assert.Equal(t, img.Values, got.Values)
	assert.Equal(t, []uint8{0, 0, 0, 0}, got.Mask)
}

func TestWriteFrame_Invalid(t *testing.T) {
	img := &prf.Image{Resolution: prf.Resolution{Width: 2, Height: 2}, Values: []float64{1}}
	assert.ErrorIs(t, WriteFrame(&bytes.Buffer{}, img), prf.ErrConfiguration)
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestWriteFrame_LeavesWriterOpen(t *testing.T) {
	res := prf.Resolution{Width: 2, Height: 1}
	img := &prf.Image{Resolution: res, Values: []float64{1, 2}, StdDev: []float64{1, 1}, Mask: []uint8{0, 1}}

	var w closeRecorder
	require.NoError(t, WriteFrame(&w, img))
	assert.False(t, w.closed)
	assert.NotZero(t, w.Len())
}
