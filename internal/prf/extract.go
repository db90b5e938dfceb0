package prf

import (
	"fmt"
	"math"
)

func checkThreshold(errorThreshold float64) error {
	if math.IsNaN(errorThreshold) || errorThreshold <= 0 {
		return fmt.Errorf("%w: error threshold must be positive, got %g", ErrConfiguration, errorThreshold)
	}
	return nil
}

// appendSample normalizes one pixel and appends it when both the value
// and its error are finite and the error is below threshold.
func appendSample(dst []Sample, value, stddev float64, c *Cell, errorThreshold float64) []Sample {
	v := (value - c.ZeroPoint) / c.Norm
	e := stddev / c.Norm
	if math.IsNaN(v) || math.IsInf(v, 0) || math.IsNaN(e) || math.IsInf(e, 0) {
		return dst
	}
	if !(e < errorThreshold) {
		return dst
	}
	return append(dst, Sample{XOff: c.XOff, YOff: c.YOff, Value: v, Err: e})
}

// ExtractPatch converts a flattened patch of pixel values, their standard
// deviations and the matching assignment cells into PRF samples. Output
// order follows the input order. An empty result is not an error.
func ExtractPatch(values, stddev []float64, cells []Cell, errorThreshold float64) ([]Sample, error) {
	if len(values) != len(stddev) || len(values) != len(cells) {
		return nil, fmt.Errorf("%w: patch shapes differ (values %d, stddev %d, cells %d)",
			ErrConfiguration, len(values), len(stddev), len(cells))
	}
	if err := checkThreshold(errorThreshold); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, len(values))
	for i := range values {
		samples = appendSample(samples, values[i], stddev[i], &cells[i], errorThreshold)
	}
	return samples, nil
}

// Extract walks region of img row by row and returns the PRF samples of
// its assigned pixels. The grid must have been built for the same image
// resolution.
func Extract(img *Image, grid *AssignmentGrid, region Region, errorThreshold float64) ([]Sample, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if grid == nil || grid.Resolution != img.Resolution || len(grid.Cells) != img.Resolution.Pixels() {
		return nil, fmt.Errorf("%w: assignment grid does not match %dx%d image",
			ErrConfiguration, img.Resolution.Width, img.Resolution.Height)
	}
	if err := region.Within(img.Resolution); err != nil {
		return nil, err
	}
	if err := checkThreshold(errorThreshold); err != nil {
		return nil, err
	}

	samples := make([]Sample, 0, region.Pixels()/4)
	for y := region.YMin; y < region.YMax; y++ {
		for x := region.XMin; x < region.XMax; x++ {
			i := img.Resolution.Index(x, y)
			if !grid.Cells[i].Valid() {
				continue
			}
			samples = appendSample(samples, img.Values[i], img.StdDev[i], &grid.Cells[i], errorThreshold)
		}
	}

	Diagf("extracted %d samples from region %v (threshold %g)", len(samples), region, errorThreshold)
	return samples, nil
}
