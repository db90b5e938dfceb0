package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

// DefaultConfigPath is the path to the canonical explorer defaults file.
const DefaultConfigPath = "config/explorer.defaults.json"

// BinningConfig requests a binned statistic overlay on slice plots.
type BinningConfig struct {
	Statistic string `json:"statistic"`
	Bins      int    `json:"bins"`
}

// ExplorerConfig is the root configuration of a PRF exploration run.
// Nil fields fall back to the defaults returned by the Get* methods, so
// partial files are safe.
type ExplorerConfig struct {
	// Extraction
	PRFRange         *[4]float64 `json:"prf_range,omitempty"` // width, height, x offset, y offset
	FluxAperture     *float64    `json:"flux_aperture,omitempty"`
	CrowdingDistance *float64    `json:"crowding_distance,omitempty"` // default: 2 * flux_aperture
	ErrorThreshold   *float64    `json:"error_threshold,omitempty"`
	SplitImage       []string    `json:"split_image,omitempty"`

	// Spline
	SplineMethod      *string  `json:"spline_method,omitempty"`
	SplineResolution  *[2]int  `json:"spline_resolution,omitempty"`
	SplineSmoothing   *float64 `json:"spline_smoothing,omitempty"`
	SplinePadFraction *float64 `json:"spline_pad_fraction,omitempty"`
	SplinePadNPoints  *int     `json:"spline_pad_npoints,omitempty"`

	// Plotting
	Slices            []string       `json:"slices,omitempty"`
	ErrorScale        *float64       `json:"error_scale,omitempty"`
	AddBinned         *BinningConfig `json:"add_binned,omitempty"`
	PlotYRange        *[2]float64    `json:"plot_y_range,omitempty"`
	PlotGridNodes     *bool          `json:"plot_grid_nodes,omitempty"`
	SkipExistingPlots *bool          `json:"skip_existing_plots,omitempty"`

	// Catalogue
	Magnitude1ADU *float64 `json:"magnitude_1adu,omitempty"` // when set the flux column holds magnitudes
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyExplorerConfig returns an ExplorerConfig with all fields unset.
func EmptyExplorerConfig() *ExplorerConfig {
	return &ExplorerConfig{}
}

// LoadExplorerConfig loads an ExplorerConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadExplorerConfig(path string) (*ExplorerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExplorerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *ExplorerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/prf/spline/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadExplorerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var splineMethods = map[string]bool{"smoothing": true, "scipy": true, "grid": true, "alglib": true}

var binStatistics = map[string]bool{
	"mean": true, "median": true, "count": true, "sum": true, "min": true, "max": true, "std": true,
}

// Validate checks that the configuration values are valid.
func (c *ExplorerConfig) Validate() error {
	if c.PRFRange != nil {
		r := c.PRFRange
		if r[0] <= 0 || r[1] <= 0 {
			return fmt.Errorf("prf_range width and height must be positive, got %v", *r)
		}
	}

	if c.FluxAperture != nil && *c.FluxAperture <= 0 {
		return fmt.Errorf("flux_aperture must be positive, got %f", *c.FluxAperture)
	}

	if c.CrowdingDistance != nil && *c.CrowdingDistance < 0 {
		return fmt.Errorf("crowding_distance must be non-negative, got %f", *c.CrowdingDistance)
	}

	if c.ErrorThreshold != nil && *c.ErrorThreshold <= 0 {
		return fmt.Errorf("error_threshold must be positive, got %f", *c.ErrorThreshold)
	}

	if c.ErrorScale != nil && *c.ErrorScale <= 0 {
		return fmt.Errorf("error_scale must be positive, got %f", *c.ErrorScale)
	}

	if c.SplineMethod != nil && !splineMethods[strings.ToLower(*c.SplineMethod)] {
		return fmt.Errorf("spline_method must be one of smoothing, grid (or scipy, alglib), got %q", *c.SplineMethod)
	}

	if c.SplineResolution != nil && (c.SplineResolution[0] < 4 || c.SplineResolution[1] < 4) {
		return fmt.Errorf("spline_resolution must be at least 4x4, got %v", *c.SplineResolution)
	}

	if c.SplineSmoothing != nil && *c.SplineSmoothing < 0 {
		return fmt.Errorf("spline_smoothing must be non-negative, got %f", *c.SplineSmoothing)
	}

	if c.SplinePadFraction != nil && *c.SplinePadFraction <= 0 {
		return fmt.Errorf("spline_pad_fraction must be positive, got %f", *c.SplinePadFraction)
	}

	if c.SplinePadNPoints != nil && *c.SplinePadNPoints < 0 {
		return fmt.Errorf("spline_pad_npoints must be non-negative, got %d", *c.SplinePadNPoints)
	}

	for _, s := range c.Slices {
		if _, err := prf.ParseSlice(s); err != nil {
			return fmt.Errorf("invalid slice: %w", err)
		}
	}

	for _, s := range c.SplitImage {
		if _, err := prf.ParseSplit(s); err != nil {
			return fmt.Errorf("invalid split_image: %w", err)
		}
	}

	if b := c.AddBinned; b != nil {
		if !binStatistics[b.Statistic] {
			return fmt.Errorf("add_binned statistic must be one of mean, median, count, sum, min, max, std, got %q", b.Statistic)
		}
		if b.Bins < 1 {
			return fmt.Errorf("add_binned bins must be positive, got %d", b.Bins)
		}
	}

	if c.PlotYRange != nil && !(c.PlotYRange[0] < c.PlotYRange[1]) {
		return fmt.Errorf("plot_y_range must be increasing, got %v", *c.PlotYRange)
	}

	return nil
}

// GetPRFRange returns the extraction rectangle or the default (11, 8, 4, 4).
func (c *ExplorerConfig) GetPRFRange() prf.PRFRange {
	r := [4]float64{11.0, 8.0, 4.0, 4.0}
	if c.PRFRange != nil {
		r = *c.PRFRange
	}
	return prf.PRFRange{Width: r[0], Height: r[1], XOffset: r[2], YOffset: r[3]}
}

// GetFluxAperture returns the flux_aperture value or the default.
func (c *ExplorerConfig) GetFluxAperture() float64 {
	if c.FluxAperture == nil {
		return 4.0
	}
	return *c.FluxAperture
}

// GetCrowdingDistance returns crowding_distance, defaulting to twice the
// flux aperture.
func (c *ExplorerConfig) GetCrowdingDistance() float64 {
	if c.CrowdingDistance == nil {
		return 2.0 * c.GetFluxAperture()
	}
	return *c.CrowdingDistance
}

// GetErrorThreshold returns the error_threshold value or the default.
func (c *ExplorerConfig) GetErrorThreshold() float64 {
	if c.ErrorThreshold == nil {
		return 0.1
	}
	return *c.ErrorThreshold
}

// GetErrorScale returns the error_scale value or the default.
func (c *ExplorerConfig) GetErrorScale() float64 {
	if c.ErrorScale == nil {
		return 0.1
	}
	return *c.ErrorScale
}

// GetSlices returns the parsed slices, defaulting to x = 0 and y = 0 with
// thickness 0.2. Invalid entries are skipped; Validate reports them.
func (c *ExplorerConfig) GetSlices() []prf.SliceSpec {
	texts := c.Slices
	if len(texts) == 0 {
		texts = []string{"x = 0 +- 0.2", "y = 0 +- 0.2"}
	}
	out := make([]prf.SliceSpec, 0, len(texts))
	for _, t := range texts {
		if s, err := prf.ParseSlice(t); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// GetSplits returns the parsed image splits (none by default).
func (c *ExplorerConfig) GetSplits() []prf.Split {
	out := make([]prf.Split, 0, len(c.SplitImage))
	for _, t := range c.SplitImage {
		if s, err := prf.ParseSplit(t); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// GetBinning returns the binned overlay, disabled by default.
func (c *ExplorerConfig) GetBinning() prf.Binning {
	if c.AddBinned == nil {
		return prf.Binning{}
	}
	return prf.Binning{Statistic: c.AddBinned.Statistic, Bins: c.AddBinned.Bins}
}

// GetSplineMethod returns the spline_method value or the default.
func (c *ExplorerConfig) GetSplineMethod() string {
	if c.SplineMethod == nil || *c.SplineMethod == "" {
		return "smoothing"
	}
	return strings.ToLower(*c.SplineMethod)
}

// GetSplineResolution returns the spline_resolution value or the default.
func (c *ExplorerConfig) GetSplineResolution() [2]int {
	if c.SplineResolution == nil {
		return [2]int{20, 20}
	}
	return *c.SplineResolution
}

// GetSplineSmoothing returns the spline_smoothing value or the default.
func (c *ExplorerConfig) GetSplineSmoothing() float64 {
	if c.SplineSmoothing == nil {
		return 1.0
	}
	return *c.SplineSmoothing
}

// GetSplinePadFraction returns the spline_pad_fraction value or the default.
func (c *ExplorerConfig) GetSplinePadFraction() float64 {
	if c.SplinePadFraction == nil {
		return 0.01
	}
	return *c.SplinePadFraction
}

// GetSplinePadNPoints returns the spline_pad_npoints value or the default.
func (c *ExplorerConfig) GetSplinePadNPoints() int {
	if c.SplinePadNPoints == nil {
		return 100
	}
	return *c.SplinePadNPoints
}

// GetPlotYRange returns the fixed y range and whether one was set.
func (c *ExplorerConfig) GetPlotYRange() ([2]float64, bool) {
	if c.PlotYRange == nil {
		return [2]float64{}, false
	}
	return *c.PlotYRange, true
}

// GetPlotGridNodes returns the plot_grid_nodes value or the default.
func (c *ExplorerConfig) GetPlotGridNodes() bool {
	if c.PlotGridNodes == nil {
		return false
	}
	return *c.PlotGridNodes
}

// GetSkipExistingPlots returns the skip_existing_plots value or the default.
func (c *ExplorerConfig) GetSkipExistingPlots() bool {
	if c.SkipExistingPlots == nil {
		return false
	}
	return *c.SkipExistingPlots
}

// GetMagnitude1ADU returns the magnitude of a 1 ADU source and whether the
// catalogue flux column holds magnitudes.
func (c *ExplorerConfig) GetMagnitude1ADU() (float64, bool) {
	if c.Magnitude1ADU == nil {
		return 0, false
	}
	return *c.Magnitude1ADU, true
}
