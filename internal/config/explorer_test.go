package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/prf-explorer/internal/prf"
)

func TestEmptyExplorerConfigDefaults(t *testing.T) {
	cfg := EmptyExplorerConfig()

	want := prf.PRFRange{Width: 11, Height: 8, XOffset: 4, YOffset: 4}
	if got := cfg.GetPRFRange(); got != want {
		t.Errorf("GetPRFRange() = %+v, want %+v", got, want)
	}
	if cfg.GetFluxAperture() != 4.0 {
		t.Errorf("GetFluxAperture() = %f, want 4", cfg.GetFluxAperture())
	}
	if cfg.GetCrowdingDistance() != 8.0 {
		t.Errorf("GetCrowdingDistance() = %f, want 2 * flux_aperture", cfg.GetCrowdingDistance())
	}
	if cfg.GetErrorThreshold() != 0.1 {
		t.Errorf("GetErrorThreshold() = %f, want 0.1", cfg.GetErrorThreshold())
	}
	if cfg.GetErrorScale() != 0.1 {
		t.Errorf("GetErrorScale() = %f, want 0.1", cfg.GetErrorScale())
	}
	if cfg.GetSplineMethod() != "smoothing" {
		t.Errorf("GetSplineMethod() = %q, want smoothing", cfg.GetSplineMethod())
	}
	if cfg.GetSplineResolution() != [2]int{20, 20} {
		t.Errorf("GetSplineResolution() = %v, want [20 20]", cfg.GetSplineResolution())
	}
	if cfg.GetSplineSmoothing() != 1.0 {
		t.Errorf("GetSplineSmoothing() = %f, want 1", cfg.GetSplineSmoothing())
	}
	if cfg.GetSplinePadFraction() != 0.01 {
		t.Errorf("GetSplinePadFraction() = %f, want 0.01", cfg.GetSplinePadFraction())
	}
	if cfg.GetSplinePadNPoints() != 100 {
		t.Errorf("GetSplinePadNPoints() = %d, want 100", cfg.GetSplinePadNPoints())
	}
	if slices := cfg.GetSlices(); len(slices) != 2 || slices[0].Axis != 'x' || slices[1].Axis != 'y' {
		t.Errorf("GetSlices() = %v, want x = 0 and y = 0", slices)
	}
	if len(cfg.GetSplits()) != 0 {
		t.Errorf("GetSplits() = %v, want none", cfg.GetSplits())
	}
	if cfg.GetBinning().Enabled() {
		t.Errorf("GetBinning() = %+v, want disabled", cfg.GetBinning())
	}
	if _, ok := cfg.GetPlotYRange(); ok {
		t.Error("GetPlotYRange() set, want unset")
	}
	if cfg.GetPlotGridNodes() || cfg.GetSkipExistingPlots() {
		t.Error("plot flags should default to false")
	}
	if _, ok := cfg.GetMagnitude1ADU(); ok {
		t.Error("GetMagnitude1ADU() set, want unset")
	}
}

func TestDefaultsFileMatchesBuiltIn(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	empty := EmptyExplorerConfig()

	if cfg.GetPRFRange() != empty.GetPRFRange() {
		t.Errorf("defaults file prf_range %+v differs from built-in %+v", cfg.GetPRFRange(), empty.GetPRFRange())
	}
	if cfg.GetCrowdingDistance() != empty.GetCrowdingDistance() {
		t.Errorf("defaults file crowding distance %f differs from built-in %f", cfg.GetCrowdingDistance(), empty.GetCrowdingDistance())
	}
	if cfg.GetSplineMethod() != empty.GetSplineMethod() {
		t.Errorf("defaults file spline_method %q differs from built-in %q", cfg.GetSplineMethod(), empty.GetSplineMethod())
	}
	if cfg.GetSplinePadNPoints() != empty.GetSplinePadNPoints() {
		t.Errorf("defaults file spline_pad_npoints %d differs from built-in %d", cfg.GetSplinePadNPoints(), empty.GetSplinePadNPoints())
	}
	if len(cfg.GetSlices()) != len(empty.GetSlices()) {
		t.Errorf("defaults file has %d slices, built-in %d", len(cfg.GetSlices()), len(empty.GetSlices()))
	}
}

func TestLoadExplorerConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "explorer.json")

	testJSON := `{
  "prf_range": [9, 9, 4.5, 4.5],
  "flux_aperture": 2.5,
  "error_threshold": 0.05,
  "split_image": ["x=1024", "y=1024"],
  "spline_method": "Smoothing",
  "spline_smoothing": 0.5,
  "slices": ["x = 0.5 +- 0.1"],
  "add_binned": {"statistic": "median", "bins": 12},
  "plot_y_range": [-0.01, 0.2],
  "magnitude_1adu": 25.3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadExplorerConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if got := cfg.GetPRFRange(); got.Width != 9 || got.XOffset != 4.5 {
		t.Errorf("GetPRFRange() = %+v", got)
	}
	if cfg.GetCrowdingDistance() != 5.0 {
		t.Errorf("GetCrowdingDistance() = %f, want 5", cfg.GetCrowdingDistance())
	}
	if cfg.GetErrorThreshold() != 0.05 {
		t.Errorf("GetErrorThreshold() = %f, want 0.05", cfg.GetErrorThreshold())
	}
	if cfg.GetSplineMethod() != "smoothing" {
		t.Errorf("GetSplineMethod() = %q, want smoothing", cfg.GetSplineMethod())
	}
	if splits := cfg.GetSplits(); len(splits) != 2 || splits[1] != (prf.Split{Axis: 'y', Value: 1024}) {
		t.Errorf("GetSplits() = %v", splits)
	}
	if slices := cfg.GetSlices(); len(slices) != 1 || slices[0].Offset != 0.5 || slices[0].Thickness != 0.1 {
		t.Errorf("GetSlices() = %v", slices)
	}
	if b := cfg.GetBinning(); b.Statistic != "median" || b.Bins != 12 {
		t.Errorf("GetBinning() = %+v", b)
	}
	if yr, ok := cfg.GetPlotYRange(); !ok || yr != [2]float64{-0.01, 0.2} {
		t.Errorf("GetPlotYRange() = %v, %v", yr, ok)
	}
	if m, ok := cfg.GetMagnitude1ADU(); !ok || m != 25.3 {
		t.Errorf("GetMagnitude1ADU() = %v, %v", m, ok)
	}
	// Unset keys keep their defaults.
	if cfg.GetSplinePadNPoints() != 100 {
		t.Errorf("GetSplinePadNPoints() = %d, want default 100", cfg.GetSplinePadNPoints())
	}
}

func TestLoadExplorerConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, err := LoadExplorerConfig(filepath.Join(tmpDir, "missing.json")); err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}

	yamlPath := filepath.Join(tmpDir, "explorer.yaml")
	os.WriteFile(yamlPath, []byte("{}"), 0644)
	if _, err := LoadExplorerConfig(yamlPath); err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}

	invalidPath := filepath.Join(tmpDir, "invalid.json")
	os.WriteFile(invalidPath, []byte(`{"error_threshold": "high"`), 0644)
	if _, err := LoadExplorerConfig(invalidPath); err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}

	badValuePath := filepath.Join(tmpDir, "bad.json")
	os.WriteFile(badValuePath, []byte(`{"error_threshold": -1}`), 0644)
	if _, err := LoadExplorerConfig(badValuePath); err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected validation error, got %v", err)
	}

	bigPath := filepath.Join(tmpDir, "big.json")
	os.WriteFile(bigPath, []byte(`{"slices": ["`+strings.Repeat(" ", 1024*1024)+`"]}`), 0644)
	if _, err := LoadExplorerConfig(bigPath); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected size error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExplorerConfig
		wantErr string
	}{
		{name: "empty", cfg: ExplorerConfig{}},
		{name: "full", cfg: ExplorerConfig{
			PRFRange:          &[4]float64{11, 8, 4, 4},
			FluxAperture:      ptrFloat64(3),
			CrowdingDistance:  ptrFloat64(0),
			SplineMethod:      ptrString("alglib"),
			SplineResolution:  &[2]int{4, 30},
			SplineSmoothing:   ptrFloat64(0),
			SplinePadNPoints:  ptrInt(0),
			PlotGridNodes:     ptrBool(true),
			SkipExistingPlots: ptrBool(true),
		}},
		{name: "prf range", cfg: ExplorerConfig{PRFRange: &[4]float64{0, 8, 4, 4}}, wantErr: "prf_range"},
		{name: "flux aperture", cfg: ExplorerConfig{FluxAperture: ptrFloat64(0)}, wantErr: "flux_aperture"},
		{name: "crowding", cfg: ExplorerConfig{CrowdingDistance: ptrFloat64(-1)}, wantErr: "crowding_distance"},
		{name: "threshold", cfg: ExplorerConfig{ErrorThreshold: ptrFloat64(0)}, wantErr: "error_threshold"},
		{name: "error scale", cfg: ExplorerConfig{ErrorScale: ptrFloat64(-0.1)}, wantErr: "error_scale"},
		{name: "method", cfg: ExplorerConfig{SplineMethod: ptrString("rbf")}, wantErr: "spline_method"},
		{name: "resolution", cfg: ExplorerConfig{SplineResolution: &[2]int{3, 20}}, wantErr: "spline_resolution"},
		{name: "smoothing", cfg: ExplorerConfig{SplineSmoothing: ptrFloat64(-1)}, wantErr: "spline_smoothing"},
		{name: "pad fraction", cfg: ExplorerConfig{SplinePadFraction: ptrFloat64(0)}, wantErr: "spline_pad_fraction"},
		{name: "pad points", cfg: ExplorerConfig{SplinePadNPoints: ptrInt(-1)}, wantErr: "spline_pad_npoints"},
		{name: "slice", cfg: ExplorerConfig{Slices: []string{"x = 0"}}, wantErr: "invalid slice"},
		{name: "split", cfg: ExplorerConfig{SplitImage: []string{"q=1"}}, wantErr: "invalid split_image"},
		{name: "statistic", cfg: ExplorerConfig{AddBinned: &BinningConfig{Statistic: "mode", Bins: 3}}, wantErr: "add_binned statistic"},
		{name: "bins", cfg: ExplorerConfig{AddBinned: &BinningConfig{Statistic: "mean"}}, wantErr: "add_binned bins"},
		{name: "y range", cfg: ExplorerConfig{PlotYRange: &[2]float64{1, 1}}, wantErr: "plot_y_range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestGetSlicesSkipsInvalid(t *testing.T) {
	cfg := &ExplorerConfig{Slices: []string{"x = 1 +- 0.5", "bogus"}}
	if slices := cfg.GetSlices(); len(slices) != 1 || slices[0].Offset != 1 {
		t.Errorf("GetSlices() = %v, want one slice at 1", slices)
	}
	cfg = &ExplorerConfig{SplineMethod: ptrString("")}
	if cfg.GetSplineMethod() != "smoothing" {
		t.Errorf("GetSplineMethod() = %q, want smoothing for empty value", cfg.GetSplineMethod())
	}
}
