// Package explorer runs the PRF exploration pipeline over image regions:
// assignment once per image, then extraction, padding and spline fitting
// per region with failures isolated to the region that produced them.
package explorer

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/prf-explorer/internal/config"
	"github.com/banshee-data/prf-explorer/internal/prf"
	"github.com/banshee-data/prf-explorer/internal/prf/spline"
)

// Config is the immutable configuration of an Explorer.
type Config struct {
	Range            prf.PRFRange
	CrowdingDistance float64
	ErrorThreshold   float64
	PadFraction      float64
	PadNPoints       int
	Method           spline.Method
}

// Validate checks the configuration before any data is touched.
func (c Config) Validate() error {
	if err := c.Range.Validate(); err != nil {
		return err
	}
	if math.IsNaN(c.CrowdingDistance) || c.CrowdingDistance < 0 {
		return fmt.Errorf("%w: crowding distance must be non-negative, got %g", prf.ErrConfiguration, c.CrowdingDistance)
	}
	if math.IsNaN(c.ErrorThreshold) || c.ErrorThreshold <= 0 {
		return fmt.Errorf("%w: error threshold must be positive, got %g", prf.ErrConfiguration, c.ErrorThreshold)
	}
	if math.IsNaN(c.PadFraction) || c.PadFraction <= 0 {
		return fmt.Errorf("%w: pad fraction must be positive, got %g", prf.ErrConfiguration, c.PadFraction)
	}
	if c.PadNPoints < 0 {
		return fmt.Errorf("%w: pad points must be non-negative, got %d", prf.ErrConfiguration, c.PadNPoints)
	}
	return spline.ValidateMethod(c.Method)
}

// ConfigFromTuning builds a Config from a loaded ExplorerConfig.
func ConfigFromTuning(cfg *config.ExplorerConfig) (Config, error) {
	method, err := spline.ParseMethod(cfg.GetSplineMethod(), cfg.GetSplineResolution(), cfg.GetSplineSmoothing())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Range:            cfg.GetPRFRange(),
		CrowdingDistance: cfg.GetCrowdingDistance(),
		ErrorThreshold:   cfg.GetErrorThreshold(),
		PadFraction:      cfg.GetSplinePadFraction(),
		PadNPoints:       cfg.GetSplinePadNPoints(),
		Method:           method,
	}, nil
}

// Explorer runs the pipeline with a fixed configuration.
type Explorer struct {
	cfg Config
}

// New validates cfg and returns an Explorer bound to it.
func New(cfg Config) (*Explorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Explorer{cfg: cfg}, nil
}

// Config returns the configuration the Explorer was built with.
func (e *Explorer) Config() Config { return e.cfg }

// RegionResult is the outcome for one image region. Err is set when the
// region could not be padded or fitted; the fields filled before the
// failure stay available.
type RegionResult struct {
	Region  prf.Region
	Label   string
	Samples []prf.Sample
	Padded  *prf.PaddedSampleSet
	Domain  prf.Domain
	Spline  spline.Spline
	Err     error
}

// OK reports whether the region produced a spline.
func (r *RegionResult) OK() bool { return r.Err == nil && r.Spline != nil }

// Result holds the assignment grid shared by all regions and the
// per-region outcomes, in region order.
type Result struct {
	Grid    *prf.AssignmentGrid
	Regions []RegionResult
}

// Failed returns the number of regions that did not produce a spline.
func (r *Result) Failed() int {
	n := 0
	for i := range r.Regions {
		if !r.Regions[i].OK() {
			n++
		}
	}
	return n
}

// Run assigns pixels to sources once and processes each region. A nil or
// empty regions list means the whole image. Configuration and shape
// errors abort the run; per-region failures are recorded on the region.
func (e *Explorer) Run(img *prf.Image, sources []prf.Source, regions []prf.Region) (*Result, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		regions = []prf.Region{prf.FullRegion(img.Resolution)}
	}
	for _, r := range regions {
		if err := r.Within(img.Resolution); err != nil {
			return nil, err
		}
	}

	grid, err := prf.Assign(sources, e.cfg.Range, img.Resolution, e.cfg.CrowdingDistance)
	if err != nil {
		return nil, err
	}

	res := &Result{Grid: grid, Regions: make([]RegionResult, 0, len(regions))}
	for _, region := range regions {
		rr, err := e.runRegion(img, grid, region)
		if err != nil && errors.Is(err, prf.ErrConfiguration) {
			return nil, err
		}
		if rr.Err != nil {
			prf.Opsf("region %s: %v", rr.Label, rr.Err)
		}
		res.Regions = append(res.Regions, rr)
	}

	prf.Diagf("processed %d regions, %d failed", len(res.Regions), res.Failed())
	return res, nil
}

// runRegion returns a non-nil error only for failures that must abort the
// whole run.
func (e *Explorer) runRegion(img *prf.Image, grid *prf.AssignmentGrid, region prf.Region) (RegionResult, error) {
	rr := RegionResult{Region: region, Label: region.Label()}

	samples, err := prf.Extract(img, grid, region, e.cfg.ErrorThreshold)
	if err != nil {
		rr.Err = err
		return rr, err
	}
	rr.Samples = samples

	padded, domain, err := prf.Pad(samples, e.cfg.Range, e.cfg.PadFraction, e.cfg.PadNPoints)
	rr.Domain = domain
	if err != nil {
		rr.Err = err
		if errors.Is(err, prf.ErrConfiguration) {
			return rr, err
		}
		return rr, nil
	}
	rr.Padded = padded

	s, err := spline.Fit(padded, domain, e.cfg.Method)
	if err != nil {
		rr.Err = err
		return rr, nil
	}
	rr.Spline = s
	return rr, nil
}
