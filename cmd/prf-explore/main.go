// Command prf-explore extracts PRF samples around catalogue sources in a
// calibrated frame, fits a spline per image region, plots slices through
// the result and records the run in a SQLite database.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/banshee-data/prf-explorer/internal/catalogue"
	"github.com/banshee-data/prf-explorer/internal/config"
	"github.com/banshee-data/prf-explorer/internal/explorer"
	"github.com/banshee-data/prf-explorer/internal/fitsio"
	"github.com/banshee-data/prf-explorer/internal/prf"
	"github.com/banshee-data/prf-explorer/internal/prfdb"
	"github.com/banshee-data/prf-explorer/internal/prfplot"
	"github.com/banshee-data/prf-explorer/internal/timeutil"
	"github.com/banshee-data/prf-explorer/internal/version"
)

// DefaultPlotTemplate names one PNG per slice in the working directory.
const DefaultPlotTemplate = "prf_{dir}_{offset}.png"

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ", ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	configPath    string
	frame         string
	cataloguePath string
	dbPath        string
	plotTemplate  string
	storeSamples  bool
	showVersion   bool
	verbose       bool
	trace         bool

	// Overrides applied on top of the config file when set.
	slices           stringList
	splits           stringList
	method           string
	errorThreshold   float64
	crowdingDistance float64
	errorScale       float64
	skipExisting     bool
	gridNodes        bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("prf-explore", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.configPath, "config", "", "Path to JSON explorer configuration (defaults built in)")
	fs.StringVar(&o.frame, "frame", "", "Calibrated FITS frame (values, stddev, mask HDUs)")
	fs.StringVar(&o.cataloguePath, "catalogue", "", "Source catalogue: ID x y flux bg bg_err bg_npix [enabled]")
	fs.StringVar(&o.dbPath, "db", "", "SQLite run database; empty disables recording")
	fs.StringVar(&o.plotTemplate, "plot", DefaultPlotTemplate, "Plot filename template with {dir} and {offset}; empty disables plots")
	fs.BoolVar(&o.storeSamples, "store-samples", true, "Store extracted samples in the run database")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&o.verbose, "verbose", false, "Enable diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "Enable per-source trace logging")

	fs.Var(&o.slices, "slice", "Slice to plot, e.g. 'x = 0 +- 0.2' (repeatable)")
	fs.Var(&o.splits, "split-image", "Split the image at x=<v> or y=<v> (repeatable)")
	fs.StringVar(&o.method, "method", "", "Spline method: grid or smoothing")
	fs.Float64Var(&o.errorThreshold, "error-threshold", 0, "Maximum relative sample error")
	fs.Float64Var(&o.crowdingDistance, "crowding-distance", 0, "Minimum distance to the nearest other source")
	fs.Float64Var(&o.errorScale, "error-scale", 0, "Scale factor for plotted error bars")
	fs.BoolVar(&o.skipExisting, "skip-existing", false, "Skip the run when every plot already exists")
	fs.BoolVar(&o.gridNodes, "grid-nodes", false, "Draw grid spline node positions")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.showVersion {
		return o, nil
	}
	if o.frame == "" || o.cataloguePath == "" {
		return nil, fmt.Errorf("%w: -frame and -catalogue are required", prf.ErrConfiguration)
	}
	return o, nil
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(o *options) (*config.ExplorerConfig, error) {
	cfg := config.EmptyExplorerConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadExplorerConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	if len(o.slices) > 0 {
		cfg.Slices = o.slices
	}
	if len(o.splits) > 0 {
		cfg.SplitImage = o.splits
	}
	if o.set["method"] {
		cfg.SplineMethod = &o.method
	}
	if o.set["error-threshold"] {
		cfg.ErrorThreshold = &o.errorThreshold
	}
	if o.set["crowding-distance"] {
		cfg.CrowdingDistance = &o.crowdingDistance
	}
	if o.set["error-scale"] {
		cfg.ErrorScale = &o.errorScale
	}
	if o.set["skip-existing"] {
		cfg.SkipExistingPlots = &o.skipExisting
	}
	if o.set["grid-nodes"] {
		cfg.PlotGridNodes = &o.gridNodes
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", prf.ErrConfiguration, err)
	}
	return cfg, nil
}

func plotOptions(cfg *config.ExplorerConfig) prfplot.Options {
	opts := prfplot.Options{
		ErrorScale: cfg.GetErrorScale(),
		Binning:    cfg.GetBinning(),
		GridNodes:  cfg.GetPlotGridNodes(),
	}
	if yr, ok := cfg.GetPlotYRange(); ok {
		opts.YRange = &yr
	}
	return opts
}

func run(args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}

	writers := prf.LogWriters{Ops: stderr}
	if o.verbose || o.trace {
		writers.Diag = stderr
	}
	if o.trace {
		writers.Trace = stderr
	}
	prf.SetLogWriters(writers)

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	ecfg, err := explorer.ConfigFromTuning(cfg)
	if err != nil {
		return err
	}
	exp, err := explorer.New(ecfg)
	if err != nil {
		return err
	}

	slices := cfg.GetSlices()
	var plots *prfplot.Writer
	if o.plotTemplate != "" {
		if err := prfplot.ValidateTemplate(o.plotTemplate); err != nil {
			return err
		}
		plots = prfplot.NewWriter(o.plotTemplate, plotOptions(cfg), cfg.GetSkipExistingPlots())
		if plots.SkipExisting && plots.AllExist(slices) && o.dbPath == "" {
			log.Printf("All %d plots exist, nothing to do", len(slices))
			return nil
		}
	}

	img, err := fitsio.LoadFrame(o.frame)
	if err != nil {
		return err
	}
	mag1, useMagnitudes := cfg.GetMagnitude1ADU()
	sources, err := catalogue.Load(o.cataloguePath, img.Resolution, catalogue.Options{
		Magnitudes:    useMagnitudes,
		Magnitude1ADU: mag1,
	})
	if err != nil {
		return err
	}

	clock := timeutil.RealClock{}
	start := clock.Now()
	regions := prf.Regions(img.Resolution, cfg.GetSplits())
	res, err := exp.Run(img, sources, regions)
	if err != nil {
		return err
	}
	elapsed := clock.Since(start)

	for i := range res.Regions {
		r := &res.Regions[i]
		status := prfdb.RegionStatus(r)
		if r.Err != nil {
			fmt.Fprintf(stdout, "region %s: %d samples, %s (%v)\n", r.Label, len(r.Samples), status, r.Err)
		} else {
			fmt.Fprintf(stdout, "region %s: %d samples, %s\n", r.Label, len(r.Samples), status)
		}
	}

	if plots != nil {
		if _, err := plots.Write(slices, prfplot.SeriesFromResult(res)); err != nil {
			return err
		}
	}

	if o.dbPath != "" {
		if err := record(o, cfg, ecfg, img, sources, res, start, elapsed); err != nil {
			return err
		}
	}

	if failed := res.Failed(); failed == len(res.Regions) {
		return fmt.Errorf("all %d regions failed", failed)
	}
	return nil
}

func record(o *options, cfg *config.ExplorerConfig, ecfg explorer.Config, img *prf.Image,
	sources []prf.Source, res *explorer.Result, start time.Time, elapsed time.Duration) error {
	db, err := prfdb.Open(o.dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	runRec := &prfdb.Run{
		CreatedAt:  start,
		Version:    version.String(),
		Frame:      o.frame,
		Catalogue:  o.cataloguePath,
		ConfigJSON: string(cfgJSON),
		Width:      img.Resolution.Width,
		Height:     img.Resolution.Height,
		Sources:    len(sources),
		Duration:   elapsed,
	}
	if err := db.RecordResult(runRec, res, ecfg.Method.Name(), o.storeSamples); err != nil {
		return err
	}
	log.Printf("Run %s recorded in %s", runRec.ID, o.dbPath)
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("prf-explore: %v", err)
	}
}
