package prfplot

import (
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/prf-explorer/internal/fsutil"
	"github.com/banshee-data/prf-explorer/internal/prf"
)

// Writer saves one figure per slice spec, naming files from a template
// with {dir} and {offset} placeholders.
type Writer struct {
	FS           fsutil.FileSystem
	Template     string
	Options      Options
	SkipExisting bool
}

// NewWriter returns a Writer on the OS filesystem.
func NewWriter(template string, opts Options, skipExisting bool) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Template: template, Options: opts, SkipExisting: skipExisting}
}

// Filename expands template for spec.
func Filename(template string, spec prf.SliceSpec) string {
	return strings.NewReplacer(
		"{dir}", string(spec.Axis),
		"{offset}", strconv.FormatFloat(spec.Offset, 'g', -1, 64),
	).Replace(template)
}

// Filenames lists the files the specs will produce.
func Filenames(template string, specs []prf.SliceSpec) []string {
	out := make([]string, len(specs))
	for i, spec := range specs {
		out[i] = Filename(template, spec)
	}
	return out
}

// AllExist reports whether every file the specs produce already exists.
func (w *Writer) AllExist(specs []prf.SliceSpec) bool {
	for _, name := range Filenames(w.Template, specs) {
		if !w.FS.Exists(name) {
			return false
		}
	}
	return len(specs) > 0
}

func formatOf(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "png", "svg", "pdf", "html":
		return ext, nil
	}
	return "", fmt.Errorf("%w: unsupported plot format %q for %s (want png, svg, pdf or html)",
		prf.ErrConfiguration, ext, name)
}

// ValidateTemplate checks that the template names a supported format.
func ValidateTemplate(template string) error {
	if template == "" {
		return fmt.Errorf("%w: empty plot filename template", prf.ErrConfiguration)
	}
	_, err := formatOf(template)
	return err
}

// Write renders every spec and returns the files written. Existing files
// are left alone when SkipExisting is set.
func (w *Writer) Write(specs []prf.SliceSpec, series []Series) ([]string, error) {
	if err := ValidateTemplate(w.Template); err != nil {
		return nil, err
	}
	var written []string
	for _, spec := range specs {
		name := Filename(w.Template, spec)
		if w.SkipExisting && w.FS.Exists(name) {
			log.Printf("Skipping existing plot %s", name)
			continue
		}
		fig, err := BuildFigure(spec, series, w.Options)
		if err != nil {
			return written, fmt.Errorf("slice %s: %w", spec, err)
		}
		if err := w.save(name, fig); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func (w *Writer) save(name string, fig *Figure) (err error) {
	format, err := formatOf(name)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := w.FS.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create plot dir: %w", err)
		}
	}
	f, err := w.FS.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create plot file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close plot file: %w", cerr)
		}
	}()

	if format == "html" {
		err = WriteHTML(f, fig, w.Options.ErrorScale)
	} else {
		err = WritePlot(f, fig, w.Options.ErrorScale, format)
	}
	if err != nil {
		return fmt.Errorf("plot %s: %w", name, err)
	}
	log.Printf("Wrote plot %s", name)
	return nil
}
