// Package report renders score records and health reports as CSV, JSON and HTML.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jon4hz/arrscore/internal/analyzer"
	"github.com/jon4hz/arrscore/internal/config"
	"github.com/jon4hz/arrscore/internal/database"
)

// TimestampLayout is used in output file names.
const TimestampLayout = "20060102_150405"

// Writer writes output files into one directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// FileName returns the name of an output file, {service}_scores_{timestamp}.{ext}.
func FileName(service database.ServiceKind, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_scores_%s.%s", service, ts.Format(TimestampLayout), ext)
}

// WriteAll writes every requested format and returns the paths written.
// A failing format doesn't stop the others; all errors are joined.
// HTML needs a health report and is skipped without one.
func (w *Writer) WriteAll(service database.ServiceKind, formats []string, recs []database.ScoreRecord, health *analyzer.HealthReport) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ts := w.now()
	var (
		paths []string
		errs  []error
	)
	write := func(ext string, render func(io.Writer) error) {
		path := filepath.Join(w.dir, FileName(service, ts, ext))
		if err := writeFile(path, render); err != nil {
			errs = append(errs, fmt.Errorf("failed to write %s: %w", ext, err))
			return
		}
		log.Info("Wrote report", "path", path)
		paths = append(paths, path)
	}

	if slices.Contains(formats, config.OutputFormatCSV) {
		if len(recs) == 0 {
			log.Info("No records to write, skipping CSV", "service", service)
		} else {
			write(config.OutputFormatCSV, func(out io.Writer) error { return WriteCSV(out, service, recs) })
		}
	}
	if slices.Contains(formats, config.OutputFormatJSON) {
		write(config.OutputFormatJSON, func(out io.Writer) error {
			return WriteJSON(out, NewExport(service, ts, recs, health))
		})
	}
	if slices.Contains(formats, config.OutputFormatHTML) {
		if health == nil {
			log.Info("No health report available, skipping HTML", "service", service)
		} else {
			write(config.OutputFormatHTML, func(out io.Writer) error { return WriteHTML(out, health) })
		}
	}
	return paths, errors.Join(errs...)
}

func writeFile(path string, render func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return render(f)
}
