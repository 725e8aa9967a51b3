// Package manifest accumulates per-file conversion results and writes them
// as details.csv in the output root.
package manifest

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// FileName is the manifest written to the output root.
const FileName = "details.csv"

// Header is the fixed column schema of the manifest.
var Header = []string{"source", "output", "status", "error", "original_kb", "webp_kb", "changed", "frames"}

// Status is the outcome of one conversion.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

func (s Status) String() string {
	return string(s)
}

// Result is one manifest row.
type Result struct {
	Source       string
	Output       string
	Status       Status
	Error        string
	OriginalSize int64
	WebPSize     int64
	Frames       int
}

// Succeeded records a finished conversion.
func Succeeded(source, output string, originalSize, webpSize int64, frames int) Result {
	return Result{
		Source:       source,
		Output:       output,
		Status:       StatusSuccess,
		OriginalSize: originalSize,
		WebPSize:     webpSize,
		Frames:       frames,
	}
}

// Failed records a conversion that did not produce an output.
func Failed(source string, originalSize int64, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		Source:       source,
		Status:       StatusFailure,
		Error:        msg,
		OriginalSize: originalSize,
	}
}

// Bigger reports whether a successful conversion produced a larger file.
func (r Result) Bigger() bool {
	return r.Status == StatusSuccess && r.WebPSize > r.OriginalSize
}

func (r Result) record() []string {
	row := []string{r.Source, r.Output, r.Status.String(), r.Error, "", "", "", ""}
	if r.Status == StatusFailure {
		row[4] = strconv.FormatInt(kilobytes(r.OriginalSize), 10)
		return row
	}

	origKB, webpKB := kilobytes(r.OriginalSize), kilobytes(r.WebPSize)
	row[4] = strconv.FormatInt(origKB, 10)
	row[5] = strconv.FormatInt(webpKB, 10)
	if origKB > 0 {
		row[6] = strconv.FormatFloat(float64(webpKB-origKB)/float64(origKB), 'f', 2, 64)
	}
	row[7] = strconv.Itoa(r.Frames)
	return row
}

func kilobytes(n int64) int64 {
	return int64(math.Ceil(float64(n) / 1024))
}

// Manifest is the ordered list of results for one run.
type Manifest struct {
	results []Result
}

func New() *Manifest {
	return &Manifest{}
}

// Add appends a result. Results are written in the order they were added.
func (m *Manifest) Add(r Result) {
	m.results = append(m.results, r)
}

func (m *Manifest) Results() []Result {
	out := make([]Result, len(m.results))
	copy(out, m.results)
	return out
}

func (m *Manifest) Len() int {
	return len(m.results)
}

// Counts returns the number of successful and failed results.
func (m *Manifest) Counts() (succeeded, failed int) {
	for _, r := range m.results {
		if r.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Totals returns the summed source and output sizes of successful results.
func (m *Manifest) Totals() (original, webp int64) {
	for _, r := range m.results {
		if r.Status == StatusSuccess {
			original += r.OriginalSize
			webp += r.WebPSize
		}
	}
	return original, webp
}

// WriteFile writes the manifest to dir/details.csv. The file is replaced
// atomically; on error the previous manifest, if any, is left untouched.
func (m *Manifest) WriteFile(dir string) (string, error) {
	path := filepath.Join(dir, FileName)

	tmp, err := os.CreateTemp(dir, ".details-*.csv")
	if err != nil {
		return "", fmt.Errorf("error creating manifest: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(Header); err != nil {
		return "", fmt.Errorf("error writing manifest header: %w", err)
	}
	for _, r := range m.results {
		if err := w.Write(r.record()); err != nil {
			return "", fmt.Errorf("error writing manifest row for %s: %w", r.Source, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("error flushing manifest: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("error syncing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("error closing manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return "", fmt.Errorf("error setting manifest permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		committed = true
		return "", fmt.Errorf("error renaming manifest: %w", err)
	}
	committed = true

	return path, nil
}
