package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webpconv/codec"
	"webpconv/logger"
	"webpconv/manifest"
	"webpconv/walker"
)

var supportedFormats = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
	".avif": true,
}

const outputExtension = ".webp"

var (
	errOverwriteSource = errors.New("output would overwrite the source file")
	errSameDirectory   = errors.New("output directory must differ from the input directory")
)

// RunState is the phase a run is in.
type RunState string

const (
	StateIdle       RunState = "idle"
	StateWalking    RunState = "walking"
	StateConverting RunState = "converting"
	StateRecorded   RunState = "recorded"
	StateFlushing   RunState = "flushing"
	StateDone       RunState = "done"
	StateFailed     RunState = "failed"
)

type Processor struct {
	Encoder   codec.Encoder
	Console   *logger.Console
	OutputDir string
	Verbose   bool

	state RunState
	// claimed maps each output written in this run to its source.
	claimed map[string]string
}

func NewProcessor(cfg *Config, console *logger.Console) *Processor {
	return &Processor{
		Encoder:   cfg.Encoder(),
		Console:   console,
		OutputDir: cfg.OutputDir,
		Verbose:   cfg.Verbose,
		state:     StateIdle,
	}
}

func (p *Processor) State() RunState {
	return p.state
}

func (p *Processor) setState(s RunState) {
	if p.state == s {
		return
	}
	p.Console.Debug("run state %s -> %s", p.state, s)
	p.state = s
}

// Run converts every file under inputPath and writes the manifest. Per-file
// failures are recorded in the manifest; only setup and manifest errors are
// returned.
func (p *Processor) Run(inputPath string) (*manifest.Manifest, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, fmt.Errorf("path validation error: %w", err)
	}
	if info.IsDir() && samePath(inputPath, p.OutputDir) {
		return nil, errSameDirectory
	}
	if err := os.MkdirAll(p.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("output directory error: %w", err)
	}

	p.claimed = make(map[string]string)
	results := manifest.New()
	timer := p.Console.StartTimer("Conversion")

	p.Console.Info("Converting %s into %s (quality: %d, lossless: %t, method: %d)",
		inputPath, p.OutputDir, p.Encoder.Quality, p.Encoder.Lossless, p.Encoder.Method)

	p.setState(StateWalking)
	for task := range walker.New(inputPath, walker.Exclude(p.OutputDir)).Tasks() {
		p.setState(StateConverting)
		result := p.convert(task)
		results.Add(result)
		p.setState(StateRecorded)
		p.report(result)
	}

	p.setState(StateFlushing)
	path, err := results.WriteFile(p.OutputDir)
	if err != nil {
		p.setState(StateFailed)
		return results, fmt.Errorf("manifest write error: %w", err)
	}
	p.setState(StateDone)

	elapsed := timer.End()
	if p.Verbose {
		p.displayResults(results, path, elapsed)
	}

	return results, nil
}

func (p *Processor) report(r manifest.Result) {
	switch {
	case r.Status == manifest.StatusFailure:
		p.Console.Warn("Converting %s failed: %s", r.Source, r.Error)
	case r.Bigger():
		p.Console.Warn("Converted %s is BIGGER (%d KB -> %d KB)", r.Source, r.OriginalSize/1024, r.WebPSize/1024)
	default:
		p.Console.Debug("Converted %s -> %s (%d frames)", r.Source, r.Output, r.Frames)
	}
}

// destination mirrors the task's relative path under the output directory
// with the extension replaced by .webp.
func (p *Processor) destination(task walker.Task) (string, error) {
	rel := task.RelPath
	if rel == "" {
		rel = filepath.Base(task.SourcePath)
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("relative path %q escapes the output directory", rel)
	}

	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + outputExtension
	return filepath.Join(p.OutputDir, rel), nil
}

// convert processes one task. It never returns an error: every failure,
// including a codec panic, becomes a failure result.
func (p *Processor) convert(task walker.Task) (result manifest.Result) {
	var originalSize int64
	defer func() {
		if r := recover(); r != nil {
			result = manifest.Failed(task.SourcePath, originalSize, fmt.Errorf("codec panic: %v", r))
		}
	}()

	if task.Err != nil {
		return manifest.Failed(task.SourcePath, 0, fmt.Errorf("error reading file: %w", task.Err))
	}

	ext := strings.ToLower(filepath.Ext(task.SourcePath))
	if !supportedFormats[ext] {
		if info, err := os.Stat(task.SourcePath); err == nil {
			originalSize = info.Size()
		}
		return manifest.Failed(task.SourcePath, originalSize, fmt.Errorf("unsupported file extension %q", ext))
	}

	output, err := p.destination(task)
	if err != nil {
		return manifest.Failed(task.SourcePath, 0, err)
	}
	if owner, taken := p.claimed[output]; taken {
		return manifest.Failed(task.SourcePath, 0, fmt.Errorf("output %s already written from %s", output, owner))
	}
	if samePath(output, task.SourcePath) {
		return manifest.Failed(task.SourcePath, 0, errOverwriteSource)
	}

	data, err := os.ReadFile(task.SourcePath)
	if err != nil {
		return manifest.Failed(task.SourcePath, 0, fmt.Errorf("error opening file: %w", err))
	}
	originalSize = int64(len(data))

	img, err := codec.Decode(bytes.NewReader(data))
	if err != nil {
		return manifest.Failed(task.SourcePath, originalSize, err)
	}

	var buf bytes.Buffer
	switch img.Kind {
	case codec.KindAnimated:
		err = p.Encoder.EncodeAnimated(&buf, img.Animation)
	default:
		err = p.Encoder.EncodeStill(&buf, img.Still)
	}
	if err != nil {
		return manifest.Failed(task.SourcePath, originalSize, err)
	}

	if err := writeOutput(output, buf.Bytes()); err != nil {
		return manifest.Failed(task.SourcePath, originalSize, err)
	}
	p.claimed[output] = task.SourcePath

	return manifest.Succeeded(task.SourcePath, output, originalSize, int64(buf.Len()), img.FrameCount())
}

// writeOutput creates the parent directories of path and replaces path with
// data through a temporary file in the same directory.
func writeOutput(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".*.webp.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	tempFileClosed := false
	defer func() {
		if !tempFileClosed {
			tempFile.Close()
		}
		if err != nil {
			os.Remove(tempPath)
		}
	}()

	if _, err = tempFile.Write(data); err != nil {
		return fmt.Errorf("error writing WebP: %w", err)
	}

	err = tempFile.Close()
	tempFileClosed = true
	if err != nil {
		return fmt.Errorf("error closing WebP: %w", err)
	}

	if err = os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("error setting file permissions: %w", err)
	}

	if err = os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}

	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	if absA == absB {
		return true
	}

	infoA, errA := os.Stat(absA)
	infoB, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

func (p *Processor) displayResults(results *manifest.Manifest, manifestPath string, elapsed time.Duration) {
	succeeded, failed := results.Counts()
	original, compressed := results.Totals()

	var ratio float64
	if original > 0 {
		ratio = float64(compressed) / float64(original) * 100
	}

	table := p.Console.NewTable([]string{"Metric", "Value"})
	table.AddRow("Converted files", fmt.Sprintf("%d/%d", succeeded, results.Len()))
	table.AddRow("Failed files", fmt.Sprintf("%d", failed))
	table.AddRow("Original size", fmt.Sprintf("%.2f MB", float64(original)/1024/1024))
	table.AddRow("WebP size", fmt.Sprintf("%.2f MB", float64(compressed)/1024/1024))
	table.AddRow("Compression ratio", fmt.Sprintf("%.1f%%", ratio))

	if original > compressed {
		table.AddRow("Space saved", fmt.Sprintf("%.2f MB", float64(original-compressed)/1024/1024))
	}

	table.AddRow("Elapsed", elapsed.Round(time.Millisecond).String())
	table.AddRow("Manifest", manifestPath)

	table.Print()
}
