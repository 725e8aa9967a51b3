package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const (
	Reset   = "\033[0m"
	Bold    = "\033[1m"
	Red     = "\033[31m"
	Green   = "\033[32m"
	Yellow  = "\033[33m"
	Blue    = "\033[34m"
	Magenta = "\033[35m"
	Cyan    = "\033[36m"
)

type RichLoggerOptions struct {
	Output       io.Writer
	TimeFormat   string
	Level        slog.Level
	AddSource    bool
	EnableJSON   bool
	EnableColors bool
	ShowTime     bool
}

// DefaultOptions logs warnings and errors to stderr, coloured when stderr is
// a terminal.
func DefaultOptions() *RichLoggerOptions {
	return &RichLoggerOptions{
		Level:        slog.LevelWarn,
		EnableColors: isTerminal(os.Stderr),
		TimeFormat:   "2006-01-02 15:04:05.000",
		Output:       os.Stderr,
		ShowTime:     true,
	}
}

func isTerminal(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

type RichHandler struct {
	opts   *RichLoggerOptions
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewRichHandler(opts *RichLoggerOptions) *RichHandler {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	return &RichHandler{
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *RichHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level
}

func (h *RichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := h.clone()
	for _, a := range attrs {
		h2.attrs = append(h2.attrs, h2.qualify(a))
	}
	return h2
}

func (h *RichHandler) WithGroup(name string) slog.Handler {
	h2 := h.clone()
	h2.groups = append(h2.groups, name)
	return h2
}

// clone shares the mutex so derived handlers never interleave writes.
func (h *RichHandler) clone() *RichHandler {
	h2 := &RichHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  make([]slog.Attr, len(h.attrs)),
		groups: make([]string, len(h.groups)),
	}
	copy(h2.attrs, h.attrs)
	copy(h2.groups, h.groups)
	return h2
}

func (h *RichHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

func (h *RichHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+record.NumAttrs())
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})

	var line string
	if h.opts.EnableJSON {
		data, err := h.formatJSON(record, attrs)
		if err != nil {
			return err
		}
		line = data
	} else {
		line = h.formatText(record, attrs)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.opts.Output, line)
	return err
}

func (h *RichHandler) source(record slog.Record) (string, int, bool) {
	if !h.opts.AddSource || record.PC == 0 {
		return "", 0, false
	}
	fs := runtime.CallersFrames([]uintptr{record.PC})
	f, _ := fs.Next()
	return f.File, f.Line, true
}

func (h *RichHandler) formatJSON(record slog.Record, attrs []slog.Attr) (string, error) {
	jsonMap := make(map[string]interface{}, len(attrs)+4)

	if h.opts.ShowTime {
		jsonMap["time"] = record.Time.Format(h.opts.TimeFormat)
	}
	jsonMap["level"] = record.Level.String()
	if file, line, ok := h.source(record); ok {
		jsonMap["source"] = fmt.Sprintf("%s:%d", file, line)
	}
	jsonMap["msg"] = record.Message

	for _, a := range attrs {
		v := a.Value.Resolve()
		if err, ok := v.Any().(error); ok {
			jsonMap[a.Key] = err.Error()
			continue
		}
		jsonMap[a.Key] = v.Any()
	}

	data, err := json.Marshal(jsonMap)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var levelColors = map[slog.Level]string{
	slog.LevelDebug: Cyan,
	slog.LevelInfo:  Green,
	slog.LevelWarn:  Yellow,
	slog.LevelError: Red,
}

func (h *RichHandler) formatText(record slog.Record, attrs []slog.Attr) string {
	var b strings.Builder

	paint := func(color, s string) {
		if h.opts.EnableColors && color != "" {
			b.WriteString(color)
			b.WriteString(s)
			b.WriteString(Reset)
			return
		}
		b.WriteString(s)
	}

	if h.opts.ShowTime {
		paint(Blue, record.Time.Format(h.opts.TimeFormat))
		b.WriteString(" ")
	}

	paint(levelColors[record.Level]+Bold, fmt.Sprintf("%-5s", strings.ToUpper(record.Level.String())))
	b.WriteString(" ")

	if file, line, ok := h.source(record); ok {
		if lastSlash := strings.LastIndex(file, "/"); lastSlash >= 0 {
			file = file[lastSlash+1:]
		}
		paint(Magenta, fmt.Sprintf("%s:%d", file, line))
		b.WriteString(" ")
	}

	b.WriteString(record.Message)

	for _, a := range attrs {
		b.WriteString(" ")
		paint(Cyan, a.Key+"=")
		b.WriteString(formatValue(a.Value.Resolve()))
	}

	return b.String()
}

func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " \t\"=")) {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func NewRichLogger(opts *RichLoggerOptions) *slog.Logger {
	if opts == nil {
		opts = DefaultOptions()
	}
	return slog.New(NewRichHandler(opts))
}
