package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	Log             *slog.Logger
	defaultLevel    slog.Level
	componentLevels map[string]slog.Level
	levelsMu        sync.RWMutex
	format          string
	output          io.Writer
	pid             int
	loggerCache     sync.Map
)

func init() {
	defaultLevel = slog.LevelInfo
	componentLevels = make(map[string]slog.Level)
	format = "text"
	output = os.Stdout
	pid = os.Getpid()

	Log = slog.New(NewComponentTextHandler(output, ""))
}

// Configure resets the global format and levels. Loggers handed out by Get
// before the call keep their old handler, so callers configure first.
func Configure(logFormat string, level LogLevel, components map[string]LogLevel) {
	ConfigureOutput(os.Stdout, logFormat, level, components)
}

func ConfigureOutput(w io.Writer, logFormat string, level LogLevel, components map[string]LogLevel) {
	levelsMu.Lock()
	defaultLevel = parseLevel(string(level))
	format = strings.ToLower(logFormat)
	output = w
	componentLevels = make(map[string]slog.Level)
	for name, lvl := range components {
		componentLevels[name] = parseLevel(string(lvl))
	}
	levelsMu.Unlock()

	loggerCache.Range(func(k, _ any) bool {
		loggerCache.Delete(k)
		return true
	})

	Log = slog.New(newHandler(""))
}

func newHandler(component string) slog.Handler {
	levelsMu.RLock()
	f, w := format, output
	levelsMu.RUnlock()

	if f == "json" {
		return newJSONHandler(w, component)
	}
	return NewComponentTextHandler(w, component)
}

// ComponentTextHandler writes one line per record:
// "<time> [<pid>] [<component>] <message> k=v ...", attributes sorted by key.
type ComponentTextHandler struct {
	mu        *sync.Mutex
	w         io.Writer
	attrs     []slog.Attr
	component string
}

func NewComponentTextHandler(w io.Writer, component string) *ComponentTextHandler {
	return &ComponentTextHandler{
		mu:        &sync.Mutex{},
		w:         w,
		component: component,
	}
}

func (h *ComponentTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= getEffectiveLevel(h.component)
}

func (h *ComponentTextHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, 256)
	buf = append(buf, r.Time.Format("2006/01/02 15:04:05.000")...)
	buf = append(buf, fmt.Sprintf(" [%d]", pid)...)
	buf = append(buf, ' ')
	buf = append(buf, r.Level.String()...)

	if h.component != "" {
		buf = append(buf, fmt.Sprintf(" [%s]", h.component)...)
	}

	buf = append(buf, ' ')
	buf = append(buf, r.Message...)

	for _, k := range keys {
		buf = append(buf, fmt.Sprintf(" %s=%v", k, attrs[k])...)
	}
	buf = append(buf, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf)
	return err
}

func (h *ComponentTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &ComponentTextHandler{
		mu:        h.mu,
		w:         h.w,
		attrs:     merged,
		component: h.component,
	}
}

func (h *ComponentTextHandler) WithGroup(name string) slog.Handler {
	return &ComponentTextHandler{
		mu:        h.mu,
		w:         h.w,
		attrs:     h.attrs,
		component: joinComponent(h.component, name),
	}
}

type componentJSONHandler struct {
	inner     slog.Handler
	component string
}

func newJSONHandler(w io.Writer, component string) *componentJSONHandler {
	return &componentJSONHandler{
		inner: slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}),
		component: component,
	}
}

func (h *componentJSONHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= getEffectiveLevel(h.component)
}

func (h *componentJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.component != "" {
		r.AddAttrs(slog.String("component", h.component))
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentJSONHandler{
		inner:     h.inner.WithAttrs(attrs),
		component: h.component,
	}
}

func (h *componentJSONHandler) WithGroup(name string) slog.Handler {
	return &componentJSONHandler{
		inner:     h.inner,
		component: joinComponent(h.component, name),
	}
}

func joinComponent(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEffectiveLevel walks the dotted component name from most to least
// specific, so "lock.sqlite" falls back to "lock" before the default.
func getEffectiveLevel(component string) slog.Level {
	levelsMu.RLock()
	defer levelsMu.RUnlock()

	path := component
	for {
		if level, ok := componentLevels[path]; ok {
			return level
		}
		idx := strings.LastIndex(path, ".")
		if idx < 0 {
			break
		}
		path = path[:idx]
	}

	return defaultLevel
}

func Get(name string) *slog.Logger {
	if l, ok := loggerCache.Load(name); ok {
		return l.(*slog.Logger)
	}

	l := slog.New(newHandler(name))
	actual, _ := loggerCache.LoadOrStore(name, l)
	return actual.(*slog.Logger)
}

func SetComponentLevel(name string, level LogLevel) {
	levelsMu.Lock()
	componentLevels[name] = parseLevel(string(level))
	levelsMu.Unlock()
}

func ClearComponentLevel(name string) {
	levelsMu.Lock()
	delete(componentLevels, name)
	levelsMu.Unlock()
}

func GetComponentLevels() map[string]LogLevel {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	result := make(map[string]LogLevel, len(componentLevels))
	for name, level := range componentLevels {
		result[name] = levelToLogLevel(level)
	}
	return result
}

func GetDefaultLevel() LogLevel {
	levelsMu.RLock()
	defer levelsMu.RUnlock()
	return levelToLogLevel(defaultLevel)
}

func levelToLogLevel(level slog.Level) LogLevel {
	switch level {
	case slog.LevelDebug:
		return LogLevelDebug
	case slog.LevelInfo:
		return LogLevelInfo
	case slog.LevelWarn:
		return LogLevelWarn
	case slog.LevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

type EntityAttrs struct {
	Group         string
	Application   string
	Configuration string
	Version       string
	Path          string
}

func WithEntity(logger *slog.Logger, attrs EntityAttrs) *slog.Logger {
	args := make([]any, 0, 10)

	if attrs.Group != "" {
		args = append(args, "group", attrs.Group)
	}
	if attrs.Application != "" {
		args = append(args, "application", attrs.Application)
	}
	if attrs.Configuration != "" {
		args = append(args, "configuration", attrs.Configuration)
	}
	if attrs.Version != "" {
		args = append(args, "version", attrs.Version)
	}
	if attrs.Path != "" {
		args = append(args, "path", attrs.Path)
	}

	return logger.With(args...)
}
