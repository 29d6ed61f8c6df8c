package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the log output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config describes how a logger should be constructed.
type Config struct {
	// Level is the minimum level that gets emitted.
	Level slog.Level

	// Format selects text or JSON output.
	Format Format

	// Output receives the log stream. Defaults to os.Stderr.
	Output io.Writer

	// AddSource annotates records with file and line.
	AddSource bool
}

// DefaultConfig returns the defaults the CLI starts from: info-level
// text output on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// New builds a logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Nop returns a logger that discards everything. Components default to
// this so logging stays opt-in.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to its slog value. Unrecognized names
// (and the empty string) fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseFormat maps a format name to a Format. Anything but "json" is
// text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}
