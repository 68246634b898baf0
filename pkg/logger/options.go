package logger

import (
	"io"
	"log/slog"
)

// Format selects the handler New builds.
type Format int

const (
	// FormatText is slog's key=value text handler.
	FormatText Format = iota
	// FormatPretty is the colorized charmbracelet/log handler for terminals.
	FormatPretty
	// FormatJSON is slog's JSON handler for log collectors and files.
	FormatJSON
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithWriter sets the destination. Several writers are joined with
// io.MultiWriter; the default is os.Stdout.
func WithWriter(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = append(c.writers[:0], w...)
	}
}

// WithSource reports the calling file and line.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
