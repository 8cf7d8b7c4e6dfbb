// Package logging builds the process logger: a console writer on stderr,
// or a size-rotated JSON file when a path is configured.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects level and destination.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console overrides stderr for the console writer.
	Console io.Writer
}

// New returns a logger and a function closing its file, if any. Unknown
// levels fall back to info.
func New(opts Options) (zerolog.Logger, func() error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var w io.Writer
	closer := func() error { return nil }
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		w, closer = lj, lj.Close
	} else {
		out := opts.Console
		if out == nil {
			out = os.Stderr
		}
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), closer
}
