// Package logging configures the engine's single event log: one
// zerolog.Logger, console-formatted so every line carries a level and a
// timestamp, writing to stdout or to the file named by -o.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console-formatted logger writing to w. When w is nil it
// defaults to stdout.
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	}
	return zerolog.New(console).With().Timestamp().Logger()
}

// Open returns a writer for the -o output path, or stdout when path is
// empty. The caller owns closing the returned file handle (nil when
// writing to stdout).
func Open(path string) (io.Writer, *os.File, error) {
	if path == "" {
		return os.Stdout, nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f, nil
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
