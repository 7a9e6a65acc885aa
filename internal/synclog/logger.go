// Package synclog is the ambient logger every package reaches for,
// adapted from the teacher's root-level logger.go (package-level
// zerolog.Logger built from a ConsoleWriter) into an internal package the
// rest of the module can import without pulling in cmd/sy.
package synclog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
	).With().Timestamp().Caller().Logger()
}

// SetLevel parses one of trace/debug/info/warn/error and applies it to
// Logger, or returns false for an unrecognized name.
func SetLevel(name string) bool {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return false
	}
	Logger = Logger.Level(lvl)
	return true
}
