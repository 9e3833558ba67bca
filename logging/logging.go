// Package logging builds the hclog logger shared by the pipeline components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Name is the root logger name. Components log through Named sub-loggers.
const Name = "docqa"

// New returns a root logger writing to stderr. format is "text" or "json".
func New(level, format string) hclog.Logger {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit destination, used by tests to capture output.
func NewWithOutput(w io.Writer, level, format string) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       Name,
		Level:      lvl,
		Output:     w,
		JSONFormat: strings.EqualFold(format, "json"),
		Color:      hclog.ColorOff,
	})
}

// OrNull returns l, or a logger that discards everything when l is nil.
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
