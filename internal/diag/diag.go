// Package diag builds the structured diagnostic logger the CLI's stderr
// contract runs on: "Fetched: <url>" lines, cache warnings,
// macro-expansion progress, and uri:line:col-formatted error output.
package diag

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// New builds a logrus.Logger writing to out (os.Stderr in production),
// with ANSI colors enabled only when out is a real terminal and NO_COLOR
// isn't set.
func New(out *os.File) *logrus.Logger {
	tty := out != nil && (isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()))
	_, noColor := os.LookupEnv("NO_COLOR")

	var w io.Writer = os.Stderr
	if out != nil {
		w = out
	}

	return &logrus.Logger{
		Out: w,
		Formatter: &logrus.TextFormatter{
			ForceColors:      tty && !noColor,
			DisableColors:    !tty || noColor,
			DisableTimestamp: true,
		},
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
	}
}

// Line returns a diag func(string) that logs each line at Info level,
// the shape internal/fetcher and the other pipeline stages expect for
// their "Fetched: <url>" / cache-warning callback.
func Line(log *logrus.Logger) func(string) {
	return func(msg string) {
		log.Info(msg)
	}
}
