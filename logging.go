package zokio

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type used throughout the runtime: a
// generic logiface.Logger instantiated with stumpy's event type, giving
// zero-allocation JSON output by default. Every subsystem that logs
// (scheduler, reactor, runtime) takes one of these rather than a
// hand-rolled interface. Config.Logger accepts any logiface logger over
// stumpy events; a logiface backend with a different event type
// (zerolog, slog, logrus adapters) does not fit this type.
type Logger = *logiface.Logger[*stumpy.Event]

// defaultLogger returns a logiface.Logger writing newline-delimited
// JSON to stderr via stumpy, matching stumpy's own documented default
// (github.com/joeycumines/stumpy: "the most performant [...] by virtue
// of being the most direct").
func defaultLogger() Logger {
	return stumpy.L.New(stumpy.L.WithStumpy())
}
