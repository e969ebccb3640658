// Package obslog is a small leveled logger in the same zero-ceremony
// style as foundation/client's Logger: a plain function type, a couple
// of stock implementations, no interface explosion. It generalizes that
// single unleveled hook into the handful of levels a long-running batch
// driver needs (debug chatter from the escalation ladder vs. operator-
// facing warnings and errors) while keeping the same call shape so it
// drops into every constructor that already accepts a client.Logger.
package obslog

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Level orders log severity, least to most urgent.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// Logger logs a leveled message with key/value pairs, mirroring
// foundation/client.Logger's (ctx, msg, kv...) shape plus a level.
type Logger func(ctx context.Context, level Level, msg string, kv ...any)

// Noop discards everything.
var Noop Logger = func(ctx context.Context, level Level, msg string, kv ...any) {}

// Stdout writes to the standard logger, filtering below min.
func Stdout(min Level) Logger {
	return func(ctx context.Context, level Level, msg string, kv ...any) {
		if level < min {
			return
		}

		s := fmt.Sprintf("%s: %s", level, msg)
		for i := 0; i+1 < len(kv); i += 2 {
			s += fmt.Sprintf(", %v: %v", kv[i], kv[i+1])
		}
		log.Println(s)
	}
}

// New returns Stdout(Info) unless NOVELSEG_LOG_LEVEL=debug is set, for
// callers that want the environment-variable convention used elsewhere
// in this repo (cmd/novelsegctl's NOVELSEG_* overrides) without wiring
// flag parsing into a leaf package.
func New() Logger {
	min := Info
	if os.Getenv("NOVELSEG_LOG_LEVEL") == "debug" {
		min = Debug
	}
	return Stdout(min)
}

// AsClientLogger adapts a Logger to foundation/client's unleveled
// Logger type at Info, so the same logger can be handed to both
// internal/oracle.HTTPClient and internal/obslog call sites.
func AsClientLogger(l Logger) func(ctx context.Context, msg string, v ...any) {
	return func(ctx context.Context, msg string, v ...any) {
		l(ctx, Info, msg, v...)
	}
}
