package runner

import "errors"

// Sentinel failure kinds surfaced by the core. The Runner never
// returns a partial chapter sequence: it either returns a full result
// of length expectedCount, or one of these, wrapped with additional
// context via %w.
var (
	// ErrInvalidInput covers expected_count <= 0, an unreadable file,
	// or an empty file.
	ErrInvalidInput = errors.New("runner: invalid input")

	// ErrEncodingUndetermined means the decoder could not produce a
	// usable text stream even with UTF-8 fallback. Rare in practice
	// since internal/encoding degrades to UTF-8 on decode failure.
	ErrEncodingUndetermined = errors.New("runner: encoding undetermined")

	// ErrPatternUnusable means initial pattern acquisition failed
	// InitialGenerationRetries times without producing any valid
	// compiling regex.
	ErrPatternUnusable = errors.New("runner: no usable pattern")

	// ErrInvalidBoundary means boundary-mode splitting was invoked
	// with a boundary set violating the chapter.Boundary invariants.
	// This is always an internal bug, never caused by external input.
	ErrInvalidBoundary = errors.New("runner: invalid boundary set")

	// ErrOracleUnavailable means LLM calls failed past the retry
	// budget.
	ErrOracleUnavailable = errors.New("runner: oracle unavailable")

	// ErrStagnated means the escalation ladder was exhausted without
	// achieving C == E.
	ErrStagnated = errors.New("runner: stagnated")

	// ErrTimeout means the wall-clock budget was exceeded.
	ErrTimeout = errors.New("runner: timeout")

	// ErrCancelled means cooperative cancellation was requested.
	ErrCancelled = errors.New("runner: cancelled")
)

// Failure is returned by Run on any unsuccessful segmentation. It
// carries the sentinel error kind, a reason, the rendered
// reconciliation log and the best partial chapter count; the partial
// chapters themselves are not included.
type Failure struct {
	Kind             error
	Reason           string
	Log              []string
	BestPartialCount int
}

func (f *Failure) Error() string {
	return f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Kind
}
