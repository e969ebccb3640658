// Package runner implements the Chapter Split Runner, the top-level
// state machine that drives pattern acquisition, applies the
// escalation ladder and enforces the stagnation, rejection-streak and
// wall-clock limits. It never returns a partial chapter sequence:
// either the caller gets exactly expectedCount chapters, or a Failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/aiscorer"
	"github.com/novelseg/novelseg/internal/chapter"
	"github.com/novelseg/novelseg/internal/encoding"
	"github.com/novelseg/novelseg/internal/obslog"
	"github.com/novelseg/novelseg/internal/optimizer"
	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/patternmgr"
	"github.com/novelseg/novelseg/internal/sampler"
	"github.com/novelseg/novelseg/internal/splitter"
	"github.com/novelseg/novelseg/internal/structural"
	"github.com/novelseg/novelseg/internal/topicdetect"
)

// Hints carries the advisory metadata a caller may already hold for a
// file: end markers known for this source are folded into the pattern
// manager's end-marker filter, and title candidates are honored by the
// splitter as verbatim header lines even when the pattern misses them.
type Hints struct {
	Title           string
	KnownEndMarkers []string
	TitleCandidates []string
}

// Runner drives a single segmentation to completion. It holds no
// state across runs; the oracle's rate limiter is the only long-lived
// collaborator it shares with callers running other files concurrently.
type Runner struct {
	oracle oracle.Oracle
	cfg    Config
}

// New builds a Runner. o should normally be an *oracle.Limited so the
// shared rate limiter and retry policy apply.
func New(o oracle.Oracle, cfg Config) *Runner {
	return &Runner{oracle: o, cfg: cfg.withDefaults()}
}

// Run segments the file at path into exactly expectedCount chapters,
// or returns a *Failure describing why it could not.
func (r *Runner) Run(ctx context.Context, path string, expectedCount int) ([]chapter.Chapter, *chapter.Log, error) {
	return r.RunWithHints(ctx, path, expectedCount, Hints{})
}

// RunWithHints is Run with advisory metadata already known for the
// file.
func (r *Runner) RunWithHints(ctx context.Context, path string, expectedCount int, hints Hints) ([]chapter.Chapter, *chapter.Log, error) {
	log := &chapter.Log{}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.WallClockBudget)
	defer cancel()

	if expectedCount <= 0 {
		return nil, log, r.fail(log, ErrInvalidInput, "expected_count must be positive", 0)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, log, r.fail(log, ErrInvalidInput, fmt.Sprintf("file unreadable: %v", err), 0)
	}
	if len(raw) == 0 {
		return nil, log, r.fail(log, ErrInvalidInput, "file is empty", 0)
	}

	detected := encoding.Detect(raw)
	fullText, _ := encoding.DecodeToUTF8(raw, detected.Encoding)
	if fullText == "" {
		return nil, log, r.fail(log, ErrEncodingUndetermined, "decoded text is empty", 0)
	}

	// All sampling happens over the decoded text so every byte offset in
	// the run — pattern matches, gaps, boundaries — lives in one space.
	s := sampler.FromText(fullText)

	if err := r.checkCancel(ctx); err != nil {
		return nil, log, r.fail(log, err, "cancelled before pattern acquisition", 0)
	}

	pm := patternmgr.New(r.oracle, patternmgr.WithKnownEndMarkers(hints.KnownEndMarkers...))

	log.Append("INIT", "enter", 0, 0, "PATTERN_ACQUIRE")
	pattern, err := pm.GeneratePattern(ctx, s, fullText, expectedCount)
	if err != nil {
		if cerr := r.checkCancel(ctx); cerr != nil {
			return nil, log, r.fail(log, cerr, "cancelled during pattern acquisition", 0)
		}

		// A single-chapter file with no chapter markers is a normal
		// input, not a failure: the whole body becomes the one chapter,
		// with an empty title.
		if expectedCount == 1 {
			log.Append("PATTERN_ACQUIRE", "no-header", 0, 1, "single-chapter fallback: whole body, empty title")
			r.cfg.Logger(ctx, obslog.Info, "no chapter header detected, emitting single whole-body chapter")
			return []chapter.Chapter{chapter.New(0, "", "", fullText)}, log, nil
		}

		kind := ErrPatternUnusable
		if errors.Is(err, oracle.ErrOracleUnavailable) {
			kind = ErrOracleUnavailable
		}
		return nil, log, r.fail(log, kind, err.Error(), 0)
	}
	r.cfg.Logger(ctx, obslog.Debug, "pattern acquired", "pattern", pattern.String())

	if err := r.checkCancel(ctx); err != nil {
		return nil, log, r.fail(log, err, "cancelled before regex split", 0)
	}

	log.Append("PATTERN_ACQUIRE", "done", 0, 0, "REGEX_SPLIT")
	chapters, boundaries, splitLog, err := splitter.Split(fullText, pattern, hints.TitleCandidates)
	if err != nil {
		return nil, log, r.fail(log, ErrInvalidInput, fmt.Sprintf("split: %v", err), 0)
	}
	log.Events = append(log.Events, splitLog.Events...)

	count := len(chapters)
	log.Append("REGEX_SPLIT", "done", 0, count, "EVALUATE")

	if count == expectedCount {
		log.Append("EVALUATE", "match", count, count, "DONE")
		return chapters, log, nil
	}

	if err := r.checkCancel(ctx); err != nil {
		return nil, log, r.fail(log, err, "cancelled before auto-repair", count)
	}

	log.Append("EVALUATE", "mismatch", count, count, "AUTO_REPAIR")
	repaired, duplicates, err := pm.AutoValidate(fullText, pattern, expectedCount)
	if err == nil {
		pattern = repaired
		logCloseDuplicates(log, "AUTO_REPAIR", duplicates)
		chapters, boundaries, splitLog, err = splitter.Split(fullText, pattern, hints.TitleCandidates)
		if err == nil {
			log.Events = append(log.Events, splitLog.Events...)
			before := count
			count = len(chapters)
			log.Append("AUTO_REPAIR", "resplit", before, count, "EVALUATE")
		}
	}

	if count == expectedCount {
		log.Append("EVALUATE", "match", count, count, "DONE")
		return chapters, log, nil
	}

	chapters, boundaries, count, err = r.gapRefineLoop(ctx, log, pm, s, fullText, pattern, boundaries, hints, expectedCount, count)
	if err != nil {
		return nil, log, err
	}
	if count == expectedCount {
		return chapters, log, nil
	}

	// Direct title search only pays off when the pattern is badly
	// undercounting; a near-miss (or an overcount) goes straight to the
	// advanced pipeline.
	if float64(count) < patternmgr.DirectSearchThreshold*float64(expectedCount) {
		chapters, count, err = r.directSearchEscalation(ctx, log, pm, s, fullText, boundaries, hints, expectedCount)
		if err != nil {
			return nil, log, err
		}
		if count == expectedCount {
			return chapters, log, nil
		}
	}

	chapters, count, err = r.advancedEscalation(ctx, log, s, fullText, expectedCount)
	if err != nil {
		return nil, log, err
	}
	if count == expectedCount {
		return chapters, log, nil
	}

	return nil, log, r.fail(log, ErrStagnated, fmt.Sprintf("escalation ladder exhausted: best count %d, expected %d", count, expectedCount), count)
}

// gapRefineLoop runs GAP_REFINE up to cfg.MaxRetries times, applying
// the stagnation and rejection-streak early-exit rules.
func (r *Runner) gapRefineLoop(ctx context.Context, log *chapter.Log, pm *patternmgr.Manager, s *sampler.Sampler, fullText string, pattern *regexp2.Regexp, boundaries []chapter.Boundary, hints Hints, expectedCount, count int) ([]chapter.Chapter, []chapter.Boundary, int, error) {
	counts := []int{count}
	var chapters []chapter.Chapter
	pat := pattern

	for iter := 0; iter < r.cfg.MaxRetries; iter++ {
		if err := r.checkCancel(ctx); err != nil {
			return nil, nil, count, r.fail(log, err, "cancelled during gap refinement", count)
		}

		refined, rejections, duplicates, err := pm.Refine(ctx, s, fullText, pat, expectedCount)
		if err != nil {
			return nil, nil, count, r.fail(log, ErrOracleUnavailable, err.Error(), count)
		}
		pat = refined
		logCloseDuplicates(log, "GAP_REFINE", duplicates)

		var splitLog *chapter.Log
		chapters, boundaries, splitLog, err = splitter.Split(fullText, refined, hints.TitleCandidates)
		if err != nil {
			return nil, nil, count, r.fail(log, ErrInvalidInput, fmt.Sprintf("split: %v", err), count)
		}
		log.Events = append(log.Events, splitLog.Events...)

		before := count
		count = len(chapters)
		counts = append(counts, count)
		log.Append("GAP_REFINE", fmt.Sprintf("iteration %d", iter), before, count, fmt.Sprintf("rejections=%d", rejections))

		if count == expectedCount {
			log.Append("GAP_REFINE", "match", count, count, "DONE")
			return chapters, boundaries, count, nil
		}

		if stagnated(counts, r.cfg.StagnationWindow, r.cfg.StagnationTolerance) {
			log.Append("GAP_REFINE", "stagnation-detected", count, count, "escalate")
			r.cfg.Logger(ctx, obslog.Warn, "gap refinement stagnated", "counts", fmt.Sprint(counts))
			break
		}
		if rejections >= r.cfg.RejectionThreshold {
			log.Append("GAP_REFINE", "rejection-streak", count, count, "escalate")
			r.cfg.Logger(ctx, obslog.Warn, "gap refinement rejection streak", "rejections", rejections)
			break
		}
	}

	return chapters, boundaries, count, nil
}

// directSearchEscalation implements escalation step 1: direct AI title
// search plus reverse-regex synthesis.
func (r *Runner) directSearchEscalation(ctx context.Context, log *chapter.Log, pm *patternmgr.Manager, s *sampler.Sampler, fullText string, existing []chapter.Boundary, hints Hints, expectedCount int) ([]chapter.Chapter, int, error) {
	if err := r.checkCancel(ctx); err != nil {
		return nil, 0, r.fail(log, err, "cancelled before direct search", 0)
	}

	existingTitles := make([]string, len(existing))
	for i, b := range existing {
		existingTitles[i] = b.Text
	}

	log.Append("GAP_REFINE", "exhausted", 0, 0, "DIRECT_SEARCH")
	titles, err := pm.DirectAITitleSearch(ctx, s, fullText, existingTitles)
	if err != nil {
		return nil, 0, r.fail(log, ErrOracleUnavailable, err.Error(), 0)
	}

	pattern, err := pm.BuildPatternFromExamples(ctx, titles)
	if err != nil {
		log.Append("DIRECT_SEARCH", "no-pattern", 0, 0, err.Error())
		return nil, 0, nil
	}

	chapters, _, splitLog, err := splitter.Split(fullText, pattern, append(titles, hints.TitleCandidates...))
	if err != nil {
		return nil, 0, r.fail(log, ErrInvalidInput, fmt.Sprintf("split: %v", err), 0)
	}
	log.Events = append(log.Events, splitLog.Events...)

	count := len(chapters)
	log.Append("DIRECT_SEARCH", "resplit", 0, count, "EVALUATE")
	if count == expectedCount {
		log.Append("EVALUATE", "match", count, count, "DONE")
		return chapters, count, nil
	}

	return nil, count, nil
}

// advancedEscalation implements escalation step 2: structural
// candidates, AI scoring, optional topic detection, and the global
// optimizer, followed by boundary-mode splitting.
func (r *Runner) advancedEscalation(ctx context.Context, log *chapter.Log, s *sampler.Sampler, fullText string, expectedCount int) ([]chapter.Chapter, int, error) {
	if err := r.checkCancel(ctx); err != nil {
		return nil, 0, r.fail(log, err, "cancelled before advanced pipeline", 0)
	}

	log.Append("DIRECT_SEARCH", "exhausted", 0, 0, "ADVANCED")

	candidates := structural.Analyze(fullText, expectedCount)
	lines := strings.Split(fullText, "\n")

	scored, err := aiscorer.Score(ctx, r.oracle, lines, candidates)
	if err != nil {
		return nil, 0, r.fail(log, ErrOracleUnavailable, err.Error(), 0)
	}
	warned := 0
	for _, sc := range scored {
		if sc.Warned {
			warned++
		}
	}
	if warned > 0 {
		r.cfg.Logger(ctx, obslog.Warn, "scorer responses degraded to neutral", "candidates", warned)
	}

	pool := make([]optimizer.ScoredCandidate, len(scored))
	for i, sc := range scored {
		pool[i] = optimizer.ScoredCandidate{
			Boundary: chapter.Boundary{
				LineNum:    sc.Candidate.LineNum,
				ByteOffset: sc.Candidate.ByteOffset,
				Text:       sc.Candidate.Text,
				Source:     chapter.SourceStructural,
			},
			AIScore:         sc.Score,
			StructuralScore: sc.Candidate.Score,
		}
	}
	optimizer.Combine(pool)

	if topicdetect.ShouldActivate(len(candidates), expectedCount) {
		topicBoundaries, err := topicdetect.Detect(ctx, r.oracle, fullText, r.cfg.TopicDetectCallBudget)
		if err == nil {
			for _, b := range topicBoundaries {
				pool = append(pool, optimizer.ScoredCandidate{Boundary: b, AIScore: b.Score, StructuralScore: b.Score, Combined: b.Score})
			}
		}
	}

	fileSize := s.Size()
	avgChapterBytes := fileSize / int64(expectedCount)
	result := optimizer.Select(pool, expectedCount, fileSize, avgChapterBytes)

	log.Append("ADVANCED", "optimize", len(pool), len(result.Boundaries), fmt.Sprintf("shortfall=%d", result.Shortfall))

	if result.Shortfall != 0 {
		return nil, len(result.Boundaries), nil
	}

	chapters, splitLog, err := splitter.SplitByBoundaries(fullText, result.Boundaries)
	if err != nil {
		return nil, 0, r.fail(log, ErrInvalidBoundary, err.Error(), 0)
	}
	log.Events = append(log.Events, splitLog.Events...)

	count := len(chapters)
	log.Append("ADVANCED", "done", len(result.Boundaries), count, "DONE")
	return chapters, count, nil
}

// logCloseDuplicates appends one reconciliation entry per
// close-duplicate pair the pattern manager's filter dropped, recording
// both the kept and dropped offsets rather than letting the decision
// vanish silently.
func logCloseDuplicates(log *chapter.Log, stage string, duplicates []patternmgr.DuplicatePair) {
	for _, d := range duplicates {
		log.Append(stage, "close-duplicate", d.KeptOffset, d.DroppedOffset,
			fmt.Sprintf("kept offset %d, dropped offset %d (within %d bytes)", d.KeptOffset, d.DroppedOffset, patternmgr.MinPairGap))
	}
}

// stagnated reports whether the refinement loop has stopped making
// progress: over the last window iteration counts, max-min <=
// tolerance.
func stagnated(counts []int, window, tolerance int) bool {
	if len(counts) < window {
		return false
	}
	tail := counts[len(counts)-window:]
	lo, hi := tail[0], tail[0]
	for _, c := range tail {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	return hi-lo <= tolerance
}

// checkCancel maps a cancelled or expired context into the runner's
// sentinel errors.
func (r *Runner) checkCancel(ctx context.Context) error {
	switch ctx.Err() {
	case context.Canceled:
		return ErrCancelled
	case context.DeadlineExceeded:
		return ErrTimeout
	default:
		return nil
	}
}

// fail builds a *Failure, appending a final reconciliation entry.
func (r *Runner) fail(log *chapter.Log, kind error, reason string, bestPartial int) error {
	r.cfg.Logger(context.Background(), obslog.Error, "segmentation failed", "kind", kind, "reason", reason)
	log.Append("FAIL", "terminal", bestPartial, bestPartial, reason)
	events := make([]string, len(log.Events))
	for i, e := range log.Events {
		events[i] = fmt.Sprintf("%s/%s: %d->%d (%s)", e.Stage, e.Action, e.BeforeCount, e.AfterCount, e.Reason)
	}
	return &Failure{Kind: kind, Reason: reason, Log: events, BestPartialCount: bestPartial}
}
