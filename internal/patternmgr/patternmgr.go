// Package patternmgr owns every oracle interaction needed to acquire,
// repair and augment the chapter-header regular expression: initial
// generation from sampled text, deterministic auto-repair, gap-directed
// refinement, direct title search, reverse-regex synthesis and
// consensus voting over oracle variance. It is the busiest component
// in the pipeline and the only one that talks to the LLM about the
// pattern itself (the AI Scorer and Topic Change Detector talk to the
// LLM about candidate lines instead).
package patternmgr

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/sampler"
)

// InitialGenerationRetries is K, the number of progressively stricter
// attempts at producing a pattern that matches at least one line.
const InitialGenerationRetries = 3

// MinPairGap is the byte distance below which two consecutive matches
// are treated as a start/end duplicate of the same header.
const MinPairGap = 500

// MaxGapsToAnalyze bounds how many of the largest gaps gap-directed
// refinement samples and sends to the oracle per call.
const MaxGapsToAnalyze = 3

// DirectSearchThreshold: direct AI title search triggers once the
// best match count falls below this fraction of the expected count.
// The Runner makes that call; this package just implements the search.
const DirectSearchThreshold = 0.95

// UniformSampleCount is how many uniform windows direct title search
// draws from the file.
const UniformSampleCount = 30

// ChunkBytes bounds each direct-search oracle call's sample size.
const ChunkBytes = 20 * 1024

// ConsensusRuns and ConsensusMinAgree: a single-shot extraction task
// may be issued this many times, keeping only results that agree
// across at least ConsensusMinAgree runs.
const (
	ConsensusRuns     = 3
	ConsensusMinAgree = 2
)

// EndMarkerLexemes are tokens that mark a closing line (an end-of-work
// notice), never a chapter header.
var EndMarkerLexemes = []string{"끝", "완", "END", "end", "fin", "종료", "끗", "完"}

// ErrPatternUnusable reports that initial pattern generation failed
// InitialGenerationRetries times without producing any compiling,
// matching pattern.
var ErrPatternUnusable = errors.New("patternmgr: no usable pattern could be generated")

// Manager funnels every pattern-acquisition oracle call through a
// single rate-limited Oracle.
type Manager struct {
	oracle     oracle.Oracle
	endMarkers []string
}

// New builds a Manager around o, which should already be wrapped with
// the shared rate limiter (internal/oracle.Limited).
func New(o oracle.Oracle, options ...func(m *Manager)) *Manager {
	m := Manager{
		oracle:     o,
		endMarkers: EndMarkerLexemes,
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// WithKnownEndMarkers extends the built-in end-marker lexemes with
// markers already known for this source (advisory metadata_hints input).
func WithKnownEndMarkers(markers ...string) func(m *Manager) {
	return func(m *Manager) {
		for _, mk := range markers {
			mk = strings.TrimSpace(mk)
			if mk != "" {
				m.endMarkers = append(m.endMarkers, mk)
			}
		}
	}
}

// compile validates and compiles a raw pattern source string: it must
// compile, must not begin with a repetition meta-character, and must
// have balanced parentheses.
func compile(source string) (*regexp2.Regexp, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("patternmgr: empty pattern")
	}
	if strings.HasPrefix(source, "*") || strings.HasPrefix(source, "+") || strings.HasPrefix(source, "?") {
		return nil, fmt.Errorf("patternmgr: pattern %q begins with a repetition meta-character", source)
	}
	if !balancedParens(source) {
		return nil, fmt.Errorf("patternmgr: pattern %q has unbalanced parentheses", source)
	}

	re, err := regexp2.Compile(source, regexp2.Multiline|regexp2.Unicode)
	if err != nil {
		return nil, fmt.Errorf("patternmgr: compile %q: %w", source, err)
	}
	return re, nil
}

func balancedParens(s string) bool {
	depth := 0
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// countMatches returns every match's starting byte offset, in order,
// for pattern applied against text. regexp2 reports match positions as
// code-point indexes; those are converted to byte offsets here, once,
// so every downstream distance computation (close-duplicate filtering,
// dynamic gaps, sampler reads) stays in byte space.
func countMatches(text string, pattern *regexp2.Regexp) ([]int, error) {
	var offsets []int
	conv := newByteOffsets(text)

	m, err := pattern.FindStringMatch(text)
	for m != nil {
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, conv.at(m.Index))
		m, err = pattern.FindNextMatch(m)
	}
	if err != nil {
		return nil, fmt.Errorf("patternmgr: matching: %w", err)
	}

	return offsets, nil
}

// byteOffsets converts ascending code-point indexes into byte offsets
// with a single forward scan over the text.
type byteOffsets struct {
	text    string
	runeIdx int
	byteIdx int
}

func newByteOffsets(text string) *byteOffsets {
	return &byteOffsets{text: text}
}

func (b *byteOffsets) at(runeOffset int) int {
	for b.runeIdx < runeOffset && b.byteIdx < len(b.text) {
		_, size := utf8.DecodeRuneInString(b.text[b.byteIdx:])
		b.byteIdx += size
		b.runeIdx++
	}
	return b.byteIdx
}

// DuplicatePair records one close-duplicate decision made by
// filterCloseDuplicates: the first offset of the pair is kept, the
// second is dropped, and both offsets are surfaced so the caller can
// log the decision rather than lose it.
type DuplicatePair struct {
	KeptOffset    int
	DroppedOffset int
}

// effectiveMatchCount applies the close-duplicate filter on top of
// raw matches: consecutive matches separated by fewer than MinPairGap
// bytes collapse into one.
func effectiveMatchCount(text string, pattern *regexp2.Regexp) (int, error) {
	offsets, err := countMatches(text, pattern)
	if err != nil {
		return 0, err
	}
	kept, _ := filterCloseDuplicates(offsets)
	return len(kept), nil
}

// closeDuplicatesFor reports every close-duplicate pair the filter
// would drop for pattern applied against text, without discarding the
// information the way a bare match count does.
func closeDuplicatesFor(text string, pattern *regexp2.Regexp) ([]DuplicatePair, error) {
	offsets, err := countMatches(text, pattern)
	if err != nil {
		return nil, err
	}
	_, dropped := filterCloseDuplicates(offsets)
	return dropped, nil
}

func filterCloseDuplicates(offsets []int) ([]int, []DuplicatePair) {
	if len(offsets) == 0 {
		return offsets, nil
	}

	filtered := []int{offsets[0]}
	var dropped []DuplicatePair
	for i := 1; i < len(offsets); i++ {
		if offsets[i]-filtered[len(filtered)-1] < MinPairGap {
			dropped = append(dropped, DuplicatePair{
				KeptOffset:    filtered[len(filtered)-1],
				DroppedOffset: offsets[i],
			})
			continue
		}
		filtered = append(filtered, offsets[i])
	}
	return filtered, dropped
}

// matchesEndMarker reports whether line's non-whitespace tail contains
// an end-marker lexeme.
func (m *Manager) matchesEndMarker(line string) bool {
	tail := strings.TrimSpace(line)
	for _, lex := range m.endMarkers {
		if strings.Contains(tail, lex) {
			return true
		}
	}
	return false
}

// stripRawResponse trims an LLM completion down to its raw pattern
// text, tolerating a markdown code fence around the regex.
func stripRawResponse(completion string) string {
	s := strings.TrimSpace(completion)
	s = strings.TrimPrefix(s, "```regex")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// GeneratePattern obtains head/middle/tail samples and asks the
// oracle for a single raw regex matching chapter-title lines, retrying
// up to InitialGenerationRetries times with progressively stricter
// prompts if the result fails to compile or matches zero lines.
func (m *Manager) GeneratePattern(ctx context.Context, s *sampler.Sampler, fullText string, expectedCount int) (*regexp2.Regexp, error) {
	head, middle, tail, err := s.HeadMiddleTail(sampler.DefaultWindowBytes)
	if err != nil {
		return nil, fmt.Errorf("patternmgr: sampling for pattern generation: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < InitialGenerationRetries; attempt++ {
		prompt := initialPatternPrompt(head.Text, middle.Text, tail.Text, m.endMarkers, expectedCount, attempt)

		completion, err := m.oracle.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}

		pattern, err := compile(stripRawResponse(completion))
		if err != nil {
			lastErr = err
			continue
		}

		n, err := effectiveMatchCount(fullText, pattern)
		if err != nil {
			lastErr = err
			continue
		}
		if n == 0 {
			lastErr = fmt.Errorf("patternmgr: pattern %q matched no lines", pattern.String())
			continue
		}

		return pattern, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrPatternUnusable, lastErr)
}

func initialPatternPrompt(head, middle, tail string, endMarkers []string, expectedCount, attempt int) string {
	var b strings.Builder
	b.WriteString("Emit a single raw regular expression, and nothing else, that matches chapter-title lines in the text below.\n")
	b.WriteString("Recognize numbered headers (\"Chapter 1\", \"1장\"), bracketed headers (\"[1]\", \"제1화\"), and decorated headers (\"— 1 —\").\n")
	fmt.Fprintf(&b, "Do not match lines ending in any of these end-of-work markers: %s.\n", strings.Join(endMarkers, ", "))
	fmt.Fprintf(&b, "The file is expected to contain %d chapters.\n", expectedCount)

	if attempt > 0 {
		b.WriteString("Your previous answer did not compile or matched no lines. Be more conservative and only match lines that clearly look like chapter headers.\n")
	}

	b.WriteString("\n--- head ---\n")
	b.WriteString(head)
	b.WriteString("\n--- middle ---\n")
	b.WriteString(middle)
	b.WriteString("\n--- tail ---\n")
	b.WriteString(tail)

	return b.String()
}

// AutoValidate repairs a pattern with zero LLM calls: it applies the
// end-marker filter, then evaluates number-optional relaxation
// variants, keeping whichever pattern's effective match count lands
// closest to expectedCount, preferring the more aggressive variant on
// ties. The second return value reports every close-duplicate pair
// the filter dropped for the returned pattern, so the caller can log
// both the kept and dropped offsets.
func (m *Manager) AutoValidate(fullText string, pattern *regexp2.Regexp, expectedCount int) (*regexp2.Regexp, []DuplicatePair, error) {
	filtered, err := m.withEndMarkerFilter(pattern)
	if err != nil {
		// The filter is best-effort; fall back to the unfiltered
		// pattern rather than failing the run.
		filtered = pattern
	}

	best := filtered
	bestCount, err := effectiveMatchCount(fullText, best)
	if err != nil {
		return nil, nil, fmt.Errorf("patternmgr: auto-validate: %w", err)
	}
	bestDistance := distance(bestCount, expectedCount)

	for _, variantSource := range numberOptionalVariants(filtered.String()) {
		variant, err := compile(variantSource)
		if err != nil {
			continue
		}
		n, err := effectiveMatchCount(fullText, variant)
		if err != nil {
			continue
		}
		d := distance(n, expectedCount)
		if d < bestDistance {
			best = variant
			bestDistance = d
			bestCount = n
		}
	}

	duplicates, err := closeDuplicatesFor(fullText, best)
	if err != nil {
		return nil, nil, fmt.Errorf("patternmgr: auto-validate: close-duplicate scan: %w", err)
	}

	return best, duplicates, nil
}

func distance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d
}

// withEndMarkerFilter prepends a negative lookahead to pattern's source
// so it no longer matches lines whose tail contains an end-marker
// lexeme. Requires regexp2's lookaround support; Go's stdlib regexp
// (RE2) cannot express this.
func (m *Manager) withEndMarkerFilter(pattern *regexp2.Regexp) (*regexp2.Regexp, error) {
	var alternatives []string
	for _, lex := range m.endMarkers {
		alternatives = append(alternatives, regexp.QuoteMeta(lex))
	}
	negative := fmt.Sprintf("(?!.*(?:%s)\\s*$)", strings.Join(alternatives, "|"))

	source := pattern.String()
	return compile(negative + source)
}

// digitGroup locates a parenthesized group containing a digit
// repetition, in either its original \d+ form or after the \d+ -> \d*
// rewrite has already run.
var digitGroup = regexp.MustCompile(`(\([^()]*\\d[+*][^()]*\))`)

// numberOptionalVariants produces the three relaxation variants:
// \d+ -> \d*, parenthesized digit groups made optional, and both
// combined.
func numberOptionalVariants(source string) []string {
	digitPlusToStar := strings.ReplaceAll(source, `\d+`, `\d*`)

	digitGroupOptional := digitGroup.ReplaceAllString(source, `(?:$1)?`)

	both := digitGroup.ReplaceAllString(digitPlusToStar, `(?:$1)?`)

	return []string{both, digitGroupOptional, digitPlusToStar}
}
