package patternmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dlclark/regexp2"

	"github.com/novelseg/novelseg/internal/encoding"
	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/sampler"
)

func writeSample(t *testing.T, text string) *sampler.Sampler {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "novel.txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	s, err := sampler.Open(path, encoding.UTF8)
	if err != nil {
		t.Fatalf("open sampler: %v", err)
	}
	return s
}

func buildNovel(chapters int) string {
	var b strings.Builder
	for i := 1; i <= chapters; i++ {
		b.WriteString("Chapter ")
		b.WriteString(itoa(i))
		b.WriteString("\n")
		b.WriteString(strings.Repeat("Body text for this chapter. ", 50))
		b.WriteString("\n")
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestGeneratePatternSucceedsOnFirstTry(t *testing.T) {
	novel := buildNovel(5)
	s := writeSample(t, novel)

	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return `^Chapter \d+$`, nil
	})

	m := New(o)
	pattern, err := m.GeneratePattern(context.Background(), s, novel, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := effectiveMatchCount(novel, pattern)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 5 {
		t.Fatalf("matches = %d, want 5", n)
	}
}

func TestGeneratePatternRetriesOnZeroMatches(t *testing.T) {
	novel := buildNovel(3)
	s := writeSample(t, novel)

	attempts := 0
	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		attempts++
		if attempts < 2 {
			return `^NoSuchHeaderEver$`, nil
		}
		return `^Chapter \d+$`, nil
	})

	m := New(o)
	pattern, err := m.GeneratePattern(context.Background(), s, novel, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pattern == nil {
		t.Fatalf("expected a pattern")
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestGeneratePatternFailsAfterKRetries(t *testing.T) {
	novel := buildNovel(3)
	s := writeSample(t, novel)

	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return `^NoSuchHeaderEver$`, nil
	})

	m := New(o)
	_, err := m.GeneratePattern(context.Background(), s, novel, 3)
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestAutoValidateAppliesEndMarkerFilter(t *testing.T) {
	novel := "Chapter 1\nBody one.\nChapter 2\nBody two.\nEND\n"
	pattern := mustCompile(t, `^(Chapter \d+|END)$`)

	m := New(oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatalf("auto-validate must not call the oracle")
		return "", nil
	}))

	validated, _, err := m.AutoValidate(novel, pattern, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched, err := validated.MatchString("END")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if matched {
		t.Errorf("validated pattern should no longer match the END marker")
	}
}

func TestAutoValidateRelaxesNumberOptional(t *testing.T) {
	// "Chapter" with no trailing digit for one of the three headers.
	// Bodies are long enough that adjacent headers clear MinPairGap.
	body := strings.Repeat("Body text for this chapter. ", 30)
	novel := "Chapter 1\n" + body + "\nChapter\n" + body + "\nChapter 3\n" + body + "\n"
	pattern := mustCompile(t, `^Chapter\s*\d+$`)

	m := New(oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatalf("auto-validate must not call the oracle")
		return "", nil
	}))

	validated, _, err := m.AutoValidate(novel, pattern, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := effectiveMatchCount(novel, validated)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("matches = %d, want 3 after relaxation", n)
	}
}

func TestFilterCloseDuplicatesDropsSecondOfPair(t *testing.T) {
	offsets := []int{0, 100, 10_000, 10_200}
	filtered, dropped := filterCloseDuplicates(offsets)
	if len(filtered) != 2 {
		t.Fatalf("got %d offsets, want 2: %v", len(filtered), filtered)
	}
	if len(dropped) != 2 {
		t.Fatalf("got %d dropped pairs, want 2: %v", len(dropped), dropped)
	}
	if dropped[0].KeptOffset != 0 || dropped[0].DroppedOffset != 100 {
		t.Errorf("dropped[0] = %+v, want {KeptOffset:0 DroppedOffset:100}", dropped[0])
	}
	if dropped[1].KeptOffset != 10_000 || dropped[1].DroppedOffset != 10_200 {
		t.Errorf("dropped[1] = %+v, want {KeptOffset:10000 DroppedOffset:10200}", dropped[1])
	}
}

func TestRefineAcceptsBroaderPattern(t *testing.T) {
	filler := strings.Repeat("Body filler text. ", 4000) // ~72KB per chapter
	var b strings.Builder
	for i := 1; i <= 4; i++ {
		b.WriteString("Chapter ")
		b.WriteString(itoa(i))
		b.WriteString("\n")
		b.WriteString(filler)
		b.WriteString("\n")
	}
	novel := b.String()
	s := writeSample(t, novel)

	// Only matches odd-numbered chapters, leaving a large gap around
	// the even-numbered ones for refinement to discover.
	narrow := mustCompile(t, `^Chapter [13]$`)

	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return `^Chapter \d+$`, nil
	})

	m := New(o)
	refined, rejections, _, err := m.Refine(context.Background(), s, novel, narrow, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := effectiveMatchCount(novel, refined)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("matches = %d, want 4", n)
	}
	if rejections != 0 {
		t.Errorf("rejections = %d, want 0 after acceptance", rejections)
	}
}

func TestDirectAITitleSearchFiltersToVerbatimLines(t *testing.T) {
	novel := "Chapter 1\nBody.\nChapter 2\nBody.\n"
	s := writeSample(t, novel)

	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return "Chapter 1\nChapter 2\nMade Up Title That Does Not Exist\nEND\n", nil
	})

	m := New(o)
	titles, err := m.DirectAITitleSearch(context.Background(), s, novel, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, title := range titles {
		if title == "Made Up Title That Does Not Exist" || title == "END" {
			t.Errorf("unexpected title survived filtering: %q", title)
		}
	}
}

func TestDirectAITitleSearchSuppressesOracleVariance(t *testing.T) {
	novel := "Chapter 1\nBody.\nChapter 2\nBody.\nFlaky Title\nBody.\n"
	s := writeSample(t, novel)

	calls := 0
	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		// "Flaky Title" only shows up on every third call (one run out
		// of each window's ConsensusRuns=3), so it should never reach
		// ConsensusMinAgree=2 and must be suppressed.
		if calls%3 == 1 {
			return "Chapter 1\nChapter 2\nFlaky Title\n", nil
		}
		return "Chapter 1\nChapter 2\n", nil
	})

	m := New(o)
	titles, err := m.DirectAITitleSearch(context.Background(), s, novel, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, title := range titles {
		if title == "Flaky Title" {
			t.Errorf("single-run title survived without reaching consensus: %q", title)
		}
	}
	if calls < ConsensusRuns {
		t.Errorf("oracle called %d times, want at least %d (consensus not wired)", calls, ConsensusRuns)
	}
}

func TestBuildPatternFromExamplesValidatesAgainstExamples(t *testing.T) {
	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return `^Chapter \d+$`, nil
	})

	m := New(o)
	pattern, err := m.BuildPatternFromExamples(context.Background(), []string{"Chapter 1", "Chapter 2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched, err := pattern.MatchString("Chapter 1")
	if err != nil || !matched {
		t.Errorf("synthesized pattern should match its own examples")
	}
}

func TestBuildPatternFromExamplesRejectsNonMatchingPattern(t *testing.T) {
	o := oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return `^Totally Unrelated$`, nil
	})

	m := New(o)
	_, err := m.BuildPatternFromExamples(context.Background(), []string{"Chapter 1"})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestConsensusKeepsOnlyAgreedResults(t *testing.T) {
	run := 0
	responses := [][]string{
		{"Chapter 1", "Chapter 2", "Flaky One"},
		{"Chapter 1", "Chapter 2"},
		{"Chapter 1", "Flaky Two"},
	}

	m := New(oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", nil
	}))

	agreed, err := m.Consensus(context.Background(), func(ctx context.Context) ([]string, error) {
		r := responses[run]
		run++
		return r, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]bool{"Chapter 1": true, "Chapter 2": true}
	for _, r := range agreed {
		if !want[r] {
			t.Errorf("unexpected agreed result: %q", r)
		}
		delete(want, r)
	}
	if len(want) != 0 {
		t.Errorf("missing expected agreed results: %v", want)
	}
}

func mustCompile(t *testing.T, source string) *regexp2.Regexp {
	t.Helper()
	p, err := compile(source)
	if err != nil {
		t.Fatalf("compile %q: %v", source, err)
	}
	return p
}

func TestCountMatchesReportsByteOffsetsForMultibyteText(t *testing.T) {
	novel := "제1화 시작\n본문입니다.\n제2화 계속\n본문이 더 있습니다.\n"
	pattern := mustCompile(t, `^제\d+화`)

	offsets, err := countMatches(novel, pattern)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offsets) != 2 {
		t.Fatalf("got %d offsets, want 2: %v", len(offsets), offsets)
	}
	if offsets[0] != 0 {
		t.Errorf("offsets[0] = %d, want 0", offsets[0])
	}
	want := strings.Index(novel, "제2화")
	if offsets[1] != want {
		t.Errorf("offsets[1] = %d, want byte offset %d", offsets[1], want)
	}
}

func TestWithKnownEndMarkersExtendsFilter(t *testing.T) {
	novel := "Chapter 1\nBody one.\nChapter 2 [fine]\nBody two.\n"
	pattern := mustCompile(t, `^Chapter \d+`)

	m := New(oracle.OracleFunc(func(ctx context.Context, prompt string) (string, error) {
		t.Fatalf("auto-validate must not call the oracle")
		return "", nil
	}), WithKnownEndMarkers("[fine]"))

	validated, _, err := m.AutoValidate(novel, pattern, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matched, err := validated.MatchString("Chapter 2 [fine]")
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if matched {
		t.Errorf("caller-supplied end marker should be filtered out")
	}
}
