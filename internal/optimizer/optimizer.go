// Package optimizer selects exactly N boundaries from a merged pool of
// scored candidates under a minimum-spacing constraint, by greedy
// descent on combined score. It is the last stage of the advanced
// pipeline before the Splitter runs in boundary mode.
package optimizer

import (
	"sort"

	"github.com/novelseg/novelseg/internal/chapter"
)

// MinSpacingFloor is the smallest allowed minimum spacing between
// chosen boundaries, regardless of how small avgChapterBytes is.
const MinSpacingFloor = 2000

// AIWeight and StructuralWeight combine a candidate's AI Scorer output
// and its structural score into one ranking value.
const (
	AIWeight         = 0.7
	StructuralWeight = 0.3
)

// MaxSpacingHalvings bounds how many times the minimum spacing is
// halved before the optimizer gives up and reports a shortfall.
const MaxSpacingHalvings = 3

// ScoredCandidate is one candidate boundary carrying both the AI
// Scorer's likelihood and the Structural Analyzer's heuristic score,
// combined into Combined by Combine.
type ScoredCandidate struct {
	Boundary        chapter.Boundary
	AIScore         float64
	StructuralScore float64
	Combined        float64
}

// Combine fills in Combined = AIWeight*AIScore + StructuralWeight*StructuralScore.
func Combine(candidates []ScoredCandidate) {
	for i := range candidates {
		candidates[i].Combined = AIWeight*candidates[i].AIScore + StructuralWeight*candidates[i].StructuralScore
	}
}

// Result is the optimizer's outcome: the chosen boundaries, in
// ascending byte-offset order, and whether the chosen count matches the
// caller's target exactly.
type Result struct {
	Boundaries  []chapter.Boundary
	Shortfall   int
	SpacingUsed int64
}

// Select runs greedy descent over candidates by Combined score,
// rejecting any candidate whose byte offset lies within the minimum
// spacing of an already-chosen one, until n are chosen or the
// candidate pool is exhausted. On shortfall, the minimum spacing is
// halved (up to MaxSpacingHalvings times) and the pass retried.
func Select(candidates []ScoredCandidate, n int, fileSize int64, avgChapterBytes int64) Result {
	spacing := minSpacing(avgChapterBytes)
	idealStride := idealStride(fileSize, n)

	ranked := rankedCopy(candidates, idealStride)

	var chosen []chapter.Boundary
	for attempt := 0; attempt <= MaxSpacingHalvings; attempt++ {
		chosen = greedySelect(ranked, n, spacing)
		if len(chosen) >= n {
			chosen = chosen[:n]
			break
		}
		if attempt < MaxSpacingHalvings {
			spacing /= 2
		}
	}

	sort.Slice(chosen, func(i, j int) bool {
		return chosen[i].ByteOffset < chosen[j].ByteOffset
	})

	return Result{
		Boundaries:  chosen,
		Shortfall:   n - len(chosen),
		SpacingUsed: spacing,
	}
}

// minSpacing implements δ = max(avg_chapter_bytes / 4, 2_000).
func minSpacing(avgChapterBytes int64) int64 {
	d := avgChapterBytes / 4
	if d < MinSpacingFloor {
		d = MinSpacingFloor
	}
	return d
}

func idealStride(fileSize int64, n int) int64 {
	if n <= 0 {
		return fileSize
	}
	return fileSize / int64(n)
}

// rankedCopy sorts candidates by Combined score descending, breaking
// ties by proximity to the nearest multiple of idealStride.
func rankedCopy(candidates []ScoredCandidate, idealStride int64) []ScoredCandidate {
	ranked := make([]ScoredCandidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Combined != ranked[j].Combined {
			return ranked[i].Combined > ranked[j].Combined
		}
		return strideDistance(ranked[i].Boundary.ByteOffset, idealStride) < strideDistance(ranked[j].Boundary.ByteOffset, idealStride)
	})

	return ranked
}

// strideDistance returns the distance from offset to the nearest
// multiple of idealStride, used to break score ties.
func strideDistance(offset, idealStride int64) int64 {
	if idealStride <= 0 {
		return 0
	}
	nearest := (offset / idealStride) * idealStride
	lo := offset - nearest
	hi := (nearest + idealStride) - offset
	if lo < hi {
		return lo
	}
	return hi
}

// greedySelect walks ranked in order, accepting a candidate unless its
// byte offset lies within spacing of one already chosen.
func greedySelect(ranked []ScoredCandidate, n int, spacing int64) []chapter.Boundary {
	var chosen []chapter.Boundary
	for _, c := range ranked {
		if len(chosen) >= n {
			break
		}
		if tooClose(chosen, c.Boundary.ByteOffset, spacing) {
			continue
		}
		chosen = append(chosen, c.Boundary)
	}
	return chosen
}

func tooClose(chosen []chapter.Boundary, offset, spacing int64) bool {
	for _, b := range chosen {
		diff := b.ByteOffset - offset
		if diff < 0 {
			diff = -diff
		}
		if diff < spacing {
			return true
		}
	}
	return false
}
