// Package similarity applies foundation/vector's cosine-similarity
// scoring to trigram-hashed title vectors, for the fuzzy series/title
// matching internal/metadata needs when a filename's normalized title
// doesn't exactly match a metastore catalog entry (OCR noise,
// romanization differences, punctuation drift). Hashed trigram counts
// stand in for embeddings: fuzzy catalog matching has no business
// making a model round trip for a few hundred short strings.
package similarity

import (
	"strings"

	"github.com/novelseg/novelseg/foundation/vector"
)

// dims bounds the trigram hash space; small enough to keep the vectors
// cheap, large enough that collisions rarely matter for short titles.
const dims = 256

// titleVector hashes s's character trigrams into a fixed-width count
// vector implementing vector.Data so it can be fed to
// vector.CosineSimilarity / vector.Similarity directly.
type titleVector struct {
	counts []float64
}

// Vector implements vector.Data.
func (t titleVector) Vector() []float64 { return t.counts }

// Vectorize builds a trigram count vector for s.
func Vectorize(s string) titleVector {
	norm := normalize(s)
	counts := make([]float64, dims)

	runes := []rune(norm)
	if len(runes) < 3 {
		for _, r := range runes {
			counts[int(r)%dims]++
		}
		return titleVector{counts: counts}
	}

	for i := 0; i+3 <= len(runes); i++ {
		h := hashTrigram(runes[i], runes[i+1], runes[i+2])
		counts[h%dims]++
	}

	return titleVector{counts: counts}
}

func hashTrigram(a, b, c rune) int {
	h := 2166136261
	for _, r := range []rune{a, b, c} {
		h = (h ^ int(r)) * 16777619
		if h < 0 {
			h = -h
		}
	}
	return h
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return s
}

// Candidate pairs a catalog title with its originating record key
// (e.g. a metastore.Book.ID encoded as a string), so the caller can map
// a match back to its row.
type Candidate struct {
	Key   string
	Title string
}

// Match scores query against every candidate and returns the
// highest-scoring candidate whose cosine similarity is >= minScore,
// together with that score. ok is false when nothing cleared the
// threshold.
func Match(query string, candidates []Candidate, minScore float64) (Candidate, float64, bool) {
	if len(candidates) == 0 {
		return Candidate{}, 0, false
	}

	qv := Vectorize(query)

	dataPoints := make([]vector.Data, len(candidates))
	for i, c := range candidates {
		dataPoints[i] = Vectorize(c.Title)
	}

	results := vector.Similarity(qv, dataPoints...)

	bestIdx := -1
	bestScore := minScore
	for i, r := range results {
		if r.Similarity >= bestScore {
			bestScore = r.Similarity
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return Candidate{}, 0, false
	}

	return candidates[bestIdx], bestScore, true
}
