package similarity

import "testing"

func TestMatchExactWins(t *testing.T) {
	candidates := []Candidate{
		{Key: "1", Title: "Solo Leveling"},
		{Key: "2", Title: "Tower of God"},
		{Key: "3", Title: "Omniscient Reader"},
	}

	got, score, ok := Match("Solo Leveling", candidates, 0.5)
	if !ok {
		t.Fatalf("expected a match")
	}
	if got.Key != "1" {
		t.Fatalf("Key = %q, want %q", got.Key, "1")
	}
	if score < 0.99 {
		t.Fatalf("score = %v, want ~1.0 for an exact match", score)
	}
}

func TestMatchNoCandidatesClearThreshold(t *testing.T) {
	candidates := []Candidate{
		{Key: "1", Title: "Completely Unrelated Book"},
	}

	_, _, ok := Match("Solo Leveling", candidates, 0.95)
	if ok {
		t.Fatalf("expected no match above an unreachable threshold")
	}
}

func TestMatchEmptyCandidates(t *testing.T) {
	_, _, ok := Match("anything", nil, 0.1)
	if ok {
		t.Fatalf("expected no match with no candidates")
	}
}

func TestMatchToleratesMinorVariation(t *testing.T) {
	candidates := []Candidate{
		{Key: "1", Title: "Solo  Leveling"},
	}

	_, score, ok := Match("solo leveling", candidates, 0.8)
	if !ok {
		t.Fatalf("expected a fuzzy match tolerant of case and whitespace")
	}
	if score < 0.8 {
		t.Fatalf("score = %v, want >= 0.8", score)
	}
}
