// Package metadata enriches a run's advisory hints: given a filename
// and anything already parsed from it, it looks up and reconciles book
// title, series, volume index and known end-marker lexemes against a
// local catalog (internal/store/metastore) and hands back a fully
// populated Hints value. It performs no web-grounded search; the only
// LLM consumed anywhere in this system is the segmentation core's own
// oracle, and this layer's enrichment is local-catalog lookup only.
package metadata

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/novelseg/novelseg/internal/metadata/similarity"
	"github.com/novelseg/novelseg/internal/normalize"
	"github.com/novelseg/novelseg/internal/store/metastore"
)

// Enricher reconciles filename-derived hints against the catalog.
type Enricher struct {
	db       *sqlx.DB
	minScore float64
}

// New builds an Enricher over an already-open catalog connection.
// minScore is the fuzzy-match floor passed to similarity.Match (0.82 is
// a reasonable default: typo/romanization-tolerant but not promiscuous).
func New(db *sqlx.DB, minScore float64) *Enricher {
	if minScore <= 0 {
		minScore = 0.82
	}
	return &Enricher{db: db, minScore: minScore}
}

// Enrich parses filename and reconciles the result against the
// catalog: an exact (series, volume) hit fills in known end markers
// and the canonical title; otherwise a fuzzy title match against the
// whole catalog is attempted before falling back to the filename's own
// parse.
func (e *Enricher) Enrich(ctx context.Context, filename string) (normalize.Hints, error) {
	hints := normalize.ParseFilename(filename)

	if hints.Series != "" {
		books, err := metastore.BySeries(ctx, e.db, hints.Series)
		if err != nil {
			return hints, fmt.Errorf("metadata: by series: %w", err)
		}

		for _, b := range books {
			if b.Volume == hints.Volume {
				hints.Title = b.Title
				hints.KnownEndMarkers = b.KnownEndMarkers
				return hints, nil
			}
		}
	}

	all, err := metastore.AllTitles(ctx, e.db)
	if err != nil {
		return hints, fmt.Errorf("metadata: all titles: %w", err)
	}

	candidates := make([]similarity.Candidate, len(all))
	for i, b := range all {
		candidates[i] = similarity.Candidate{Key: fmt.Sprintf("%d", b.ID), Title: b.Title}
	}

	if match, _, ok := similarity.Match(hints.Title, candidates, e.minScore); ok {
		for _, b := range all {
			if fmt.Sprintf("%d", b.ID) == match.Key {
				hints.Title = b.Title
				if hints.Series == "" {
					hints.Series = b.Series
				}
				hints.KnownEndMarkers = b.KnownEndMarkers
				break
			}
		}
	}

	return hints, nil
}
