// Package metastore is the metadata-catalog collaborator outside the
// segmentation core: a Postgres-backed catalog of book/series/volume
// metadata and known end-marker lexemes that internal/metadata
// consults to pre-populate a run's metadata hints. Open is written
// directly against pgx's stdlib driver via sqlx.
package metastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Config dials a Postgres catalog database.
type Config struct {
	User         string
	Password     string
	Host         string
	Name         string
	DisableTLS   bool
	MaxIdleConns int
	MaxOpenConns int
}

// Open connects to the catalog database and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	sslmode := "require"
	if cfg.DisableTLS {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Name, sslmode)

	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore: open: %w", err)
	}

	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: ping: %w", err)
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func ensureSchema(ctx context.Context, db *sqlx.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS books (
			id                 BIGSERIAL PRIMARY KEY,
			series             TEXT NOT NULL DEFAULT '',
			volume             INT  NOT NULL DEFAULT 0,
			title              TEXT NOT NULL,
			known_end_markers  TEXT NOT NULL DEFAULT '',
			UNIQUE (series, volume, title)
		);`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("metastore: schema: %w", err)
	}

	return nil
}

// Book is a catalog entry.
type Book struct {
	ID              int64
	Series          string
	Volume          int
	Title           string
	KnownEndMarkers []string
}

// markerSeparator joins end-marker lexemes into the single TEXT column
// they are stored as; none of the lexemes contain a newline.
const markerSeparator = "\n"

// bookRow is Book as it lies in the table, with the marker list
// flattened to one column.
type bookRow struct {
	ID              int64  `db:"id"`
	Series          string `db:"series"`
	Volume          int    `db:"volume"`
	Title           string `db:"title"`
	KnownEndMarkers string `db:"known_end_markers"`
}

func (r bookRow) book() Book {
	b := Book{ID: r.ID, Series: r.Series, Volume: r.Volume, Title: r.Title}
	for _, m := range strings.Split(r.KnownEndMarkers, markerSeparator) {
		if m != "" {
			b.KnownEndMarkers = append(b.KnownEndMarkers, m)
		}
	}
	return b
}

// Upsert records or updates a Book keyed by (series, volume, title).
func Upsert(ctx context.Context, db *sqlx.DB, b Book) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO books (series, volume, title, known_end_markers)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (series, volume, title) DO UPDATE SET
			known_end_markers = EXCLUDED.known_end_markers`,
		b.Series, b.Volume, b.Title, strings.Join(b.KnownEndMarkers, markerSeparator))
	if err != nil {
		return fmt.Errorf("metastore: upsert: %w", err)
	}

	return nil
}

// BySeries returns every cataloged volume of series, ordered by volume.
func BySeries(ctx context.Context, db *sqlx.DB, series string) ([]Book, error) {
	var rows []bookRow
	err := db.SelectContext(ctx, &rows, `
		SELECT id, series, volume, title, known_end_markers
		FROM books WHERE series = $1 ORDER BY volume`, series)
	if err != nil {
		return nil, fmt.Errorf("metastore: by series: %w", err)
	}

	return toBooks(rows), nil
}

// AllTitles returns every cataloged title, for fuzzy matching by
// internal/metadata/similarity.
func AllTitles(ctx context.Context, db *sqlx.DB) ([]Book, error) {
	var rows []bookRow
	err := db.SelectContext(ctx, &rows, `SELECT id, series, volume, title, known_end_markers FROM books`)
	if err != nil {
		return nil, fmt.Errorf("metastore: all titles: %w", err)
	}

	return toBooks(rows), nil
}

func toBooks(rows []bookRow) []Book {
	books := make([]Book, len(rows))
	for i, r := range rows {
		books[i] = r.book()
	}
	return books
}
