// Package discover walks a directory tree of novel text files and
// computes a content hash per file, so a batch driver can skip files
// that have not changed since their last successful segmentation. The
// walk is plain filepath.WalkDir + crypto/sha256, backed by
// internal/store/duckstore for the index.
package discover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/novelseg/novelseg/internal/store/duckstore"
)

// Candidate is one discovered file, with its freshness relative to the
// content-hash index already known.
type Candidate struct {
	Path        string
	ContentHash string
	SizeBytes   int64
	Mtime       time.Time
	// Changed is true when no index row existed, or the content hash
	// differs from what was last recorded.
	Changed bool
}

// extensions recognized as novel submissions worth discovering.
// internal/ingest further classifies these; this package only needs to
// know what to pick up.
var extensions = map[string]bool{
	".txt": true, ".pdf": true, ".docx": true, ".odt": true,
	".html": true, ".htm": true, ".epub": true,
}

// Walk scans root for recognized files and reports each alongside its
// staleness against store's index, sorted by path for deterministic
// batch ordering.
func Walk(ctx context.Context, root string, store *duckstore.Store) ([]Candidate, error) {
	var paths []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !extensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}

	sort.Strings(paths)

	candidates := make([]Candidate, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := hashFile(path)
		if err != nil {
			return nil, fmt.Errorf("discover: hash %s: %w", path, err)
		}

		if store != nil {
			rec, ok, err := store.Lookup(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("discover: lookup %s: %w", path, err)
			}
			c.Changed = !ok || rec.ContentHash != c.ContentHash
		} else {
			c.Changed = true
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// Record upserts path's index row after a successful segmentation run.
func Record(ctx context.Context, store *duckstore.Store, c Candidate, segmentedAt time.Time) error {
	return store.Upsert(ctx, duckstore.FileRecord{
		Path:            c.Path,
		ContentHash:     c.ContentHash,
		SizeBytes:       c.SizeBytes,
		Mtime:           c.Mtime,
		LastSegmentedAt: &segmentedAt,
	})
}

func hashFile(path string) (Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Candidate{}, fmt.Errorf("stat: %w", err)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Candidate{}, fmt.Errorf("hash: %w", err)
	}

	return Candidate{
		Path:        path,
		ContentHash: hex.EncodeToString(h.Sum(nil)),
		SizeBytes:   info.Size(),
		Mtime:       info.ModTime(),
	}, nil
}
