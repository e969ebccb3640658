// Command novelsegctl is the CLI driver for the novel chapter
// segmentation engine: it wires file discovery, metadata enrichment,
// the core Runner and e-book packaging into a usable product around
// internal/runner, which itself imposes no CLI shape. The chat server,
// chat model, index path and catalog/run-log host flags take their
// defaults from NOVELSEG_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/novelseg/novelseg/internal/chapter"
	"github.com/novelseg/novelseg/internal/discover"
	"github.com/novelseg/novelseg/internal/ingest"
	"github.com/novelseg/novelseg/internal/metadata"
	"github.com/novelseg/novelseg/internal/normalize"
	"github.com/novelseg/novelseg/internal/obslog"
	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/packager"
	"github.com/novelseg/novelseg/internal/runner"
	"github.com/novelseg/novelseg/internal/store/duckstore"
	"github.com/novelseg/novelseg/internal/store/metastore"
	"github.com/novelseg/novelseg/internal/store/runlog"
)

// collaborators are the optional external services a run consults:
// the metadata catalog for hint enrichment and the run-log store for
// reconciliation-log persistence. Either may be nil when unconfigured.
type collaborators struct {
	logger   obslog.Logger
	enricher *metadata.Enricher
	runs     *runlog.Store
}

// connect dials whichever collaborators the config names.
func connect(ctx context.Context, cfg cliConfig, lg obslog.Logger) (collaborators, error) {
	col := collaborators{logger: lg}

	if cfg.CatalogHost != "" {
		db, err := metastore.Open(ctx, metastore.Config{
			User:     cfg.CatalogUser,
			Password: cfg.CatalogPassword,
			Host:     cfg.CatalogHost,
			Name:     cfg.CatalogName,
		})
		if err != nil {
			return col, fmt.Errorf("open catalog: %w", err)
		}
		col.enricher = metadata.New(db, 0)
	}

	if cfg.RunlogHost != "" {
		runs, err := runlog.Open(ctx, cfg.RunlogHost, cfg.RunlogUser, cfg.RunlogPassword, cfg.RunlogDB)
		if err != nil {
			return col, fmt.Errorf("open run-log store: %w", err)
		}
		col.runs = runs
	}

	return col, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: novelsegctl <segment|batch> [flags] <path>")
	}

	switch args[0] {
	case "segment":
		return runSegment(args[1:])
	case "batch":
		return runBatch(args[1:])
	default:
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

// runSegment handles a single file.
func runSegment(args []string) error {
	fs := flag.NewFlagSet("segment", flag.ExitOnError)
	cfg := defaultCLIConfig().registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: novelsegctl segment [flags] <path>")
	}
	path := fs.Arg(0)

	if cfg.ExpectedCount <= 0 {
		hints := normalize.ParseFilename(filepath.Base(path))
		cfg.ExpectedCount = hints.ExpectedCount
	}
	if cfg.ExpectedCount <= 0 {
		return fmt.Errorf("expected-count not provided and could not be derived from filename %q", path)
	}

	store, err := duckstore.Open(cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	lg := obslog.New()

	col, err := connect(ctx, *cfg, lg)
	if err != nil {
		return err
	}

	o := buildOracle(*cfg, store, lg)
	r := runner.New(o, cfg.runnerConfig(lg))

	return segmentOne(ctx, r, *cfg, col, path)
}

// runBatch walks a directory and segments every changed file with
// bounded worker concurrency: distinct goroutines over distinct files,
// sharing one oracle.Limited rate limiter, the one long-lived
// collaborator that crosses run boundaries.
func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	cfg := defaultCLIConfig().registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: novelsegctl batch [flags] <directory>")
	}
	root := fs.Arg(0)

	store, err := duckstore.Open(cfg.DuckDBPath)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	lg := obslog.New()

	candidates, err := discover.Walk(ctx, root, store)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	col, err := connect(ctx, *cfg, lg)
	if err != nil {
		return err
	}

	o := buildOracle(*cfg, store, lg)
	r := runner.New(o, cfg.runnerConfig(lg))

	sem := make(chan struct{}, cfg.BatchWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, c := range candidates {
		if !c.Changed {
			continue
		}

		c := c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			hints := normalize.ParseFilename(filepath.Base(c.Path))
			fileCfg := *cfg
			fileCfg.ExpectedCount = hints.ExpectedCount
			if fileCfg.ExpectedCount <= 0 {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: expected-count could not be derived from filename", c.Path)
				}
				mu.Unlock()
				return
			}

			if err := segmentOne(ctx, r, fileCfg, col, c.Path); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			if err := discover.Record(ctx, store, c, time.Now()); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return firstErr
}

func buildOracle(cfg cliConfig, cache oracle.Cache, lg obslog.Logger) oracle.Oracle {
	base := oracle.NewHTTPClient(obslog.AsClientLogger(lg), cfg.ChatServer, cfg.ChatModel)
	cached := oracle.NewCached(base, cache, cfg.ChatModel)
	return oracle.NewLimited(cached, cfg.oracleConfig())
}

func segmentOne(ctx context.Context, r *runner.Runner, cfg cliConfig, col collaborators, path string) error {
	converted, err := ingest.Converter{}.Normalize(ctx, path, os.TempDir())
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}

	hints, err := resolveHints(ctx, col, filepath.Base(path))
	if err != nil {
		return err
	}

	started := time.Now()
	chapters, rlog, err := r.RunWithHints(ctx, converted, cfg.ExpectedCount, runner.Hints{
		Title:           hints.Title,
		KnownEndMarkers: hints.KnownEndMarkers,
	})

	if col.runs != nil {
		if saveErr := saveRunLog(ctx, col.runs, path, started, rlog, err); saveErr != nil {
			col.logger(ctx, obslog.Warn, "run-log persistence failed", "error", saveErr)
		}
	}

	if err != nil {
		var failure *runner.Failure
		if errors.As(err, &failure) {
			for _, line := range failure.Log {
				fmt.Println(line)
			}
		}
		return fmt.Errorf("segment %s: %w", path, err)
	}

	if cfg.DryRun {
		printLog(rlog)
		fmt.Printf("%s: %d chapters\n", path, len(chapters))
		return nil
	}

	outPath := filepath.Join(cfg.OutDir, stemOf(path)+".epub")

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	meta := packager.Metadata{Title: hints.Title, Series: hints.Series, Volume: hints.Volume}
	if err := packager.Write(f, meta, chapters); err != nil {
		return fmt.Errorf("package %s: %w", outPath, err)
	}

	fmt.Printf("%s: %d chapters -> %s\n", path, len(chapters), outPath)
	return nil
}

// resolveHints parses the filename and, when a catalog is connected,
// reconciles the parse against it.
func resolveHints(ctx context.Context, col collaborators, filename string) (normalize.Hints, error) {
	if col.enricher == nil {
		return normalize.ParseFilename(filename), nil
	}

	hints, err := col.enricher.Enrich(ctx, filename)
	if err != nil {
		return hints, fmt.Errorf("enrich %s: %w", filename, err)
	}
	return hints, nil
}

func saveRunLog(ctx context.Context, runs *runlog.Store, path string, started time.Time, rlog *chapter.Log, runErr error) error {
	rec := runlog.Record{
		RunID:     uuid.NewString(),
		FilePath:  path,
		Succeeded: runErr == nil,
		StartedAt: started,
		Events:    rlog.Events,
	}
	if runErr != nil {
		rec.FailKind = runErr.Error()
	}
	return runs.Save(ctx, rec)
}

func printLog(l *chapter.Log) {
	for _, e := range l.Events {
		fmt.Printf("%s/%s: %d->%d (%s)\n", e.Stage, e.Action, e.BeforeCount, e.AfterCount, e.Reason)
	}
}

func stemOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
