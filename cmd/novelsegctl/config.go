package main

import (
	"flag"
	"os"
	"time"

	"github.com/novelseg/novelseg/internal/obslog"
	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/runner"
)

// cliConfig holds the CLI settings. Connection settings default from
// NOVELSEG_* environment variables; the remaining flags have no
// environment override.
type cliConfig struct {
	ChatServer string
	ChatModel  string

	DuckDBPath string

	// CatalogHost enables metadata enrichment against the Postgres
	// catalog when non-empty; credentials come from the environment.
	CatalogHost     string
	CatalogUser     string
	CatalogPassword string
	CatalogName     string

	// RunlogHost enables reconciliation-log persistence to MongoDB
	// when non-empty; credentials come from the environment.
	RunlogHost     string
	RunlogUser     string
	RunlogPassword string
	RunlogDB       string

	ExpectedCount int
	DryRun        bool
	BatchWorkers  int
	OutDir        string

	RPM            int
	MaxInFlight    int64
	PerCallTimeout time.Duration
	WallClockBudget time.Duration
}

func defaultCLIConfig() cliConfig {
	cfg := cliConfig{
		ChatServer:      "http://localhost:8080/v1/chat/completions",
		ChatModel:       "Qwen3-8B-Q8_0",
		DuckDBPath:      "novelseg.duckdb",
		BatchWorkers:    4,
		OutDir:          ".",
		RPM:             60,
		MaxInFlight:     5,
		PerCallTimeout:  30 * time.Second,
		WallClockBudget: 15 * time.Minute,
	}

	if v := os.Getenv("NOVELSEG_CHAT_SERVER"); v != "" {
		cfg.ChatServer = v
	}
	if v := os.Getenv("NOVELSEG_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("NOVELSEG_DUCKDB_PATH"); v != "" {
		cfg.DuckDBPath = v
	}

	cfg.CatalogHost = os.Getenv("NOVELSEG_CATALOG_HOST")
	cfg.CatalogUser = os.Getenv("NOVELSEG_CATALOG_USER")
	cfg.CatalogPassword = os.Getenv("NOVELSEG_CATALOG_PASSWORD")
	cfg.CatalogName = os.Getenv("NOVELSEG_CATALOG_NAME")
	if cfg.CatalogName == "" {
		cfg.CatalogName = "novelseg"
	}

	cfg.RunlogHost = os.Getenv("NOVELSEG_RUNLOG_HOST")
	cfg.RunlogUser = os.Getenv("NOVELSEG_RUNLOG_USER")
	cfg.RunlogPassword = os.Getenv("NOVELSEG_RUNLOG_PASSWORD")
	cfg.RunlogDB = os.Getenv("NOVELSEG_RUNLOG_DB")
	if cfg.RunlogDB == "" {
		cfg.RunlogDB = "novelseg"
	}

	return cfg
}

func (c cliConfig) registerFlags(fs *flag.FlagSet) *cliConfig {
	fs.StringVar(&c.ChatServer, "chat-server", c.ChatServer, "OpenAI-compatible chat completions endpoint")
	fs.StringVar(&c.ChatModel, "chat-model", c.ChatModel, "model identifier to request")
	fs.StringVar(&c.DuckDBPath, "index-db", c.DuckDBPath, "path to the duckdb content-hash index / llm cache")
	fs.IntVar(&c.ExpectedCount, "expected-count", c.ExpectedCount, "expected chapter count (single-file mode only; batch mode derives it per file)")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "run the segmentation and print the reconciliation log without packaging")
	fs.IntVar(&c.BatchWorkers, "batch-workers", c.BatchWorkers, "concurrent files in batch mode")
	fs.StringVar(&c.OutDir, "out", c.OutDir, "output directory for packaged epubs")
	fs.StringVar(&c.CatalogHost, "catalog-host", c.CatalogHost, "postgres metadata catalog host (empty disables enrichment)")
	fs.StringVar(&c.RunlogHost, "runlog-host", c.RunlogHost, "mongodb host for reconciliation-log persistence (empty disables)")
	return &c
}

func (c cliConfig) oracleConfig() oracle.Config {
	return oracle.Config{
		RPM:            c.RPM,
		MaxInFlight:    c.MaxInFlight,
		PerCallTimeout: c.PerCallTimeout,
	}
}

func (c cliConfig) runnerConfig(lg obslog.Logger) runner.Config {
	cfg := runner.DefaultConfig()
	cfg.WallClockBudget = c.WallClockBudget
	cfg.Logger = lg
	return cfg
}
