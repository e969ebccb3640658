// Command novelsegmcp exposes the segmentation core as an MCP tool
// for agent-driven batch runs, an alternate external driver surface
// alongside cmd/novelsegctl.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novelseg/novelseg/internal/ingest"
	"github.com/novelseg/novelseg/internal/normalize"
	"github.com/novelseg/novelseg/internal/obslog"
	"github.com/novelseg/novelseg/internal/oracle"
	"github.com/novelseg/novelseg/internal/runner"
	"github.com/novelseg/novelseg/internal/store/duckstore"
)

var (
	host       = "localhost:9090"
	chatServer = "http://localhost:8080/v1/chat/completions"
	chatModel  = "Qwen3-8B-Q8_0"
	duckDBPath = "novelseg.duckdb"
)

func init() {
	if v := os.Getenv("NOVELSEG_MCP_HOST"); v != "" {
		host = v
	}
	if v := os.Getenv("NOVELSEG_CHAT_SERVER"); v != "" {
		chatServer = v
	}
	if v := os.Getenv("NOVELSEG_CHAT_MODEL"); v != "" {
		chatModel = v
	}
	if v := os.Getenv("NOVELSEG_DUCKDB_PATH"); v != "" {
		duckDBPath = v
	}
}

func main() {
	flag.Parse()

	store, err := duckstore.Open(duckDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open index: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	lg := obslog.New()

	base := oracle.NewHTTPClient(obslog.AsClientLogger(lg), chatServer, chatModel)
	cached := oracle.NewCached(base, store, chatModel)
	limited := oracle.NewLimited(cached, oracle.Config{})

	rcfg := runner.DefaultConfig()
	rcfg.Logger = lg
	r := runner.New(limited, rcfg)

	segServer := mcp.NewServer(&mcp.Implementation{Name: "novelseg", Version: "v1.0.0"}, nil)
	registerSegmentTool(segServer, r)

	handler := mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return segServer }, &mcp.SSEOptions{})

	fmt.Printf("novelsegmcp: serving at %s\n", host)
	if err := http.ListenAndServe(host, handler); err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
}

// SegmentParams are the arguments the Segment tool accepts.
type SegmentParams struct {
	Path          string `json:"path" jsonschema:"absolute path to the novel text file to segment"`
	ExpectedCount int    `json:"expected_count" jsonschema:"the caller-supplied expected chapter count"`
}

// SegmentResult is the tool's structured response.
type SegmentResult struct {
	ChapterCount int      `json:"chapter_count"`
	Titles       []string `json:"titles"`
	Failed       bool     `json:"failed"`
	FailReason   string   `json:"fail_reason,omitempty"`
	Log          []string `json:"log"`
}

func registerSegmentTool(server *mcp.Server, r *runner.Runner) {
	const description = "Segment a novel text file into an exact count of chapters, escalating through pattern inference, auto-repair, gap-directed refinement, direct AI title search and structural+AI boundary optimization until the count matches or the run fails."

	mcp.AddTool(server, &mcp.Tool{Name: "segment", Description: description}, func(ctx context.Context, req *mcp.CallToolRequest, params SegmentParams) (*mcp.CallToolResult, any, error) {
		return segmentHandler(ctx, r, params)
	})
}

func segmentHandler(ctx context.Context, r *runner.Runner, params SegmentParams) (*mcp.CallToolResult, any, error) {
	expected := params.ExpectedCount
	if expected <= 0 {
		hints := normalize.ParseFilename(filepath.Base(params.Path))
		expected = hints.ExpectedCount
	}
	if expected <= 0 {
		return nil, nil, fmt.Errorf("expected_count not provided and could not be derived from %q", params.Path)
	}

	path, err := ingest.Converter{}.Normalize(ctx, params.Path, os.TempDir())
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: %w", err)
	}

	chapters, rlog, err := r.Run(ctx, path, expected)

	result := SegmentResult{}
	for _, e := range rlog.Events {
		result.Log = append(result.Log, fmt.Sprintf("%s/%s: %d->%d (%s)", e.Stage, e.Action, e.BeforeCount, e.AfterCount, e.Reason))
	}

	if err != nil {
		result.Failed = true
		result.FailReason = err.Error()
	} else {
		result.ChapterCount = len(chapters)
		result.Titles = make([]string, len(chapters))
		for i, c := range chapters {
			result.Titles[i] = c.Title
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, result, nil
}
