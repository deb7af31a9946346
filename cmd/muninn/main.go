// Package main provides the Muninn CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muninndb/muninn/pkg/cache"
	"github.com/muninndb/muninn/pkg/config"
	"github.com/muninndb/muninn/pkg/logger"
	"github.com/muninndb/muninn/pkg/mcp"
	"github.com/muninndb/muninn/pkg/muninn"
	"github.com/muninndb/muninn/pkg/storage"
)

var (
	version   = "0.1.0"
	commit    = "dev"
	buildTime = "unknown" // Set via ldflags: -X main.buildTime=$(date +%Y%m%d-%H%M%S)
)

func main() {
	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "muninn",
		Short: "Muninn - Cached Knowledge Graph Memory for LLM Agents",
		Long: `Muninn is a knowledge-graph memory store backed by a flat
line-delimited JSON file, with a caching and indexing layer that keeps
queries fast without a database server.

Features:
  • Typed entities with free-text observations
  • Typed, directed relations between entities
  • Modification-time cache coherence against external file edits
  • Full-text search, pagination, and stable sorting
  • Shortest-path traversal over the relation graph
  • Debounced write batching for bursty agents`,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: auto-discover)")
	rootCmd.PersistentFlags().String("memory-path", "", "Graph file path (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Muninn v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print graph statistics",
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search entities by name, type, or observation text",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Int("limit", muninn.DefaultSearchLimit, "Maximum entities per page")
	searchCmd.Flags().Int("offset", 0, "Matches to skip before the page")
	searchCmd.Flags().String("sort-by", "", "Sort key: name, type, createdAt, updatedAt")
	searchCmd.Flags().String("sort-order", "asc", "Sort direction: asc, desc")
	searchCmd.Flags().Bool("full-text", false, "Use the full-text term index instead of substring matching")
	rootCmd.AddCommand(searchCmd)

	openCmd := &cobra.Command{
		Use:   "open [name...]",
		Short: "Open specific entities by name, with the relations among them",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOpen,
	}
	rootCmd.AddCommand(openCmd)

	summaryCmd := &cobra.Command{
		Use:   "summary [name]",
		Short: "Summarize one entity with its relations and neighbors",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}
	rootCmd.AddCommand(summaryCmd)

	pathCmd := &cobra.Command{
		Use:   "path [from] [to]",
		Short: "Find the shortest path between two entities",
		Args:  cobra.ExactArgs(2),
		RunE:  runPath,
	}
	rootCmd.AddCommand(pathCmd)

	exportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the graph to a JSON file (or stdout with no argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	}
	rootCmd.AddCommand(exportCmd)

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Replace the graph from an exported JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)

	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the MCP tool definitions as JSON",
		RunE:  runTools,
	}
	rootCmd.AddCommand(toolsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup resolves configuration, builds the logger, and opens a manager with
// the configured capabilities wired to one shared bounded cache.
func setup(cmd *cobra.Command) (*muninn.Manager, *zap.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	shared := cache.New(cache.Config{
		MaxBytes: cfg.Cache.MaxBytes,
		TTL:      cfg.Cache.TTL,
	})
	mgr := muninn.Open(cfg.Storage.MemoryPath, muninn.Options{
		LazyLoading:    cfg.Features.LazyLoading,
		FullTextSearch: cfg.Features.FullTextSearch,
		WriteBatching:  cfg.Features.WriteBatching,
		MemoryBounded:  cfg.Features.MemoryBounded,
		Memory:         shared,
		DebounceWindow: cfg.Batch.DebounceWindow,
		Logger:         log,
	})
	return mgr, log, nil
}

// applyFlagOverrides layers command-line flags over the resolved config.
// Bool flags only override when set explicitly, so an unset flag never
// clobbers a config-enabled feature.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if p, _ := cmd.Flags().GetString("memory-path"); p != "" {
		cfg.Storage.MemoryPath = p
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if cmd.Flags().Changed("full-text") {
		fullText, _ := cmd.Flags().GetBool("full-text")
		cfg.Features.FullTextSearch = fullText
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	stats, err := mgr.GetGraphStatistics(context.Background())
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func runSearch(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	sortBy, _ := cmd.Flags().GetString("sort-by")
	sortOrder, _ := cmd.Flags().GetString("sort-order")

	result, err := mgr.SearchNodes(context.Background(), args[0], muninn.SearchOptions{
		Limit:     limit,
		Offset:    offset,
		SortBy:    sortBy,
		SortOrder: sortOrder,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d matches\n", len(result.Entities), result.Total)
	return printJSON(result)
}

func runOpen(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	graph, err := mgr.OpenNodes(context.Background(), args)
	if err != nil {
		return err
	}
	return printJSON(graph)
}

func runSummary(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	summary, err := mgr.GetEntitySummary(context.Background(), args[0])
	if err != nil {
		return err
	}
	if summary == nil {
		fmt.Printf("Entity %q not found\n", args[0])
		return nil
	}
	return printJSON(summary)
}

func runPath(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	result, err := mgr.FindShortestPath(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Printf("No path between %q and %q\n", args[0], args[1])
		return nil
	}
	fmt.Printf("Distance %d\n", result.Distance)
	return printJSON(result)
}

func runExport(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	exported, err := mgr.ExportGraph(context.Background())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Println(string(out))
		return nil
	}
	if err := os.WriteFile(args[0], out, 0o644); err != nil {
		return err
	}
	fmt.Printf("Exported %d entities and %d relations to %s\n",
		len(exported.Graph.Entities), len(exported.Graph.Relations), args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	mgr, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	if err := mgr.ImportGraph(context.Background(), data); err != nil {
		if errors.Is(err, storage.ErrInvalidImport) {
			return fmt.Errorf("%s: payload must carry entities and relations arrays", args[0])
		}
		return err
	}
	stats, err := mgr.GetGraphStatistics(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d entities and %d relations in %s\n",
		stats.TotalEntities, stats.TotalRelations, time.Since(start).Round(time.Millisecond))
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	// Tool definitions need no manager; print them directly.
	return printJSON(mcp.GetToolDefinitions())
}
