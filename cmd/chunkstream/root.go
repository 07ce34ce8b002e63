// Command chunkstream extracts time-series tables from PostgreSQL in
// bounded chunks, streaming them to the console, to files, or over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/chunkstream/chunkstream/internal/config"
	"github.com/chunkstream/chunkstream/internal/core"
	"github.com/chunkstream/chunkstream/internal/logging"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "chunkstream",
	Short:         "Chunked extraction of time-series tables from PostgreSQL",
	Long: `chunkstream pulls rows out of large PostgreSQL tables in bounded,
ordered chunks, either over the whole time range or window by window.
Results stream to the console, to files (jsonl, json, csv, parquet),
or over an HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(streamCmd, exportCmd, countCmd, tablesCmd, serveCmd)
}

// loadRuntime loads .env and environment configuration, applies flag
// overrides, and installs the logger. Every command that talks to the
// database goes through here.
func loadRuntime(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cmd, cfg)

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Logging.Format)

	slog.Debug("configuration loaded", "config", cfg.String())
	return cfg, nil
}

// applyFlagOverrides lets per-command flags win over environment values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.Extract.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("time-interval") {
		cfg.Extract.WindowInterval, _ = flags.GetDuration("time-interval")
	}
	if flags.Changed("max-connections") {
		cfg.Database.MaxConns, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("format") {
		cfg.Export.Format, _ = flags.GetString("format")
	}
	if flags.Changed("include-metadata") {
		cfg.Export.IncludeMetadata, _ = flags.GetBool("include-metadata")
	}
}

// openPool connects a pgx pool sized from config and verifies the
// connection with a ping.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

// buildRegistry returns the configured registry: a JSON tables file when
// one is set, the built-in tables otherwise.
func buildRegistry(tablesFile string) (*core.Registry, error) {
	if tablesFile == "" {
		return core.BuiltinRegistry(), nil
	}
	registry, err := core.LoadRegistry(afero.NewOsFs(), tablesFile)
	if err != nil {
		return nil, err
	}
	slog.Info("loaded table registry", "file", tablesFile, "tables", registry.Len())
	return registry, nil
}

// addRangeFlags registers the flags shared by every range-reading command.
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("start-time", "", "range start (inclusive), e.g. \"2024-01-01 00:00:00\"")
	cmd.Flags().String("end-time", "", "range end (exclusive)")
	cmd.Flags().String("where", "", "raw SQL predicate ANDed onto every query")
	cmd.MarkFlagRequired("start-time")
	cmd.MarkFlagRequired("end-time")
}

// addStreamFlags registers the flags shared by stream and export.
func addStreamFlags(cmd *cobra.Command) {
	addRangeFlags(cmd)
	cmd.Flags().Bool("time-windows", true, "process the range window by window")
	cmd.Flags().StringSlice("fields", nil, "columns to project (default: all)")
	cmd.Flags().Int("chunk-size", 0, "records per chunk (default from config)")
	cmd.Flags().Duration("time-interval", 0, "window duration (default from config)")
	cmd.Flags().Int("max-connections", 0, "pool size (default from config)")
}

// streamRequestFromFlags assembles the engine request for one table.
func streamRequestFromFlags(cmd *cobra.Command, table string) core.StreamRequest {
	flags := cmd.Flags()
	start, _ := flags.GetString("start-time")
	end, _ := flags.GetString("end-time")
	where, _ := flags.GetString("where")
	fields, _ := flags.GetStringSlice("fields")
	return core.StreamRequest{
		Table:     table,
		StartTime: start,
		EndTime:   end,
		Where:     where,
		Fields:    fields,
	}
}

// openStream starts a stream in the mode selected by --time-windows.
func openStream(ctx context.Context, cmd *cobra.Command, engine *core.Engine, req core.StreamRequest) (*core.Stream, error) {
	windowed, _ := cmd.Flags().GetBool("time-windows")
	if windowed {
		return engine.StreamByTimeWindows(ctx, req)
	}
	return engine.StreamByChunks(ctx, req)
}

// reportTotals prints the progress summary shown when a stream ends
// early, so an operator knows how far it got.
func reportTotals(totals core.Totals) {
	fmt.Fprintf(os.Stderr, "processed %d chunks, %d records\n", totals.Chunks, totals.Records)
}

// elapsed formats time since start for summary log lines.
func elapsed(since time.Time) string {
	return time.Since(since).Round(time.Millisecond).String()
}
