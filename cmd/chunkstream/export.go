package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chunkstream/chunkstream/internal/core"
	"github.com/chunkstream/chunkstream/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export TABLE...",
	Short: "Export one or more tables to files",
	Long: `Export writes the requested range to disk. With one table the output
path names the file; with several it names a directory receiving one
<table>.<format> file each, written concurrently up to the connection
pool size.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func init() {
	addStreamFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output file (one table) or directory (several)")
	exportCmd.Flags().String("format", "", "output format: jsonl, json, csv or parquet (default from config)")
	exportCmd.Flags().Bool("include-metadata", true, "keep the metadata object on jsonl/json envelopes")
	exportCmd.MarkFlagRequired("output")
}

func runExport(cmd *cobra.Command, tables []string) error {
	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	opts := export.Options{
		Format:          cfg.Export.Format,
		IncludeMetadata: cfg.Export.IncludeMetadata,
	}
	output, _ := cmd.Flags().GetString("output")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	registry, err := buildRegistry(cfg.Extract.TablesFile)
	if err != nil {
		return err
	}
	engine := core.NewEngine(pool, registry, cfg)
	fs := afero.NewOsFs()

	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Database.MaxConns)
	for _, table := range tables {
		path := output
		if len(tables) > 1 {
			path = filepath.Join(output, table+"."+export.Ext(opts.Format))
		}
		table := table
		g.Go(func() error {
			stream, err := openStream(gctx, cmd, engine, streamRequestFromFlags(cmd, table))
			if err != nil {
				return fmt.Errorf("%s: %w", table, err)
			}
			defer stream.Close()

			summary, err := export.Export(gctx, stream, fs, path, opts)
			if err != nil {
				reportTotals(stream.Totals())
				return fmt.Errorf("%s: %w", table, err)
			}
			if summary.Path == "" {
				slog.Info("no records, nothing written", "table", table)
				return nil
			}
			slog.Info("exported table",
				"table", table,
				"path", summary.Path,
				"format", summary.Format,
				"chunks", summary.Chunks,
				"records", summary.Records,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("export complete", "tables", len(tables), "elapsed", elapsed(started))
	return nil
}
