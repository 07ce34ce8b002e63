package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chunkstream/chunkstream/internal/core"
	"github.com/chunkstream/chunkstream/internal/export"
)

var streamCmd = &cobra.Command{
	Use:   "stream TABLE",
	Short: "Stream a table's chunks to stdout",
	Long: `Stream pulls the requested range chunk by chunk and writes each chunk
to stdout as it arrives. With --format text a per-chunk progress line is
printed instead of the raw envelope.`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

func init() {
	addStreamFlags(streamCmd)
	streamCmd.Flags().String("format", "text", "output rendering: text, json or jsonl")
	streamCmd.Flags().Bool("include-metadata", true, "keep the metadata object on envelopes")
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" && format != "jsonl" {
		return fmt.Errorf("unknown stream format %q (supported: text, json, jsonl)", format)
	}

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

	stream, err := openStream(ctx, cmd, engine, streamRequestFromFlags(cmd, args[0]))
	if err != nil {
		return err
	}
	defer stream.Close()

	started := time.Now()
	switch format {
	case "jsonl":
		_, err = export.Stream(ctx, stream, os.Stdout, export.Options{
			Format:          "jsonl",
			IncludeMetadata: cfg.Export.IncludeMetadata,
		})
	case "json":
		err = renderIndented(ctx, stream, cfg.Export.IncludeMetadata)
	default:
		err = renderText(ctx, stream)
	}

	totals := stream.Totals()
	if err != nil {
		reportTotals(totals)
		return err
	}
	fmt.Fprintf(os.Stderr, "done: %d chunks, %d records in %s\n",
		totals.Chunks, totals.Records, elapsed(started))
	return nil
}

// renderIndented prints each envelope as an indented JSON document.
func renderIndented(ctx context.Context, stream *core.Stream, includeMetadata bool) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for stream.Next(ctx) {
		chunk := stream.Chunk()
		if !includeMetadata && chunk.Metadata != nil {
			stripped := *chunk
			stripped.Metadata = nil
			chunk = &stripped
		}
		if err := enc.Encode(chunk); err != nil {
			return err
		}
	}
	return stream.Err()
}

// renderText prints one human-readable progress line per chunk.
func renderText(ctx context.Context, stream *core.Stream) error {
	for stream.Next(ctx) {
		chunk := stream.Chunk()
		if chunk.WindowIndex > 0 {
			fmt.Printf("window %d [%s .. %s] offset %d: %d records (%d total)\n",
				chunk.WindowIndex, chunk.WindowStart, chunk.WindowEnd,
				chunk.ChunkOffset, chunk.ChunkSize, chunk.TotalRecordsSoFar)
		} else {
			fmt.Printf("chunk %d: offset %d, %d records, %.1f%% of %d\n",
				chunk.ChunkIndex, chunk.ChunkOffset, chunk.ChunkSize,
				chunk.Progress*100, chunk.TotalCount)
		}
	}
	return stream.Err()
}
