package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chunkstream/chunkstream/internal/core"
)

var countCmd = &cobra.Command{
	Use:   "count TABLE",
	Short: "Count a table's rows within a time range",
	Args:  cobra.ExactArgs(1),
	RunE:  runCount,
}

func init() {
	addRangeFlags(countCmd)
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntime(cmd)
	if err != nil {
		return err
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

	flags := cmd.Flags()
	start, _ := flags.GetString("start-time")
	end, _ := flags.GetString("end-time")
	where, _ := flags.GetString("where")

	count, err := engine.Count(ctx, core.CountRequest{
		Table:     args[0],
		StartTime: start,
		EndTime:   end,
		Where:     where,
	})
	if err != nil {
		return err
	}

	if verbose {
		fmt.Printf("%s [%s .. %s): %d records\n", args[0], start, end, count)
		return nil
	}
	fmt.Println(count)
	return nil
}
