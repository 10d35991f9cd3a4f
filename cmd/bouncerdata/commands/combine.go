package commands

import (
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/peteowen1/bouncerdata/lib/serviceutil"
	"github.com/peteowen1/bouncerdata/services/combine"
)

var (
	combineFormat string
	combineMerge  bool
)

func init() {
	combineCmd.Flags().StringVar(&combineFormat, "format", "", "only combine this format (t20i, odi or test)")
	combineCmd.Flags().BoolVar(&combineMerge, "merge", true, "merge new shards into the existing combined files instead of rebuilding from scratch")
	rootCmd.AddCommand(combineCmd)
}

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Consolidates per-match shards into the combined parquet datasets.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		started := time.Now()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		results, err := combine.Run(ctx, combine.Options{
			DataDir: cfg.DataDir,
			Merge:   combineMerge,
			Format:  combineFormat,
		})
		if err != nil {
			serviceutil.Fatal("combine failed", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Dataset", "Rows", "Added", "Skipped"})
		for _, r := range results {
			t.AppendRow(table.Row{r.Path, r.Rows, r.AddedShards, r.SkippedShards})
		}
		t.Render()

		slog.InfoContext(ctx, "combine done",
			"datasets", len(results),
			"took", time.Since(started).Round(time.Millisecond))
	},
}
