package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/peteowen1/bouncerdata/lib/configutil"
	"github.com/peteowen1/bouncerdata/lib/driver/cdp"
)

var rootCmd = &cobra.Command{
	Use:   "bouncerdata",
	Short: "bouncerdata scrapes cricket ball-by-ball data and maintains the combined parquet datasets.",
}

// Config is the repo-level config.json5.
type Config struct {
	// DataDir holds the per-match shards, fixture table and combined
	// datasets.
	DataDir string `json:"data_dir"`
	// SeriesList is the path of the series_list.csv cache.
	SeriesList string `json:"series_list"`
	Driver     cdp.Options `json:"driver"`
}

func readConfig() (Config, error) {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		return Config{}, err
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SeriesList == "" {
		cfg.SeriesList = "series_list.csv"
	}
	return cfg, nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
