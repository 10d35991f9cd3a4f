package commands

import (
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/peteowen1/bouncerdata/lib/serviceutil"
	"github.com/peteowen1/bouncerdata/services/discovery"
	"github.com/peteowen1/bouncerdata/services/fixtures"
)

var discoverFormat string

func init() {
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "", "only discover series of this format (t20i, odi or test)")
	rootCmd.AddCommand(discoverCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Refreshes the fixture table and series list from the series schedule pages, without scraping.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		svc, err := discovery.NewService()
		if err != nil {
			serviceutil.Fatal("failed to create discovery service", err)
		}
		store := fixtures.NewStore(cfg.DataDir)

		list, err := discovery.LoadSeriesList(cfg.SeriesList)
		if err != nil {
			serviceutil.Fatal("failed to load series list", err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Series", "Matches", "Finished"})

		web := map[string]discovery.SeriesEntry{}
		for _, entry := range list {
			if discoverFormat != "" && entry.Format != discoverFormat {
				continue
			}
			series := discovery.Series{
				SeriesID: entry.SeriesID,
				URL:      entry.URL,
				Name:     entry.Name,
				Format:   entry.Format,
				Gender:   entry.Gender,
			}
			refs, rows, err := svc.DiscoverSeries(ctx, series)
			if err != nil {
				slog.WarnContext(ctx, "failed to discover series",
					"series_id", series.SeriesID, "err", err)
				continue
			}
			if len(rows) == 0 {
				continue
			}
			if err := store.Upsert(ctx, rows); err != nil {
				serviceutil.Fatal("failed to update fixture table", err)
			}
			web[series.SeriesID] = seriesEntryFromDiscovery(series, rows)
			t.AppendRow(table.Row{rows[0].SeriesName, len(rows), len(refs)})
		}

		merged, err := discovery.BuildSeriesList(ctx, cfg.SeriesList, cfg.DataDir, web)
		if err != nil {
			serviceutil.Fatal("failed to rebuild series list", err)
		}
		if err := discovery.WriteSeriesList(cfg.SeriesList, merged); err != nil {
			serviceutil.Fatal("failed to write series list", err)
		}

		t.Render()
		slog.InfoContext(ctx, "discovery done", "series", len(web))
	},
}
