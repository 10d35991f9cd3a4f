package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/peteowen1/bouncerdata/lib/driver/cdp"
	"github.com/peteowen1/bouncerdata/lib/serviceutil"
	"github.com/peteowen1/bouncerdata/services/discovery"
	"github.com/peteowen1/bouncerdata/services/fixtures"
	"github.com/peteowen1/bouncerdata/services/scrape"
)

var (
	scrapeFormat           string
	scrapeSeries           []string
	scrapeMaxMatches       int
	scrapeForce            bool
	scrapeSkipMetadataOnly bool
	scrapeFromFixtures     bool
)

func init() {
	scrapeCmd.Flags().StringVar(&scrapeFormat, "format", "", "only scrape this format (t20i, odi or test)")
	scrapeCmd.Flags().StringSliceVar(&scrapeSeries, "series", nil, "only scrape these series ids")
	scrapeCmd.Flags().IntVar(&scrapeMaxMatches, "max-matches", 0, "stop after this many matches, 0 means unlimited")
	scrapeCmd.Flags().BoolVar(&scrapeForce, "force", false, "rescrape matches that already have shards on disk")
	scrapeCmd.Flags().BoolVar(&scrapeSkipMetadataOnly, "skip-metadata-only", false, "do not write shards for matches without ball-by-ball data")
	scrapeCmd.Flags().BoolVar(&scrapeFromFixtures, "from-fixtures", false, "work from the fixture table instead of rediscovering the series list")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrapes ball-by-ball data for every unacquired match and writes per-match parquet shards.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		started := time.Now()

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

		var candidates []discovery.Series
		if scrapeFromFixtures {
			work, err := store.ListUnacquired(ctx, scrapeFormat)
			if err != nil {
				serviceutil.Fatal("failed to list unacquired fixtures", err)
			}
			for _, w := range work {
				s := discovery.Series{
					SeriesID: w.SeriesID,
					Name:     w.SeriesName,
					Format:   w.Format,
					Gender:   w.Gender,
				}
				if cached, ok := list[w.SeriesID]; ok {
					s.URL = cached.URL
					if s.Format == "" {
						s.Format = cached.Format
					}
					if s.Gender == "" {
						s.Gender = cached.Gender
					}
				}
				candidates = append(candidates, s)
			}
		} else {
			only := map[string]bool{}
			for _, sid := range scrapeSeries {
				only[sid] = true
			}
			for _, entry := range list {
				if scrapeFormat != "" && entry.Format != scrapeFormat {
					continue
				}
				if len(only) > 0 && !only[entry.SeriesID] {
					continue
				}
				candidates = append(candidates, discovery.Series{
					SeriesID: entry.SeriesID,
					URL:      entry.URL,
					Name:     entry.Name,
					Format:   entry.Format,
					Gender:   entry.Gender,
				})
			}
		}
		if len(candidates) == 0 {
			slog.InfoContext(ctx, "nothing to scrape")
			return
		}

		jobs, web := discoverJobs(cmd, svc, store, candidates)

		if len(web) > 0 {
			merged, err := discovery.BuildSeriesList(ctx, cfg.SeriesList, cfg.DataDir, web)
			if err != nil {
				slog.WarnContext(ctx, "failed to rebuild series list", "err", err)
			} else if err := discovery.WriteSeriesList(cfg.SeriesList, merged); err != nil {
				slog.WarnContext(ctx, "failed to write series list", "err", err)
			}
		}
		if len(jobs) == 0 {
			slog.InfoContext(ctx, "all discovered matches already acquired")
			return
		}

		runner := scrape.NewRunner(cdp.NewFactory(cfg.Driver), store, scrape.RunnerOptions{
			DataDir:          cfg.DataDir,
			MaxMatches:       scrapeMaxMatches,
			SkipMetadataOnly: scrapeSkipMetadataOnly,
		})
		stats, err := runner.Run(ctx, jobs)
		if err != nil {
			serviceutil.Fatal("scrape run failed", err)
		}

		renderRunStats(stats)
		slog.InfoContext(ctx, "scrape done", "took", time.Since(started).Round(time.Second))
	},
}

// discoverJobs fetches each candidate series' schedule, feeds every
// match into the fixture table, and queues the finished matches that
// still need scraping.
func discoverJobs(cmd *cobra.Command, svc *discovery.Service, store *fixtures.Store, candidates []discovery.Series) ([]scrape.SeriesJob, map[string]discovery.SeriesEntry) {
	ctx := cmd.Context()

	var jobs []scrape.SeriesJob
	web := map[string]discovery.SeriesEntry{}
	for _, series := range candidates {
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

		wanted := map[string]bool{}
		if !scrapeForce {
			work, err := store.ListUnacquired(ctx, scrapeFormat)
			if err != nil {
				serviceutil.Fatal("failed to list unacquired fixtures", err)
			}
			for _, w := range work {
				if w.SeriesID != series.SeriesID {
					continue
				}
				for _, id := range w.MatchIDs {
					wanted[id] = true
				}
			}
		}

		job := scrape.SeriesJob{
			SeriesID:   series.SeriesID,
			SeriesName: rows[0].SeriesName,
			Format:     series.Format,
			Gender:     rows[0].Gender,
		}
		for _, ref := range refs {
			if !scrapeForce && !wanted[ref.MatchID] {
				continue
			}
			job.Matches = append(job.Matches, scrape.MatchJob{
				MatchID: ref.MatchID,
				URL:     ref.URL(),
				Title:   ref.Title,
				Teams:   ref.Teams,
			})
		}
		if len(job.Matches) > 0 {
			jobs = append(jobs, job)
		}
	}
	return jobs, web
}

func seriesEntryFromDiscovery(series discovery.Series, rows []fixtures.Fixture) discovery.SeriesEntry {
	entry := discovery.SeriesEntry{
		SeriesID: series.SeriesID,
		Name:     rows[0].SeriesName,
		URL:      series.URL,
		Format:   series.Format,
		Gender:   rows[0].Gender,
	}
	if entry.URL == "" {
		entry.URL = fmt.Sprintf("%s/series/%s", discovery.BaseURL, series.SeriesID)
	}
	for _, row := range rows {
		if row.StartDate != "" {
			entry.Season = discovery.SeasonFromDate(row.StartDate)
			break
		}
	}
	return entry
}

func renderRunStats(stats scrape.RunStats) {
	t := newTable()
	t.AppendHeader(table.Row{"Series", "Matches", "Scraped", "Failed", "Balls", "Rich"})
	for _, s := range stats.Series {
		name := s.SeriesName
		if name == "" {
			name = s.SeriesID
		}
		t.AppendRow(table.Row{name, s.Matches, s.Scraped, s.Failed, s.Balls, s.RichBalls})
	}
	t.AppendFooter(table.Row{"Total", stats.Matches, stats.Scraped, stats.Failed, stats.Balls, stats.RichBalls})
	t.Render()

	if stats.MetadataOnly > 0 {
		slog.Info("some matches had no ball-by-ball data", "count", stats.MetadataOnly)
	}
}
