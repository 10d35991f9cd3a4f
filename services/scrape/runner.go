package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/peteowen1/bouncerdata/lib/driver"
	"github.com/peteowen1/bouncerdata/lib/pidfile"
	"github.com/peteowen1/bouncerdata/services/fixtures"
)

// recycleEvery is how many matches a browser session serves before it
// is replaced, Chrome leaks memory over long commentary runs.
const recycleEvery = 20

type RunnerOptions struct {
	DataDir string
	// MaxMatches caps the run, zero means unlimited.
	MaxMatches int
	// SkipMetadataOnly skips saving matches that turn out to have no
	// ball-by-ball data.
	SkipMetadataOnly bool
	Session          SessionOptions
}

// MatchJob is one match queued for scraping.
type MatchJob struct {
	MatchID string
	URL     string
	Title   string
	Teams   []string
}

// SeriesJob is a series' worth of matches plus the metadata used when
// the page itself cannot be classified.
type SeriesJob struct {
	SeriesID   string
	SeriesName string
	Format     string
	Gender     string
	Matches    []MatchJob
}

// SeriesStats summarizes one series in a run.
type SeriesStats struct {
	SeriesID   string
	SeriesName string
	Matches    int
	Scraped    int
	Failed     int
	Balls      int
	RichBalls  int
}

// RunStats summarizes a whole run.
type RunStats struct {
	Matches      int
	Scraped      int
	MetadataOnly int
	Failed       int
	Balls        int
	RichBalls    int
	Series       []SeriesStats
}

// Runner scrapes series job lists match by match on a driver session it
// owns and recycles.
type Runner struct {
	factory driver.Factory
	store   *fixtures.Store
	opts    RunnerOptions
}

func NewRunner(factory driver.Factory, store *fixtures.Store, opts RunnerOptions) *Runner {
	return &Runner{factory: factory, store: store, opts: opts}
}

// Run works through the jobs sequentially. Per-match failures are
// logged to the error log and counted, they never stop the run; only a
// cancelled context or an unusable driver does.
func (r *Runner) Run(ctx context.Context, jobs []SeriesJob) (RunStats, error) {
	ctx, span := tracer.Start(ctx, "scrape.Run")
	defer span.End()

	stats := RunStats{}
	errLogPath := filepath.Join(r.opts.DataDir, "scrape_errors.csv")

	drv, err := r.factory(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stats, fmt.Errorf("open scrape session: %w", err)
	}
	defer func() {
		// drv is nil when a mid-run recycle failed
		if drv != nil {
			drv.Close()
		}
		pidfile.Remove(r.opts.DataDir)
	}()
	r.writePidfile(drv)

	matchCount := 0
	for _, job := range jobs {
		ss := SeriesStats{SeriesID: job.SeriesID, SeriesName: job.SeriesName}
		maxInnings := MaxInnings(job.Format)

		for _, m := range job.Matches {
			if r.opts.MaxMatches > 0 && matchCount >= r.opts.MaxMatches {
				stats.Series = append(stats.Series, ss)
				return stats, nil
			}
			if matchCount > 0 && matchCount%recycleEvery == 0 {
				drv.Close()
				drv, err = r.factory(ctx)
				if err != nil {
					stats.Series = append(stats.Series, ss)
					return stats, fmt.Errorf("recycle scrape session: %w", err)
				}
				r.writePidfile(drv)
			}
			matchCount++
			ss.Matches++
			stats.Matches++

			started := time.Now()
			result, err := ScrapeMatch(ctx, drv, r.factory, m.URL, maxInnings, r.opts.Session)
			if result.NewDriver != nil {
				// the blocked session was replaced mid-match, keep the
				// replacement for the rest of the run
				drv.Close()
				drv = result.NewDriver
				r.writePidfile(drv)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					stats.Series = append(stats.Series, ss)
					return stats, err
				}
				stats.Failed++
				ss.Failed++
				r.logMatchError(ctx, errLogPath, job, m, result, classifyError(err), err.Error())
				continue
			}

			for _, f := range result.Failures {
				r.logMatchError(ctx, errLogPath, job, m, result, f.ErrorType, f.ErrorMessage)
			}

			if err := r.save(ctx, job, m, result); err != nil {
				stats.Failed++
				ss.Failed++
				r.logMatchError(ctx, errLogPath, job, m, result, "save_failed", err.Error())
				continue
			}

			if result.MetadataOnly {
				stats.MetadataOnly++
			} else {
				stats.Scraped++
				ss.Scraped++
			}
			rich := 0
			for _, b := range result.Balls {
				if b.WagonX != nil {
					rich++
				}
			}
			stats.Balls += len(result.Balls)
			stats.RichBalls += rich
			ss.Balls += len(result.Balls)
			ss.RichBalls += rich

			slog.InfoContext(ctx, "match done",
				"match_id", m.MatchID,
				"balls", len(result.Balls),
				"rich", rich,
				"metadata_only", result.MetadataOnly,
				"took", time.Since(started).Round(time.Millisecond))
		}
		stats.Series = append(stats.Series, ss)
	}

	span.SetAttributes(
		attribute.Int("matches", stats.Matches),
		attribute.Int("balls", stats.Balls),
		attribute.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (r *Runner) save(ctx context.Context, job SeriesJob, m MatchJob, result MatchResult) error {
	format := result.DetectedFormat
	if format == "" {
		format = job.Format
	}
	if format == "" {
		return fmt.Errorf("match %s: format could not be determined", m.MatchID)
	}
	gender := result.DetectedGender
	if gender == "" {
		gender = job.Gender
	}
	if gender == "" {
		gender = "male"
	}

	if result.MetadataOnly && r.opts.SkipMetadataOnly {
		return nil
	}

	written, err := WriteShards(r.opts.DataDir, format, gender, m.MatchID, result)
	if err != nil {
		return err
	}

	hasBalls := false
	for _, kind := range written {
		if kind == "balls" {
			hasBalls = true
		}
	}
	if hasBalls && r.store != nil {
		if err := r.store.MarkAcquired(ctx, []string{m.MatchID}); err != nil {
			slog.WarnContext(ctx, "failed to mark fixture acquired",
				"match_id", m.MatchID, "err", err)
		}
	}
	return nil
}

func (r *Runner) logMatchError(ctx context.Context, path string, job SeriesJob, m MatchJob, result MatchResult, errorType, message string) {
	entry := ErrorLogEntry{
		MatchID:         m.MatchID,
		SeriesID:        job.SeriesID,
		SeriesName:      job.SeriesName,
		Format:          job.Format,
		Teams:           strings.Join(m.Teams, " v "),
		InningsExpected: result.InningsExpected,
		InningsScraped:  result.InningsScraped,
		ErrorType:       errorType,
		ErrorMessage:    message,
	}
	var failed []string
	for _, f := range result.Failures {
		failed = append(failed, f.Title)
	}
	entry.FailedInnings = strings.Join(failed, "; ")

	if err := AppendErrorLog(path, entry); err != nil {
		slog.WarnContext(ctx, "failed to append error log", "err", err)
	}
}

func classifyError(err error) string {
	if errors.Is(err, driver.ErrBlocked) {
		return "blocked"
	}
	return "scrape_failed"
}

// writePidfile records the browser pid behind drv so kill-orphans can
// find it if this process dies.
func (r *Runner) writePidfile(drv driver.Driver) {
	type pidder interface{ BrowserPID() int }
	p, ok := drv.(pidder)
	if !ok {
		return
	}
	pid := p.BrowserPID()
	if pid == 0 {
		return
	}
	if _, err := pidfile.Write(r.opts.DataDir, []int{pid}); err != nil {
		slog.Warn("failed to write pidfile", "err", err)
	}
}
