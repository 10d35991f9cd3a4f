// Package fixtures tracks every discovered match and whether its
// ball-by-ball data has been acquired yet. The table is a single
// parquet file keyed by match id, rewritten atomically on every update.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mazen160/go-random"
	"github.com/parquet-go/parquet-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/fixtures")

// Fixture is one discovered match. String fields hold "" when unknown;
// merges treat "" as missing.
type Fixture struct {
	MatchID       string `parquet:"match_id"`
	SeriesID      string `parquet:"series_id"`
	SeriesName    string `parquet:"series_name"`
	Format        string `parquet:"format"`
	Gender        string `parquet:"gender"`
	Status        string `parquet:"status"`
	StartDate     string `parquet:"start_date"`
	StartTime     string `parquet:"start_time"`
	Title         string `parquet:"title"`
	Team1         string `parquet:"team1"`
	Team1Abbrev   string `parquet:"team1_abbrev"`
	Team2         string `parquet:"team2"`
	Team2Abbrev   string `parquet:"team2_abbrev"`
	Venue         string `parquet:"venue"`
	Country       string `parquet:"country"`
	StatusText    string `parquet:"status_text"`
	WinnerTeamID  string `parquet:"winner_team_id"`
	HasBallByBall bool   `parquet:"has_ball_by_ball"`
}

// SeriesWork is the to-do list for one series: its finished matches
// with no ball-by-ball data yet.
type SeriesWork struct {
	SeriesID   string
	SeriesName string
	Format     string
	Gender     string
	MatchIDs   []string
}

// Store reads and writes the fixture table. A single Store serializes
// its own writers; cross-process writers stay safe through unique temp
// names and atomic renames.
type Store struct {
	mu      sync.Mutex
	path    string
	dataDir string
}

func NewStore(dataDir string) *Store {
	return &Store{
		path:    filepath.Join(dataDir, "fixtures.parquet"),
		dataDir: dataDir,
	}
}

// Load returns every fixture, or nil when the table does not exist yet.
func (s *Store) Load() ([]Fixture, error) {
	rows, err := parquet.ReadFile[Fixture](s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	return rows, nil
}

// Upsert merges the given fixtures into the table. Per field, non-empty
// incoming values win over stored ones; has_ball_by_ball only ever goes
// from false to true. An unreadable existing table aborts the update so
// a half-synced file cannot be clobbered.
func (s *Store) Upsert(ctx context.Context, incoming []Fixture) error {
	_, span := tracer.Start(ctx, "fixtures.Upsert")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(incoming)))

	if len(incoming) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("refusing to overwrite unreadable fixture table: %w", err)
	}

	byID := make(map[string]Fixture, len(existing))
	for _, f := range existing {
		byID[f.MatchID] = f
	}
	for _, f := range incoming {
		if f.MatchID == "" {
			continue
		}
		if old, ok := byID[f.MatchID]; ok {
			f = merge(old, f)
		}
		byID[f.MatchID] = f
	}

	return s.write(byID)
}

// MarkAcquired flips has_ball_by_ball for the given matches. Unknown
// match ids are ignored.
func (s *Store) MarkAcquired(ctx context.Context, matchIDs []string) error {
	_, span := tracer.Start(ctx, "fixtures.MarkAcquired")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(existing) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(matchIDs))
	for _, id := range matchIDs {
		wanted[id] = true
	}

	byID := make(map[string]Fixture, len(existing))
	changed := false
	for _, f := range existing {
		if wanted[f.MatchID] && !f.HasBallByBall {
			f.HasBallByBall = true
			changed = true
		}
		byID[f.MatchID] = f
	}
	if !changed {
		return nil
	}
	return s.write(byID)
}

// ListUnacquired groups finished matches that still need ball-by-ball
// data by series. The filesystem is cross-checked for existing balls
// shards so a stale flag cannot cause a rescrape.
func (s *Store) ListUnacquired(ctx context.Context, formatFilter string) ([]SeriesWork, error) {
	_, span := tracer.Start(ctx, "fixtures.ListUnacquired")
	defer span.End()

	existing, err := s.Load()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	onDisk := s.acquiredOnDisk()

	bySeries := map[string]*SeriesWork{}
	for _, f := range existing {
		if f.Status != "FINISHED" && f.Status != "POST" {
			continue
		}
		if f.HasBallByBall || onDisk[f.MatchID] {
			continue
		}
		if formatFilter != "" && f.Format != formatFilter {
			continue
		}
		if f.SeriesID == "" {
			continue
		}

		work, ok := bySeries[f.SeriesID]
		if !ok {
			gender := f.Gender
			if gender == "" {
				gender = "male"
			}
			work = &SeriesWork{
				SeriesID:   f.SeriesID,
				SeriesName: f.SeriesName,
				Format:     f.Format,
				Gender:     gender,
			}
			bySeries[f.SeriesID] = work
		}
		work.MatchIDs = append(work.MatchIDs, f.MatchID)
	}

	out := make([]SeriesWork, 0, len(bySeries))
	for _, w := range bySeries {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeriesID < out[j].SeriesID })
	span.SetAttributes(attribute.Int("series", len(out)))
	return out, nil
}

// acquiredOnDisk scans the shard directories for matches that already
// have a balls shard.
func (s *Store) acquiredOnDisk() map[string]bool {
	acquired := map[string]bool{}
	for _, format := range []string{"t20i", "odi", "test"} {
		for _, gender := range []string{"male", "female"} {
			dir := filepath.Join(s.dataDir, format+"_"+gender)
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				name := e.Name()
				if !strings.HasSuffix(name, "_balls.parquet") {
					continue
				}
				acquired[strings.TrimSuffix(name, "_balls.parquet")] = true
			}
		}
	}
	return acquired
}

func merge(old, incoming Fixture) Fixture {
	out := incoming
	pick := func(incoming, old string) string {
		if incoming == "" {
			return old
		}
		return incoming
	}
	out.SeriesID = pick(incoming.SeriesID, old.SeriesID)
	out.SeriesName = pick(incoming.SeriesName, old.SeriesName)
	out.Format = pick(incoming.Format, old.Format)
	out.Gender = pick(incoming.Gender, old.Gender)
	out.Status = pick(incoming.Status, old.Status)
	out.StartDate = pick(incoming.StartDate, old.StartDate)
	out.StartTime = pick(incoming.StartTime, old.StartTime)
	out.Title = pick(incoming.Title, old.Title)
	out.Team1 = pick(incoming.Team1, old.Team1)
	out.Team1Abbrev = pick(incoming.Team1Abbrev, old.Team1Abbrev)
	out.Team2 = pick(incoming.Team2, old.Team2)
	out.Team2Abbrev = pick(incoming.Team2Abbrev, old.Team2Abbrev)
	out.Venue = pick(incoming.Venue, old.Venue)
	out.Country = pick(incoming.Country, old.Country)
	out.StatusText = pick(incoming.StatusText, old.StatusText)
	out.WinnerTeamID = pick(incoming.WinnerTeamID, old.WinnerTeamID)
	out.HasBallByBall = old.HasBallByBall || incoming.HasBallByBall
	return out
}

func (s *Store) write(byID map[string]Fixture) error {
	rows := make([]Fixture, 0, len(byID))
	for _, f := range byID {
		rows = append(rows, f)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, aerr := strconv.ParseInt(rows[i].MatchID, 10, 64)
		b, berr := strconv.ParseInt(rows[j].MatchID, 10, 64)
		if aerr == nil && berr == nil {
			return a < b
		}
		return rows[i].MatchID < rows[j].MatchID
	})

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	suffix, err := random.String(8)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", s.path, suffix)

	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
