package discovery

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/mazen160/go-random"

	"github.com/peteowen1/bouncerdata/lib/frame"
	"github.com/peteowen1/bouncerdata/services/scrape"
)

// SeriesEntry is one row of the series list cache.
type SeriesEntry struct {
	SeriesID   string `csv:"series_id"`
	Name       string `csv:"name"`
	URL        string `csv:"url"`
	Season     string `csv:"season"`
	Format     string `csv:"format"`
	MaxInnings string `csv:"max_innings"`
	Gender     string `csv:"gender"`
}

// LoadSeriesList reads the CSV cache, returning an empty map when the
// file does not exist. Rows without a gender get one inferred from the
// series name.
func LoadSeriesList(path string) (map[string]SeriesEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]SeriesEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var rows []SeriesEntry
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	series := make(map[string]SeriesEntry, len(rows))
	for _, row := range rows {
		if row.SeriesID == "" {
			continue
		}
		if row.Gender == "" {
			row.Gender = InferGenderFromName(row.Name)
		}
		series[row.SeriesID] = row
	}
	return series, nil
}

// ScanShardsForSeries recovers series metadata from existing match
// shards, so the cache survives a lost CSV. Only the first shard seen
// per series contributes.
func ScanShardsForSeries(ctx context.Context, dataDir string) map[string]SeriesEntry {
	series := map[string]SeriesEntry{}

	for _, format := range []string{"t20i", "odi", "test"} {
		for _, gender := range []string{"male", "female"} {
			dir := filepath.Join(dataDir, format+"_"+gender)
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if !strings.HasSuffix(e.Name(), "_match.parquet") {
					continue
				}
				path := filepath.Join(dir, e.Name())
				f, err := frame.ReadFile(path)
				if err != nil {
					slog.WarnContext(ctx, "skipping unreadable match shard", "path", path, "err", err)
					continue
				}
				for entrySID, entry := range seriesFromMatchFrame(f, format, gender) {
					if _, seen := series[entrySID]; !seen {
						series[entrySID] = entry
					}
				}
			}
		}
	}
	return series
}

func seriesFromMatchFrame(f *frame.Frame, dirFormat, dirGender string) map[string]SeriesEntry {
	out := map[string]SeriesEntry{}
	sids := f.Strings("series_id")
	names := f.Strings("series_name")
	formats := f.Strings("format")
	genders := f.Strings("gender")
	classIDs := f.Strings("international_class_id")
	startDates := f.Strings("start_date")

	for i := range sids {
		sid := sids[i]
		if sid == "" {
			continue
		}

		var classID *int64
		if v, err := strconv.ParseInt(classIDs[i], 10, 64); err == nil {
			classID = &v
		}
		format := scrape.DetectFormat(classID, &formats[i])
		if format == "" {
			format = dirFormat
		}
		gender := strings.ToLower(genders[i])
		if gender == "" {
			gender = dirGender
		}

		out[sid] = SeriesEntry{
			SeriesID:   sid,
			Name:       names[i],
			URL:        fmt.Sprintf("%s/series/%s", BaseURL, sid),
			Season:     SeasonFromDate(startDates[i]),
			Format:     format,
			MaxInnings: strconv.Itoa(scrape.MaxInnings(format)),
			Gender:     gender,
		}
	}
	return out
}

// MergeSeries merges sources keyed by series id. Later sources fill in
// blanks without overwriting earlier non-empty values.
func MergeSeries(sources ...map[string]SeriesEntry) map[string]SeriesEntry {
	merged := map[string]SeriesEntry{}
	for _, source := range sources {
		for sid, entry := range source {
			existing, ok := merged[sid]
			if !ok {
				merged[sid] = entry
				continue
			}
			fill := func(dst *string, v string) {
				if *dst == "" && v != "" {
					*dst = v
				}
			}
			fill(&existing.Name, entry.Name)
			fill(&existing.URL, entry.URL)
			fill(&existing.Season, entry.Season)
			fill(&existing.Format, entry.Format)
			fill(&existing.MaxInnings, entry.MaxInnings)
			fill(&existing.Gender, entry.Gender)
			merged[sid] = existing
		}
	}
	return merged
}

// WriteSeriesList writes the cache sorted by series id descending,
// newest series first, filling defaults the way readers expect.
func WriteSeriesList(path string, series map[string]SeriesEntry) error {
	rows := make([]SeriesEntry, 0, len(series))
	for _, entry := range series {
		if entry.Format == "" {
			entry.Format = "test"
		}
		if entry.MaxInnings == "" {
			entry.MaxInnings = strconv.Itoa(scrape.MaxInnings(entry.Format))
		}
		if entry.Gender == "" {
			entry.Gender = InferGenderFromName(entry.Name)
		}
		rows = append(rows, entry)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, aerr := strconv.ParseInt(rows[i].SeriesID, 10, 64)
		b, berr := strconv.ParseInt(rows[j].SeriesID, 10, 64)
		if aerr == nil && berr == nil {
			return a > b
		}
		return rows[i].SeriesID > rows[j].SeriesID
	})

	suffix, err := random.String(8)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, suffix)

	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(file)
	enc := csvutil.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			file.Close()
			os.Remove(tmp)
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// BuildSeriesList merges the CSV cache, a shard scan and fresh web
// discoveries, in that precedence order.
func BuildSeriesList(ctx context.Context, csvPath, dataDir string, web map[string]SeriesEntry) (map[string]SeriesEntry, error) {
	cache, err := LoadSeriesList(csvPath)
	if err != nil {
		return nil, err
	}
	scanned := ScanShardsForSeries(ctx, dataDir)
	return MergeSeries(cache, scanned, web), nil
}

// SeasonFromDate renders a cricket season label from an ISO date:
// Aug-Dec spans two years ("2025/26"), Jan-Apr belongs to the previous
// span ("2024/25"), May-Jul is a single-year season ("2025").
func SeasonFromDate(date string) string {
	if len(date) < 4 {
		return ""
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return ""
	}
	month := 1
	if len(date) >= 7 {
		if m, err := strconv.Atoi(date[5:7]); err == nil {
			month = m
		}
	}
	switch {
	case month >= 8:
		return fmt.Sprintf("%d/%02d", year, (year+1)%100)
	case month <= 4:
		return fmt.Sprintf("%d/%02d", year-1, year%100)
	default:
		return strconv.Itoa(year)
	}
}

// InferGenderFromName guesses a series gender from its name, defaulting
// to male when nothing matches.
func InferGenderFromName(name string) string {
	lower := strings.ToLower(name)
	for _, kw := range []string{"women", "female", "wbbl", "wpl", "wodi", "wt20", "w t20", "w odi"} {
		if strings.Contains(lower, kw) {
			return "female"
		}
	}
	return "male"
}
