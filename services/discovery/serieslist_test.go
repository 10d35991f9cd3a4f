package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteowen1/bouncerdata/lib/frame"
)

func TestSeasonFromDate(t *testing.T) {
	require.Equal(t, "2025/26", SeasonFromDate("2025-11-01"))
	require.Equal(t, "2024/25", SeasonFromDate("2025-02-14"))
	require.Equal(t, "2025", SeasonFromDate("2025-06-20"))
	require.Equal(t, "2025/26", SeasonFromDate("2025-08-01T10:00:00Z"))
	require.Equal(t, "", SeasonFromDate(""))
	require.Equal(t, "", SeasonFromDate("n/a"))
}

func TestInferGenderFromName(t *testing.T) {
	require.Equal(t, "female", InferGenderFromName("Women's Big Bash League"))
	require.Equal(t, "female", InferGenderFromName("WBBL 2025/26"))
	require.Equal(t, "female", InferGenderFromName("WPL"))
	require.Equal(t, "male", InferGenderFromName("The Ashes"))
	require.Equal(t, "male", InferGenderFromName(""))
}

func TestMergeSeriesLaterSourcesFillGapsOnly(t *testing.T) {
	csv := map[string]SeriesEntry{
		"10": {SeriesID: "10", Name: "The Ashes", Format: "test"},
	}
	scan := map[string]SeriesEntry{
		"10": {SeriesID: "10", Name: "different name", Season: "2025/26"},
		"20": {SeriesID: "20", Name: "WBBL", Format: "t20i", Gender: "female"},
	}
	merged := MergeSeries(csv, scan)

	require.Len(t, merged, 2)
	require.Equal(t, "The Ashes", merged["10"].Name, "existing value is not overwritten")
	require.Equal(t, "2025/26", merged["10"].Season, "blank is filled")
	require.Equal(t, "WBBL", merged["20"].Name)
}

func TestSeriesListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series_list.csv")

	series, err := LoadSeriesList(path)
	require.NoError(t, err)
	require.Empty(t, series)

	require.NoError(t, WriteSeriesList(path, map[string]SeriesEntry{
		"10": {SeriesID: "10", Name: "The Ashes", Format: "test"},
		"20": {SeriesID: "20", Name: "WBBL"},
	}))

	series, err = LoadSeriesList(path)
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.Equal(t, "4", series["10"].MaxInnings, "test defaults to 4 innings")
	require.Equal(t, "male", series["10"].Gender)
	require.Equal(t, "female", series["20"].Gender, "gender inferred from name")
	require.Equal(t, "test", series["20"].Format, "missing format defaults to test")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "write is atomic, no temp files remain")
}

func TestScanShardsForSeries(t *testing.T) {
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "t20i_female")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))

	meta := frame.New(
		frame.Field{Name: "match_id", Kind: frame.KindInt64},
		frame.Field{Name: "series_id", Kind: frame.KindInt64},
		frame.Field{Name: "series_name", Kind: frame.KindString},
		frame.Field{Name: "format", Kind: frame.KindString},
		frame.Field{Name: "gender", Kind: frame.KindString},
		frame.Field{Name: "start_date", Kind: frame.KindString},
	)
	require.NoError(t, meta.Append(int64(100), int64(10), "WBBL", "T20", "female", "2025-12-01"))
	require.NoError(t, frame.WriteFile(filepath.Join(shardDir, "100_match.parquet"), meta))

	series := ScanShardsForSeries(context.Background(), dataDir)
	require.Len(t, series, 1)
	entry := series["10"]
	require.Equal(t, "WBBL", entry.Name)
	require.Equal(t, "t20i", entry.Format)
	require.Equal(t, "female", entry.Gender)
	require.Equal(t, "2025/26", entry.Season)
	require.Equal(t, "2", entry.MaxInnings)
	require.Contains(t, entry.URL, "/series/10")
}
