package fixtures

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteowen1/bouncerdata/lib/telemetry"
)

func TestUpsertNonEmptyFieldsWin(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	store := NewStore(t.TempDir())

	require.NoError(t, store.Upsert(ctx, []Fixture{{
		MatchID:    "100",
		SeriesID:   "10",
		SeriesName: "World Cup",
		Status:     "LIVE",
		Venue:      "MCG",
	}}))
	// update with fresher status but missing venue
	require.NoError(t, store.Upsert(ctx, []Fixture{{
		MatchID:  "100",
		SeriesID: "10",
		Status:   "FINISHED",
	}}))

	rows, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "FINISHED", rows[0].Status)
	require.Equal(t, "MCG", rows[0].Venue, "empty incoming field keeps stored value")
	require.Equal(t, "World Cup", rows[0].SeriesName)
}

func TestHasBallByBallIsMonotonic(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	store := NewStore(t.TempDir())

	require.NoError(t, store.Upsert(ctx, []Fixture{{MatchID: "100", SeriesID: "10", Status: "FINISHED"}}))
	require.NoError(t, store.MarkAcquired(ctx, []string{"100", "does-not-exist"}))

	// a later discovery pass without the flag must not clear it
	require.NoError(t, store.Upsert(ctx, []Fixture{{MatchID: "100", SeriesID: "10", Status: "FINISHED"}}))

	rows, err := store.Load()
	require.NoError(t, err)
	require.True(t, rows[0].HasBallByBall)
}

func TestListUnacquiredGroupsBySeries(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Upsert(ctx, []Fixture{
		{MatchID: "100", SeriesID: "10", SeriesName: "Ashes", Format: "test", Gender: "male", Status: "FINISHED"},
		{MatchID: "101", SeriesID: "10", SeriesName: "Ashes", Format: "test", Gender: "male", Status: "FINISHED"},
		{MatchID: "102", SeriesID: "10", Status: "UPCOMING"},
		{MatchID: "200", SeriesID: "20", SeriesName: "WBBL", Format: "t20i", Status: "POST"},
		{MatchID: "300", SeriesID: "", Status: "FINISHED"},
	}))

	work, err := store.ListUnacquired(ctx, "")
	require.NoError(t, err)
	require.Len(t, work, 2)
	require.Equal(t, "10", work[0].SeriesID)
	require.Equal(t, []string{"100", "101"}, work[0].MatchIDs)
	require.Equal(t, "male", work[1].Gender, "missing gender defaults to male")

	work, err = store.ListUnacquired(ctx, "test")
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Equal(t, "10", work[0].SeriesID)
}

func TestListUnacquiredCrossChecksFilesystem(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Upsert(ctx, []Fixture{
		{MatchID: "100", SeriesID: "10", Format: "odi", Gender: "female", Status: "FINISHED"},
		{MatchID: "101", SeriesID: "10", Format: "odi", Gender: "female", Status: "FINISHED"},
	}))

	// match 100 has a balls shard on disk even though its flag is stale
	shardDir := filepath.Join(dir, "odi_female")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "100_balls.parquet"), []byte("x"), 0o644))

	work, err := store.ListUnacquired(ctx, "")
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Equal(t, []string{"101"}, work[0].MatchIDs)
}

func TestUpsertRefusesToClobberCorruptTable(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fixtures.parquet"), []byte("not parquet"), 0o644))
	err := store.Upsert(ctx, []Fixture{{MatchID: "100"}})
	require.Error(t, err)

	data, rerr := os.ReadFile(filepath.Join(dir, "fixtures.parquet"))
	require.NoError(t, rerr)
	require.Equal(t, "not parquet", string(data), "existing file left untouched")
}

func TestConcurrentUpsertsSerialize(t *testing.T) {
	telemetry.SetupForTesting(t, "fixtures")
	ctx := context.Background()
	store := NewStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			_ = store.Upsert(ctx, []Fixture{{MatchID: id, SeriesID: "10", Status: "FINISHED"}})
		}(i)
	}
	wg.Wait()

	rows, err := store.Load()
	require.NoError(t, err)
	require.Len(t, rows, 8)
}
