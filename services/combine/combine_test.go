package combine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteowen1/bouncerdata/lib/frame"
	"github.com/peteowen1/bouncerdata/lib/telemetry"
)

func writeBallsShard(t *testing.T, dir, matchID string, f *frame.Frame) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, frame.WriteFile(filepath.Join(dir, matchID+"_balls.parquet"), f))
}

func simpleBalls(id int64, over int64) *frame.Frame {
	f := frame.New(
		frame.Field{Name: "id", Kind: frame.KindInt64},
		frame.Field{Name: "overNumber", Kind: frame.KindInt64},
		frame.Field{Name: "totalRuns", Kind: frame.KindInt64},
	)
	_ = f.Append(id, over, int64(1))
	return f
}

func TestDatasetFullBuild(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "t20i_male")

	writeBallsShard(t, shardDir, "200", simpleBalls(21, 3))
	writeBallsShard(t, shardDir, "100", simpleBalls(11, 0))

	res, err := Dataset(context.Background(), dataDir, "t20i", "male", "balls", false)
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, 2, res.AddedShards)

	combined, err := frame.ReadFile(res.Path)
	require.NoError(t, err)

	// camelCase columns are renamed and the match id stamped on
	require.Equal(t, -1, combined.Column("overNumber"))
	require.NotEqual(t, -1, combined.Column("over_number"))
	require.Equal(t, []string{"100", "200"}, combined.Strings("match_id"),
		"shards combine in sorted filename order")
}

func TestDatasetMergeAddsOnlyNewMatches(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "odi_female")

	writeBallsShard(t, shardDir, "100", simpleBalls(11, 0))
	writeBallsShard(t, shardDir, "200", simpleBalls(21, 0))
	_, err := Dataset(context.Background(), dataDir, "odi", "female", "balls", false)
	require.NoError(t, err)

	// a new match arrives; the old shards must not be re-appended
	writeBallsShard(t, shardDir, "300", simpleBalls(31, 0))
	res, err := Dataset(context.Background(), dataDir, "odi", "female", "balls", true)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	require.Equal(t, 1, res.AddedShards)

	combined, err := frame.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, []string{"100", "200", "300"}, combined.Strings("match_id"),
		"prior rows first, new matches appended")

	// merging again with nothing new is a no-op
	res, err = Dataset(context.Background(), dataDir, "odi", "female", "balls", true)
	require.NoError(t, err)
	require.Equal(t, 3, res.Rows)
	require.Equal(t, 0, res.AddedShards)
}

func TestDatasetSkipsMalformedShardNames(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "test_male")

	writeBallsShard(t, shardDir, "100", simpleBalls(11, 0))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "abc_balls.parquet"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "100x_balls.parquet"), []byte("x"), 0o644))

	res, err := Dataset(context.Background(), dataDir, "test", "male", "balls", false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Rows)
	require.Equal(t, 2, res.SkippedShards)
}

func TestDatasetMatchKindRequiresBallsSibling(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "t20i_female")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))

	meta := frame.New(
		frame.Field{Name: "match_id", Kind: frame.KindInt64},
		frame.Field{Name: "title", Kind: frame.KindString},
	)
	_ = meta.Append(int64(100), "with balls")
	require.NoError(t, frame.WriteFile(filepath.Join(shardDir, "100_match.parquet"), meta))

	orphan := frame.New(
		frame.Field{Name: "match_id", Kind: frame.KindInt64},
		frame.Field{Name: "title", Kind: frame.KindString},
	)
	_ = orphan.Append(int64(999), "metadata only")
	require.NoError(t, frame.WriteFile(filepath.Join(shardDir, "999_match.parquet"), orphan))

	writeBallsShard(t, shardDir, "100", simpleBalls(11, 0))

	res, err := Dataset(context.Background(), dataDir, "t20i", "female", "match", false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Rows)

	combined, err := frame.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, combined.Strings("match_id"))
}

func TestDatasetUnifiesNullAndTextColumns(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "odi_male")

	// shard 100: dismissalText present but every value null
	a := frame.New(
		frame.Field{Name: "id", Kind: frame.KindInt64},
		frame.Field{Name: "overNumber", Kind: frame.KindInt64},
		frame.Field{Name: "dismissalText", Kind: frame.KindString},
	)
	_ = a.Append(int64(11), int64(0), nil)
	writeBallsShard(t, shardDir, "100", a)

	// shard 200: dismissalText has real text
	b := frame.New(
		frame.Field{Name: "id", Kind: frame.KindInt64},
		frame.Field{Name: "overNumber", Kind: frame.KindInt64},
		frame.Field{Name: "dismissalText", Kind: frame.KindString},
	)
	_ = b.Append(int64(21), int64(0), "c Carey b Starc")
	writeBallsShard(t, shardDir, "200", b)

	res, err := Dataset(context.Background(), dataDir, "odi", "male", "balls", false)
	require.NoError(t, err)

	combined, err := frame.ReadFile(res.Path)
	require.NoError(t, err)
	col := combined.Column("dismissal_text")
	require.NotEqual(t, -1, col)
	require.Nil(t, combined.Rows[0][col])
	require.Equal(t, "c Carey b Starc", combined.Rows[1][col])
	require.Equal(t, 2, res.Rows)
}

func TestDatasetPromotesIntAndFloat(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "test_female")

	a := frame.New(
		frame.Field{Name: "id", Kind: frame.KindInt64},
		frame.Field{Name: "overNumber", Kind: frame.KindInt64},
		frame.Field{Name: "shotControl", Kind: frame.KindInt64},
	)
	_ = a.Append(int64(11), int64(0), int64(1))
	writeBallsShard(t, shardDir, "100", a)

	b := frame.New(
		frame.Field{Name: "id", Kind: frame.KindInt64},
		frame.Field{Name: "overNumber", Kind: frame.KindInt64},
		frame.Field{Name: "shotControl", Kind: frame.KindFloat64},
	)
	_ = b.Append(int64(21), int64(0), 0.5)
	writeBallsShard(t, shardDir, "200", b)

	res, err := Dataset(context.Background(), dataDir, "test", "female", "balls", false)
	require.NoError(t, err)

	combined, err := frame.ReadFile(res.Path)
	require.NoError(t, err)
	col := combined.Column("shot_control")
	require.Equal(t, frame.KindFloat64, combined.Fields[col].Kind)
	require.Equal(t, float64(1), combined.Rows[0][col])
	require.Equal(t, 0.5, combined.Rows[1][col])
}

func TestDatasetMergeRebuildsWhenPriorCorrupt(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()
	shardDir := filepath.Join(dataDir, "t20i_male")

	writeBallsShard(t, shardDir, "100", simpleBalls(11, 0))
	writeBallsShard(t, shardDir, "200", simpleBalls(21, 0))

	outPath := CombinedPath(dataDir, "t20i", "male", "balls")
	require.NoError(t, os.MkdirAll(filepath.Dir(outPath), 0o755))
	require.NoError(t, os.WriteFile(outPath, []byte("corrupt"), 0o644))

	res, err := Dataset(context.Background(), dataDir, "t20i", "male", "balls", true)
	require.NoError(t, err)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, 2, res.AddedShards)
}

func TestRunCoversAllGroupings(t *testing.T) {
	telemetry.SetupForTesting(t, "combine")
	dataDir := t.TempDir()

	writeBallsShard(t, filepath.Join(dataDir, "t20i_male"), "100", simpleBalls(11, 0))
	writeBallsShard(t, filepath.Join(dataDir, "odi_female"), "200", simpleBalls(21, 0))

	results, err := Run(context.Background(), Options{DataDir: dataDir})
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = Run(context.Background(), Options{DataDir: dataDir, Format: "odi"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "odi", results[0].Format)
}
