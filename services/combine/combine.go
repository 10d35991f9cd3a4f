// Package combine builds the per-(format, gender) combined datasets out
// of the per-match shards, incrementally when a previous combined file
// exists.
package combine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/peteowen1/bouncerdata/lib/frame"
)

var tracer = otel.Tracer("services/combine")

var Formats = []string{"t20i", "odi", "test"}
var Genders = []string{"male", "female"}
var Kinds = []string{"balls", "match", "innings"}

// ballsColumnMap renames the API's camelCase ball columns to the
// snake_case names the combined datasets use.
var ballsColumnMap = map[string]string{
	"inningNumber":       "innings_number",
	"overNumber":         "over_number",
	"ballNumber":         "ball_number",
	"oversActual":        "overs_actual",
	"oversUnique":        "overs_unique",
	"totalRuns":          "total_runs",
	"batsmanRuns":        "batsman_runs",
	"isFour":             "is_four",
	"isSix":              "is_six",
	"isWicket":           "is_wicket",
	"dismissalType":      "dismissal_type",
	"dismissalText":      "dismissal_text",
	"wagonX":             "wagon_x",
	"wagonY":             "wagon_y",
	"wagonZone":          "wagon_zone",
	"pitchLine":          "pitch_line",
	"pitchLength":        "pitch_length",
	"shotType":           "shot_type",
	"shotControl":        "shot_control",
	"batsmanPlayerId":    "batsman_player_id",
	"bowlerPlayerId":     "bowler_player_id",
	"nonStrikerPlayerId": "non_striker_player_id",
	"outPlayerId":        "out_player_id",
	"totalInningRuns":    "total_innings_runs",
	"totalInningWickets": "total_innings_wickets",
}

type Options struct {
	DataDir string
	// Merge appends only shards for matches absent from the existing
	// combined dataset instead of rebuilding from scratch.
	Merge bool
	// Format restricts the run to one format when non-empty.
	Format string
}

// Result summarizes one combined dataset build.
type Result struct {
	Format string
	Gender string
	Kind   string
	Path   string
	Rows   int
	// AddedShards counts shards appended in this run.
	AddedShards int
	// SkippedShards counts malformed or unreadable shards.
	SkippedShards int
}

// CombinedPath names a combined dataset file.
func CombinedPath(dataDir, format, gender, kind string) string {
	return filepath.Join(dataDir, "combined",
		fmt.Sprintf("bbb_%s_%s_%s.parquet", kind, format, gender))
}

// Run combines every (format, gender, kind) dataset that has shards.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "combine.Run")
	defer span.End()
	span.SetAttributes(attribute.Bool("merge", opts.Merge))

	var results []Result
	for _, format := range Formats {
		if opts.Format != "" && format != opts.Format {
			continue
		}
		for _, gender := range Genders {
			for _, kind := range Kinds {
				res, err := Dataset(ctx, opts.DataDir, format, gender, kind, opts.Merge)
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
					return results, err
				}
				if res.Rows > 0 || res.AddedShards > 0 {
					results = append(results, res)
				}
			}
		}
	}
	return results, nil
}

// Dataset combines all shards of one (format, gender, kind) into its
// combined dataset. In merge mode, shards whose match id is already
// present in the prior dataset are excluded; rows already combined are
// never rewritten or deduplicated against new ones.
func Dataset(ctx context.Context, dataDir, format, gender, kind string, merge bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "combine.Dataset")
	defer span.End()
	span.SetAttributes(
		attribute.String("format", format),
		attribute.String("gender", gender),
		attribute.String("kind", kind),
	)

	result := Result{
		Format: format,
		Gender: gender,
		Kind:   kind,
		Path:   CombinedPath(dataDir, format, gender, kind),
	}

	shards, skipped := enumerateShards(ctx, filepath.Join(dataDir, format+"_"+gender), kind)
	result.SkippedShards += skipped
	if len(shards) == 0 {
		return result, nil
	}

	prior, presentIDs := loadPrior(ctx, result.Path, merge)

	var frames []*frame.Frame
	for _, shard := range shards {
		if presentIDs[shard.matchID] {
			continue
		}
		f, err := frame.ReadFile(shard.path)
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable shard", "path", shard.path, "err", err)
			result.SkippedShards++
			continue
		}
		if kind == "balls" {
			f.RenameColumns(ballsColumnMap)
		}
		ensureMatchID(f, shard.matchID)
		frames = append(frames, f)
	}

	if len(frames) == 0 {
		if prior != nil {
			result.Rows = prior.NumRows()
		}
		return result, nil
	}

	all := frames
	if prior != nil {
		// prior rows come first so a rebuilt file stays in shard order
		all = append([]*frame.Frame{prior}, frames...)
	}
	schema := frame.Unify(all...)
	combined := frame.Concat(schema, all...)

	if err := frame.WriteFile(result.Path, combined); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("write %s: %w", result.Path, err)
	}

	result.Rows = combined.NumRows()
	result.AddedShards = len(frames)
	span.SetAttributes(
		attribute.Int("rows", result.Rows),
		attribute.Int("added_shards", result.AddedShards),
	)
	return result, nil
}

type shardFile struct {
	matchID string
	path    string
}

// enumerateShards lists the kind's shards in sorted filename order,
// dropping files whose name does not carry a numeric match id. For the
// match and innings kinds, only matches that also have a balls shard
// are included.
func enumerateShards(ctx context.Context, dir, kind string) ([]shardFile, int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0
	}

	hasBalls := map[string]bool{}
	if kind != "balls" {
		for _, e := range entries {
			if id, ok := shardMatchID(e.Name(), "balls"); ok {
				hasBalls[id] = true
			}
		}
	}

	var shards []shardFile
	skipped := 0
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasSuffix(name, "_"+kind+".parquet") {
			continue
		}
		id, ok := shardMatchID(name, kind)
		if !ok {
			slog.WarnContext(ctx, "skipping shard with malformed name", "name", name)
			skipped++
			continue
		}
		if kind != "balls" && !hasBalls[id] {
			continue
		}
		shards = append(shards, shardFile{matchID: id, path: filepath.Join(dir, name)})
	}
	return shards, skipped
}

// shardMatchID extracts the numeric match id from a shard filename like
// 1381217_balls.parquet.
func shardMatchID(name, kind string) (string, bool) {
	id, ok := strings.CutSuffix(name, "_"+kind+".parquet")
	if !ok || id == "" {
		return "", false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

// loadPrior reads the existing combined dataset in merge mode. A
// missing file is a normal full build; an unreadable one is logged and
// rebuilt from shards, which lose nothing since they are retained.
func loadPrior(ctx context.Context, path string, merge bool) (*frame.Frame, map[string]bool) {
	if !merge {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	prior, err := frame.ReadFile(path)
	if err != nil {
		slog.WarnContext(ctx, "existing combined dataset is unreadable, rebuilding from shards",
			"path", path, "err", err)
		return nil, nil
	}

	present := map[string]bool{}
	for _, id := range prior.Strings("match_id") {
		if id != "" {
			present[id] = true
		}
	}
	return prior, present
}

// ensureMatchID stamps the shard's match id onto every row when the
// column is missing or carries no concrete values.
func ensureMatchID(f *frame.Frame, matchID string) {
	col := f.Column("match_id")
	if col >= 0 && f.Fields[col].Kind != frame.KindNull {
		return
	}
	f.SetConstantString("match_id", matchID)
}
