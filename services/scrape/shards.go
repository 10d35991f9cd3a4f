package scrape

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mazen160/go-random"
	"github.com/parquet-go/parquet-go"
)

// ShardPath names a per-match shard file:
// {dataDir}/{format}_{gender}/{matchID}_{kind}.parquet.
func ShardPath(dataDir, format, gender, matchID, kind string) string {
	return filepath.Join(dataDir, format+"_"+gender, fmt.Sprintf("%s_%s.parquet", matchID, kind))
}

// WriteShards writes the balls/match/innings shards for one match.
// Empty row sets produce no file; existing shards are overwritten.
// Returns the kinds that were written.
func WriteShards(dataDir, format, gender, matchID string, result MatchResult) ([]string, error) {
	var written []string

	if len(result.Balls) > 0 {
		path := ShardPath(dataDir, format, gender, matchID, "balls")
		if err := writeShard(path, result.Balls); err != nil {
			return written, fmt.Errorf("write balls shard: %w", err)
		}
		written = append(written, "balls")
	}
	if result.MatchMeta != nil {
		path := ShardPath(dataDir, format, gender, matchID, "match")
		if err := writeShard(path, []MatchMeta{*result.MatchMeta}); err != nil {
			return written, fmt.Errorf("write match shard: %w", err)
		}
		written = append(written, "match")
	}
	if len(result.Innings) > 0 {
		path := ShardPath(dataDir, format, gender, matchID, "innings")
		if err := writeShard(path, result.Innings); err != nil {
			return written, fmt.Errorf("write innings shard: %w", err)
		}
		written = append(written, "innings")
	}
	return written, nil
}

// writeShard writes rows to path atomically via a uniquely-named temp
// file beside the target.
func writeShard[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	suffix, err := random.String(8)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, suffix)

	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[T](file)
	if _, err := w.Write(rows); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := w.Close(); err != nil {
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
