package scrape

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestErrorLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape_errors.csv")

	entries, err := ReadErrorLog(path)
	require.NoError(t, err)
	require.Empty(t, entries)

	require.NoError(t, AppendErrorLog(path, ErrorLogEntry{
		MatchID:    "1381217",
		SeriesID:   "1381200",
		SeriesName: "World Cup",
		Format:     "t20i",
		Teams:      "IND v AUS",
		ErrorType:  "blocked",
	}))
	require.NoError(t, AppendErrorLog(path, ErrorLogEntry{
		MatchID:      "1381218",
		ErrorType:    "no_ball_data",
		ErrorMessage: strings.Repeat("x", 500),
	}))

	entries, err = ReadErrorLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "1381217", entries[0].MatchID)
	require.Equal(t, "blocked", entries[0].ErrorType)
	require.NotEmpty(t, entries[0].Timestamp)
	require.Len(t, entries[1].ErrorMessage, maxErrorMessageLen)
}

func TestErrorLogTruncatesOnRuneBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrape_errors.csv")

	// place a multi-byte rune across the truncation point
	message := strings.Repeat("x", maxErrorMessageLen-1) + "语言"
	require.NoError(t, AppendErrorLog(path, ErrorLogEntry{
		MatchID:      "1381219",
		ErrorType:    "scrape_failed",
		ErrorMessage: message,
	}))

	entries, err := ReadErrorLog(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, utf8.ValidString(entries[0].ErrorMessage))
	require.Equal(t, strings.Repeat("x", maxErrorMessageLen-1), entries[0].ErrorMessage)
}
