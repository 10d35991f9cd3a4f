package scrape

import (
	"encoding/csv"
	"os"
	"time"
	"unicode/utf8"

	"github.com/jszwec/csvutil"
)

const maxErrorMessageLen = 200

// ErrorLogEntry is one row of the scrape error log.
type ErrorLogEntry struct {
	Timestamp       string `csv:"timestamp"`
	MatchID         string `csv:"match_id"`
	SeriesID        string `csv:"series_id"`
	SeriesName      string `csv:"series_name"`
	Format          string `csv:"format"`
	Teams           string `csv:"teams"`
	InningsExpected int    `csv:"innings_expected"`
	InningsScraped  int    `csv:"innings_scraped"`
	FailedInnings   string `csv:"failed_innings"`
	ErrorType       string `csv:"error_type"`
	ErrorMessage    string `csv:"error_message"`
}

// AppendErrorLog appends one entry to the CSV error log at path,
// creating it with a header row when missing. Messages are truncated so
// a giant stack trace cannot bloat the log.
func AppendErrorLog(path string, entry ErrorLogEntry) error {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if len(entry.ErrorMessage) > maxErrorMessageLen {
		cut := maxErrorMessageLen
		// back off to a rune boundary so the cut never leaves a broken
		// multi-byte sequence in the CSV
		for cut > 0 && !utf8.RuneStart(entry.ErrorMessage[cut]) {
			cut--
		}
		entry.ErrorMessage = entry.ErrorMessage[:cut]
	}

	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = writeHeader
	if err := enc.Encode(entry); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// ReadErrorLog loads every entry in the log, returning nil when the
// file does not exist yet.
func ReadErrorLog(path string) ([]ErrorLogEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []ErrorLogEntry
	if err := csvutil.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
