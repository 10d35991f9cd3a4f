package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peteowen1/bouncerdata/lib/telemetry"
)

func TestDetectSeriesGender(t *testing.T) {
	g := "Female"
	require.Equal(t, "female", detectSeriesGender(&g, "", ""))
	require.Equal(t, "female", detectSeriesGender(nil, "australia-women-2026", ""))
	require.Equal(t, "female", detectSeriesGender(nil, "", "WBBL 2025/26"))
	require.Equal(t, "", detectSeriesGender(nil, "the-ashes", "The Ashes"))
}

const scheduleBody = `{
	"props": {"appPageProps": {"data": {
		"series": {"slug": "world-cup-1381200", "longName": "World Cup"},
		"content": {"matches": [
			{
				"objectId": 100, "state": "FINISHED", "slug": "ind-vs-aus-final",
				"title": "Final", "startDate": "2026-03-01", "statusText": "India won",
				"winnerTeamId": 6,
				"teams": [
					{"team": {"longName": "India", "abbreviation": "IND"}},
					{"team": {"longName": "Australia", "abbreviation": "AUS"}}
				],
				"ground": {"name": "MCG", "country": {"name": "Australia"}}
			},
			{"objectId": 101, "state": "UPCOMING", "slug": "warm-up", "title": "Warm-up"}
		]}
	}}}
}`

func TestDiscoverSeries(t *testing.T) {
	telemetry.SetupForTesting(t, "discovery")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/series/world-cup-1381200/match-schedule-fixtures-and-results", r.URL.Path)
		w.Write([]byte(`<html><head><script id="__NEXT_DATA__" type="application/json">` +
			scheduleBody + `</script></head><body></body></html>`))
	}))
	defer srv.Close()

	svc, err := NewService()
	require.NoError(t, err)

	refs, rows, err := svc.DiscoverSeries(context.Background(), Series{
		SeriesID: "1381200",
		URL:      srv.URL + "/series/world-cup-1381200",
		Format:   "t20i",
	})
	require.NoError(t, err)

	require.Len(t, rows, 2, "fixture rows cover every match state")
	require.Equal(t, "100", rows[0].MatchID)
	require.Equal(t, "World Cup", rows[0].SeriesName)
	require.Equal(t, "male", rows[0].Gender)
	require.Equal(t, "India", rows[0].Team1)
	require.Equal(t, "6", rows[0].WinnerTeamID)
	require.Equal(t, "MCG", rows[0].Venue)
	require.Equal(t, "UPCOMING", rows[1].Status)

	require.Len(t, refs, 1, "only finished matches are scrape candidates")
	require.Equal(t, "100", refs[0].MatchID)
	require.Equal(t, []string{"IND", "AUS"}, refs[0].Teams)
	require.Equal(t, BaseURL+"/series/world-cup-1381200/ind-vs-aus-final-100", refs[0].URL())
}
