package scrape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommentFlattening(t *testing.T) {
	raw := `{
		"id": 42,
		"inningNumber": 2,
		"overNumber": 14,
		"ballNumber": 3,
		"oversActual": 14.3,
		"totalRuns": 4,
		"isFour": true,
		"dismissalText": {"long": "c Smith b Starc"},
		"predictions": {"score": 183.5, "winProbability": 0.62},
		"events": [{"type": "DRS_REVIEW", "isSuccessful": false}],
		"wagonX": 211,
		"title": "14.3 Starc to Kohli"
	}`
	var c comment
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	require.True(t, c.isDelivery())
	require.True(t, c.isRich())

	b := c.flatten()
	require.Equal(t, int64(42), b.ID)
	require.Equal(t, "c Smith b Starc", *b.DismissalText)
	require.Equal(t, 183.5, *b.PredictedScore)
	require.Equal(t, 0.62, *b.WinProbability)
	require.Equal(t, "DRS_REVIEW", *b.EventType)
	require.False(t, *b.DrsSuccessful)
	require.Equal(t, 14.3, *b.OversActual)
}

func TestFlattenDrsFlagOnlyForReviews(t *testing.T) {
	raw := `{
		"id": 7, "overNumber": 1, "ballNumber": 1,
		"events": [{"type": "DROPPED_CATCH", "isSuccessful": true}]
	}`
	var c comment
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	b := c.flatten()
	require.Equal(t, "DROPPED_CATCH", *b.EventType)
	require.Nil(t, b.DrsSuccessful)
}

func TestBallSetDedupAndSort(t *testing.T) {
	mk := func(id, over, ball int64, title string) comment {
		var c comment
		c.ID = id
		c.OverNumber = &over
		c.BallNumber = &ball
		c.Title = &title
		return c
	}

	set := newBallSet()
	set.add(mk(3, 1, 1, "first seen"))
	set.add(mk(1, 0, 1, ""))
	set.add(mk(3, 1, 1, "duplicate, ignored"))
	set.add(mk(2, 0, 2, ""))
	set.add(comment{}) // no over number, not a delivery

	balls := set.sorted()
	require.Len(t, balls, 3)
	require.Equal(t, int64(1), balls[0].ID)
	require.Equal(t, int64(2), balls[1].ID)
	require.Equal(t, int64(3), balls[2].ID)
	require.Equal(t, "first seen", *balls[2].Title)
}

func TestParseCommentaryPage(t *testing.T) {
	page, err := parseCommentaryPage([]byte(`{"comments":[{"id":1,"overNumber":0}],"nextInningOver":12}`))
	require.NoError(t, err)
	require.Len(t, page.Comments, 1)
	require.Equal(t, int64(12), *page.NextInningOver)

	page, err = parseCommentaryPage([]byte(`{"comments":[],"nextInningOver":null}`))
	require.NoError(t, err)
	require.Nil(t, page.NextInningOver)

	_, err = parseCommentaryPage([]byte(`{not json`))
	require.Error(t, err)
}

func TestParseSnapshotInningsRows(t *testing.T) {
	html := snapshotHTML(`{
		"match": ` + matchJSON + `,
		"content": {
			"comments": [],
			"innings": [{
				"inningNumber": 1,
				"team": {"objectId": 6, "longName": "India"},
				"runs": 185, "wickets": 4, "overs": 20.0,
				"inningBatsmen": [{
					"player": {
						"objectId": 253802, "longName": "V Kohli",
						"dateOfBirth": {"year": 1988, "month": 11, "date": 5},
						"battingStyles": ["rhb"], "bowlingStyles": ["rm"]
					},
					"runs": 82, "ballsFaced": 53, "fours": 6, "sixes": 4,
					"strikerate": 154.71, "isNotOut": true, "battingPosition": 3
				}]
			}]
		}
	}`)
	snap, err := parseSnapshot(html)
	require.NoError(t, err)

	rows := snap.inningsRows()
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), *rows[0].InningsNumber)
	require.Equal(t, "India", *rows[0].TeamName)
	require.Equal(t, "V Kohli", *rows[0].PlayerName)
	require.Equal(t, "1988-11-05", *rows[0].PlayerDob)
	require.Equal(t, "rhb", *rows[0].BattingStyle)
	require.Equal(t, int64(82), *rows[0].Runs)
	require.True(t, *rows[0].IsNotOut)
}
