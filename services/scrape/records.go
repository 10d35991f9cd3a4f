package scrape

import (
	"encoding/json"
	"sort"
)

// Ball is one flattened delivery row, written to the per-match balls
// shard. Column names stay camelCase on disk; consolidation renames
// them to snake_case.
type Ball struct {
	ID                 int64    `parquet:"id" json:"id"`
	InningNumber       *int64   `parquet:"inningNumber,optional" json:"inningNumber"`
	OverNumber         *int64   `parquet:"overNumber,optional" json:"overNumber"`
	BallNumber         *int64   `parquet:"ballNumber,optional" json:"ballNumber"`
	OversActual        *float64 `parquet:"oversActual,optional" json:"oversActual"`
	OversUnique        *float64 `parquet:"oversUnique,optional" json:"oversUnique"`
	TotalRuns          *int64   `parquet:"totalRuns,optional" json:"totalRuns"`
	BatsmanRuns        *int64   `parquet:"batsmanRuns,optional" json:"batsmanRuns"`
	IsFour             *bool    `parquet:"isFour,optional" json:"isFour"`
	IsSix              *bool    `parquet:"isSix,optional" json:"isSix"`
	IsWicket           *bool    `parquet:"isWicket,optional" json:"isWicket"`
	DismissalType      *int64   `parquet:"dismissalType,optional" json:"dismissalType"`
	DismissalText      *string  `parquet:"dismissalText,optional" json:"-"`
	Wides              *int64   `parquet:"wides,optional" json:"wides"`
	Noballs            *int64   `parquet:"noballs,optional" json:"noballs"`
	Byes               *int64   `parquet:"byes,optional" json:"byes"`
	Legbyes            *int64   `parquet:"legbyes,optional" json:"legbyes"`
	Penalties          *int64   `parquet:"penalties,optional" json:"penalties"`
	WagonX             *int64   `parquet:"wagonX,optional" json:"wagonX"`
	WagonY             *int64   `parquet:"wagonY,optional" json:"wagonY"`
	WagonZone          *int64   `parquet:"wagonZone,optional" json:"wagonZone"`
	PitchLine          *string  `parquet:"pitchLine,optional" json:"pitchLine"`
	PitchLength        *string  `parquet:"pitchLength,optional" json:"pitchLength"`
	ShotType           *string  `parquet:"shotType,optional" json:"shotType"`
	ShotControl        *int64   `parquet:"shotControl,optional" json:"shotControl"`
	BatsmanPlayerID    *int64   `parquet:"batsmanPlayerId,optional" json:"batsmanPlayerId"`
	BowlerPlayerID     *int64   `parquet:"bowlerPlayerId,optional" json:"bowlerPlayerId"`
	NonStrikerPlayerID *int64   `parquet:"nonStrikerPlayerId,optional" json:"nonStrikerPlayerId"`
	OutPlayerID        *int64   `parquet:"outPlayerId,optional" json:"outPlayerId"`
	TotalInningRuns    *int64   `parquet:"totalInningRuns,optional" json:"totalInningRuns"`
	TotalInningWickets *int64   `parquet:"totalInningWickets,optional" json:"totalInningWickets"`
	PredictedScore     *float64 `parquet:"predicted_score,optional" json:"-"`
	WinProbability     *float64 `parquet:"win_probability,optional" json:"-"`
	EventType          *string  `parquet:"event_type,optional" json:"-"`
	DrsSuccessful      *bool    `parquet:"drs_successful,optional" json:"-"`
	Title              *string  `parquet:"title,optional" json:"title"`
	Timestamp          *string  `parquet:"timestamp,optional" json:"timestamp"`
}

// comment is the raw delivery object as served by the commentary API,
// with the nested pieces Ball flattens.
type comment struct {
	Ball
	DismissalTextObj *struct {
		Long *string `json:"long"`
	} `json:"dismissalText"`
	Predictions *struct {
		Score          *float64 `json:"score"`
		WinProbability *float64 `json:"winProbability"`
	} `json:"predictions"`
	Events []struct {
		Type         *string `json:"type"`
		IsSuccessful *bool   `json:"isSuccessful"`
	} `json:"events"`
}

func (c comment) flatten() Ball {
	b := c.Ball
	if c.DismissalTextObj != nil {
		b.DismissalText = c.DismissalTextObj.Long
	}
	if c.Predictions != nil {
		b.PredictedScore = c.Predictions.Score
		b.WinProbability = c.Predictions.WinProbability
	}
	if len(c.Events) > 0 {
		first := c.Events[0]
		b.EventType = first.Type
		if first.Type != nil && *first.Type == "DRS_REVIEW" {
			b.DrsSuccessful = first.IsSuccessful
		}
	}
	return b
}

// isDelivery filters out commentary-only rows (session breaks, pitch
// reports) that carry no over number.
func (c comment) isDelivery() bool {
	return c.OverNumber != nil
}

func (c comment) isRich() bool {
	return c.WagonX != nil || c.Predictions != nil
}

// commentaryPage is one captured pagination response. A nil
// NextInningOver means the current innings has no more data.
type commentaryPage struct {
	Comments       []comment `json:"comments"`
	NextInningOver *int64    `json:"nextInningOver"`
}

func parseCommentaryPage(body []byte) (commentaryPage, error) {
	var page commentaryPage
	err := json.Unmarshal(body, &page)
	return page, err
}

// ballSet accumulates deliveries for one innings with
// first-occurrence-wins dedup on ball id.
type ballSet struct {
	seen  map[int64]bool
	balls []Ball
}

func newBallSet() *ballSet {
	return &ballSet{seen: map[int64]bool{}}
}

func (s *ballSet) add(c comment) {
	if !c.isDelivery() || c.ID == 0 || s.seen[c.ID] {
		return
	}
	s.seen[c.ID] = true
	s.balls = append(s.balls, c.flatten())
}

// sorted returns the deliveries ordered by (over, ball). Captured pages
// arrive in scroll order, which interleaves; downstream consumers want
// chronological order.
func (s *ballSet) sorted() []Ball {
	sort.SliceStable(s.balls, func(i, j int) bool {
		oi, oj := int64Or(s.balls[i].OverNumber, 0), int64Or(s.balls[j].OverNumber, 0)
		if oi != oj {
			return oi < oj
		}
		return int64Or(s.balls[i].BallNumber, 0) < int64Or(s.balls[j].BallNumber, 0)
	})
	return s.balls
}

func int64Or(v *int64, fallback int64) int64 {
	if v == nil {
		return fallback
	}
	return *v
}
