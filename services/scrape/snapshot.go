package scrape

import (
	"encoding/json"
	"fmt"

	"github.com/peteowen1/bouncerdata/lib/nextdata"
)

// pageSnapshot is the server-rendered state of a commentary page: match
// metadata plus the first page of commentary, before any pagination.
type pageSnapshot struct {
	Match   matchInfo   `json:"match"`
	Content contentInfo `json:"content"`
}

type matchInfo struct {
	ObjectID             int64   `json:"objectId"`
	Title                *string `json:"title"`
	Format               *string `json:"format"`
	InternationalClassID *int64  `json:"internationalClassId"`
	Gender               *string `json:"gender"`
	Slug                 *string `json:"slug"`
	StartDate            *string `json:"startDate"`
	EndDate              *string `json:"endDate"`
	StartTime            *string `json:"startTime"`
	Status               *string `json:"status"`
	StatusText           *string `json:"statusText"`
	TossWinnerTeamID     *int64  `json:"tossWinnerTeamId"`
	TossWinnerChoice     *int64  `json:"tossWinnerChoice"`
	WinnerTeamID         *int64  `json:"winnerTeamId"`
	ScheduledOvers       *int64  `json:"scheduledOvers"`
	HawkeyeSource        *string `json:"hawkeyeSource"`
	BallByBallSource     *string `json:"ballByBallSource"`
	Series               *struct {
		ObjectID int64   `json:"objectId"`
		LongName *string `json:"longName"`
	} `json:"series"`
	Ground *struct {
		ObjectID int64   `json:"objectId"`
		Name     *string `json:"name"`
		LongName *string `json:"longName"`
		Country  *struct {
			Name *string `json:"name"`
		} `json:"country"`
		Town *struct {
			Name *string `json:"name"`
		} `json:"town"`
	} `json:"ground"`
	Teams []struct {
		Team *struct {
			ObjectID     int64   `json:"objectId"`
			LongName     *string `json:"longName"`
			Abbreviation *string `json:"abbreviation"`
		} `json:"team"`
		Captain *struct {
			ObjectID int64 `json:"objectId"`
		} `json:"captain"`
		IsHome *bool `json:"isHome"`
	} `json:"teams"`
	Umpires       []official `json:"umpires"`
	TvUmpires     []official `json:"tvUmpires"`
	MatchReferees []official `json:"matchReferees"`
}

type official struct {
	ObjectID int64   `json:"objectId"`
	LongName *string `json:"longName"`
}

type contentInfo struct {
	Comments            []comment `json:"comments"`
	NextInningOver      *int64    `json:"nextInningOver"`
	CurrentInningNumber *int64    `json:"currentInningNumber"`
	SupportInfo         *struct {
		PlayersOfTheMatch []struct {
			Player *official `json:"player"`
		} `json:"playersOfTheMatch"`
	} `json:"supportInfo"`
	Innings []snapshotInnings `json:"innings"`
}

type snapshotInnings struct {
	InningNumber *int64 `json:"inningNumber"`
	Team         *struct {
		ObjectID int64   `json:"objectId"`
		LongName *string `json:"longName"`
	} `json:"team"`
	Runs          *int64          `json:"runs"`
	Wickets       *int64          `json:"wickets"`
	Overs         *float64        `json:"overs"`
	InningBatsmen []inningBatsman `json:"inningBatsmen"`
}

type inningBatsman struct {
	Player *struct {
		ObjectID      int64       `json:"objectId"`
		LongName      *string     `json:"longName"`
		DateOfBirth   dateOfBirth `json:"dateOfBirth"`
		BattingStyles []string    `json:"battingStyles"`
		BowlingStyles []string    `json:"bowlingStyles"`
		PlayingRole   *string     `json:"playingRole"`
	} `json:"player"`
	Runs            *int64   `json:"runs"`
	BallsFaced      *int64   `json:"ballsFaced"`
	Fours           *int64   `json:"fours"`
	Sixes           *int64   `json:"sixes"`
	StrikeRate      *float64 `json:"strikerate"`
	IsNotOut        *bool    `json:"isNotOut"`
	BattingPosition *int64   `json:"battingPosition"`
}

// dateOfBirth tolerates both the string form and the structured
// {year,month,date} object the API uses interchangeably.
type dateOfBirth struct {
	Value *string
}

func (d *dateOfBirth) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.Value = &s
		return nil
	}
	var obj struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Date  int `json:"date"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Year > 0 {
		formatted := fmt.Sprintf("%04d-%02d-%02d", obj.Year, obj.Month, obj.Date)
		d.Value = &formatted
	}
	return nil
}

func parseSnapshot(html string) (*pageSnapshot, error) {
	raw, err := nextdata.Extract([]byte(html))
	if err != nil {
		return nil, err
	}
	var nd struct {
		Props struct {
			AppPageProps struct {
				Data pageSnapshot `json:"data"`
			} `json:"appPageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal(raw, &nd); err != nil {
		return nil, fmt.Errorf("parse page data: %w", err)
	}
	return &nd.Props.AppPageProps.Data, nil
}

func (s *pageSnapshot) hasBalls() bool {
	for _, c := range s.Content.Comments {
		if c.isDelivery() {
			return true
		}
	}
	return false
}

func (s *pageSnapshot) hasRich() bool {
	for _, c := range s.Content.Comments {
		if c.isRich() {
			return true
		}
	}
	return false
}

func (s *pageSnapshot) teamAbbreviations() []string {
	var out []string
	for _, t := range s.Match.Teams {
		if t.Team != nil && t.Team.Abbreviation != nil {
			out = append(out, *t.Team.Abbreviation)
		}
	}
	return out
}

// MatchMeta is the single-row match shard: venue, officials, toss and
// result context for the match.
type MatchMeta struct {
	MatchID            int64    `parquet:"match_id"`
	Title              *string  `parquet:"title,optional"`
	SeriesID           *int64   `parquet:"series_id,optional"`
	SeriesName         *string  `parquet:"series_name,optional"`
	Format             *string  `parquet:"format,optional"`
	InternationalClass *int64   `parquet:"international_class_id,optional"`
	Gender             *string  `parquet:"gender,optional"`
	StartDate          *string  `parquet:"start_date,optional"`
	EndDate            *string  `parquet:"end_date,optional"`
	StartTime          *string  `parquet:"start_time,optional"`
	Status             *string  `parquet:"status,optional"`
	StatusText         *string  `parquet:"status_text,optional"`
	Slug               *string  `parquet:"slug,optional"`
	GroundID           *int64   `parquet:"ground_id,optional"`
	GroundName         *string  `parquet:"ground_name,optional"`
	GroundLongName     *string  `parquet:"ground_long_name,optional"`
	CountryName        *string  `parquet:"country_name,optional"`
	CityName           *string  `parquet:"city_name,optional"`
	TossWinnerTeamID   *int64   `parquet:"toss_winner_team_id,optional"`
	TossWinnerChoice   *int64   `parquet:"toss_winner_choice,optional"`
	WinnerTeamID       *int64   `parquet:"winner_team_id,optional"`
	ScheduledOvers     *int64   `parquet:"scheduled_overs,optional"`
	HawkeyeSource      *string  `parquet:"hawkeye_source,optional"`
	BallByBallSource   *string  `parquet:"ball_by_ball_source,optional"`
	Team1ID            *int64   `parquet:"team1_id,optional"`
	Team1Name          *string  `parquet:"team1_name,optional"`
	Team1Abbreviation  *string  `parquet:"team1_abbreviation,optional"`
	Team1CaptainID     *int64   `parquet:"team1_captain_id,optional"`
	Team1IsHome        *bool    `parquet:"team1_is_home,optional"`
	Team2ID            *int64   `parquet:"team2_id,optional"`
	Team2Name          *string  `parquet:"team2_name,optional"`
	Team2Abbreviation  *string  `parquet:"team2_abbreviation,optional"`
	Team2CaptainID     *int64   `parquet:"team2_captain_id,optional"`
	Team2IsHome        *bool    `parquet:"team2_is_home,optional"`
	Umpire1ID          *int64   `parquet:"umpire1_id,optional"`
	Umpire1Name        *string  `parquet:"umpire1_name,optional"`
	Umpire2ID          *int64   `parquet:"umpire2_id,optional"`
	Umpire2Name        *string  `parquet:"umpire2_name,optional"`
	TvUmpireID         *int64   `parquet:"tv_umpire_id,optional"`
	TvUmpireName       *string  `parquet:"tv_umpire_name,optional"`
	MatchRefereeID     *int64   `parquet:"match_referee_id,optional"`
	MatchRefereeName   *string  `parquet:"match_referee_name,optional"`
	PotmPlayerID       *int64   `parquet:"potm_player_id,optional"`
	PotmPlayerName     *string  `parquet:"potm_player_name,optional"`
}

// InningsBatter is one row of the innings shard: a batter's scorecard
// line joined with innings totals and player details.
type InningsBatter struct {
	InningsNumber   *int64   `parquet:"innings_number,optional"`
	TeamID          *int64   `parquet:"team_id,optional"`
	TeamName        *string  `parquet:"team_name,optional"`
	TotalRuns       *int64   `parquet:"total_runs,optional"`
	TotalWickets    *int64   `parquet:"total_wickets,optional"`
	TotalOvers      *float64 `parquet:"total_overs,optional"`
	PlayerID        *int64   `parquet:"player_id,optional"`
	PlayerName      *string  `parquet:"player_name,optional"`
	PlayerDob       *string  `parquet:"player_dob,optional"`
	BattingStyle    *string  `parquet:"batting_style,optional"`
	BowlingStyle    *string  `parquet:"bowling_style,optional"`
	PlayingRole     *string  `parquet:"playing_role,optional"`
	Runs            *int64   `parquet:"runs,optional"`
	BallsFaced      *int64   `parquet:"balls_faced,optional"`
	Fours           *int64   `parquet:"fours,optional"`
	Sixes           *int64   `parquet:"sixes,optional"`
	StrikeRate      *float64 `parquet:"strike_rate,optional"`
	IsNotOut        *bool    `parquet:"is_not_out,optional"`
	BattingPosition *int64   `parquet:"batting_position,optional"`
}

func (s *pageSnapshot) matchMeta() *MatchMeta {
	m := s.Match
	if m.ObjectID == 0 {
		return nil
	}
	meta := &MatchMeta{
		MatchID:            m.ObjectID,
		Title:              m.Title,
		Format:             m.Format,
		InternationalClass: m.InternationalClassID,
		Gender:             m.Gender,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		StartTime:          m.StartTime,
		Status:             m.Status,
		StatusText:         m.StatusText,
		Slug:               m.Slug,
		TossWinnerTeamID:   m.TossWinnerTeamID,
		TossWinnerChoice:   m.TossWinnerChoice,
		WinnerTeamID:       m.WinnerTeamID,
		ScheduledOvers:     m.ScheduledOvers,
		HawkeyeSource:      m.HawkeyeSource,
		BallByBallSource:   m.BallByBallSource,
	}
	if m.Series != nil {
		meta.SeriesID = &m.Series.ObjectID
		meta.SeriesName = m.Series.LongName
	}
	if g := m.Ground; g != nil {
		meta.GroundID = &g.ObjectID
		meta.GroundName = g.Name
		meta.GroundLongName = g.LongName
		if g.Country != nil {
			meta.CountryName = g.Country.Name
		}
		if g.Town != nil {
			meta.CityName = g.Town.Name
		}
	}
	if len(m.Teams) > 0 {
		t := m.Teams[0]
		if t.Team != nil {
			meta.Team1ID = &t.Team.ObjectID
			meta.Team1Name = t.Team.LongName
			meta.Team1Abbreviation = t.Team.Abbreviation
		}
		if t.Captain != nil {
			meta.Team1CaptainID = &t.Captain.ObjectID
		}
		meta.Team1IsHome = t.IsHome
	}
	if len(m.Teams) > 1 {
		t := m.Teams[1]
		if t.Team != nil {
			meta.Team2ID = &t.Team.ObjectID
			meta.Team2Name = t.Team.LongName
			meta.Team2Abbreviation = t.Team.Abbreviation
		}
		if t.Captain != nil {
			meta.Team2CaptainID = &t.Captain.ObjectID
		}
		meta.Team2IsHome = t.IsHome
	}
	if len(m.Umpires) > 0 {
		meta.Umpire1ID = &m.Umpires[0].ObjectID
		meta.Umpire1Name = m.Umpires[0].LongName
	}
	if len(m.Umpires) > 1 {
		meta.Umpire2ID = &m.Umpires[1].ObjectID
		meta.Umpire2Name = m.Umpires[1].LongName
	}
	if len(m.TvUmpires) > 0 {
		meta.TvUmpireID = &m.TvUmpires[0].ObjectID
		meta.TvUmpireName = m.TvUmpires[0].LongName
	}
	if len(m.MatchReferees) > 0 {
		meta.MatchRefereeID = &m.MatchReferees[0].ObjectID
		meta.MatchRefereeName = m.MatchReferees[0].LongName
	}
	if si := s.Content.SupportInfo; si != nil && len(si.PlayersOfTheMatch) > 0 {
		if p := si.PlayersOfTheMatch[0].Player; p != nil {
			meta.PotmPlayerID = &p.ObjectID
			meta.PotmPlayerName = p.LongName
		}
	}
	return meta
}

func (s *pageSnapshot) inningsRows() []InningsBatter {
	var rows []InningsBatter
	for _, inn := range s.Content.Innings {
		for _, bat := range inn.InningBatsmen {
			row := InningsBatter{
				InningsNumber:   inn.InningNumber,
				TotalRuns:       inn.Runs,
				TotalWickets:    inn.Wickets,
				TotalOvers:      inn.Overs,
				Runs:            bat.Runs,
				BallsFaced:      bat.BallsFaced,
				Fours:           bat.Fours,
				Sixes:           bat.Sixes,
				StrikeRate:      bat.StrikeRate,
				IsNotOut:        bat.IsNotOut,
				BattingPosition: bat.BattingPosition,
			}
			if inn.Team != nil {
				row.TeamID = &inn.Team.ObjectID
				row.TeamName = inn.Team.LongName
			}
			if p := bat.Player; p != nil {
				row.PlayerID = &p.ObjectID
				row.PlayerName = p.LongName
				row.PlayerDob = p.DateOfBirth.Value
				if len(p.BattingStyles) > 0 {
					row.BattingStyle = &p.BattingStyles[0]
				}
				if len(p.BowlingStyles) > 0 {
					row.BowlingStyle = &p.BowlingStyles[0]
				}
				row.PlayingRole = p.PlayingRole
			}
			rows = append(rows, row)
		}
	}
	return rows
}
