// Package discovery finds the matches of a series from its schedule
// page over plain HTTP, far cheaper than a browser session, and feeds
// the fixture tracker.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/peteowen1/bouncerdata/lib/nextdata"
	"github.com/peteowen1/bouncerdata/services/fixtures"
)

var tracer = otel.Tracer("services/discovery")

const BaseURL = "https://www.espncricinfo.com"

// MatchRef points at one finished match ready for scraping.
type MatchRef struct {
	MatchID    string
	Slug       string
	SeriesSlug string
	SeriesID   string
	Title      string
	Teams      []string
}

// URL is the match page the scraper navigates to.
func (m MatchRef) URL() string {
	return fmt.Sprintf("%s/series/%s/%s-%s", BaseURL, m.SeriesSlug, m.Slug, m.MatchID)
}

// Series identifies a series to discover, with whatever metadata the
// series list already knows.
type Series struct {
	SeriesID string
	URL      string
	Name     string
	Format   string
	Gender   string
}

type Service struct {
	client *resty.Client
}

func NewService() (*Service, error) {
	client, err := nextdata.NewClient()
	if err != nil {
		return nil, err
	}
	return &Service{client: client}, nil
}

// schedulePage mirrors the schedule page's server-rendered data.
type schedulePage struct {
	Series struct {
		Slug     string  `json:"slug"`
		Gender   *string `json:"gender"`
		LongName *string `json:"longName"`
		Name     *string `json:"name"`
	} `json:"series"`
	Content struct {
		Matches []scheduleMatch `json:"matches"`
	} `json:"content"`
}

type scheduleMatch struct {
	ObjectID   int64   `json:"objectId"`
	ID         int64   `json:"id"`
	State      string  `json:"state"`
	Slug       string  `json:"slug"`
	StartDate  *string `json:"startDate"`
	StartTime  *string `json:"startTime"`
	Title      *string `json:"title"`
	StatusText *string `json:"statusText"`
	WinnerID   *int64  `json:"winnerTeamId"`
	Teams      []struct {
		Team *struct {
			LongName     *string `json:"longName"`
			Abbreviation *string `json:"abbreviation"`
		} `json:"team"`
	} `json:"teams"`
	Ground *struct {
		Name    *string `json:"name"`
		Country *struct {
			Name *string `json:"name"`
		} `json:"country"`
	} `json:"ground"`
}

// DiscoverSeries fetches the series schedule and returns the finished
// matches to scrape plus fixture rows for every match state.
func (s *Service) DiscoverSeries(ctx context.Context, series Series) ([]MatchRef, []fixtures.Fixture, error) {
	ctx, span := tracer.Start(ctx, "discovery.DiscoverSeries")
	defer span.End()
	span.SetAttributes(attribute.String("series_id", series.SeriesID))

	seriesURL := series.URL
	if seriesURL == "" {
		// a slug URL is preferred, id-only is the last resort since some
		// stub pages only render with the slug
		seriesURL = fmt.Sprintf("%s/series/%s", BaseURL, series.SeriesID)
	}

	raw, err := nextdata.Fetch(ctx, s.client, seriesURL+"/match-schedule-fixtures-and-results")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("fetch schedule for series %s: %w", series.SeriesID, err)
	}

	var nd struct {
		Props struct {
			AppPageProps struct {
				Data schedulePage `json:"data"`
			} `json:"appPageProps"`
		} `json:"props"`
	}
	if err := json.Unmarshal(raw, &nd); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("parse schedule for series %s: %w", series.SeriesID, err)
	}
	page := nd.Props.AppPageProps.Data
	if len(page.Content.Matches) == 0 {
		return nil, nil, nil
	}

	name := series.Name
	if name == "" {
		name = strOr(page.Series.LongName, strOr(page.Series.Name, ""))
	}
	gender := detectSeriesGender(page.Series.Gender, page.Series.Slug, name)
	if gender == "" {
		gender = series.Gender
	}
	if gender == "" {
		gender = "male"
	}

	var refs []MatchRef
	var rows []fixtures.Fixture
	for _, m := range page.Content.Matches {
		id := m.ObjectID
		if id == 0 {
			id = m.ID
		}
		if id == 0 {
			continue
		}
		matchID := strconv.FormatInt(id, 10)

		row := fixtures.Fixture{
			MatchID:    matchID,
			SeriesID:   series.SeriesID,
			SeriesName: name,
			Format:     series.Format,
			Gender:     gender,
			Status:     m.State,
			StartDate:  strOr(m.StartDate, ""),
			StartTime:  strOr(m.StartTime, ""),
			Title:      strOr(m.Title, ""),
			StatusText: strOr(m.StatusText, ""),
		}
		if m.WinnerID != nil {
			row.WinnerTeamID = strconv.FormatInt(*m.WinnerID, 10)
		}
		if g := m.Ground; g != nil {
			row.Venue = strOr(g.Name, "")
			if g.Country != nil {
				row.Country = strOr(g.Country.Name, "")
			}
		}
		var teams []string
		if len(m.Teams) > 0 && m.Teams[0].Team != nil {
			row.Team1 = strOr(m.Teams[0].Team.LongName, "")
			row.Team1Abbrev = strOr(m.Teams[0].Team.Abbreviation, "")
		}
		if len(m.Teams) > 1 && m.Teams[1].Team != nil {
			row.Team2 = strOr(m.Teams[1].Team.LongName, "")
			row.Team2Abbrev = strOr(m.Teams[1].Team.Abbreviation, "")
		}
		for _, t := range m.Teams {
			if t.Team != nil {
				teams = append(teams, strOr(t.Team.Abbreviation, "?"))
			}
		}
		rows = append(rows, row)

		if m.State == "FINISHED" || m.State == "POST" {
			refs = append(refs, MatchRef{
				MatchID:    matchID,
				Slug:       m.Slug,
				SeriesSlug: page.Series.Slug,
				SeriesID:   series.SeriesID,
				Title:      strOr(m.Title, ""),
				Teams:      teams,
			})
		}
	}

	span.SetAttributes(
		attribute.Int("matches", len(rows)),
		attribute.Int("finished", len(refs)),
	)
	return refs, rows, nil
}

// detectSeriesGender classifies a series: explicit gender field, then
// "women" in the slug, then name keywords.
func detectSeriesGender(gender *string, slug, name string) string {
	if gender != nil {
		switch g := strings.ToLower(*gender); g {
		case "male", "female":
			return g
		}
	}
	if strings.Contains(strings.ToLower(slug), "women") {
		return "female"
	}
	lower := strings.ToLower(name)
	for _, kw := range []string{"women", "female", "wbbl", "wpl", "wodi", "wt20"} {
		if strings.Contains(lower, kw) {
			return "female"
		}
	}
	return ""
}

func strOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
