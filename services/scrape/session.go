package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/peteowen1/bouncerdata/lib/driver"
)

var tracer = otel.Tracer("services/scrape")

const (
	// commentary payloads come from the hs-consumer-api /comments endpoint
	payloadFilter = "hs-consumer-api"
	commentsPath  = "/comments"

	maxPaginationRounds = 200
	staleRoundLimit     = 5
	overlaySweepEvery   = 15
)

type SessionOptions struct {
	// RoundWait is the pause after each pagination keypress, giving the
	// page's intersection observer time to fire.
	RoundWait time.Duration
	// SettleWait is the pause after navigation and innings switches.
	SettleWait time.Duration
	// BlockedRetryWait is the backoff before retrying a blocked
	// navigation with a fresh session.
	BlockedRetryWait time.Duration
	// UiWait is the short pause around scrolls and dropdown clicks.
	UiWait time.Duration
}

func (o *SessionOptions) setDefaults() {
	if o.RoundWait == 0 {
		o.RoundWait = 700 * time.Millisecond
	}
	if o.SettleWait == 0 {
		o.SettleWait = 1500 * time.Millisecond
	}
	if o.BlockedRetryWait == 0 {
		o.BlockedRetryWait = 3 * time.Second
	}
	if o.UiWait == 0 {
		o.UiWait = 500 * time.Millisecond
	}
}

// InningsFailure records a non-fatal per-innings problem. The rest of
// the match is still saved.
type InningsFailure struct {
	Innings      int
	Title        string
	ErrorType    string
	ErrorMessage string
}

// MatchResult is everything one match scrape produced.
type MatchResult struct {
	Balls   []Ball
	HasRich bool
	// MetadataOnly means the source has no ball-by-ball data for this
	// match, only the metadata tables are available.
	MetadataOnly    bool
	MatchMeta       *MatchMeta
	Innings         []InningsBatter
	DetectedFormat  string
	DetectedGender  string
	InningsExpected int
	InningsScraped  int
	Failures        []InningsFailure
	// NewDriver is the fresh session opened after a blocked navigation.
	// The caller owns it and should use it in place of the driver it
	// passed in, which is still the blocked one.
	NewDriver driver.Driver
}

type session struct {
	drv      driver.Driver
	payloads <-chan driver.Payload
	url      string
	opts     SessionOptions
}

// ScrapeMatch drives one match's commentary pages to completion. A
// blocked navigation is retried once on a fresh isolated session from
// factory after a backoff; the fresh session is handed back through
// MatchResult.NewDriver so the caller keeps using it instead of the
// blocked one. Per-innings failures are recorded in the result, never
// returned as errors.
func ScrapeMatch(ctx context.Context, drv driver.Driver, factory driver.Factory, matchURL string, maxInnings int, opts SessionOptions) (MatchResult, error) {
	ctx, span := tracer.Start(ctx, "scrape.Match")
	defer span.End()
	span.SetAttributes(attribute.String("url", matchURL))
	opts.setDefaults()

	fullURL := strings.TrimSuffix(matchURL, "/") + "/ball-by-ball-commentary"
	payloads := drv.Subscribe(payloadFilter)

	var adopted driver.Driver
	snap, err := drv.Navigate(ctx, fullURL)
	if errors.Is(err, driver.ErrBlocked) {
		slog.WarnContext(ctx, "navigation blocked, retrying with fresh session", "url", fullURL)
		if err := sleepCtx(ctx, opts.BlockedRetryWait); err != nil {
			return MatchResult{}, err
		}
		fresh, ferr := factory(ctx)
		if ferr != nil {
			return MatchResult{}, fmt.Errorf("open fresh session: %w", ferr)
		}

		payloads = fresh.Subscribe(payloadFilter)
		snap, err = fresh.Navigate(ctx, fullURL)
		if err != nil {
			fresh.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return MatchResult{}, fmt.Errorf("fresh session retry: %w", err)
		}
		drv = fresh
		adopted = fresh
	} else if err != nil {
		if !drv.Recover(ctx, fullURL) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return MatchResult{}, err
		}
		snap, err = drv.Navigate(ctx, fullURL)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return MatchResult{}, err
		}
	}
	if err := sleepCtx(ctx, opts.SettleWait); err != nil {
		return MatchResult{NewDriver: adopted}, err
	}

	s := &session{drv: drv, payloads: payloads, url: fullURL, opts: opts}
	result, err := s.scrapeInnings(ctx, snap, maxInnings)
	result.NewDriver = adopted
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.Int("balls", len(result.Balls)),
		attribute.Bool("has_rich", result.HasRich),
		attribute.Int("innings_scraped", result.InningsScraped),
	)
	return result, nil
}

func (s *session) scrapeInnings(ctx context.Context, snap driver.Snapshot, maxInnings int) (MatchResult, error) {
	page, err := parseSnapshot(snap.HTML)
	if err != nil {
		return MatchResult{}, fmt.Errorf("read page snapshot: %w", err)
	}

	result := MatchResult{
		HasRich:        page.hasRich(),
		MatchMeta:      page.matchMeta(),
		Innings:        page.inningsRows(),
		DetectedFormat: DetectFormat(page.Match.InternationalClassID, page.Match.Format),
		DetectedGender: DetectGender(page.Match.Gender, page.teamAbbreviations(), page.Match.Slug),
	}

	if !page.hasBalls() {
		result.MetadataOnly = true
		return result, nil
	}
	if !result.HasRich {
		slog.DebugContext(ctx, "no rich data, scraping basic ball-by-ball", "url", s.url)
	}

	available := s.discoverInnings(ctx)
	if len(available) == 0 {
		available = make([]string, maxInnings)
		for i := range available {
			available[i] = fmt.Sprintf("Innings %d", i+1)
		}
	}
	result.InningsExpected = len(available)

	seenInnings := map[int64]bool{}
	for idx, title := range available {
		var seed []comment

		if idx > 0 {
			s.clearCaptured()
			if err := s.switchToInnings(ctx, title, available); err != nil {
				slog.WarnContext(ctx, "innings switch failed",
					"title", title, "err", err)
				result.Failures = append(result.Failures, InningsFailure{
					Innings:      idx + 1,
					Title:        title,
					ErrorType:    "innings_switch_timeout",
					ErrorMessage: err.Error(),
				})
				continue
			}
			if err := sleepCtx(ctx, s.opts.SettleWait); err != nil {
				return result, err
			}
		} else {
			// the first innings is seeded from the server-rendered
			// snapshot, later ones only from captured responses
			seed = page.Content.Comments
		}

		s.clearCaptured()
		s.dismissOverlays(ctx)

		captured, err := s.paginate(ctx)
		if err != nil {
			return result, err
		}

		set := newBallSet()
		for _, c := range seed {
			set.add(c)
		}
		for _, p := range captured {
			for _, c := range p.Comments {
				set.add(c)
			}
		}
		balls := set.sorted()

		if len(balls) == 0 {
			if idx > 0 {
				result.Failures = append(result.Failures, InningsFailure{
					Innings:      idx + 1,
					Title:        title,
					ErrorType:    "no_ball_data",
					ErrorMessage: "innings switch succeeded but no balls captured",
				})
			}
			continue
		}

		for _, b := range balls {
			if b.InningNumber != nil {
				seenInnings[*b.InningNumber] = true
			}
		}
		slog.InfoContext(ctx, "innings scraped",
			"innings", idx+1,
			"balls", len(balls),
			"pages", len(captured))
		result.Balls = append(result.Balls, balls...)
	}

	result.InningsScraped = len(seenInnings)
	return result, nil
}

// paginate presses End/Home to drive the page's infinite scroll until
// the innings reports no more data, progress stalls for too long, or
// the round cap is hit.
func (s *session) paginate(ctx context.Context) ([]commentaryPage, error) {
	var pages []commentaryPage
	staleRounds := 0

	for i := 0; i < maxPaginationRounds; i++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		var ierr error
		if i%2 == 0 {
			ierr = s.drv.Interact(ctx, driver.Action{Key: "End"})
		} else {
			// bouncing off the top re-arms the observer when a plain End
			// press stops triggering loads
			ierr = s.drv.Interact(ctx, driver.Action{Key: "Home"})
			if ierr == nil {
				if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
					return pages, err
				}
				ierr = s.drv.Interact(ctx, driver.Action{Key: "End"})
			}
		}
		if ierr != nil {
			if s.drv.Recover(ctx, s.url) {
				// pagination state is lost after a recovery, count the
				// round as stale
				staleRounds++
				continue
			}
			slog.WarnContext(ctx, "page unrecoverable, aborting innings", "url", s.url)
			return pages, nil
		}

		if err := sleepCtx(ctx, s.opts.RoundWait); err != nil {
			return pages, err
		}
		if i%overlaySweepEvery == overlaySweepEvery-1 {
			s.dismissOverlays(ctx)
		}

		fresh := s.drain()
		if len(fresh) > 0 {
			pages = append(pages, fresh...)
			staleRounds = 0
			if pages[len(pages)-1].NextInningOver == nil {
				break
			}
			continue
		}
		staleRounds++
		if staleRounds >= staleRoundLimit {
			break
		}
	}
	return pages, nil
}

// drain consumes every payload currently buffered without blocking.
func (s *session) drain() []commentaryPage {
	var out []commentaryPage
	for {
		select {
		case p, ok := <-s.payloads:
			if !ok {
				return out
			}
			if !strings.Contains(p.URL, commentsPath) {
				continue
			}
			page, err := parseCommentaryPage(p.Body)
			if err != nil {
				slog.Warn("failed to parse captured commentary payload", "err", err)
				continue
			}
			out = append(out, page)
		default:
			return out
		}
	}
}

func (s *session) clearCaptured() {
	s.drain()
}

func (s *session) dismissOverlays(ctx context.Context) {
	if err := s.drv.Evaluate(ctx, dismissOverlaysJS, nil); err != nil {
		slog.DebugContext(ctx, "overlay dismissal failed", "err", err)
	}
}

// discoverInnings reads the innings dropdown and returns its entries
// with the currently-displayed innings first. An empty result means the
// dropdown could not be read and callers fall back to synthesized
// labels.
func (s *session) discoverInnings(ctx context.Context) []string {
	s.dismissOverlays(ctx)
	_ = s.drv.Evaluate(ctx, "window.scrollTo(0, 500)", nil)
	if sleepCtx(ctx, s.opts.UiWait) != nil {
		return nil
	}

	var btn inningsButton
	if err := s.drv.Evaluate(ctx, clickInningsButtonJS, &btn); err != nil || btn.Text == "" {
		return nil
	}
	if sleepCtx(ctx, 2*s.opts.UiWait) != nil {
		return nil
	}

	var titles []string
	err := s.drv.Evaluate(ctx, readDropdownTitlesJS, &titles)
	_ = s.drv.Interact(ctx, driver.Action{Key: "Escape"})
	if err != nil || len(titles) == 0 {
		return nil
	}

	// put the innings the page currently shows first, matching the
	// button label fuzzily since limited-overs buttons carry the team
	// abbreviation rather than the full innings title
	current := closestLabel(btn.Text, titles)
	if current != "" && current != titles[0] {
		reordered := []string{current}
		for _, t := range titles {
			if t != current {
				reordered = append(reordered, t)
			}
		}
		titles = reordered
	}
	return titles
}

func (s *session) switchToInnings(ctx context.Context, target string, available []string) error {
	for attempt := 0; attempt < 3; attempt++ {
		s.dismissOverlays(ctx)
		_ = s.drv.Evaluate(ctx, "window.scrollTo(0, 0)", nil)
		if err := sleepCtx(ctx, s.opts.UiWait); err != nil {
			return err
		}
		_ = s.drv.Evaluate(ctx, "window.scrollTo(0, 500)", nil)
		if err := sleepCtx(ctx, s.opts.UiWait); err != nil {
			return err
		}

		var btn inningsButton
		if err := s.drv.Evaluate(ctx, clickInningsButtonJS, &btn); err != nil || btn.Text == "" {
			if err := sleepCtx(ctx, 2*s.opts.UiWait); err != nil {
				return err
			}
			continue
		}
		if err := sleepCtx(ctx, 2*s.opts.UiWait); err != nil {
			return err
		}

		var clicked string
		expr := fmt.Sprintf(clickInningsItemJS, strconv.Quote(target))
		if err := s.drv.Evaluate(ctx, expr, &clicked); err != nil {
			continue
		}
		switch clicked {
		case "ok":
			return nil
		case "no_tippy":
			continue
		default:
			// exact and substring matching failed in the page, fall back
			// to the closest discovered label once
			if best := closestLabel(target, available); best != "" && best != target {
				target = best
				continue
			}
			_ = s.drv.Interact(ctx, driver.Action{Key: "Escape"})
			return fmt.Errorf("innings %q not present in dropdown", target)
		}
	}
	return fmt.Errorf("failed to switch to %q after 3 attempts", target)
}

// closestLabel picks the candidate most similar to label, or "" when
// nothing is remotely close.
func closestLabel(label string, candidates []string) string {
	best := ""
	bestScore := 0.5
	for _, c := range candidates {
		score := matchr.JaroWinkler(strings.ToUpper(label), strings.ToUpper(c), false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}

type inningsButton struct {
	Text  string `json:"text"`
	Style string `json:"style"`
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const dismissOverlaysJS = `
(() => {
	const overlays = document.querySelectorAll('.wzrk-overlay, #wzrk_wrapper, [class*="wzrk"]');
	for (const el of overlays) el.remove();
	const banners = document.querySelectorAll('[class*="cookie"], [class*="consent"], [id*="cookie"]');
	for (const el of banners) el.style.display = 'none';
	const ads = document.querySelectorAll(
		'iframe[id^="google_ads"], iframe[src*="doubleclick"], ' +
		'[id^="div-gpt-ad"], [class*="ad-slot"], [class*="ad-container"], ' +
		'[data-ad-slot], [class*="sticky-ad"], [class*="adhesion"], ' +
		'[class*="billboard"], [id*="adhesion"]'
	);
	for (const el of ads) el.style.display = 'none';
})()`

// clicking through the DOM instead of dispatching pointer events avoids
// hitting the ads that float over the innings selector
const clickInningsButtonJS = `
(() => {
	const buttons = document.querySelectorAll('button');
	for (const btn of buttons) {
		const text = btn.innerText.trim();
		if (text.includes('Innings')) {
			const rect = btn.getBoundingClientRect();
			if (rect.height > 10 && rect.width > 30) {
				btn.click();
				return { text, style: 'multi' };
			}
		}
	}
	for (const btn of buttons) {
		const text = btn.innerText.trim();
		if (/^[A-Z][A-Z0-9-]{1,7}$/.test(text)) {
			const rect = btn.getBoundingClientRect();
			if (rect.height > 15 && rect.width > 30) {
				btn.click();
				return { text, style: 'limited' };
			}
		}
	}
	return { text: '', style: '' };
})()`

const readDropdownTitlesJS = `
(() => {
	const tippy = document.querySelector('.tippy-box');
	if (!tippy) return [];
	const out = [];
	for (const li of tippy.querySelectorAll('li[title]')) {
		const title = (li.getAttribute('title') || '').trim();
		if (title) out.push(title);
	}
	return out;
})()`

const clickInningsItemJS = `
((target) => {
	const tippy = document.querySelector('.tippy-box');
	if (!tippy) return 'no_tippy';
	const items = tippy.querySelectorAll('li[title]');
	for (const li of items) {
		const title = (li.getAttribute('title') || '').trim();
		if (title === target || title.includes(target) || target.includes(title)) {
			const div = li.querySelector('div');
			if (div) div.click();
			else li.click();
			return 'ok';
		}
	}
	return 'not_found';
})(%s)`
