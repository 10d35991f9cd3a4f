// Package cdp implements the scrape driver on a headless Chrome session
// over the DevTools protocol.
package cdp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	cdpruntime "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/peteowen1/bouncerdata/lib/driver"
)

type Options struct {
	// Headless runs Chrome without a window. On by default in config.
	Headless bool `json:"headless"`
	// UserAgent overrides Chrome's default when non-empty.
	UserAgent string `json:"user_agent"`
	// NavigateTimeout bounds a single page load. Zero means 60s.
	NavigateTimeoutSeconds int `json:"navigate_timeout_seconds"`
}

func (o Options) navigateTimeout() time.Duration {
	if o.NavigateTimeoutSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(o.NavigateTimeoutSeconds) * time.Second
}

type Driver struct {
	opts        Options
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu      sync.Mutex
	subs    []subscription
	closed  bool
	reqURLs sync.Map
}

type subscription struct {
	filter string
	ch     chan driver.Payload
}

var _ driver.Driver = (*Driver)(nil)

// NewFactory returns a driver.Factory producing isolated Chrome sessions.
// Every call to the factory launches its own browser process, so no
// cookies or cache carry over between sessions.
func NewFactory(opts Options) driver.Factory {
	return func(ctx context.Context) (driver.Driver, error) {
		return New(ctx, opts)
	}
}

func New(ctx context.Context, opts Options) (*Driver, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	d := &Driver{
		opts:        opts,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		d.Close()
		return nil, fmt.Errorf("start chrome session: %w", err)
	}
	d.listenResponses()
	return d, nil
}

// listenResponses fans captured response bodies out to subscribers. Body
// retrieval has to happen on the target's executor and only after the
// response finished loading, hence the goroutine per event.
func (d *Driver) listenResponses() {
	c := chromedp.FromContext(d.tabCtx)
	execCtx := cdpruntime.WithExecutor(d.tabCtx, c.Target)

	chromedp.ListenTarget(d.tabCtx, func(ev any) {
		e, ok := ev.(*network.EventLoadingFinished)
		if !ok {
			return
		}
		reqID := e.RequestID
		url, ok := d.requestURL(reqID)
		if !ok {
			return
		}
		go func() {
			body, err := network.GetResponseBody(reqID).Do(execCtx)
			if err != nil {
				return
			}
			d.dispatch(driver.Payload{URL: url, Body: body})
		}()
	})

	chromedp.ListenTarget(d.tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			d.rememberRequest(e.RequestID, e.Response.URL)
		}
	})
}

func (d *Driver) rememberRequest(id network.RequestID, url string) {
	d.mu.Lock()
	interested := false
	for _, s := range d.subs {
		if strings.Contains(url, s.filter) {
			interested = true
			break
		}
	}
	d.mu.Unlock()
	if interested {
		d.reqURLs.Store(id, url)
	}
}

func (d *Driver) requestURL(id network.RequestID) (string, bool) {
	v, ok := d.reqURLs.LoadAndDelete(id)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (d *Driver) dispatch(p driver.Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, s := range d.subs {
		if !strings.Contains(p.URL, s.filter) {
			continue
		}
		select {
		case s.ch <- p:
		default:
			slog.Warn("dropping captured payload, subscriber is not draining",
				"url", p.URL)
		}
	}
}

func (d *Driver) Subscribe(filter string) <-chan driver.Payload {
	ch := make(chan driver.Payload, 256)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return ch
	}
	d.subs = append(d.subs, subscription{filter: filter, ch: ch})
	return ch
}

func (d *Driver) Navigate(ctx context.Context, url string) (driver.Snapshot, error) {
	navCtx, cancel := boundedCtx(d.tabCtx, ctx, d.opts.navigateTimeout())
	defer cancel()

	var snap driver.Snapshot
	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Location(&snap.URL),
		chromedp.Title(&snap.Title),
		chromedp.OuterHTML("html", &snap.HTML),
	)
	if err != nil {
		return snap, fmt.Errorf("navigate %s: %w", url, err)
	}
	if blockedTitle(snap.Title) {
		return snap, driver.ErrBlocked
	}
	return snap, nil
}

// Akamai serves a bare "Access Denied" document when it decides the
// session is a bot.
func blockedTitle(title string) bool {
	return strings.Contains(strings.ToLower(title), "access denied")
}

func (d *Driver) Interact(ctx context.Context, act driver.Action) error {
	key, ok := keyRunes[act.Key]
	if !ok {
		return fmt.Errorf("unsupported key %q", act.Key)
	}
	runCtx, cancel := boundedCtx(d.tabCtx, ctx, 10*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.KeyEvent(key))
}

var keyRunes = map[string]string{
	"End":      kb.End,
	"Home":     kb.Home,
	"PageDown": kb.PageDown,
	"PageUp":   kb.PageUp,
	"Escape":   kb.Escape,
}

func (d *Driver) Evaluate(ctx context.Context, expr string, out any) error {
	runCtx, cancel := boundedCtx(d.tabCtx, ctx, 15*time.Second)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
}

func (d *Driver) Responsive(ctx context.Context) bool {
	runCtx, cancel := boundedCtx(d.tabCtx, ctx, 5*time.Second)
	defer cancel()
	var ready string
	err := chromedp.Run(runCtx, chromedp.Evaluate("document.readyState", &ready))
	return err == nil && ready != ""
}

func (d *Driver) Recover(ctx context.Context, url string) bool {
	reloadCtx, cancel := boundedCtx(d.tabCtx, ctx, 30*time.Second)
	err := chromedp.Run(reloadCtx, chromedp.Reload(), chromedp.WaitReady("body"))
	cancel()
	if err == nil && d.Responsive(ctx) {
		return true
	}
	slog.WarnContext(ctx, "page reload failed, re-navigating", "url", url, "err", err)

	if _, err := d.Navigate(ctx, url); err != nil {
		return false
	}
	return d.Responsive(ctx)
}

// BrowserPID exposes the Chrome process id so a dead scraper's browser
// tree can be found and killed later.
func (d *Driver) BrowserPID() int {
	c := chromedp.FromContext(d.tabCtx)
	if c == nil || c.Browser == nil {
		return 0
	}
	if p := c.Browser.Process(); p != nil {
		return p.Pid
	}
	return 0
}

func (d *Driver) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, s := range d.subs {
			close(s.ch)
		}
		d.subs = nil
	}
	d.mu.Unlock()

	d.tabCancel()
	d.allocCancel()
	return nil
}

// boundedCtx derives from the tab context so chromedp keeps its session
// association, while honoring both the caller's cancellation and a hard
// cap.
func boundedCtx(tab, caller context.Context, cap time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(tab, cap)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
