// Package driver abstracts the browser-like session the scraper drives:
// navigation, async response capture, keyboard interaction and script
// evaluation. The scrape session only depends on this interface, so its
// state machine is testable against a fake.
package driver

import (
	"context"
	"errors"
)

// ErrBlocked is returned by Navigate when the source served an anti-bot
// interstitial instead of the page. The caller decides whether to retry
// with a fresh session.
var ErrBlocked = errors.New("navigation blocked by source")

// Snapshot is the server-rendered state of a page right after
// navigation settles.
type Snapshot struct {
	URL   string
	Title string
	HTML  string
}

// Payload is one captured network response body.
type Payload struct {
	URL  string
	Body []byte
}

// Action is a keyboard key dispatched to the page, e.g. "End" or "Home".
type Action struct {
	Key string
}

type Driver interface {
	// Navigate loads url and waits for the document to settle. A blocked
	// navigation returns ErrBlocked alongside whatever snapshot exists.
	Navigate(ctx context.Context, url string) (Snapshot, error)

	// Subscribe returns a channel of response payloads whose URL contains
	// filter. Payloads observed before Subscribe are not replayed. The
	// channel closes when the driver closes.
	Subscribe(filter string) <-chan Payload

	// Interact dispatches a keyboard action to the page.
	Interact(ctx context.Context, act Action) error

	// Evaluate runs a script expression and unmarshals the result into out.
	Evaluate(ctx context.Context, expr string, out any) error

	// Responsive reports whether the page still answers trivial scripts.
	Responsive(ctx context.Context) bool

	// Recover attempts to restore a wedged page, first by reloading in
	// place and then by re-navigating to url. It reports success.
	Recover(ctx context.Context, url string) bool

	Close() error
}

// Factory opens a fresh isolated session, with no state shared with any
// previous one.
type Factory func(ctx context.Context) (Driver, error)
