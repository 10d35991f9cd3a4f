// Package nextdata fetches server-rendered pages and pulls out the
// __NEXT_DATA__ JSON blob Next.js embeds in them. The plain-HTTP path
// here is much cheaper than a browser session and covers everything
// that does not need client-side pagination.
package nextdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/peteowen1/bouncerdata/lib/telemetry"
)

// NewClient builds a resty client with the anti-bot bypass transport and
// request tracing attached.
func NewClient() (*resty.Client, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "nextdata/http")
	return client, nil
}

// Extract pulls the __NEXT_DATA__ script body out of rendered HTML.
func Extract(html []byte) (json.RawMessage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	raw := doc.Find("script#__NEXT_DATA__").Text()
	if raw == "" {
		return nil, fmt.Errorf("no __NEXT_DATA__ script in document")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("__NEXT_DATA__ is not valid json")
	}
	return json.RawMessage(raw), nil
}

// Fetch gets url and extracts its __NEXT_DATA__ blob.
func Fetch(ctx context.Context, client *resty.Client, url string) (json.RawMessage, error) {
	res, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", url, res.StatusCode())
	}
	return Extract(res.Body())
}
