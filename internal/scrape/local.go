package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// LocalSource fetches HTML via net/http, detects blocks, and converts to
// plaintext. Free, no API calls; requests are rate limited so municipal
// hosts are not hammered during bulk refreshes.
type LocalSource struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewLocalSource creates a LocalSource capped at rps requests per second
// with the given burst. An empty userAgent falls back to the default bot
// identity.
func NewLocalSource(rps float64, burst int, userAgent string) *LocalSource {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 1
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; ParcelScopeBot/1.0)"
	}
	return &LocalSource{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: userAgent,
	}
}

func (l *LocalSource) Name() string           { return "local_http" }
func (l *LocalSource) Supports(_ string) bool { return true }

// Scrape fetches a URL, detects blocks, strips HTML to plaintext.
func (l *LocalSource) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "local_http: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if bt := DetectBlock(resp, body); bt != BlockNone {
		return nil, &BlockedError{Type: bt, URL: targetURL}
	}

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	if len(body) < 100 {
		return nil, eris.New("local_http: empty page")
	}

	return &Page{
		URL:        targetURL,
		Title:      extractTitle(body),
		Markdown:   stripHTML(string(body)),
		StatusCode: resp.StatusCode,
	}, nil
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

func extractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// stripHTML removes scripts/styles/nav/footer, strips tags, decodes entities,
// and collapses whitespace. The result is plaintext suitable for section
// splitting and extraction.
func stripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
