package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zoningHTML = `<html>
<head><title>Melbourne Code of Ordinances</title><style>body{}</style></head>
<body>
<nav>Home | Codes</nav>
<h1>Chapter 30 - Zoning</h1>
<p>Sec. 30-28. Establishment of zoning districts. The R-1 single-family
residential district requires a minimum front setback of 25 feet &amp; a
maximum height of 35 feet.</p>
<script>analytics()</script>
<footer>Copyright</footer>
</body></html>`

func TestLocalScrape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(zoningHTML))
	}))
	defer srv.Close()

	l := NewLocalSource(100, 1, "")
	page, err := l.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Melbourne Code of Ordinances", page.Title)
	assert.Contains(t, page.Markdown, "Establishment of zoning districts")
	assert.Contains(t, page.Markdown, "25 feet & a")
	assert.NotContains(t, page.Markdown, "analytics")
	assert.NotContains(t, page.Markdown, "Copyright")
	assert.Zero(t, page.CostUSD)
}

func TestLocalScrapeUserAgent(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte(zoningHTML))
	}))
	defer srv.Close()

	l := NewLocalSource(100, 5, "zoning-cli/1.0")
	_, err := l.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "zoning-cli/1.0", got)
	assert.Equal(t, 5, l.limiter.Burst())

	// Empty settings fall back to the bot default.
	d := NewLocalSource(0, 0, "")
	assert.Contains(t, d.userAgent, "ParcelScopeBot")
	assert.Equal(t, 1, d.limiter.Burst())
}

func TestLocalScrapeBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("cf-ray", "abc")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(strings.Repeat("Access denied. ", 20)))
	}))
	defer srv.Close()

	l := NewLocalSource(100, 1, "")
	_, err := l.Scrape(context.Background(), srv.URL)
	require.Error(t, err)

	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, BlockCloudflare, blocked.Type)
}

func TestLocalScrapeHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(strings.Repeat("not found ", 20)))
	}))
	defer srv.Close()

	l := NewLocalSource(100, 1, "")
	_, err := l.Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLocalScrapeEmptyPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	l := NewLocalSource(100, 1, "")
	_, err := l.Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty page")
}
