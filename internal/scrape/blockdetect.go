package scrape

import (
	"fmt"
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// BlockedError reports that the upstream host refused an automated fetch.
// The chain treats it as a signal to escalate to the next source rather
// than a terminal failure.
type BlockedError struct {
	Type BlockType
	URL  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("scrape: blocked (%s): %s", e.Type, e.URL)
}

// DetectBlock checks an HTTP response for signs of anti-bot protection.
// Municipal code hosts (Municode, American Legal) sit behind Cloudflare
// and serve challenge pages or JS-only shells to plain HTTP clients.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" ||
			resp.Header.Get("cf-cache-status") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return BlockCloudflare
	}

	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return BlockCaptcha
	}

	// A tiny body that immediately defers to JavaScript is a SPA shell;
	// Municode's code browser renders everything client-side.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}
