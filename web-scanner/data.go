package web_scanner

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

const (
	defaultBatchSize = 5
	defaultUserAgent = "Mozilla/5.0"
	maxPageBytes     = 10 << 20
)

var ErrInvalidURL = errors.New("invalid URL")

// Fetcher returns the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// pending is a page waiting to be crawled.
type pending struct {
	url   string
	depth int
}

// resolve turns an href or src attribute into an absolute http(s) URL without
// a fragment.
func resolve(page *url.URL, ref string) (*url.URL, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return nil, false
	}

	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return nil, false
		}
	}

	u, err := page.Parse(ref)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

// isJS reports whether the URL path names a JavaScript file.
func isJS(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".js")
}
