package web_scanner

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"guardex/config"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /private\n",
		"/": `<html><head>
			<script src="/static/app.js"></script>
			<script src="https://cdn.other.example/lib.js"></script>
			<script src="/inline"></script>
			</head><body>
			<a href="/about#team">about</a>
			<a href="mailto:team@example.com">mail</a>
			<a href="javascript:void(0)">js</a>
			<a href="/private/area">private</a>
			<a href="https://other.example/">other</a>
			</body></html>`,
		"/about":        `<script src="about.js?v=2"></script><a href="/deep">deep</a><a href="/">home</a>`,
		"/deep":         `<script src="/deep.js"></script>`,
		"/private/area": `<script src="/private.js"></script>`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func crawlerConfig(depth int) config.CrawlerConfig {
	return config.CrawlerConfig{MaxDepth: depth, Workers: 5, Timeout: 5 * time.Second, UserAgent: "Mozilla/5.0"}
}

func TestCrawler_Crawl(t *testing.T) {
	srv := newSite(t)

	c, err := New(srv.URL, crawlerConfig(1), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	files, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/about.js?v=2",
		srv.URL + "/static/app.js",
	}, files)
}

func TestCrawler_Depth(t *testing.T) {
	srv := newSite(t)

	c, err := New(srv.URL, crawlerConfig(2), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	files, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/about.js?v=2",
		srv.URL + "/deep.js",
		srv.URL + "/static/app.js",
	}, files)

	c, err = New(srv.URL, crawlerConfig(0), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	files, err = c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/static/app.js"}, files)
}

func TestCrawler_NoRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<a href="/private/area">p</a>`))
		case "/private/area":
			_, _ = w.Write([]byte(`<script src="/private.js"></script>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL, crawlerConfig(1), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	files, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/private.js"}, files)
}

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	if html, ok := m[pageURL]; ok {
		return html, nil
	}
	return "", errors.New("not found")
}

func TestCrawler_CustomFetcher(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := mapFetcher{
		srv.URL + "/":     `<script src="/rendered/chunk.js"></script><a href="/broken">x</a>`,
		srv.URL + "/next": `<script src="/next.js"></script>`,
	}
	c, err := New(srv.URL, crawlerConfig(3), WithHTTPClient(srv.Client()), WithFetcher(f))
	require.NoError(t, err)

	files, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/rendered/chunk.js"}, files)
}

func TestCrawler_Cancelled(t *testing.T) {
	srv := newSite(t)
	c, err := New(srv.URL, crawlerConfig(4), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files, err := c.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, files)
}

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com", "/relative"} {
		_, err := New(raw, crawlerConfig(1))
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestResolve(t *testing.T) {
	page, _ := url.Parse("https://example.com/docs/index.html")

	tests := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"app.js", "https://example.com/docs/app.js", true},
		{"/static/main.js#frag", "https://example.com/static/main.js", true},
		{"//cdn.example.com/x.js", "https://cdn.example.com/x.js", true},
		{"#top", "", false},
		{"javascript:alert(1)", "", false},
		{"MAILTO:a@b.c", "", false},
		{"ftp://example.com/file", "", false},
		{"  ", "", false},
	}

	for _, tt := range tests {
		u, ok := resolve(page, tt.ref)
		assert.Equal(t, tt.ok, ok, tt.ref)
		if tt.ok {
			assert.Equal(t, tt.want, u.String(), tt.ref)
		}
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), "", time.Second)
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Mozilla/5.0", body)

	_, err = f.Fetch(context.Background(), srv.URL+"/fail")
	assert.Error(t, err)
}
