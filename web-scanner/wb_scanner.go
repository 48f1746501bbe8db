package web_scanner

import (
	"context"
	"fmt"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"guardex/config"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Crawler discovers the JavaScript files referenced by a site. It stays on
// the host of the base URL and honours its robots.txt.
type Crawler struct {
	base      *url.URL
	maxDepth  int
	batchSize int
	userAgent string
	fetcher   Fetcher
	client    *http.Client
	limiter   *rate.Limiter

	robots *robotstxt.Group

	mu      sync.Mutex
	visited map[string]struct{}
	queue   []pending
	jsFiles map[string]struct{}
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithFetcher replaces the page fetcher.
func WithFetcher(f Fetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithHTTPClient sets the client used for pages and robots.txt.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Crawler) { c.client = client }
}

// New returns a crawler for baseURL.
func New(baseURL string, cfg config.CrawlerConfig, opts ...Option) (*Crawler, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}
	base.Fragment = ""
	if base.Path == "" {
		base.Path = "/"
	}

	c := &Crawler{
		base:      base,
		maxDepth:  cfg.MaxDepth,
		batchSize: cfg.Workers,
		userAgent: cfg.UserAgent,
		visited:   make(map[string]struct{}),
		jsFiles:   make(map[string]struct{}),
	}
	if c.batchSize < 1 {
		c.batchSize = defaultBatchSize
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	c.limiter = rate.NewLimiter(limit, c.batchSize)

	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(c.client, c.userAgent, cfg.Timeout)
	}
	return c, nil
}

// Crawl walks the site breadth-limited by depth and returns the sorted list
// of discovered JS files. On cancellation the files found so far are
// returned with the context error.
func (c *Crawler) Crawl(ctx context.Context) ([]string, error) {
	c.loadRobots(ctx)

	c.mu.Lock()
	c.queue = append(c.queue, pending{url: c.base.String(), depth: 0})
	c.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return c.Files(), err
		}

		batch := c.nextBatch()
		if len(batch) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, p := range batch {
			g.Go(func() error {
				c.process(gctx, p)
				return nil
			})
		}
		_ = g.Wait()
	}

	return c.Files(), ctx.Err()
}

// Files returns the JS files found so far, sorted.
func (c *Crawler) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	files := make([]string, 0, len(c.jsFiles))
	for f := range c.jsFiles {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// nextBatch pops up to batchSize unvisited pages within the depth limit.
func (c *Crawler) nextBatch() []pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []pending
	for len(c.queue) > 0 && len(batch) < c.batchSize {
		p := c.queue[len(c.queue)-1]
		c.queue = c.queue[:len(c.queue)-1]

		if p.depth > c.maxDepth {
			continue
		}
		if _, ok := c.visited[p.url]; ok {
			continue
		}
		c.visited[p.url] = struct{}{}
		batch = append(batch, p)
	}
	return batch
}

func (c *Crawler) process(ctx context.Context, p pending) {
	if err := c.limiter.Wait(ctx); err != nil {
		return
	}

	logrus.Infof("Crawling: %s", p.url)
	html, err := c.fetcher.Fetch(ctx, p.url)
	if err != nil {
		logrus.Warnf("Error crawling %s: %v", p.url, err)
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logrus.Warnf("Error parsing %s: %v", p.url, err)
		return
	}

	page, err := url.Parse(p.url)
	if err != nil {
		return
	}

	var (
		scripts []string
		links   []pending
	)

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		u, ok := resolve(page, src)
		if ok && isJS(u) && c.allowed(u) {
			scripts = append(scripts, u.String())
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, ok := resolve(page, href)
		if ok && c.allowed(u) {
			links = append(links, pending{url: u.String(), depth: p.depth + 1})
		}
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range scripts {
		c.jsFiles[s] = struct{}{}
	}
	for _, l := range links {
		if _, ok := c.visited[l.url]; !ok {
			c.queue = append(c.queue, l)
		}
	}
}

// allowed reports whether u is on the crawled host and permitted by robots.txt.
func (c *Crawler) allowed(u *url.URL) bool {
	if u.Host != c.base.Host {
		return false
	}
	if c.robots == nil {
		return true
	}
	return c.robots.Test(u.RequestURI())
}

// loadRobots reads robots.txt of the base host. Any failure allows everything.
func (c *Crawler) loadRobots(ctx context.Context) {
	robotsURL := c.base.ResolveReference(&url.URL{Path: "/robots.txt"}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		logrus.Debugf("robots.txt unavailable for %s: %v", c.base.Host, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		logrus.Debugf("invalid robots.txt for %s: %v", c.base.Host, err)
		return
	}
	c.robots = data.FindGroup(c.userAgent)
}
