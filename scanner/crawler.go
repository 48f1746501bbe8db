package scanner

import (
	"guardex/config"
	wbs "guardex/web-scanner"
	"sync"
)

// NewCrawlerFactory returns a factory building site crawlers from cfg. When
// rendering is enabled all crawlers share one headless browser, released by
// the returned close function.
func NewCrawlerFactory(cfg config.CrawlerConfig) (CrawlerFactory, func()) {
	var (
		once   sync.Once
		render *wbs.RenderFetcher
	)

	factory := func(baseURL string) (Crawler, error) {
		var opts []wbs.Option
		if cfg.Render {
			once.Do(func() { render = wbs.NewRenderFetcher(cfg.UserAgent, cfg.Timeout) })
			opts = append(opts, wbs.WithFetcher(render))
		}

		c, err := wbs.New(baseURL, cfg, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}

	closeFn := func() {
		if render != nil {
			render.Close()
		}
	}
	return factory, closeFn
}
