// Package scanner runs a website scan end to end: crawl, analyze every JS
// file chunk by chunk, summarize and persist.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"github.com/sirupsen/logrus"
	"guardex/analyzer"
	"guardex/config"
	"guardex/models"
	"net/http"
	"sync"
	"time"
)

const persistTimeout = 30 * time.Second

// Scanner runs scan pipelines.
type Scanner struct {
	cfg        config.ScannerConfig
	store      Store
	newCrawler CrawlerFactory
	plugins    ChunkAnalyzer
	summary    Summarizer
	client     *http.Client

	persist sync.WaitGroup
}

// New wires a Scanner.
func New(cfg config.ScannerConfig, store Store, newCrawler CrawlerFactory, plugins ChunkAnalyzer, summary Summarizer) *Scanner {
	if cfg.ChunkWorkers < 1 {
		cfg.ChunkWorkers = 4
	}
	if cfg.ChunkSize < 1 {
		cfg.ChunkSize = analyzer.DefaultChunkSize
	}
	return &Scanner{
		cfg:        cfg,
		store:      store,
		newCrawler: newCrawler,
		plugins:    plugins,
		summary:    summary,
		client:     &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Run executes one scan and reports its progress to emit. It returns once
// the summarized findings were emitted; persisting them continues in the
// background (see Wait).
func (s *Scanner) Run(ctx context.Context, req Request, emit Emitter) {
	if !req.Validate() {
		emit.Update(update("❌ Missing URL or user_id."))
		return
	}

	log := logrus.WithFields(logrus.Fields{"url": req.URL, "user_id": req.UserID})
	start := time.Now()

	emit.Update(update(fmt.Sprintf("🌐 Starting scan for %s", req.URL)))

	target, err := ParseTarget(req.URL)
	if err != nil {
		log.Warnf("invalid target: %v", err)
		emit.Update(update(fmt.Sprintf("❌ Error during crawl: invalid URL: %v", err)))
		return
	}
	log = log.WithField("host", target.Host)

	files, err := s.crawl(ctx, target.URL)
	if err != nil {
		if cancelled(ctx) {
			emit.Update(update("❌ Scan cancelled"))
			return
		}
		log.Errorf("crawl failed: %v", err)
		emit.Update(update(fmt.Sprintf("❌ Error during crawl: %v", err)))
		return
	}

	emit.Update(update(fmt.Sprintf("🔎 Finding files, found: %d files", len(files))))
	emit.Update(update("🛡️ Finding Vulnerabilities..."))

	scan, err := s.store.CreateScan(ctx, target.URL, req.UserID)
	if err != nil {
		log.Errorf("scan record insert failed: %v", err)
		emit.Update(update(fmt.Sprintf("❌ Scan record insert failed: %v", err)))
		return
	}
	log = log.WithField("scan_id", scan.ID)

	var findings []models.Vulnerability
	for i, file := range files {
		if cancelled(ctx) {
			emit.Update(update("❌ Scan cancelled"))
			return
		}

		code, err := analyzer.FetchJS(ctx, s.client, file)
		if err != nil {
			log.Warnf("skipping %s: %v", file, err)
			emit.Update(update("❌ " + err.Error()))
			continue
		}

		chunks := analyzer.Chunks(file, code, s.cfg.ChunkSize)
		progress := (i + 1) * 100 / len(files)
		emit.Update(updateWithProgress(fmt.Sprintf("📄 Scanning file %d/%d — %d chunk(s)", i+1, len(files), len(chunks)), progress))

		findings = append(findings, s.analyze(ctx, chunks, emit)...)
	}

	if cancelled(ctx) {
		emit.Update(update("❌ Scan cancelled"))
		return
	}

	emit.Update(update("Summarizing findings..."))
	summarized := s.summary.Summarize(ctx, findings)
	if summarized == nil {
		summarized = []models.Vulnerability{}
	}
	emit.Complete(summarized)

	log.WithFields(logrus.Fields{
		"files":    len(files),
		"raw":      len(findings),
		"findings": len(summarized),
		"duration": time.Since(start).String(),
	}).Info("scan complete")

	s.persist.Add(1)
	go func() {
		defer s.persist.Done()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := s.store.CompleteScan(pctx, scan.ID, summarized); err != nil {
			log.Errorf("error updating scan record: %v", err)
		}
	}()
}

// Wait blocks until every background persistence finished.
func (s *Scanner) Wait() {
	s.persist.Wait()
}

func (s *Scanner) crawl(ctx context.Context, baseURL string) ([]string, error) {
	c, err := s.newCrawler(baseURL)
	if err != nil {
		return nil, err
	}
	files, err := c.Crawl(ctx)
	if err != nil {
		return nil, err
	}
	return dedupe(files), nil
}

// analyze runs the plugins over the chunks of one file with a bounded pool.
// Results keep chunk order.
func (s *Scanner) analyze(ctx context.Context, chunks []models.Chunk, emit Emitter) []models.Vulnerability {
	results := make([][]models.Vulnerability, len(chunks))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := s.cfg.ChunkWorkers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				chunk := chunks[idx]
				emit.Update(update(fmt.Sprintf("🧩 Scanning chunk %d/%d", chunk.Index, chunk.Total)))

				vulns, err := s.plugins.RunAll(ctx, &chunk)
				if err != nil {
					logrus.Debugf("chunk %d of %s: %v", chunk.Index, chunk.FileURL, err)
				}
				results[idx] = vulns
			}
		}()
	}

feed:
	for i := range chunks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	var out []models.Vulnerability
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func cancelled(ctx context.Context) bool {
	err := ctx.Err()
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
