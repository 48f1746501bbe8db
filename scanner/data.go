package scanner

import (
	"context"
	"errors"
	"fmt"
	"guardex/database"
	"guardex/models"
	"net/url"
	"strings"
)

// Request defines the JSON body of a start_scan event.
type Request struct {
	URL    string `json:"url"`
	UserID string `json:"user_id"`
}

// Validate reports whether both fields are present.
func (r *Request) Validate() bool {
	return strings.TrimSpace(r.URL) != "" && strings.TrimSpace(r.UserID) != ""
}

// Emitter receives the events of one scan. Implementations must be safe for
// concurrent use.
type Emitter interface {
	Update(update models.ScanUpdate)
	Complete(vulns []models.Vulnerability)
}

// Store persists scan records.
type Store interface {
	CreateScan(ctx context.Context, websiteLink, userID string) (*database.ScanDB, error)
	CompleteScan(ctx context.Context, scanID uint, vulns []models.Vulnerability) error
}

// Crawler lists the JS files of a site.
type Crawler interface {
	Crawl(ctx context.Context) ([]string, error)
}

// CrawlerFactory builds a crawler for a base URL.
type CrawlerFactory func(baseURL string) (Crawler, error)

// ChunkAnalyzer runs the analysis plugins on a chunk.
type ChunkAnalyzer interface {
	RunAll(ctx context.Context, chunk *models.Chunk) ([]models.Vulnerability, error)
}

// Summarizer merges the raw findings of a scan.
type Summarizer interface {
	Summarize(ctx context.Context, findings []models.Vulnerability) []models.Vulnerability
}

// Target is the validated site of a scan.
type Target struct {
	URL  string
	Host string
}

// ParseTarget checks that rawURL is an absolute http(s) URL.
func ParseTarget(rawURL string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Target{}, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, errors.New("missing host")
	}
	u.Fragment = ""

	return Target{URL: u.String(), Host: u.Hostname()}, nil
}

func update(message string) models.ScanUpdate {
	return models.ScanUpdate{Message: message}
}

func updateWithProgress(message string, progress int) models.ScanUpdate {
	return models.ScanUpdate{Message: message, Progress: &progress}
}
