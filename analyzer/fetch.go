package analyzer

import (
	"context"
	"fmt"
	"github.com/sirupsen/logrus"
	"io"
	"net/http"
	"strings"
)

// maxJSBytes caps a downloaded file; longer bodies are truncated.
var maxJSBytes int64 = 10 << 20

// FetchJS downloads a JavaScript file. A failed plain-HTTP request is retried
// once over HTTPS.
func FetchJS(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	body, err := get(ctx, client, url)
	if err == nil {
		return body, nil
	}

	if strings.HasPrefix(url, "http://") {
		fallback := "https://" + strings.TrimPrefix(url, "http://")
		body, ferr := get(ctx, client, fallback)
		if ferr == nil {
			return body, nil
		}
		logrus.Debugf("HTTPS fallback for %s failed: %v", url, ferr)
	}
	return "", fmt.Errorf("could not fetch JS file: %s", url)
}

func get(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxJSBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
