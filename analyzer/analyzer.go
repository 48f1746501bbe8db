// Package analyzer prepares JavaScript sources for analysis and extracts
// findings from model output.
package analyzer

import (
	"guardex/models"
	"regexp"
	"strings"
)

// DefaultChunkSize is the maximum number of characters sent per chunk.
const DefaultChunkSize = 82000

var relevantLine = []*regexp.Regexp{
	regexp.MustCompile(`["'][^"']+["']`),
	regexp.MustCompile(`\b(apiKey|secret|token|auth|key|id)\b`),
	regexp.MustCompile(`[a-zA-Z0-9]{10,}`),
	regexp.MustCompile(`(http://|https://|ws://|wss://)[^"']+`),
	regexp.MustCompile(`dpl_[a-zA-Z0-9]+`),
}

var (
	fencedJSON   = regexp.MustCompile("```json\\s*([\\s\\S]+?)```")
	objectsArray = regexp.MustCompile(`\[\s*\{[\s\S]+?\}\s*\]`)
)

// Filter drops the lines that cannot carry a secret or an endpoint. Each kept
// line appears once, in its original order.
func Filter(code string) string {
	var (
		b    strings.Builder
		seen = make(map[string]struct{})
	)

	for _, line := range strings.Split(code, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !isRelevant(line) {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

func isRelevant(line string) bool {
	for _, re := range relevantLine {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Split packs space separated words into chunks of at most maxChars
// characters. A single word longer than maxChars becomes its own chunk.
func Split(code string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkSize
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, word := range strings.Split(code, " ") {
		if current.Len()+len(word)+1 > maxChars {
			flush()
		}
		current.WriteString(word)
		current.WriteByte(' ')
	}
	flush()

	return chunks
}

// Chunks filters and splits a file into analysis units.
func Chunks(fileURL, code string, maxChars int) []models.Chunk {
	parts := Split(Filter(code), maxChars)
	chunks := make([]models.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = models.Chunk{FileURL: fileURL, Index: i + 1, Total: len(parts), Code: p}
	}
	return chunks
}

// ExtractFindings decodes the findings in a model response. Fenced ```json
// blocks are preferred; a bare object is treated as a single finding. Output
// that cannot be decoded yields no findings.
func ExtractFindings(text string) []models.Vulnerability {
	body := strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		body = strings.TrimSpace(m[1])
	}

	if vulns, err := models.DecodeVulnerabilities([]byte(body)); err == nil {
		return vulns
	}

	span := objectsArray.FindString(body)
	if span == "" {
		return []models.Vulnerability{}
	}
	vulns, err := models.DecodeVulnerabilities([]byte(span))
	if err != nil {
		return []models.Vulnerability{}
	}
	return vulns
}
