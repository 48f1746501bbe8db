// Package summarizer deduplicates and merges raw findings.
package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/sirupsen/logrus"
	"guardex/llm"
	"guardex/models"
	"regexp"
)

// DefaultBatchSize is the number of findings sent per merge request.
const DefaultBatchSize = 20

var (
	markedJSON   = regexp.MustCompile(`###JSONSTART\s*([\s\S]*?)\s*###JSONEND`)
	objectsArray = regexp.MustCompile(`\[\s*\{[\s\S]*?\}\s*\]`)
)

// Summarizer merges findings through a model, or locally when none is set.
type Summarizer struct {
	completer llm.Completer
	model     string
	batchSize int
}

// New returns a Summarizer. A nil completer selects the local merge.
func New(completer llm.Completer, model string, batchSize int) *Summarizer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Summarizer{completer: completer, model: model, batchSize: batchSize}
}

// Summarize returns the deduplicated findings. A batch that fails to produce
// valid output contributes nothing.
func (s *Summarizer) Summarize(ctx context.Context, findings []models.Vulnerability) []models.Vulnerability {
	result := make([]models.Vulnerability, 0)
	if len(findings) == 0 {
		return result
	}
	if s.completer == nil {
		return Merge(findings)
	}

	batches := batch(findings, s.batchSize)
	for i, b := range batches {
		if ctx.Err() != nil {
			break
		}
		logrus.Debugf("Summarizing batch %d/%d", i+1, len(batches))

		prompt, err := Prompt(b)
		if err != nil {
			logrus.Errorf("error building summary prompt for batch %d: %v", i+1, err)
			continue
		}

		text, err := s.completer.Complete(ctx, llm.Request{Model: s.model, Prompt: prompt})
		if err != nil {
			logrus.Errorf("error in summary batch %d: %v", i+1, err)
			continue
		}

		merged, err := Extract(text)
		if err != nil {
			logrus.Warnf("failed to parse summary batch %d: %v", i+1, err)
			continue
		}
		result = append(result, merged...)
	}
	return result
}

func batch(findings []models.Vulnerability, size int) [][]models.Vulnerability {
	var out [][]models.Vulnerability
	for i := 0; i < len(findings); i += size {
		end := i + size
		if end > len(findings) {
			end = len(findings)
		}
		out = append(out, findings[i:end])
	}
	return out
}

// Extract decodes the merged findings from a model response.
func Extract(text string) ([]models.Vulnerability, error) {
	body := text
	if m := markedJSON.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else if span := objectsArray.FindString(text); span != "" {
		body = span
	} else {
		return nil, fmt.Errorf("no JSON array in response")
	}

	return models.DecodeVulnerabilities([]byte(body))
}

const summaryPrompt = `You are an expert security analyst.

You will be given a JSON array of vulnerability objects. Each object contains:
- vulnerability_type
- name
- description
- leaked_value
- recommendation
- severity
- file_url

Your task is to deduplicate and merge:
- Group findings only if they originate from the same service, tool or provider (Firebase, OpenAI, Stripe, Google Cloud, Cloudinary, GitHub, Vercel, custom backend endpoints and so on).
- Do not group unrelated services into the same entry. Firebase keys stay together, OpenAI keys separately.
- Keep leaked_value as an array of valid strings only. Do not flatten or concatenate different leaked values into a single string.
- Be specific. One vulnerability per vendor or tool per context.
- Write the recommendation and description in detail.

Format your entire response strictly as a valid JSON array between these markers, with nothing outside them:

###JSONSTART
[
  { ... }
]
###JSONEND

Here is the data:
%s
`

// Prompt builds the merge prompt for one batch.
func Prompt(findings []models.Vulnerability) (string, error) {
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(summaryPrompt, data), nil
}
