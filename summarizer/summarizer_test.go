package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"guardex/llm"
	"guardex/models"
	"strings"
	"testing"
)

func findings(n int) []models.Vulnerability {
	out := make([]models.Vulnerability, n)
	for i := range out {
		out[i] = models.Vulnerability{Name: fmt.Sprintf("f%d", i), Severity: "low"}
	}
	return out
}

func TestSummarize_Empty(t *testing.T) {
	called := false
	s := New(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		called = true
		return "", nil
	}), "m", 20)

	got := s.Summarize(context.Background(), nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.False(t, called)
}

func TestSummarize_Batches(t *testing.T) {
	var prompts []string
	s := New(llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		prompts = append(prompts, req.Prompt)
		assert.Equal(t, "gemini-2.0-flash", req.Model)
		return fmt.Sprintf("###JSONSTART\n[{\"name\":\"merged %d\"}]\n###JSONEND", len(prompts)), nil
	}), "gemini-2.0-flash", 20)

	got := s.Summarize(context.Background(), findings(45))
	require.Len(t, prompts, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "merged 1", got[0].Name)
	assert.Equal(t, "merged 3", got[2].Name)
	assert.Contains(t, prompts[2], `"name": "f40"`)
	assert.NotContains(t, prompts[2], `"name": "f39"`)
}

func TestSummarize_SkipsFailedBatches(t *testing.T) {
	call := 0
	s := New(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		call++
		switch call {
		case 1:
			return "", errors.New("quota exceeded")
		case 2:
			return "I could not do it", nil
		default:
			return `Sure: [ {"name":"kept"} ]`, nil
		}
	}), "m", 1)

	got := s.Summarize(context.Background(), findings(3))
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Name)
}

func TestExtract(t *testing.T) {
	got, err := Extract("noise ###JSONSTART\n[{\"name\":\"a\",\"leaked_value\":[\"x\",\"y\"]}]\n###JSONEND trailing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"x", "y"}, got[0].LeakedValues())

	got, err = Extract("###JSONSTART\n[]\n###JSONEND")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Extract("nothing here")
	assert.Error(t, err)

	_, err = Extract("###JSONSTART\n[{broken\n###JSONEND")
	assert.Error(t, err)
}

func TestExtract_MergedAcrossFiles(t *testing.T) {
	text := `###JSONSTART
[
  {"vulnerability_type":"API Key Exposure","name":"Google API key","leaked_value":["AIza1","AIza2"],
   "file_url":["https://x/a.js","https://x/b.js"],"description":["Key in bundle.","Key in vendor chunk."],
   "recommendation":"Restrict the key.","severity":"High"},
  {"vulnerability_type":"Endpoint","name":"ws endpoint","leaked_value":"wss://x/live","file_url":"https://x/c.js","severity":"Low"}
]
###JSONEND`

	got, err := Extract(text)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://x/a.js, https://x/b.js", got[0].FileURL)
	assert.Equal(t, "Key in bundle. Key in vendor chunk.", got[0].Description)
	assert.Equal(t, []string{"AIza1", "AIza2"}, got[0].LeakedValues())
	assert.Equal(t, "https://x/c.js", got[1].FileURL)
}

func TestSummarize_KeepsBatchWithListFields(t *testing.T) {
	s := New(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return `###JSONSTART [{"name":"Google API key","leaked_value":["AIza1","AIza2"],"file_url":["https://x/a.js","https://x/b.js"]}] ###JSONEND`, nil
	}), "m", 20)

	got := s.Summarize(context.Background(), findings(2))
	require.Len(t, got, 1)
	assert.Equal(t, "https://x/a.js, https://x/b.js", got[0].FileURL)
}

func TestPrompt(t *testing.T) {
	p, err := Prompt([]models.Vulnerability{{Name: "Stripe key"}})
	require.NoError(t, err)
	assert.Contains(t, p, "###JSONSTART")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(p), "]"))
	assert.Contains(t, p, `"name": "Stripe key"`)
}

func TestMerge(t *testing.T) {
	in := []models.Vulnerability{
		{VulnerabilityType: "API Key Leak", Name: "Firebase config", Severity: "medium", LeakedValue: json.RawMessage(`"k1"`), FileURL: "https://x/a.js"},
		{VulnerabilityType: "XSS", Name: "innerHTML sink", Severity: "high", LeakedValue: json.RawMessage(`null`), FileURL: "https://x/a.js"},
		{VulnerabilityType: "api key leak", Name: "Firebase Config", Severity: "critical", LeakedValue: json.RawMessage(`["k1","k2"]`), FileURL: "https://x/b.js"},
	}

	got := Merge(in)
	require.Len(t, got, 2)

	assert.Equal(t, "Firebase config", got[0].Name)
	assert.Equal(t, "critical", got[0].Severity)
	assert.Equal(t, []string{"k1", "k2"}, got[0].LeakedValues())
	assert.Equal(t, "https://x/a.js, https://x/b.js", got[0].FileURL)

	assert.Equal(t, "innerHTML sink", got[1].Name)
	assert.Nil(t, got[1].LeakedValues())
}

func TestSummarize_LocalMergeWithoutCompleter(t *testing.T) {
	in := []models.Vulnerability{
		{VulnerabilityType: "Token Exposure", Name: "JWT", Severity: "low", LeakedValue: json.RawMessage(`"a"`)},
		{VulnerabilityType: "Token Exposure", Name: "JWT", Severity: "high", LeakedValue: json.RawMessage(`"b"`)},
	}
	got := New(nil, "", 0).Summarize(context.Background(), in)
	require.Len(t, got, 1)
	assert.Equal(t, "high", got[0].Severity)
	assert.Equal(t, []string{"a", "b"}, got[0].LeakedValues())
}
