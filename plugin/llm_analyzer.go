package plugin

import (
	"context"
	"guardex/analyzer"
	"guardex/llm"
	"guardex/models"
)

// LLMAnalyzer asks a language model to audit a chunk.
type LLMAnalyzer struct {
	completer llm.Rotator
	model     string
}

// NewLLMAnalyzer returns an analyzer using the given key pool and model.
func NewLLMAnalyzer(completer llm.Rotator, model string) *LLMAnalyzer {
	return &LLMAnalyzer{completer: completer, model: model}
}

// Name returns the plugin name.
func (a *LLMAnalyzer) Name() string {
	return LLMAnalyzerName
}

// Run sends the chunk to the model, trying every key once before giving up.
func (a *LLMAnalyzer) Run(ctx context.Context, chunk *models.Chunk) ([]models.Vulnerability, error) {
	text, err := llm.CompleteRotating(ctx, a.completer, llm.Request{
		Model:  a.model,
		Prompt: analyzer.ChunkPrompt(chunk.Code),
	})
	if err != nil {
		return nil, err
	}

	vulns := analyzer.ExtractFindings(text)
	for i := range vulns {
		vulns[i].FileURL = chunk.FileURL
	}
	return vulns, nil
}
