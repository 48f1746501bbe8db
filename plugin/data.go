package plugin

import "strings"

const LLMAnalyzerName = "LLM Analyzer"
const SecretAnalyzerName = "Secret Pattern Analyzer"

// Settings defines settings applicable to plugins.
type Settings struct {
	Plugins Plugins
	Model   string
}

// Plugins defines all the analyzers that can be enabled.
type Plugins struct {
	LLM     bool
	Secrets bool
}

// ParsePlugins maps configured plugin names ("llm", "secrets") to Plugins.
// Unknown names are ignored.
func ParsePlugins(names []string) Plugins {
	var p Plugins
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "llm":
			p.LLM = true
		case "secrets":
			p.Secrets = true
		}
	}
	return p
}
