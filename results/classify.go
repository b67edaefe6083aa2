// Package results maps tool traffic onto known data providers and
// normalizes their heterogeneous result payloads into one shape.
//
// Information Hiding:
// - Provider name patterns kept in one static table
// - Per-provider payload layouts hidden behind Normalize

package results

import "strings"

// Provider tags a known result-producing data source.
type Provider string

const (
	// ProviderNone marks a tool that is not a trackable result producer.
	ProviderNone Provider = ""

	ProviderBrave     Provider = "brave"
	ProviderArxiv     Provider = "arxiv"
	ProviderTavily    Provider = "tavily"
	ProviderWikipedia Provider = "wikipedia"
	ProviderWeb       Provider = "web"
)

// pattern maps a lower-cased substring of a tool name to its provider.
// First match wins, so more specific patterns come first. Substring
// matching also covers namespaced names like "mcp__brave__web_search".
type pattern struct {
	substr   string
	provider Provider
}

var patterns = []pattern{
	{"brave", ProviderBrave},
	{"arxiv", ProviderArxiv},
	{"tavily", ProviderTavily},
	{"wikipedia", ProviderWikipedia},
	{"web_search", ProviderWeb},
	{"search_web", ProviderWeb},
}

// Classify maps an opaque tool identifier to its provider tag. Unknown
// names yield ProviderNone; callers must treat that as "not trackable"
// rather than an error.
func Classify(toolName string) Provider {
	name := strings.ToLower(toolName)
	for _, p := range patterns {
		if strings.Contains(name, p.substr) {
			return p.provider
		}
	}
	return ProviderNone
}
