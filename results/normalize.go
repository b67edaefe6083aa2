// Result payload normalization.

package results

import (
	"encoding/json"
	"fmt"
)

// NormalizedResult is one provider-agnostic search/result item. Optional
// fields stay nil when the provider omitted them so consumers can tell
// "absent" from "empty". Immutable once produced.
type NormalizedResult struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Snippet        *string  `json:"snippet,omitempty"`
	Favicon        *string  `json:"favicon,omitempty"`
	Date           *string  `json:"date,omitempty"`
	RelevanceScore *float64 `json:"relevance_score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// rawItem is the generic item shape with the field aliases providers use.
type rawItem struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Link        string   `json:"link"`
	Snippet     *string  `json:"snippet"`
	Description *string  `json:"description"`
	Favicon     *string  `json:"favicon"`
	Date        *string  `json:"date"`
	Published   *string  `json:"published"`
	Score       *float64 `json:"score"`
	Relevance   *float64 `json:"relevance"`
	Metadata    map[string]any `json:"metadata"`
}

// braveEnvelope is the named-provider wrapper shape: {"web":{"results":[...]}}.
type braveEnvelope struct {
	Web struct {
		Results []braveItem `json:"results"`
	} `json:"web"`
}

type braveItem struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description *string  `json:"description"`
	Favicon     *string  `json:"favicon"`
	Age         *string  `json:"age"`
	Score       *float64 `json:"score"`
}

// Normalize converts a provider-specific raw payload into the canonical
// result list. A payload matching no known shape yields an empty list,
// never an error: malformed provider output must not break the timeline.
func Normalize(provider Provider, raw json.RawMessage) []NormalizedResult {
	if len(raw) == 0 {
		return nil
	}

	if provider == ProviderBrave {
		if items := normalizeBrave(raw); items != nil {
			return items
		}
		// Fall through: some brave bridges already unwrap the envelope.
	}

	return normalizeGeneric(raw)
}

func normalizeBrave(raw json.RawMessage) []NormalizedResult {
	var env braveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Web.Results) == 0 {
		return nil
	}
	items := make([]NormalizedResult, 0, len(env.Web.Results))
	for i, r := range env.Web.Results {
		items = append(items, NormalizedResult{
			ID:             fmt.Sprintf("result-%d", i),
			Title:          r.Title,
			URL:            r.URL,
			Snippet:        r.Description,
			Favicon:        r.Favicon,
			Date:           r.Age,
			RelevanceScore: r.Score,
		})
	}
	return items
}

func normalizeGeneric(raw json.RawMessage) []NormalizedResult {
	var list []rawItem
	if err := json.Unmarshal(raw, &list); err != nil {
		// Single-object payloads are treated as a one-element list.
		var one rawItem
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil
		}
		if one.Title == "" && one.Name == "" && one.URL == "" && one.Link == "" {
			return nil
		}
		list = []rawItem{one}
	}

	items := make([]NormalizedResult, 0, len(list))
	for i, r := range list {
		items = append(items, normalizeItem(i, r))
	}
	return items
}

func normalizeItem(index int, r rawItem) NormalizedResult {
	item := NormalizedResult{
		ID:       r.ID,
		Title:    firstNonEmpty(r.Title, r.Name),
		URL:      firstNonEmpty(r.URL, r.Link),
		Snippet:  firstNonNil(r.Snippet, r.Description),
		Favicon:  r.Favicon,
		Date:     firstNonNil(r.Date, r.Published),
		Metadata: r.Metadata,
	}
	if item.ID == "" {
		item.ID = fmt.Sprintf("result-%d", index)
	}
	if r.Score != nil {
		item.RelevanceScore = r.Score
	} else if r.Relevance != nil {
		item.RelevanceScore = r.Relevance
	}
	return item
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonNil(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
