package results

import (
	"encoding/json"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Provider
	}{
		{"brave_web_search", ProviderBrave},
		{"mcp__brave__web_search", ProviderBrave},
		{"ArXiv_Search", ProviderArxiv},
		{"tavily-search", ProviderTavily},
		{"wikipedia_lookup", ProviderWikipedia},
		{"generic_web_search", ProviderWeb},
		{"read_file", ProviderNone},
		{"", ProviderNone},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeGenericAliases(t *testing.T) {
	raw := json.RawMessage(`[
		{"name":"First","link":"https://a.test","description":"d1","relevance":0.9},
		{"id":"x-2","title":"Second","url":"https://b.test","snippet":"d2","score":0.5}
	]`)
	items := Normalize(ProviderArxiv, raw)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != "result-0" {
		t.Errorf("missing id should fall back positionally, got %q", first.ID)
	}
	if first.Title != "First" || first.URL != "https://a.test" {
		t.Errorf("name/link aliases not applied: %+v", first)
	}
	if first.Snippet == nil || *first.Snippet != "d1" {
		t.Errorf("description alias not applied: %+v", first)
	}
	if first.RelevanceScore == nil || *first.RelevanceScore != 0.9 {
		t.Errorf("relevance alias not applied: %+v", first)
	}
	if first.Favicon != nil || first.Date != nil {
		t.Errorf("absent optional fields must stay nil: %+v", first)
	}

	if items[1].ID != "x-2" {
		t.Errorf("explicit id should win over fallback, got %q", items[1].ID)
	}
}

func TestNormalizeBraveEnvelope(t *testing.T) {
	raw := json.RawMessage(`{"web":{"results":[{"title":"Doc","url":"https://doc.test","description":"about","age":"2d"}]}}`)
	items := Normalize(ProviderBrave, raw)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Doc" || items[0].URL != "https://doc.test" {
		t.Errorf("envelope fields not mapped: %+v", items[0])
	}
	if items[0].Date == nil || *items[0].Date != "2d" {
		t.Errorf("age should map to date: %+v", items[0])
	}
}

func TestNormalizeBraveAlreadyUnwrapped(t *testing.T) {
	raw := json.RawMessage(`[{"title":"X","url":"https://x.test"}]`)
	items := Normalize(ProviderBrave, raw)
	if len(items) != 1 || items[0].Title != "X" {
		t.Fatalf("unwrapped brave payload should use generic path, got %+v", items)
	}
}

func TestNormalizeSingleObject(t *testing.T) {
	raw := json.RawMessage(`{"title":"Solo","url":"https://solo.test"}`)
	items := Normalize(ProviderWeb, raw)
	if len(items) != 1 || items[0].Title != "Solo" {
		t.Fatalf("single object should become one-element list, got %+v", items)
	}
}

func TestNormalizeUnrecognizedShapes(t *testing.T) {
	for _, raw := range []string{`"just a string"`, `42`, `{"unrelated":true}`, `not json`} {
		if items := Normalize(ProviderWeb, json.RawMessage(raw)); len(items) != 0 {
			t.Errorf("payload %q should normalize to empty, got %+v", raw, items)
		}
	}
	if items := Normalize(ProviderWeb, nil); items != nil {
		t.Errorf("nil payload should normalize to nil, got %+v", items)
	}
}
