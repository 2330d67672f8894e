package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// TestTimeout provides a standard timeout for test contexts
const TestTimeout = 5 * time.Second

// NewTestContext creates a context with standard test timeout
func NewTestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// NewTestHit creates a search hit for the given URL
func NewTestHit(url, title string) domain.SearchHit {
	return domain.SearchHit{
		Title:         title,
		URL:           url,
		Domain:        "example.com",
		Snippet:       "test snippet",
		PublishedTime: "2026-08-01",
	}
}

// NewTestDocument creates a pooled document with the given id and URL
func NewTestDocument(docID, url string) domain.PooledDocument {
	return domain.PooledDocument{
		DocID:        docID,
		Title:        "Test document " + docID,
		URL:          url,
		Snippet:      "test snippet",
		SourceDomain: "example.com",
	}
}

// AnswerDecision renders a valid answer decision for the given stage
func AnswerDecision(stage domain.Stage, answer string) string {
	return decisionJSON(map[string]any{
		"role":          "controller_decision",
		"decision_id":   "11111111-1111-1111-1111-111111111111",
		"stage":         string(stage),
		"action":        "answer",
		"direct_answer": answer,
	})
}

// StopDecision renders a valid stop decision for the given stage
func StopDecision(stage domain.Stage, answer string) string {
	return decisionJSON(map[string]any{
		"role":          "controller_decision",
		"decision_id":   "22222222-2222-2222-2222-222222222222",
		"stage":         string(stage),
		"action":        "stop",
		"direct_answer": answer,
	})
}

// SearchDecision renders a valid search decision with the given query texts
func SearchDecision(stage domain.Stage, queries ...string) string {
	items := make([]map[string]any, len(queries))
	for i, q := range queries {
		items[i] = map[string]any{"q": q}
	}
	return decisionJSON(map[string]any{
		"role":        "controller_decision",
		"decision_id": "33333333-3333-3333-3333-333333333333",
		"stage":       string(stage),
		"action":      "search",
		"search_plan": map[string]any{
			"queries":         items,
			"per_query_limit": 5,
		},
	})
}

// ReadDecision renders a valid select_for_read decision for the given doc ids
func ReadDecision(stage domain.Stage, docIDs ...string) string {
	items := make([]map[string]any, len(docIDs))
	for i, id := range docIDs {
		items[i] = map[string]any{"doc_id": id}
	}
	return decisionJSON(map[string]any{
		"role":        "controller_decision",
		"decision_id": "44444444-4444-4444-4444-444444444444",
		"stage":       string(stage),
		"action":      "select_for_read",
		"read_selection": map[string]any{
			"to_read": items,
		},
	})
}

func decisionJSON(v map[string]any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: failed to render decision: %v", err))
	}
	return string(data)
}
