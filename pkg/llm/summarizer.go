package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/protocol"
)

// Summarizer is the reader model role: one document in, one structured
// report out.
type Summarizer struct {
	client *ChatClient
}

// NewSummarizer creates the reader role over a chat client.
func NewSummarizer(client *ChatClient) *Summarizer {
	return &Summarizer{client: client}
}

// Summarize asks the reader model for a report on a single document
// excerpt and parses the response.
func (s *Summarizer) Summarize(ctx context.Context, question, url, title, excerpt string) (*domain.ReaderReport, error) {
	prompt := fmt.Sprintf(
		"Question: %s\n\nDocument URL: %s\nDocument title: %s\n\nDocument excerpt:\n%s",
		question, url, title, excerpt,
	)

	messages := []domain.Message{
		{Role: "system", Content: ReaderSystemPrompt},
		{Role: "user", Content: prompt},
	}

	text, err := s.client.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	raw, err := protocol.ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var report domain.ReaderReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, &domain.ParseError{Detail: "reader report is not valid JSON", Err: err}
	}

	return &report, nil
}
