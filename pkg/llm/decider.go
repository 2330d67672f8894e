package llm

import (
	"context"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// Decider is the controller model role. It prepends the decision contract
// to the engine's transcript and returns the model's raw text; parsing and
// validation stay with the caller, which owns the retry policy.
type Decider struct {
	client *ChatClient
}

// NewDecider creates the controller role over a chat client.
func NewDecider(client *ChatClient) *Decider {
	return &Decider{client: client}
}

// Decide requests one decision for the given transcript.
func (d *Decider) Decide(ctx context.Context, messages []domain.Message) (string, error) {
	full := make([]domain.Message, 0, len(messages)+1)
	full = append(full, domain.Message{Role: "system", Content: ControllerSystemPrompt})
	full = append(full, messages...)

	return d.client.Complete(ctx, full)
}
