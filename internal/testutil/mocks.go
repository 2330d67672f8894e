package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// MockDecisionMaker is a mock implementation of DecisionMaker for testing.
// Responses are consumed in order; past the script it keeps returning the
// last entry.
type MockDecisionMaker struct {
	mu           sync.Mutex
	Responses    []string
	CallCount    int
	LastMessages []domain.Message
	// DecideFunc allows custom decision behavior for tests
	DecideFunc func(ctx context.Context, messages []domain.Message) (string, error)
	// Errors maps a call index (1-based) to an error returned instead of
	// a response
	Errors map[int]error
}

// NewMockDecisionMaker creates a scripted decision-maker
func NewMockDecisionMaker(responses ...string) *MockDecisionMaker {
	return &MockDecisionMaker{
		Responses: responses,
		Errors:    make(map[int]error),
	}
}

// Decide implements domain.DecisionMaker
func (m *MockDecisionMaker) Decide(ctx context.Context, messages []domain.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallCount++
	m.LastMessages = messages

	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, messages)
	}
	if err, ok := m.Errors[m.CallCount]; ok {
		return "", err
	}
	if len(m.Responses) == 0 {
		return "", fmt.Errorf("no scripted response for call %d", m.CallCount)
	}

	idx := m.CallCount - 1
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// Calls returns how many decisions were requested
func (m *MockDecisionMaker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// MockSearchClient is a mock implementation of SearchClient for testing
type MockSearchClient struct {
	mu        sync.Mutex
	Hits      map[string][]domain.SearchHit
	CallCount int
	Queries   []string
	// SearchFunc allows custom search behavior for tests
	SearchFunc func(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error)
	// Errors maps a query text to an error for that query
	Errors map[string]error
}

// NewMockSearchClient creates a mock search client
func NewMockSearchClient() *MockSearchClient {
	return &MockSearchClient{
		Hits:   make(map[string][]domain.SearchHit),
		Errors: make(map[string]error),
	}
}

// Search implements domain.SearchClient
func (m *MockSearchClient) Search(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
	m.mu.Lock()
	m.CallCount++
	m.Queries = append(m.Queries, query)
	fn := m.SearchFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, query, opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[query]; ok {
		return nil, err
	}
	return m.Hits[query], nil
}

// MockFetcher is a mock implementation of PageFetcher for testing
type MockFetcher struct {
	mu        sync.Mutex
	Pages     map[string]string
	CallCount int
	// Errors maps a URL to an error for that fetch
	Errors map[string]error
	// FetchFunc allows custom fetch behavior for tests
	FetchFunc func(ctx context.Context, url string, maxChars int) (string, error)
}

// NewMockFetcher creates a mock page fetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Pages:  make(map[string]string),
		Errors: make(map[string]error),
	}
}

// FetchExcerpt implements domain.PageFetcher
func (m *MockFetcher) FetchExcerpt(ctx context.Context, url string, maxChars int) (string, error) {
	m.mu.Lock()
	m.CallCount++
	fn := m.FetchFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, url, maxChars)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[url]; ok {
		return "", err
	}
	if page, ok := m.Pages[url]; ok {
		return page, nil
	}
	return "mock page text", nil
}

// MockSummarizer is a mock implementation of ReaderSummarizer for testing
type MockSummarizer struct {
	mu        sync.Mutex
	CallCount int
	// Errors maps a URL to an error for that summary
	Errors map[string]error
	// SummarizeFunc allows custom summarize behavior for tests
	SummarizeFunc func(ctx context.Context, question, url, title, excerpt string) (*domain.ReaderReport, error)
}

// NewMockSummarizer creates a mock reader summarizer
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{
		Errors: make(map[string]error),
	}
}

// Summarize implements domain.ReaderSummarizer
func (m *MockSummarizer) Summarize(ctx context.Context, question, url, title, excerpt string) (*domain.ReaderReport, error) {
	m.mu.Lock()
	m.CallCount++
	fn := m.SummarizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, question, url, title, excerpt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[url]; ok {
		return nil, err
	}
	return &domain.ReaderReport{
		SourceURL: url,
		Title:     title,
		Verdict:   domain.VerdictRelevant,
		Reliability: domain.Reliability{
			Rating:  0.8,
			Reasons: "mock report",
		},
		KeyPoints:   []string{"mock key point"},
		MiniSummary: "mock summary",
		Citation:    url,
	}, nil
}

// Calls returns how many summaries were requested
func (m *MockSummarizer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}
