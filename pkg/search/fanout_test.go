package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepseeker-ai/deepseeker/internal/testutil"
	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/session"
)

// TestFreshnessBucket tests the recency-days mapping
func TestFreshnessBucket(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, FreshnessAny},
		{-3, FreshnessAny},
		{1, FreshnessDay},
		{2, FreshnessWeek},
		{7, FreshnessWeek},
		{8, FreshnessMonth},
		{30, FreshnessMonth},
		{31, FreshnessAny},
		{365, FreshnessAny},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d days", tt.days), func(t *testing.T) {
			assert.Equal(t, tt.want, FreshnessBucket(tt.days))
		})
	}
}

// TestFanoutMergeOrder tests plan-order merging across concurrent queries
func TestFanoutMergeOrder(t *testing.T) {
	client := testutil.NewMockSearchClient()
	client.Hits["first"] = []domain.SearchHit{
		testutil.NewTestHit("https://example.com/a", "A"),
		testutil.NewTestHit("https://example.com/b", "B"),
	}
	client.Hits["second"] = []domain.SearchHit{
		testutil.NewTestHit("https://example.com/c", "C"),
	}

	fanout := NewFanout(client, DefaultFanoutConfig(), nil, nil)
	state := session.New("test question")

	delta, failures := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "first"}, {Text: "second"}},
	})

	require.Empty(t, failures)
	require.Len(t, delta, 3)
	assert.Equal(t, []string{"d1", "d2", "d3"}, []string{delta[0].DocID, delta[1].DocID, delta[2].DocID})
	assert.Equal(t, "https://example.com/a", delta[0].URL)
	assert.Equal(t, "https://example.com/c", delta[2].URL)
	assert.Equal(t, 3, state.PoolSize())
}

// TestFanoutDeduplicatesWithinRound tests first-wins URL dedup in one plan
func TestFanoutDeduplicatesWithinRound(t *testing.T) {
	client := testutil.NewMockSearchClient()
	client.Hits["q1"] = []domain.SearchHit{
		testutil.NewTestHit("https://example.com/shared", "From q1"),
	}
	client.Hits["q2"] = []domain.SearchHit{
		testutil.NewTestHit("https://example.com/shared", "From q2"),
		testutil.NewTestHit("https://example.com/other", "Other"),
	}

	fanout := NewFanout(client, DefaultFanoutConfig(), nil, nil)
	state := session.New("test question")

	delta, _ := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "q1"}, {Text: "q2"}},
	})

	require.Len(t, delta, 2)
	assert.Equal(t, "From q1", delta[0].Title, "first occurrence wins")
	assert.Equal(t, "https://example.com/other", delta[1].URL)
}

// TestFanoutDeduplicatesAcrossRounds tests dedup against earlier rounds
func TestFanoutDeduplicatesAcrossRounds(t *testing.T) {
	client := testutil.NewMockSearchClient()
	client.Hits["q"] = []domain.SearchHit{
		testutil.NewTestHit("https://example.com/seen", "Seen"),
		testutil.NewTestHit("https://example.com/new", "New"),
	}

	fanout := NewFanout(client, DefaultFanoutConfig(), nil, nil)
	state := session.New("test question")
	state.AddDocument(domain.PooledDocument{DocID: state.NextDocID(), URL: "https://example.com/seen"})
	state.AdvanceRound()

	delta, _ := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "q"}},
	})

	require.Len(t, delta, 1)
	assert.Equal(t, "https://example.com/new", delta[0].URL)
	assert.Equal(t, "d2", delta[0].DocID)
	assert.Equal(t, 1, delta[0].Round)
	assert.Equal(t, 2, state.PoolSize())
}

// TestFanoutFailureIsolation tests that one failed query spares the others
func TestFanoutFailureIsolation(t *testing.T) {
	client := testutil.NewMockSearchClient()
	client.Hits["q1"] = []domain.SearchHit{testutil.NewTestHit("https://example.com/1", "One")}
	client.Errors["q2"] = domain.NewTransportError("search", fmt.Errorf("connection refused"))
	client.Hits["q3"] = []domain.SearchHit{testutil.NewTestHit("https://example.com/3", "Three")}

	cfg := DefaultFanoutConfig()
	cfg.MaxRetries = 0
	fanout := NewFanout(client, cfg, nil, nil)
	state := session.New("test question")

	delta, failures := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "q1"}, {Text: "q2"}, {Text: "q3"}},
	})

	require.Len(t, delta, 2)
	assert.Equal(t, "https://example.com/1", delta[0].URL)
	assert.Equal(t, "https://example.com/3", delta[1].URL)

	require.Len(t, failures, 1)
	assert.Equal(t, 1, failures[0].QueryIndex)
	assert.Equal(t, "q2", failures[0].Query)
	assert.Contains(t, failures[0].Error, "connection refused")
}

// TestFanoutRetriesTransportErrors tests the bounded retry on transient failures
func TestFanoutRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	client := testutil.NewMockSearchClient()
	client.SearchFunc = func(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
		// Fail twice, succeed on the third attempt.
		if calls.Add(1) < 3 {
			return nil, domain.NewTransportError("search", fmt.Errorf("timeout"))
		}
		return []domain.SearchHit{testutil.NewTestHit("https://example.com/r", "Recovered")}, nil
	}

	cfg := DefaultFanoutConfig()
	cfg.MaxRetries = 2
	fanout := NewFanout(client, cfg, nil, nil)
	state := session.New("test question")

	delta, failures := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "flaky"}},
	})

	assert.Empty(t, failures)
	require.Len(t, delta, 1)
	assert.Equal(t, "https://example.com/r", delta[0].URL)
	assert.Equal(t, int32(3), calls.Load())
}

// TestFanoutDoesNotRetryPermanentErrors tests that non-transport failures fail fast
func TestFanoutDoesNotRetryPermanentErrors(t *testing.T) {
	var calls atomic.Int32
	client := testutil.NewMockSearchClient()
	client.SearchFunc = func(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchHit, error) {
		calls.Add(1)
		return nil, fmt.Errorf("malformed request")
	}

	cfg := DefaultFanoutConfig()
	cfg.MaxRetries = 2
	fanout := NewFanout(client, cfg, nil, nil)
	state := session.New("test question")

	delta, failures := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "bad"}},
	})

	assert.Empty(t, delta)
	require.Len(t, failures, 1)
	assert.Equal(t, int32(1), calls.Load())
}

// TestFanoutEmptyResultsAreNotFailures tests that zero hits is a valid outcome
func TestFanoutEmptyResultsAreNotFailures(t *testing.T) {
	client := testutil.NewMockSearchClient()

	fanout := NewFanout(client, DefaultFanoutConfig(), nil, nil)
	state := session.New("test question")

	delta, failures := fanout.Run(testutil.NewTestContext(t), state, &domain.SearchPlan{
		Queries: []domain.QueryItem{{Text: "obscure"}},
	})

	assert.Empty(t, delta)
	assert.Empty(t, failures)
}
