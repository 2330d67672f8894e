package reader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepseeker-ai/deepseeker/internal/testutil"
	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// TestReadBatchCompleteness tests that N documents always yield N reports
func TestReadBatchCompleteness(t *testing.T) {
	fetcher := testutil.NewMockFetcher()
	summarizer := testutil.NewMockSummarizer()

	docs := make([]domain.PooledDocument, 5)
	for i := range docs {
		docs[i] = testutil.NewTestDocument(fmt.Sprintf("d%d", i+1), fmt.Sprintf("https://example.com/%d", i+1))
	}
	// Reading doc 3 blows up.
	fetcher.Errors["https://example.com/3"] = fmt.Errorf("connection reset")

	pool := NewPool(fetcher, summarizer, DefaultPoolConfig(), nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question", docs)

	require.Len(t, reports, 5)
	for i, report := range reports {
		assert.Equal(t, docs[i].DocID, report.DocID, "report %d must match input order", i)
		assert.Equal(t, docs[i].URL, report.SourceURL)
	}

	failed := reports[2]
	assert.Equal(t, domain.VerdictNotRelevant, failed.Verdict)
	assert.Zero(t, failed.Reliability.Rating)
	assert.Contains(t, failed.Reliability.Reasons, "connection reset")

	ok := reports[0]
	assert.Equal(t, domain.VerdictRelevant, ok.Verdict)
	assert.Equal(t, 0.8, ok.Reliability.Rating)
}

// TestReadBatchConcurrencyBound tests that at most C reads run at once
func TestReadBatchConcurrencyBound(t *testing.T) {
	const limit = 3

	var inFlight, peak atomic.Int32
	fetcher := testutil.NewMockFetcher()
	fetcher.FetchFunc = func(ctx context.Context, url string, maxChars int) (string, error) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			observed := peak.Load()
			if current <= observed || peak.CompareAndSwap(observed, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "page text", nil
	}

	docs := make([]domain.PooledDocument, 10)
	for i := range docs {
		docs[i] = testutil.NewTestDocument(fmt.Sprintf("d%d", i+1), fmt.Sprintf("https://example.com/%d", i+1))
	}

	cfg := DefaultPoolConfig()
	cfg.Concurrency = limit
	pool := NewPool(fetcher, testutil.NewMockSummarizer(), cfg, nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question", docs)

	require.Len(t, reports, 10)
	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

// TestReadBatchIsolatesSummarizerFailures tests bad reader output handling
func TestReadBatchIsolatesSummarizerFailures(t *testing.T) {
	fetcher := testutil.NewMockFetcher()
	summarizer := testutil.NewMockSummarizer()
	summarizer.Errors["https://example.com/2"] = &domain.ParseError{Detail: "reader emitted prose"}

	docs := []domain.PooledDocument{
		testutil.NewTestDocument("d1", "https://example.com/1"),
		testutil.NewTestDocument("d2", "https://example.com/2"),
	}

	pool := NewPool(fetcher, summarizer, DefaultPoolConfig(), nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question", docs)

	require.Len(t, reports, 2)
	assert.Equal(t, domain.VerdictRelevant, reports[0].Verdict)
	assert.Equal(t, domain.VerdictNotRelevant, reports[1].Verdict)
	assert.Zero(t, reports[1].Reliability.Rating)
}

// TestReadBatchRejectsInvalidReports tests report validation in the pipeline
func TestReadBatchRejectsInvalidReports(t *testing.T) {
	fetcher := testutil.NewMockFetcher()
	summarizer := testutil.NewMockSummarizer()
	summarizer.SummarizeFunc = func(ctx context.Context, question, url, title, excerpt string) (*domain.ReaderReport, error) {
		return &domain.ReaderReport{
			DocID:     "d1",
			SourceURL: url,
			Verdict:   "speculative", // not in the verdict vocabulary
		}, nil
	}

	docs := []domain.PooledDocument{testutil.NewTestDocument("d1", "https://example.com/1")}

	pool := NewPool(fetcher, summarizer, DefaultPoolConfig(), nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question", docs)

	require.Len(t, reports, 1)
	assert.Equal(t, domain.VerdictNotRelevant, reports[0].Verdict)
}

// TestReadBatchRetriesTransportErrors tests the fetch retry budget
func TestReadBatchRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	fetcher := testutil.NewMockFetcher()
	fetcher.FetchFunc = func(ctx context.Context, url string, maxChars int) (string, error) {
		if calls.Add(1) == 1 {
			return "", domain.NewTransportError("fetch", fmt.Errorf("timeout"))
		}
		return "page text", nil
	}

	cfg := DefaultPoolConfig()
	cfg.MaxRetries = 1
	pool := NewPool(fetcher, testutil.NewMockSummarizer(), cfg, nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question",
		[]domain.PooledDocument{testutil.NewTestDocument("d1", "https://example.com/1")})

	require.Len(t, reports, 1)
	assert.Equal(t, domain.VerdictRelevant, reports[0].Verdict)
	assert.Equal(t, int32(2), calls.Load())
}

// TestReadBatchDoesNotRetryNotFound tests that missing pages fail fast
func TestReadBatchDoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	fetcher := testutil.NewMockFetcher()
	fetcher.FetchFunc = func(ctx context.Context, url string, maxChars int) (string, error) {
		calls.Add(1)
		return "", &domain.NotFoundError{URL: url}
	}

	cfg := DefaultPoolConfig()
	cfg.MaxRetries = 2
	pool := NewPool(fetcher, testutil.NewMockSummarizer(), cfg, nil, nil)
	reports := pool.ReadBatch(testutil.NewTestContext(t), "question",
		[]domain.PooledDocument{testutil.NewTestDocument("d1", "https://example.com/gone")})

	require.Len(t, reports, 1)
	assert.Equal(t, domain.VerdictNotRelevant, reports[0].Verdict)
	assert.Equal(t, int32(1), calls.Load())
}

// TestReadBatchSlowReadDoesNotBlockSiblings tests per-document timeout isolation
func TestReadBatchSlowReadDoesNotBlockSiblings(t *testing.T) {
	var mu sync.Mutex
	finished := make(map[string]bool)

	fetcher := testutil.NewMockFetcher()
	fetcher.FetchFunc = func(ctx context.Context, url string, maxChars int) (string, error) {
		if url == "https://example.com/slow" {
			select {
			case <-ctx.Done():
				return "", domain.NewTransportError("fetch", ctx.Err())
			case <-time.After(10 * time.Second):
			}
		}
		mu.Lock()
		finished[url] = true
		mu.Unlock()
		return "page text", nil
	}

	cfg := DefaultPoolConfig()
	cfg.ReadTimeout = 50 * time.Millisecond
	cfg.MaxRetries = 0
	pool := NewPool(fetcher, testutil.NewMockSummarizer(), cfg, nil, nil)

	docs := []domain.PooledDocument{
		testutil.NewTestDocument("d1", "https://example.com/fast"),
		testutil.NewTestDocument("d2", "https://example.com/slow"),
	}
	reports := pool.ReadBatch(context.Background(), "question", docs)

	require.Len(t, reports, 2)
	assert.Equal(t, domain.VerdictRelevant, reports[0].Verdict)
	assert.Equal(t, domain.VerdictNotRelevant, reports[1].Verdict)
	mu.Lock()
	assert.True(t, finished["https://example.com/fast"])
	mu.Unlock()
}

// TestTruncate tests excerpt truncation
func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 100))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
	assert.Equal(t, "日本", Truncate("日本語テキスト", 2))
	assert.Equal(t, "ab", Truncate("ab   cdef", 5))
}
