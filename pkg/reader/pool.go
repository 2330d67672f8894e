// Package reader turns pooled documents into structured reader reports by
// fetching page excerpts and summarizing them under a bounded worker pool.
// Each document is isolated: one bad page never sinks the batch.
package reader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/observability"
	"github.com/deepseeker-ai/deepseeker/pkg/protocol"
)

// PoolConfig holds the knobs for batch reading.
type PoolConfig struct {
	// Concurrency is the maximum number of documents read at once.
	Concurrency int
	// ReadTimeout bounds one document's fetch plus summarize, retries included.
	ReadTimeout time.Duration
	// ExcerptMaxChars caps how much page text is handed to the summarizer.
	ExcerptMaxChars int
	// MaxRetries is the number of extra attempts after a transport failure.
	MaxRetries uint64
}

// DefaultPoolConfig returns the standard reader pool settings.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:     4,
		ReadTimeout:     60 * time.Second,
		ExcerptMaxChars: 6000,
		MaxRetries:      1,
	}
}

// Pool reads batches of documents with bounded concurrency.
type Pool struct {
	fetcher    domain.PageFetcher
	summarizer domain.ReaderSummarizer
	validator  *protocol.Validator
	config     PoolConfig
	telemetry  *observability.Telemetry
	metrics    *observability.Metrics
	logger     *observability.StructuredLogger
}

// NewPool creates a reader pool over the given collaborators.
func NewPool(fetcher domain.PageFetcher, summarizer domain.ReaderSummarizer, cfg PoolConfig, telemetry *observability.Telemetry, metrics *observability.Metrics) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.ExcerptMaxChars <= 0 {
		cfg.ExcerptMaxChars = 6000
	}

	return &Pool{
		fetcher:    fetcher,
		summarizer: summarizer,
		validator:  protocol.NewValidator(),
		config:     cfg,
		telemetry:  telemetry,
		metrics:    metrics,
		logger:     observability.NewStructuredLogger("reader_pool"),
	}
}

// ReadBatch reads every document concurrently, at most Concurrency at a
// time, and returns exactly one report per input document in input order.
// A document whose read fails for any reason yields a synthetic
// not-relevant report instead of an error.
func (p *Pool) ReadBatch(ctx context.Context, question string, docs []domain.PooledDocument) []domain.ReaderReport {
	reports := make([]domain.ReaderReport, len(docs))
	sem := make(chan struct{}, p.config.Concurrency)
	done := make(chan int, len(docs))

	for i, doc := range docs {
		go func(idx int, d domain.PooledDocument) {
			defer func() { done <- idx }()
			sem <- struct{}{}
			defer func() { <-sem }()
			reports[idx] = p.readOne(ctx, question, d)
		}(i, doc)
	}
	for range docs {
		<-done
	}

	return reports
}

// readOne fetches and summarizes a single document under its own timeout.
func (p *Pool) readOne(ctx context.Context, question string, doc domain.PooledDocument) domain.ReaderReport {
	rctx, cancel := context.WithTimeout(ctx, p.config.ReadTimeout)
	defer cancel()

	start := time.Now()
	var report *domain.ReaderReport

	read := func(spanCtx context.Context) error {
		excerpt, err := p.fetchExcerpt(spanCtx, doc.URL)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", doc.DocID, err)
		}

		report, err = p.summarizer.Summarize(spanCtx, question, doc.URL, doc.Title, excerpt)
		if err != nil {
			return fmt.Errorf("summarizing %s: %w", doc.DocID, err)
		}

		// The summarizer fills content; identity fields stay ours.
		report.DocID = doc.DocID
		report.SourceURL = doc.URL
		if report.Title == "" {
			report.Title = doc.Title
		}

		if err := p.validator.CheckReport(report); err != nil {
			return fmt.Errorf("validating report for %s: %w", doc.DocID, err)
		}
		return nil
	}

	var err error
	if p.telemetry != nil {
		err = p.telemetry.InstrumentRead(rctx, doc.DocID, read)
	} else {
		err = read(rctx)
	}

	status := "success"
	if err != nil {
		status = "failed"
		p.logger.Warn(ctx, "Document read failed; emitting placeholder report",
			map[string]any{
				"doc_id": doc.DocID,
				"url":    doc.URL,
				"error":  err.Error(),
			},
		)
		if p.metrics != nil {
			p.metrics.RecordRead(ctx, time.Since(start), status)
		}
		return failureReport(doc, err)
	}

	if p.metrics != nil {
		p.metrics.RecordRead(ctx, time.Since(start), status)
	}
	return *report
}

// fetchExcerpt retrieves the page body with transport retries. Missing
// pages are permanent; there is no point re-asking for a 404.
func (p *Pool) fetchExcerpt(ctx context.Context, url string) (string, error) {
	var excerpt string
	operation := func() error {
		var err error
		excerpt, err = p.fetcher.FetchExcerpt(ctx, url, p.config.ExcerptMaxChars)
		if err != nil {
			var transport *domain.TransportError
			if errors.As(err, &transport) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), p.config.MaxRetries), ctx))
	return excerpt, err
}

// failureReport is the placeholder emitted when a document cannot be read.
// It keeps the batch complete without pretending the page said anything.
func failureReport(doc domain.PooledDocument, err error) domain.ReaderReport {
	return domain.ReaderReport{
		DocID:     doc.DocID,
		SourceURL: doc.URL,
		Title:     doc.Title,
		Verdict:   domain.VerdictNotRelevant,
		Reliability: domain.Reliability{
			Rating:  0,
			Reasons: "read failed: " + err.Error(),
		},
		MiniSummary: "Document could not be read.",
	}
}
