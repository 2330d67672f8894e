// Package search executes one round's search plan against the external
// search collaborator: queries fan out concurrently, results merge in plan
// order, and the deduplicated delta joins the session pool under stable
// session-wide doc_ids.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/observability"
	"github.com/deepseeker-ai/deepseeker/pkg/session"
)

// FanoutConfig holds the knobs for plan execution.
type FanoutConfig struct {
	// DefaultPerQueryLimit applies when a plan does not set its own limit.
	DefaultPerQueryLimit int
	// QueryTimeout bounds each individual query, including its retries.
	QueryTimeout time.Duration
	// MaxRetries is the number of extra attempts after a transport failure.
	MaxRetries uint64
}

// DefaultFanoutConfig returns the standard fan-out settings.
func DefaultFanoutConfig() FanoutConfig {
	return FanoutConfig{
		DefaultPerQueryLimit: 8,
		QueryTimeout:         30 * time.Second,
		MaxRetries:           2,
	}
}

// Fanout runs search plans with bounded, isolated per-query concurrency.
type Fanout struct {
	client    domain.SearchClient
	config    FanoutConfig
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	logger    *observability.StructuredLogger
}

// querySlot is one query's private output cell. Workers write only their
// own slot; the merge happens on the caller's goroutine after the join.
type querySlot struct {
	hits []domain.SearchHit
	err  error
}

// QueryFailure records one query that contributed nothing to the pool.
type QueryFailure struct {
	QueryIndex int    `json:"query_index"`
	Query      string `json:"query"`
	Error      string `json:"error"`
}

// NewFanout creates a search fan-out over the given collaborator.
func NewFanout(client domain.SearchClient, cfg FanoutConfig, telemetry *observability.Telemetry, metrics *observability.Metrics) *Fanout {
	if cfg.DefaultPerQueryLimit <= 0 {
		cfg.DefaultPerQueryLimit = 8
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}

	return &Fanout{
		client:    client,
		config:    cfg,
		telemetry: telemetry,
		metrics:   metrics,
		logger:    observability.NewStructuredLogger("search_fanout"),
	}
}

// Run executes every query in the plan concurrently, waits for all of them,
// and pools the merged results. A failed query contributes zero documents
// and never fails the plan; it comes back as a QueryFailure so callers can
// audit it. The returned delta is in plan order then first-seen-URL order.
func (f *Fanout) Run(ctx context.Context, state *session.State, plan *domain.SearchPlan) ([]domain.PooledDocument, []QueryFailure) {
	limit := plan.PerQueryLimit
	if limit <= 0 {
		limit = f.config.DefaultPerQueryLimit
	}

	slots := make([]querySlot, len(plan.Queries))
	done := make(chan int, len(plan.Queries))

	for i, q := range plan.Queries {
		go func(idx int, query domain.QueryItem) {
			defer func() { done <- idx }()
			slots[idx].hits, slots[idx].err = f.runQuery(ctx, idx, query, limit)
		}(i, q)
	}
	for range plan.Queries {
		<-done
	}

	// Merge on the caller's goroutine: plan order, first occurrence of a
	// canonical URL wins, both within the batch and against the pool.
	round := state.Round()
	var delta []domain.PooledDocument
	var failures []QueryFailure
	seen := make(map[string]struct{})
	for i := range slots {
		if err := slots[i].err; err != nil {
			f.logger.Warn(ctx, "Search query failed; contributing zero documents",
				map[string]any{
					"query_index": i,
					"query":       plan.Queries[i].Text,
					"error":       err.Error(),
				},
			)
			failures = append(failures, QueryFailure{
				QueryIndex: i,
				Query:      plan.Queries[i].Text,
				Error:      err.Error(),
			})
			continue
		}
		for _, hit := range slots[i].hits {
			if hit.URL == "" {
				continue
			}
			if _, dup := seen[hit.URL]; dup {
				continue
			}
			seen[hit.URL] = struct{}{}
			if state.HasURL(hit.URL) {
				continue
			}

			doc := domain.PooledDocument{
				DocID:         state.NextDocID(),
				Title:         hit.Title,
				URL:           hit.URL,
				Snippet:       hit.Snippet,
				SourceDomain:  hit.Domain,
				PublishedTime: hit.PublishedTime,
				Round:         round,
			}
			state.AddDocument(doc)
			delta = append(delta, doc)
		}
	}

	if f.metrics != nil {
		f.metrics.RecordDocumentsPooled(ctx, len(delta))
	}
	f.logger.Info(ctx, "Search plan complete",
		map[string]any{
			"queries":        len(plan.Queries),
			"failed_queries": len(failures),
			"pool_delta":     len(delta),
			"pool_size":      state.PoolSize(),
		},
	)

	return delta, failures
}

// runQuery executes one query with its own timeout and retry budget.
// Failures here are contained to the query's slot.
func (f *Fanout) runQuery(ctx context.Context, idx int, query domain.QueryItem, limit int) ([]domain.SearchHit, error) {
	freshness := FreshnessBucket(query.RecencyDays)
	opts := domain.SearchOptions{
		Freshness:   freshness,
		SiteFilters: query.SiteFilters,
		Lang:        query.Lang,
		Limit:       limit,
	}

	qctx, cancel := context.WithTimeout(ctx, f.config.QueryTimeout)
	defer cancel()

	start := time.Now()
	var hits []domain.SearchHit

	operation := func() error {
		var err error
		hits, err = f.client.Search(qctx, query.Text, opts)
		if err != nil {
			var transport *domain.TransportError
			if errors.As(err, &transport) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	var err error
	if f.telemetry != nil {
		err = f.telemetry.InstrumentSearchQuery(qctx, idx, freshness, func(spanCtx context.Context) (int, error) {
			retryErr := backoff.Retry(operation,
				backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.config.MaxRetries), spanCtx))
			return len(hits), retryErr
		})
	} else {
		err = backoff.Retry(operation,
			backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.config.MaxRetries), qctx))
	}

	if f.metrics != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		f.metrics.RecordSearchQuery(ctx, time.Since(start), status)
	}

	return hits, err
}
