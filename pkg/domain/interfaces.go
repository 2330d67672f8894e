package domain

import (
	"context"
)

// DecisionMaker is the external controller-model capability. Decide returns
// the raw model output for the given transcript; parsing and validation are
// the protocol package's concern. Failures surface as *TransportError
// (network) or are deferred to validation (*ParseError/*SchemaError).
type DecisionMaker interface {
	Decide(ctx context.Context, transcript []Message) (string, error)
}

// SearchClient is the external web-search collaborator. An empty result
// list is a valid, non-error outcome.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error)
}

// PageFetcher retrieves a bounded plain-text excerpt for a URL. Raises
// *TransportError on network failure and *NotFoundError when the document
// is gone.
type PageFetcher interface {
	FetchExcerpt(ctx context.Context, url string, maxChars int) (string, error)
}

// ReaderSummarizer is the external reader-model capability: it turns one
// fetched excerpt into a ReaderReport.
type ReaderSummarizer interface {
	Summarize(ctx context.Context, question, url, title, excerpt string) (*ReaderReport, error)
}

// AuditSink receives every controller step. Append is best-effort and must
// never fail the caller; sink-internal failures are logged, not propagated.
type AuditSink interface {
	Append(record AuditRecord)
}
