package domain

import (
	"time"
)

// Stage identifies where in the round loop a decision was requested.
type Stage string

const (
	StageInitial     Stage = "initial"
	StageAfterSearch Stage = "after_search"
	StageAfterRead   Stage = "after_read"
)

// Action is the controller's chosen move for a round.
type Action string

const (
	ActionAnswer        Action = "answer"
	ActionSearch        Action = "search"
	ActionSelectForRead Action = "select_for_read"
	ActionStop          Action = "stop"
)

// Phase represents the engine's position in the round state machine.
type Phase string

const (
	PhaseDeciding  Phase = "deciding"
	PhaseSearching Phase = "searching"
	PhaseReading   Phase = "reading"
	PhaseAnswered  Phase = "answered"
	PhaseForced    Phase = "forced_finalize"
)

// Verdict classifies how a read document relates to the question.
type Verdict string

const (
	VerdictSupportive    Verdict = "supportive"
	VerdictContradictory Verdict = "contradictory"
	VerdictRelevant      Verdict = "relevant"
	VerdictNotRelevant   Verdict = "not_relevant"
)

// QueryItem is one search request inside a plan.
type QueryItem struct {
	Text        string   `json:"q" validate:"required"`
	RecencyDays int      `json:"recency_days,omitempty" validate:"gte=0"`
	SiteFilters []string `json:"site_filters,omitempty"`
	Lang        string   `json:"lang,omitempty"`
}

// SearchPlan groups the queries the decision-maker wants executed this round.
type SearchPlan struct {
	Queries       []QueryItem `json:"queries" validate:"required,min=1,dive"`
	PerQueryLimit int         `json:"per_query_limit,omitempty" validate:"gte=0"`
}

// ReadPick references one pooled document the decision-maker wants read.
type ReadPick struct {
	DocID  string `json:"doc_id" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// ReadSelection lists the documents picked for deep reading.
type ReadSelection struct {
	Items []ReadPick `json:"to_read" validate:"required,min=1,dive"`
}

// Decision is the validated, tagged-union form of one controller decision.
// Exactly one of DirectAnswer, SearchPlan, ReadSelection is populated,
// consistent with Action.
type Decision struct {
	ID            string         `json:"decision_id"`
	Stage         Stage          `json:"stage"`
	Action        Action         `json:"action"`
	DirectAnswer  string         `json:"direct_answer,omitempty"`
	SearchPlan    *SearchPlan    `json:"search_plan,omitempty"`
	ReadSelection *ReadSelection `json:"read_selection,omitempty"`
	Notes         []string       `json:"notes,omitempty"`
}

// PooledDocument is one deduplicated search hit owned by the session pool.
// Never mutated after insertion; DocID is the only key external consumers
// use to reference it.
type PooledDocument struct {
	DocID         string `json:"doc_id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Snippet       string `json:"snippet,omitempty"`
	SourceDomain  string `json:"source_domain,omitempty"`
	PublishedTime string `json:"published_time,omitempty"`
	Round         int    `json:"round"`
}

// Reliability scores how trustworthy a read source appears.
type Reliability struct {
	Rating  float64 `json:"rating" validate:"gte=0,lte=1"`
	Reasons string  `json:"reasons"`
}

// ReaderReport is the outcome of deeply reading one pooled document. A
// failed read still produces a report with VerdictNotRelevant and a zero
// reliability rating; requested documents are never dropped silently.
type ReaderReport struct {
	DocID       string      `json:"doc_id" validate:"required"`
	SourceURL   string      `json:"source_url" validate:"required"`
	Title       string      `json:"title"`
	Verdict     Verdict     `json:"verdict" validate:"required,oneof=supportive contradictory relevant not_relevant"`
	Reliability Reliability `json:"reliability"`
	KeyPoints   []string    `json:"key_points" validate:"max=6"`
	MiniSummary string      `json:"mini_summary"`
	Citation    string      `json:"citation"`
}

// Message is one entry in the transcript shown to the decision-maker.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// SearchHit is one row returned by the search collaborator. URL
// normalization is the collaborator's concern; the engine treats URLs as
// opaque canonical identifiers for deduplication.
type SearchHit struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Domain        string `json:"domain,omitempty"`
	Snippet       string `json:"snippet,omitempty"`
	PublishedTime string `json:"guessed_time,omitempty"`
}

// SearchOptions carries the per-query parameters for the search collaborator.
type SearchOptions struct {
	Freshness   string   `json:"freshness"` // "day", "week", "month", "any"
	SiteFilters []string `json:"site_filters,omitempty"`
	Lang        string   `json:"lang,omitempty"`
	Limit       int      `json:"limit"`
}

// AuditKind labels what an audit record captures.
type AuditKind string

const (
	AuditDecision    AuditKind = "decision"
	AuditSearchPool  AuditKind = "search_pool"
	AuditReaderBatch AuditKind = "reader_batch"
	AuditForcedStop  AuditKind = "forced_stop"
)

// AuditRecord is one append-only entry in the session's audit trail.
type AuditRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	RoundIndex int       `json:"round_index"`
	Kind       AuditKind `json:"kind"`
	Payload    any       `json:"payload,omitempty"`
}

// Result is the engine's final output for one session.
type Result struct {
	SessionID   string         `json:"session_id"`
	Question    string         `json:"question"`
	RoundsUsed  int            `json:"rounds_used"`
	FinalAnswer string         `json:"final_answer"`
	Reports     []ReaderReport `json:"reports"`
	Degraded    bool           `json:"degraded,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}
