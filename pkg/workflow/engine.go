// Package workflow drives the round-based research loop: obtain a decision,
// act on it, feed the outcome back, repeat until an answer lands or the
// round budget runs out. Rounds are strictly sequential; concurrency lives
// inside the search and reader fan-outs, never across rounds.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/observability"
	"github.com/deepseeker-ai/deepseeker/pkg/protocol"
	"github.com/deepseeker-ai/deepseeker/pkg/reader"
	"github.com/deepseeker-ai/deepseeker/pkg/search"
	"github.com/deepseeker-ai/deepseeker/pkg/session"
)

// Config holds the engine's round-loop settings.
type Config struct {
	// MaxRounds bounds how many decisions the controller may take before
	// finalization is forced. Must be at least 1.
	MaxRounds int
	// DecisionTimeout bounds one decision call, retries included.
	DecisionTimeout time.Duration
	// TransportRetries is the number of extra attempts after a transport
	// failure on a decision call.
	TransportRetries uint64
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		MaxRounds:        6,
		DecisionTimeout:  3 * time.Minute,
		TransportRetries: 2,
	}
}

// Engine is the round controller. It owns the session state; collaborators
// only ever see messages and return values.
type Engine struct {
	decider   domain.DecisionMaker
	fanout    *search.Fanout
	readers   *reader.Pool
	validator *protocol.Validator
	audit     domain.AuditSink
	config    Config
	telemetry *observability.Telemetry
	metrics   *observability.Metrics
	logger    *observability.StructuredLogger
}

// NewEngine wires a round controller over its collaborators.
func NewEngine(
	decider domain.DecisionMaker,
	fanout *search.Fanout,
	readers *reader.Pool,
	audit domain.AuditSink,
	cfg Config,
	telemetry *observability.Telemetry,
	metrics *observability.Metrics,
) *Engine {
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = 1
	}
	if cfg.DecisionTimeout <= 0 {
		cfg.DecisionTimeout = 3 * time.Minute
	}

	return &Engine{
		decider:   decider,
		fanout:    fanout,
		readers:   readers,
		validator: protocol.NewValidator(),
		audit:     audit,
		config:    cfg,
		telemetry: telemetry,
		metrics:   metrics,
		logger:    observability.NewStructuredLogger("engine"),
	}
}

// Run executes one research session and always returns a Result. The
// session can degrade (empty answer, Degraded set) but it never fails
// outright: budget exhaustion, cancellation, and unusable decisions all
// end in a finalized, fully audited result.
func (e *Engine) Run(ctx context.Context, question string) *domain.Result {
	state := session.New(question)

	sessionCtx := ctx
	if e.telemetry != nil {
		var end func()
		sessionCtx, end = e.startSessionSpan(ctx, state.ID, question)
		defer end()
	}
	if e.metrics != nil {
		e.metrics.RecordSessionStart(sessionCtx, "engine")
	}
	start := time.Now()

	transcript := []domain.Message{
		{Role: "user", Content: "Question: " + question},
	}
	stage := domain.StageInitial
	roundsUsed := 0

	for round := 0; round < e.config.MaxRounds && !state.Answered(); round++ {
		if sessionCtx.Err() != nil {
			e.recordCancellation(state, round)
			break
		}

		roundsUsed++
		roundErr := e.instrumentRound(sessionCtx, round, string(stage), func(roundCtx context.Context) error {
			next, err := e.runRound(roundCtx, state, &transcript, stage, round)
			if err != nil {
				return err
			}
			stage = next
			return nil
		})
		if roundErr != nil {
			if errors.Is(roundErr, context.Canceled) || errors.Is(roundErr, context.DeadlineExceeded) {
				e.recordCancellation(state, round)
				break
			}
			// An unusable decision after all retries. Degrade to a stop
			// with an empty answer rather than looping on a broken model.
			e.logger.Error(sessionCtx, "Round failed; finalizing with empty answer", roundErr,
				map[string]any{"round": round})
			state.SetFinalAnswer("", true)
			break
		}
	}

	if !state.Answered() && sessionCtx.Err() == nil {
		e.forceFinalize(sessionCtx, state, transcript, roundsUsed)
	}
	if !state.Answered() {
		// Cancellation path: nothing was finalized above.
		state.SetFinalAnswer("", true)
	}

	result := state.Result(roundsUsed)
	if e.metrics != nil {
		outcome := "completed"
		if result.Degraded {
			outcome = "degraded"
		}
		e.metrics.RecordSessionComplete(sessionCtx, time.Since(start), outcome)
	}
	e.logger.Info(sessionCtx, "Session finished",
		map[string]any{
			"session_id":  result.SessionID,
			"phase":       string(state.GetPhase()),
			"rounds_used": result.RoundsUsed,
			"degraded":    result.Degraded,
			"reports":     len(result.Reports),
		},
	)

	return result
}

// runRound performs one decide-act cycle and returns the stage the next
// decision request should declare.
func (e *Engine) runRound(ctx context.Context, state *session.State, transcript *[]domain.Message, stage domain.Stage, round int) (domain.Stage, error) {
	state.SetPhase(domain.PhaseDeciding)
	decision, raw, err := e.obtainDecision(ctx, *transcript, stage)
	if err != nil {
		e.appendAudit(state, round, domain.AuditDecision, map[string]any{
			"error": err.Error(),
			"stage": string(stage),
		})
		return stage, err
	}

	e.appendAudit(state, round, domain.AuditDecision, decision)
	*transcript = append(*transcript, domain.Message{Role: "assistant", Content: raw})
	if e.metrics != nil {
		e.metrics.RecordRound(ctx, string(decision.Action))
	}

	switch decision.Action {
	case domain.ActionAnswer, domain.ActionStop:
		state.SetPhase(domain.PhaseAnswered)
		state.SetFinalAnswer(decision.DirectAnswer, false)
		return stage, nil

	case domain.ActionSearch:
		state.SetPhase(domain.PhaseSearching)
		delta, failures := e.fanout.Run(ctx, state, decision.SearchPlan)
		e.appendAudit(state, round, domain.AuditSearchPool, map[string]any{
			"delta":    delta,
			"failures": failures,
		})
		*transcript = append(*transcript, domain.Message{
			Role:    "user",
			Content: renderPoolDelta(delta),
		})
		state.AdvanceRound()
		return domain.StageAfterSearch, nil

	case domain.ActionSelectForRead:
		state.SetPhase(domain.PhaseReading)
		docs := e.resolveSelection(ctx, state, decision.ReadSelection)
		reports := e.readers.ReadBatch(ctx, state.Question, docs)
		state.AddReports(reports)
		e.appendAudit(state, round, domain.AuditReaderBatch, reports)
		*transcript = append(*transcript, domain.Message{
			Role:    "user",
			Content: renderReports(reports),
		})
		state.AdvanceRound()
		return domain.StageAfterRead, nil
	}

	// The validator rules this out; keep the failure loud if it regresses.
	return stage, fmt.Errorf("unhandled action %q", decision.Action)
}

// obtainDecision gets one validated decision from the decision-maker.
// Transport failures retry with backoff. A response that parses or
// validates badly gets exactly one corrective retry before the round is
// declared unusable.
func (e *Engine) obtainDecision(ctx context.Context, transcript []domain.Message, stage domain.Stage) (*domain.Decision, string, error) {
	dctx, cancel := context.WithTimeout(ctx, e.config.DecisionTimeout)
	defer cancel()

	messages := transcript
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := e.decideWithRetry(dctx, messages, stage, attempt)
		if err != nil {
			return nil, "", err
		}

		decision, err := e.validator.Parse(raw, stage)
		if err == nil {
			return decision, raw, nil
		}

		var parseErr *domain.ParseError
		var schemaErr *domain.SchemaError
		if !errors.As(err, &parseErr) && !errors.As(err, &schemaErr) {
			return nil, "", err
		}
		if attempt == 1 {
			return nil, "", fmt.Errorf("decision unusable after corrective retry: %w", err)
		}

		e.logger.Warn(dctx, "Decision failed validation; retrying once with corrective instruction",
			map[string]any{"stage": string(stage), "error": err.Error()})
		if e.metrics != nil {
			e.metrics.RecordDecisionRetry(dctx, retryReason(err))
		}
		messages = append(messages,
			domain.Message{Role: "assistant", Content: raw},
			domain.Message{Role: "user", Content: correctiveInstruction(stage, err)},
		)
	}

	// Unreachable: the loop always returns.
	return nil, "", fmt.Errorf("decision loop exhausted")
}

// decideWithRetry runs one decision call, retrying transport failures.
func (e *Engine) decideWithRetry(ctx context.Context, messages []domain.Message, stage domain.Stage, attempt int) (string, error) {
	var raw string
	operation := func() error {
		var err error
		raw, err = e.decider.Decide(ctx, messages)
		if err != nil {
			var transport *domain.TransportError
			if errors.As(err, &transport) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	call := func(spanCtx context.Context) error {
		return backoff.Retry(operation,
			backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.config.TransportRetries), spanCtx))
	}

	start := time.Now()
	var err error
	if e.telemetry != nil {
		err = e.telemetry.InstrumentDecisionCall(ctx, string(stage), attempt, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	if e.metrics != nil {
		e.metrics.RecordDecision(ctx, "obtained", time.Since(start))
	}
	return raw, nil
}

// resolveSelection maps the selection's doc ids to pooled documents.
// Unknown ids are dropped with a log line, never an error.
func (e *Engine) resolveSelection(ctx context.Context, state *session.State, selection *domain.ReadSelection) []domain.PooledDocument {
	docs := make([]domain.PooledDocument, 0, len(selection.Items))
	for _, pick := range selection.Items {
		doc, ok := state.Document(pick.DocID)
		if !ok {
			e.logger.Warn(ctx, "Read selection references unknown document; dropping",
				map[string]any{"doc_id": pick.DocID})
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

// forceFinalize issues exactly one extra decision request demanding a
// terminal action. If even that fails, the session finalizes with an
// empty answer and the degraded flag set.
func (e *Engine) forceFinalize(ctx context.Context, state *session.State, transcript []domain.Message, roundsUsed int) {
	if e.metrics != nil {
		e.metrics.RecordForcedFinalize(ctx)
	}
	e.logger.Info(ctx, "Round budget exhausted; forcing finalization",
		map[string]any{"rounds_used": roundsUsed})

	messages := append(transcript, domain.Message{
		Role: "user",
		Content: `The round budget is exhausted. You must finalize now. Respond with action "stop" and your best direct_answer from the evidence gathered so far. Output VALID JSON only.`,
	})

	state.SetPhase(domain.PhaseForced)
	decision, _, err := e.obtainDecision(ctx, messages, domain.StageAfterRead)
	if err != nil || (decision.Action != domain.ActionStop && decision.Action != domain.ActionAnswer) {
		reason := "forced finalize decision unusable"
		if err != nil {
			reason = err.Error()
		}
		e.logger.Error(ctx, "Forced finalization failed; emitting empty answer", err,
			map[string]any{"reason": reason})
		e.appendAudit(state, roundsUsed, domain.AuditForcedStop, map[string]any{
			"reason": reason,
		})
		state.SetFinalAnswer("", true)
		return
	}

	e.appendAudit(state, roundsUsed, domain.AuditForcedStop, decision)
	state.SetFinalAnswer(decision.DirectAnswer, false)
}

// recordCancellation writes the forced_stop record for a user abort.
func (e *Engine) recordCancellation(state *session.State, round int) {
	e.appendAudit(state, round, domain.AuditForcedStop, map[string]any{
		"reason": "session canceled",
	})
}

// appendAudit mirrors one controller step to the audit sink.
func (e *Engine) appendAudit(state *session.State, round int, kind domain.AuditKind, payload any) {
	e.audit.Append(domain.AuditRecord{
		SessionID:  state.ID,
		RoundIndex: round,
		Kind:       kind,
		Payload:    payload,
	})
}

// instrumentRound wraps one round in a span when telemetry is wired.
func (e *Engine) instrumentRound(ctx context.Context, round int, stage string, fn func(context.Context) error) error {
	if e.telemetry != nil {
		return e.telemetry.InstrumentRound(ctx, round, stage, fn)
	}
	return fn(ctx)
}

func (e *Engine) startSessionSpan(ctx context.Context, sessionID, question string) (context.Context, func()) {
	spanCtx, span := e.telemetry.StartSession(ctx, sessionID, question)
	return spanCtx, func() { span.End() }
}

// renderPoolDelta feeds only the round's new documents back to the
// decision-maker. The delta keeps the transcript bounded; cumulative pool
// state lives in the session, not the prompt.
func renderPoolDelta(delta []domain.PooledDocument) string {
	if len(delta) == 0 {
		return "Search returned no new documents. Decide the next action."
	}
	body, err := json.Marshal(delta)
	if err != nil {
		return "Search results could not be rendered. Decide the next action."
	}
	return fmt.Sprintf(
		"New documents from this search (%d). Reference them by doc_id.\n%s\nDecide the next action.",
		len(delta), body,
	)
}

// renderReports feeds the completed reader batch back to the decision-maker.
func renderReports(reports []domain.ReaderReport) string {
	body, err := json.Marshal(reports)
	if err != nil {
		return "Reader reports could not be rendered. Decide the next action."
	}
	return fmt.Sprintf(
		"Reader reports for this round (%d).\n%s\nDecide the next action: iterate with another search, or stop with a final answer.",
		len(reports), body,
	)
}

// correctiveInstruction tells the model exactly what was wrong with its
// last output before the single retry.
func correctiveInstruction(stage domain.Stage, err error) string {
	return fmt.Sprintf(
		"Your previous response was invalid: %s. Respond again with ONLY a valid controller_decision JSON object for stage %q. No prose, no Markdown fences.",
		err.Error(), string(stage),
	)
}

func retryReason(err error) string {
	var parseErr *domain.ParseError
	if errors.As(err, &parseErr) {
		return "parse_error"
	}
	return "schema_error"
}
