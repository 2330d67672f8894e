// Package session holds the per-question state the round controller threads
// through the engine: the deduplicated document pool, the accumulated reader
// reports, and the round bookkeeping.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// State is the complete state of one research session. It lives for exactly
// one question and is mutated only by the round controller after each
// fan-out has fully joined; fan-out workers never touch it. The mutex
// guards read access from instrumentation and snapshots.
type State struct {
	mu sync.RWMutex

	ID         string
	Question   string
	RoundIndex int
	Phase      domain.Phase

	pool      map[string]domain.PooledDocument
	poolOrder []string
	reports   []domain.ReaderReport

	finalAnswer string
	answered    bool
	degraded    bool

	docCounter int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates session state for one question.
func New(question string) *State {
	now := time.Now()
	return &State{
		ID:        uuid.NewString(),
		Question:  question,
		Phase:     domain.PhaseDeciding,
		pool:      make(map[string]domain.PooledDocument),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NextDocID allocates the next session-wide document identifier. IDs are
// never reused, so documents pooled in later rounds cannot collide with
// earlier ones.
func (s *State) NextDocID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docCounter++
	return fmt.Sprintf("d%d", s.docCounter)
}

// AddDocument inserts a document into the pool. Returns false when the
// doc_id is already present; pooled documents are immutable after insertion.
func (s *State) AddDocument(doc domain.PooledDocument) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pool[doc.DocID]; exists {
		return false
	}
	s.pool[doc.DocID] = doc
	s.poolOrder = append(s.poolOrder, doc.DocID)
	s.UpdatedAt = time.Now()
	return true
}

// HasURL reports whether a document with the given canonical URL is already
// pooled.
func (s *State) HasURL(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.poolOrder {
		if s.pool[id].URL == url {
			return true
		}
	}
	return false
}

// Document returns the pooled document for a doc_id.
func (s *State) Document(docID string) (domain.PooledDocument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.pool[docID]
	return doc, ok
}

// Pool returns all pooled documents in insertion order.
func (s *State) Pool() []domain.PooledDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]domain.PooledDocument, 0, len(s.poolOrder))
	for _, id := range s.poolOrder {
		docs = append(docs, s.pool[id])
	}
	return docs
}

// PoolSize returns the number of pooled documents.
func (s *State) PoolSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.poolOrder)
}

// AddReports appends a completed reader batch.
func (s *State) AddReports(batch []domain.ReaderReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, batch...)
	s.UpdatedAt = time.Now()
}

// Reports returns a copy of all accumulated reader reports.
func (s *State) Reports() []domain.ReaderReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]domain.ReaderReport, len(s.reports))
	copy(reports, s.reports)
	return reports
}

// SetPhase records the controller's position in the round state machine.
func (s *State) SetPhase(phase domain.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Phase = phase
	s.UpdatedAt = time.Now()
}

// GetPhase returns the current phase.
func (s *State) GetPhase() domain.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// AdvanceRound increments the round counter.
func (s *State) AdvanceRound() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.RoundIndex++
	s.UpdatedAt = time.Now()
}

// Round returns the current zero-based round index.
func (s *State) Round() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RoundIndex
}

// SetFinalAnswer records the terminal answer. Degraded marks outcomes where
// the engine had to finalize without a usable decision.
func (s *State) SetFinalAnswer(answer string, degraded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalAnswer = answer
	s.answered = true
	s.degraded = degraded
	s.Phase = domain.PhaseAnswered
	s.UpdatedAt = time.Now()
}

// Answered reports whether a terminal answer has been recorded.
func (s *State) Answered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answered
}

// Result assembles the engine's final output. roundsUsed is supplied by the
// controller, which owns round accounting.
func (s *State) Result(roundsUsed int) *domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]domain.ReaderReport, len(s.reports))
	copy(reports, s.reports)

	return &domain.Result{
		SessionID:   s.ID,
		Question:    s.Question,
		RoundsUsed:  roundsUsed,
		FinalAnswer: s.finalAnswer,
		Reports:     reports,
		Degraded:    s.degraded,
		StartedAt:   s.CreatedAt,
		FinishedAt:  time.Now(),
	}
}
