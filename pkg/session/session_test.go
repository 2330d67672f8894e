package session

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// TestDocIDUniqueness tests that allocated ids never collide across rounds
func TestDocIDUniqueness(t *testing.T) {
	state := New("test question")

	seen := make(map[string]bool)
	for round := 0; round < 4; round++ {
		for i := 0; i < 10; i++ {
			id := state.NextDocID()
			require.False(t, seen[id], "doc id %s allocated twice", id)
			seen[id] = true
		}
		state.AdvanceRound()
	}

	assert.Len(t, seen, 40)
	assert.True(t, seen["d1"])
	assert.True(t, seen["d40"])
}

// TestPoolInsertionOrder tests that the pool preserves insertion order
func TestPoolInsertionOrder(t *testing.T) {
	state := New("test question")

	var want []string
	for i := 0; i < 5; i++ {
		id := state.NextDocID()
		url := fmt.Sprintf("https://example.com/%d", i)
		require.True(t, state.AddDocument(domain.PooledDocument{DocID: id, URL: url}))
		want = append(want, id)
	}

	pool := state.Pool()
	require.Len(t, pool, 5)
	for i, doc := range pool {
		assert.Equal(t, want[i], doc.DocID)
	}
}

// TestAddDocumentRejectsDuplicateID tests duplicate id handling
func TestAddDocumentRejectsDuplicateID(t *testing.T) {
	state := New("test question")

	doc := domain.PooledDocument{DocID: "d1", URL: "https://example.com/a"}
	require.True(t, state.AddDocument(doc))
	assert.False(t, state.AddDocument(doc))
	assert.Equal(t, 1, state.PoolSize())
}

// TestHasURL tests URL membership across rounds
func TestHasURL(t *testing.T) {
	state := New("test question")

	state.AddDocument(domain.PooledDocument{DocID: "d1", URL: "https://example.com/a"})
	state.AdvanceRound()

	assert.True(t, state.HasURL("https://example.com/a"))
	assert.False(t, state.HasURL("https://example.com/b"))
}

// TestDocumentLookup tests lookup by doc id
func TestDocumentLookup(t *testing.T) {
	state := New("test question")
	state.AddDocument(domain.PooledDocument{DocID: "d1", URL: "https://example.com/a", Title: "A"})

	doc, ok := state.Document("d1")
	require.True(t, ok)
	assert.Equal(t, "A", doc.Title)

	_, ok = state.Document("d99")
	assert.False(t, ok)
}

// TestReportsAccumulate tests report accumulation across batches
func TestReportsAccumulate(t *testing.T) {
	state := New("test question")

	state.AddReports([]domain.ReaderReport{
		{DocID: "d1", Verdict: domain.VerdictSupportive},
		{DocID: "d2", Verdict: domain.VerdictNotRelevant},
	})
	state.AddReports([]domain.ReaderReport{
		{DocID: "d3", Verdict: domain.VerdictRelevant},
	})

	reports := state.Reports()
	require.Len(t, reports, 3)
	assert.Equal(t, "d1", reports[0].DocID)
	assert.Equal(t, "d3", reports[2].DocID)

	// The returned slice is a copy.
	reports[0].DocID = "mutated"
	assert.Equal(t, "d1", state.Reports()[0].DocID)
}

// TestPhaseTransitions tests the round state machine bookkeeping
func TestPhaseTransitions(t *testing.T) {
	state := New("test question")
	assert.Equal(t, domain.PhaseDeciding, state.GetPhase())

	state.SetPhase(domain.PhaseSearching)
	assert.Equal(t, domain.PhaseSearching, state.GetPhase())

	state.SetPhase(domain.PhaseReading)
	assert.Equal(t, domain.PhaseReading, state.GetPhase())

	state.SetFinalAnswer("done", false)
	assert.Equal(t, domain.PhaseAnswered, state.GetPhase(), "finalizing lands in the answered phase")
}

// TestResult tests final result assembly
func TestResult(t *testing.T) {
	state := New("what is the answer")
	state.AddReports([]domain.ReaderReport{{DocID: "d1", Verdict: domain.VerdictSupportive}})
	state.SetFinalAnswer("42", false)

	result := state.Result(3)
	require.NotNil(t, result)
	assert.Equal(t, "what is the answer", result.Question)
	assert.Equal(t, "42", result.FinalAnswer)
	assert.Equal(t, 3, result.RoundsUsed)
	assert.False(t, result.Degraded)
	assert.Len(t, result.Reports, 1)
	assert.NotEmpty(t, result.SessionID)
}

// TestDegradedResult tests the degraded finalization path
func TestDegradedResult(t *testing.T) {
	state := New("test question")
	state.SetFinalAnswer("", true)

	assert.True(t, state.Answered())
	result := state.Result(1)
	assert.Empty(t, result.FinalAnswer)
	assert.True(t, result.Degraded)
}
