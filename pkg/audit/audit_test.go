package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

func testRecord(round int, kind domain.AuditKind) domain.AuditRecord {
	return domain.AuditRecord{
		SessionID:  "session-1",
		RoundIndex: round,
		Kind:       kind,
		Payload:    map[string]any{"round": round},
	}
}

// TestLogWritesJSONLines tests that records land as one JSON object per line
func TestLogWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)

	log.Append(testRecord(0, domain.AuditDecision))
	log.Append(testRecord(0, domain.AuditSearchPool))
	log.Append(testRecord(1, domain.AuditReaderBatch))
	require.NoError(t, log.Close())

	scanner := bufio.NewScanner(&buf)
	var records []domain.AuditRecord
	for scanner.Scan() {
		var rec domain.AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}

	require.Len(t, records, 3)
	assert.Equal(t, domain.AuditDecision, records[0].Kind)
	assert.Equal(t, domain.AuditReaderBatch, records[2].Kind)
	assert.Equal(t, 1, records[2].RoundIndex)
	assert.False(t, records[0].Timestamp.IsZero(), "timestamp is stamped on append")
}

// TestAppendAfterCloseIsDropped tests that a closed log never blocks or panics
func TestAppendAfterCloseIsDropped(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)
	require.NoError(t, log.Close())

	log.Append(testRecord(0, domain.AuditDecision))
	assert.Empty(t, buf.String())
}

// TestAppendNeverBlocksOnFullQueue tests the drop-on-full policy
func TestAppendNeverBlocksOnFullQueue(t *testing.T) {
	// A writer that blocks forever would stall the drain goroutine; Append
	// must still return promptly once the queue is full.
	blocked := make(chan struct{})
	log := New(blockingWriter{release: blocked}, WithQueueSize(2))

	for i := 0; i < 20; i++ {
		log.Append(testRecord(i, domain.AuditDecision))
	}
	close(blocked)
	require.NoError(t, log.Close())
}

// TestFileLogRoundTrip tests the rotated file sink end to end
func TestFileLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log := NewFileLog(path, 10, 2)
	for i := 0; i < 5; i++ {
		log.Append(testRecord(i, domain.AuditDecision))
	}
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, bytes.Count(data, []byte("\n")))
}

// TestMemorySink tests in-memory collection
func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	for i := 0; i < 3; i++ {
		sink.Append(testRecord(i, domain.AuditSearchPool))
	}

	records := sink.Records()
	require.Len(t, records, 3)
	assert.Equal(t, 2, records[2].RoundIndex)

	// The returned slice is a copy.
	records[0].RoundIndex = 99
	assert.Equal(t, 0, sink.Records()[0].RoundIndex)
}

// TestMultiSink tests fan-out to several sinks
func TestMultiSink(t *testing.T) {
	a := NewMemorySink()
	b := NewMemorySink()
	multi := NewMultiSink(a, b)

	multi.Append(testRecord(0, domain.AuditForcedStop))

	assert.Len(t, a.Records(), 1)
	assert.Len(t, b.Records(), 1)
}

type blockingWriter struct {
	release chan struct{}
}

func (w blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

