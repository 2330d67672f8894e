// Package audit provides the append-only trail of controller steps. Writes
// are decoupled from the round loop: the engine hands records to a buffered
// channel and a single writer goroutine persists them, so a slow or broken
// sink can never stall a session. Write failures are logged as warnings and
// counted, never propagated.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
	"github.com/deepseeker-ai/deepseeker/pkg/observability"
)

const defaultQueueSize = 256

// Log is an asynchronous audit sink writing JSON Lines to an io.Writer.
type Log struct {
	queue   chan domain.AuditRecord
	writer  io.Writer
	closer  io.Closer
	logger  *observability.StructuredLogger
	metrics *observability.Metrics

	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// Option configures a Log.
type Option func(*Log)

// WithMetrics attaches engine metrics so write failures are counted.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// WithQueueSize overrides the record buffer size.
func WithQueueSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.queue = make(chan domain.AuditRecord, n)
		}
	}
}

// New creates an audit log writing to w. Call Close to flush pending
// records.
func New(w io.Writer, opts ...Option) *Log {
	l := &Log{
		queue:  make(chan domain.AuditRecord, defaultQueueSize),
		writer: w,
		logger: observability.NewStructuredLogger("audit"),
	}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	for _, opt := range opts {
		opt(l)
	}

	l.wg.Add(1)
	go l.run()
	return l
}

// NewFileLog creates an audit log backed by a size-rotated file.
func NewFileLog(path string, maxSizeMB, maxBackups int, opts ...Option) *Log {
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}, opts...)
}

// Append enqueues a record. It never blocks the caller and never returns an
// error; when the queue is full the record is dropped with a warning.
func (l *Log) Append(record domain.AuditRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		l.warnDropped(record, "audit log closed")
		return
	}
	select {
	case l.queue <- record:
		l.closeMu.Unlock()
	default:
		l.closeMu.Unlock()
		l.warnDropped(record, "audit queue full")
	}
}

// Close stops the writer after draining queued records.
func (l *Log) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.closeMu.Unlock()

	l.wg.Wait()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Log) run() {
	defer l.wg.Done()

	enc := json.NewEncoder(l.writer)
	for record := range l.queue {
		if err := enc.Encode(record); err != nil {
			l.logger.Warn(context.Background(), "Audit record write failed",
				map[string]any{
					"session_id": record.SessionID,
					"round":      record.RoundIndex,
					"kind":       string(record.Kind),
					"error":      err.Error(),
				},
			)
			if l.metrics != nil {
				l.metrics.RecordAuditWriteFailure(context.Background())
			}
		}
	}
}

func (l *Log) warnDropped(record domain.AuditRecord, reason string) {
	l.logger.Warn(context.Background(), "Audit record dropped",
		map[string]any{
			"session_id": record.SessionID,
			"round":      record.RoundIndex,
			"kind":       string(record.Kind),
			"reason":     reason,
		},
	)
	if l.metrics != nil {
		l.metrics.RecordAuditWriteFailure(context.Background())
	}
}

// MemorySink collects records in memory. Intended for tests and for
// embedding the trail in the final session output.
type MemorySink struct {
	mu      sync.Mutex
	records []domain.AuditRecord
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements domain.AuditSink.
func (m *MemorySink) Append(record domain.AuditRecord) {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
}

// Records returns a copy of everything appended so far.
func (m *MemorySink) Records() []domain.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}

// MultiSink fans records out to several sinks.
type MultiSink struct {
	sinks []domain.AuditSink
}

// NewMultiSink combines sinks into one.
func NewMultiSink(sinks ...domain.AuditSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append implements domain.AuditSink.
func (m *MultiSink) Append(record domain.AuditRecord) {
	for _, s := range m.sinks {
		s.Append(record)
	}
}
