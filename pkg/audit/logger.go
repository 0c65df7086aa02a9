// Package audit provides a structured, JSON-lines record writer with a
// pluggable sink (stdout/file/both), non-blocking on the request path — the
// audit logger behind Core B's per-request audit trail.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink is a destination for one JSON-lines audit record per write.
type Sink interface {
	Write(line []byte) error
}

// WriterSink wraps an io.Writer as a Sink, serializing concurrent writes so
// lines never interleave.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Write appends a trailing newline and writes line atomically with respect
// to other Write calls on this sink.
func (s *WriterSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n"))
	return err
}

// MultiSink fans out to every child sink, returning the first error (after
// attempting all children) so one bad sink doesn't prevent writing to others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds a MultiSink from the given children.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{sinks: sinks} }

func (m *MultiSink) Write(line []byte) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.Write(line); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Logger writes arbitrary JSON-serializable records as JSON-lines to a Sink.
type Logger struct {
	sink Sink
}

// New builds a Logger writing to sink.
func New(sink Sink) *Logger { return &Logger{sink: sink} }

// NewFileSink opens (creating/appending) the audit file at path.
func NewFileSink(path string) (Sink, *os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit file %q: %w", path, err)
	}
	return NewWriterSink(f), f, nil
}

// Record marshals v to JSON and writes one line to the sink.
func (l *Logger) Record(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	return l.sink.Write(line)
}
