package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/c360studio/coursegen/content"
)

// WriterSink writes each record as one JSON line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Persist implements Sink.
func (s *WriterSink) Persist(ctx context.Context, course *content.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := json.NewEncoder(s.w)
	for _, r := range Records(course) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write %s record %d: %w", r.Type, r.Sequence, err)
		}
	}
	return nil
}

// MemorySink keeps persisted records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// Persist implements Sink.
func (s *MemorySink) Persist(_ context.Context, course *content.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Records(course)...)
	return nil
}

// Records returns a copy of everything persisted so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// MultiSink persists to every sink in order. Each sink is attempted even if
// an earlier one fails; the errors are joined.
type MultiSink []Sink

// Persist implements Sink.
func (m MultiSink) Persist(ctx context.Context, course *content.Course) error {
	var errs []error
	for _, s := range m {
		if err := s.Persist(ctx, course); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
