// Package sink implements the terminal collaborators that consume
// canonical events once they leave the fan-out fabric: a stdout sink for
// interactive use and an append-only NDJSON dead-letter sink for events a
// downstream consumer failed to process.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sawpanic/mdingest/internal/core"
)

// Sink is anything that can durably accept a canonical event.
type Sink interface {
	Publish(msg core.StreamMessage) error
	Close() error
}

// StdoutSink writes every message as one JSON line to an underlying
// writer (stdout in production, a buffer in tests).
type StdoutSink struct {
	w   io.Writer
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdoutSink wraps w for line-delimited JSON output.
func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w, enc: json.NewEncoder(w)}
}

// Publish writes msg as one JSON line.
func (s *StdoutSink) Publish(msg core.StreamMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(msg); err != nil {
		return fmt.Errorf("stdout sink: %w", err)
	}
	return nil
}

// Close is a no-op; StdoutSink does not own its writer's lifecycle.
func (s *StdoutSink) Close() error { return nil }

// DeadLetterEntry is one line of the dead-letter log: the original
// message, a UUID batch ID for log correlation, a sequence number from the
// originating channel, and the failure that caused it to be dead-lettered.
type DeadLetterEntry struct {
	BatchID string             `json:"batch_id"`
	SeqNo   uint64             `json:"seq_no"`
	Reason  string             `json:"reason"`
	At      time.Time          `json:"at"`
	Message core.StreamMessage `json:"message"`
}

// FileSink appends DeadLetterEntry records to an NDJSON file, one per
// line, flushing after every write so a crash loses at most the record
// currently being written, never prior ones. Writes run through a
// Breaker so a disk stall or full filesystem stops being hit at full
// rate once it starts failing consistently.
type FileSink struct {
	mu      sync.Mutex
	file    *os.File
	enc     *json.Encoder
	now     func() time.Time
	breaker *core.Breaker
}

// NewFileSink opens (creating if necessary) the dead-letter log at path in
// append mode.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dead letter file %q: %w", path, err)
	}
	return &FileSink{file: f, enc: json.NewEncoder(f), now: time.Now, breaker: core.NewBreaker("dead-letter-sink")}, nil
}

// PublishFailed appends msg to the dead-letter log with reason and the
// originating channel's sequence number, tagging the entry with a fresh
// UUID so its lifecycle can be traced across logs. The write itself runs
// through the sink's breaker; once it trips, callers get
// gobreaker.ErrOpenState back instead of piling more writes onto a
// failing disk.
func (s *FileSink) PublishFailed(msg core.StreamMessage, seqNo uint64, reason error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		entry := DeadLetterEntry{
			BatchID: uuid.NewString(),
			SeqNo:   seqNo,
			Reason:  reason.Error(),
			At:      s.now(),
			Message: msg,
		}
		if err := s.enc.Encode(entry); err != nil {
			return nil, fmt.Errorf("dead letter sink: %w", err)
		}
		return nil, s.file.Sync()
	})
	return err
}

// Publish satisfies the Sink interface by dead-lettering unconditionally
// with a generic reason; callers that have a specific failure should call
// PublishFailed directly instead.
func (s *FileSink) Publish(msg core.StreamMessage) error {
	return s.PublishFailed(msg, 0, errGenericDeadLetter)
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

var errGenericDeadLetter = fmt.Errorf("dead-lettered without a specific reason")

// LogSink forwards every message to a zerolog.Logger at debug level,
// useful for local development when no other sink is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink wraps logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger}
}

// Publish logs msg's stream name and event type.
func (s *LogSink) Publish(msg core.StreamMessage) error {
	s.log.Debug().Str("stream", msg.Stream).Str("event_type", string(msg.Data.Type)).Msg("event")
	return nil
}

// Close is a no-op; LogSink does not own the logger's writer lifecycle.
func (s *LogSink) Close() error { return nil }
