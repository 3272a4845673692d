package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/coursegen/content"
)

// DefaultSubjectPrefix is the subject root records are published under.
const DefaultSubjectPrefix = "coursegen"

// Publisher is the subset of jetstream.JetStream the sink needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSSink publishes records to JetStream, one message per record, at
// {prefix}.course, {prefix}.module, and {prefix}.lesson. JetStream publish
// waits for the ack, so records land in persistence order.
type NATSSink struct {
	js     Publisher
	prefix string
	logger *slog.Logger
}

// NATSOption configures a NATSSink.
type NATSOption func(*NATSSink)

// WithSubjectPrefix sets the subject root.
func WithSubjectPrefix(prefix string) NATSOption {
	return func(s *NATSSink) {
		if prefix = strings.Trim(prefix, "."); prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) NATSOption {
	return func(s *NATSSink) {
		s.logger = logger
	}
}

// NewNATSSink creates a sink publishing through js.
func NewNATSSink(js Publisher, opts ...NATSOption) *NATSSink {
	s := &NATSSink{
		js:     js,
		prefix: DefaultSubjectPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subject returns the subject for a record type.
func (s *NATSSink) Subject(t RecordType) string {
	return s.prefix + "." + string(t)
}

// Persist implements Sink. It stops at the first failed publish so a later
// record is never stored without the ones before it.
func (s *NATSSink) Persist(ctx context.Context, course *content.Course) error {
	records := Records(course)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", r.Type, err)
		}

		subject := s.Subject(r.Type)
		// Msg ID lets JetStream drop duplicates if a course is persisted twice.
		msgID := r.CourseID + ":" + strconv.Itoa(r.Sequence)
		if _, err := s.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
			return fmt.Errorf("publish %s record %d: %w", r.Type, r.Sequence, err)
		}
	}

	if len(records) > 0 {
		s.logger.Debug("Published course records",
			"course_id", records[0].CourseID,
			"records", len(records),
			"subject_prefix", s.prefix)
	}
	return nil
}

// NATSConfig describes the connection used by Connect.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	// Stream is created or updated to capture {prefix}.> when set.
	Stream string
}

// Dial connects to NATS and returns the connection with a JetStream context.
// Callers close the connection with Drain.
func Dial(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("coursegen"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// NewStreamSink returns a sink publishing through js, creating or updating
// cfg.Stream to capture {prefix}.> when it is set.
func NewStreamSink(ctx context.Context, js jetstream.JetStream, cfg NATSConfig, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sink := NewNATSSink(js, WithSubjectPrefix(cfg.SubjectPrefix), WithLogger(logger))

	if cfg.Stream != "" {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{sink.prefix + ".>"},
		})
		if err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
		}
	}
	return sink, nil
}
