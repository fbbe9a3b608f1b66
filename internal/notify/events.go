package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/ftledger/internal/ledger"
	"github.com/Klingon-tech/ftledger/internal/log"
)

// DefaultEventBuffer is the number of events a JetStreamSink queues before
// it starts dropping.
const DefaultEventBuffer = 1024

type outbound struct {
	id    string
	event ledger.Event
}

// JetStreamSink publishes committed ledger events to
// "<subject>.<event kind>". Emit only queues; Run does the publishing, so
// the ledger never waits on the network.
type JetStreamSink struct {
	js      jetstream.JetStream
	subject string
	queue   chan outbound
	dropped atomic.Uint64
	logger  zerolog.Logger
}

// NewJetStreamSink creates a sink with room for buffer queued events.
func NewJetStreamSink(js jetstream.JetStream, subject string, buffer int) *JetStreamSink {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &JetStreamSink{
		js:      js,
		subject: subject,
		queue:   make(chan outbound, buffer),
		logger:  log.Notify.With().Str("subject", subject).Logger(),
	}
}

// Emit implements ledger.EventSink. Events are dropped when the queue is
// full.
func (s *JetStreamSink) Emit(ev ledger.Event) {
	select {
	case s.queue <- outbound{id: uuid.NewString(), event: ev}:
	default:
		n := s.dropped.Add(1)
		s.logger.Warn().Str("event", string(ev.Kind)).Uint64("dropped", n).Msg("Event queue full, dropping")
	}
}

// Dropped returns how many events were discarded because the queue was
// full.
func (s *JetStreamSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Subject returns the subject an event is published on.
func (s *JetStreamSink) Subject(ev ledger.Event) string {
	return s.subject + "." + string(ev.Kind)
}

// Run publishes queued events until ctx is done. Publish failures are
// logged and skipped.
func (s *JetStreamSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return ctx.Err()
		case out := <-s.queue:
			if err := s.publish(ctx, out); err != nil {
				s.logger.Warn().Err(err).Str("event", string(out.event.Kind)).Msg("Publish failed")
			}
		}
	}
}

// drain makes a best-effort attempt to flush the queue on shutdown.
func (s *JetStreamSink) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case out := <-s.queue:
			if err := s.publish(ctx, out); err != nil {
				s.logger.Warn().Err(err).Msg("Publish on shutdown failed")
				return
			}
		default:
			return
		}
	}
}

func (s *JetStreamSink) publish(ctx context.Context, out outbound) error {
	data, err := json.Marshal(out.event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.js.Publish(ctx, s.Subject(out.event), data, jetstream.WithMsgID(out.id))
	return err
}

// EnsureStream creates or updates the stream that captures every event
// published under subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{subject + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	log.Notify.Info().Str("stream", name).Str("subjects", subject+".>").Msg("Ensured event stream")
	return nil
}
