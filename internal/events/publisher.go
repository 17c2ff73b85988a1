package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/segmentio/kafka-go"
)

var outboxPublished = promauto.NewCounter(prometheus.CounterOpts{
	Name: "giving_outbox_published_total",
	Help: "Donation events delivered from the outbox to the broker",
})

const batchSize = 100

type OutboxStore interface {
	FetchUnpublishedEvents(ctx context.Context, limit int) ([]domain.DonationEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
	SweepStalePending(ctx context.Context, olderThan time.Duration) (int64, error)
}

// MessageWriter is the subset of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller relays donation status changes to Kafka and fails checkouts
// that were abandoned before a session was ever attached.
type OutboxPoller struct {
	eventTick  time.Duration
	sweepTick  time.Duration
	sweepAfter time.Duration
	store      OutboxStore
	writer     MessageWriter
	logger     *slog.Logger
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
}

func NewOutboxPoller(store OutboxStore, writer MessageWriter, sweepAfter time.Duration, logger *slog.Logger) *OutboxPoller {
	return &OutboxPoller{
		eventTick:  time.Second,
		sweepTick:  5 * time.Minute,
		sweepAfter: sweepAfter,
		store:      store,
		writer:     writer,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	sweepTicker := time.NewTicker(p.sweepTick)
	defer eventTicker.Stop()
	defer sweepTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.PublishPending(ctx)
		case <-sweepTicker.C:
			p.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending delivers one batch and returns how many events were marked published.
// A failed write leaves the row for the next tick. Without a writer events stay queued.
func (p *OutboxPoller) PublishPending(ctx context.Context) int {
	if p.writer == nil {
		return 0
	}
	events, err := p.store.FetchUnpublishedEvents(ctx, batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", "error", err)
		return 0
	}

	published := 0
	for _, ev := range events {
		if err := p.writer.WriteMessages(ctx, message(ev)); err != nil {
			p.logger.Error("failed to publish event", "event_id", ev.ID, "error", err)
			// keep per-donation ordering: later events for this batch wait
			return published
		}
		if err := p.store.MarkEventPublished(ctx, ev.ID); err != nil {
			p.logger.Error("failed to mark event published", "event_id", ev.ID, "error", err)
			return published
		}
		outboxPublished.Inc()
		published++
	}
	return published
}

func (p *OutboxPoller) sweep(ctx context.Context) {
	if p.sweepAfter <= 0 {
		return
	}
	n, err := p.store.SweepStalePending(ctx, p.sweepAfter)
	if err != nil {
		p.logger.Error("stale donation sweep failed", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("failed stale pending donations", "count", n)
	}
}

func message(ev domain.DonationEvent) kafka.Message {
	return kafka.Message{
		Key:   donationKey(ev.DonationID),
		Value: ev.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.EventType)},
			{Key: "status", Value: []byte(ev.Status)},
		},
	}
}

func donationKey(id uuid.UUID) []byte {
	return []byte(id.String())
}
