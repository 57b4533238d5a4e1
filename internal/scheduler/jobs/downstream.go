package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/signalcast/internal/contracts"
	"github.com/wonny/signalcast/internal/external/publisher"
	"github.com/wonny/signalcast/pkg/logger"
	"github.com/wonny/signalcast/pkg/metrics"
)

// DownstreamStage publishes pending outbox events.
// Delivery is at-least-once: events are marked only after a successful publish.
type DownstreamStage struct {
	events    contracts.EventRepository
	publisher publisher.Publisher
	batch     int
	metrics   *metrics.Recorder
	logger    *logger.Logger
	now       func() time.Time
}

// NewDownstreamStage creates the outbox publishing stage
func NewDownstreamStage(events contracts.EventRepository, pub publisher.Publisher, rec *metrics.Recorder, log *logger.Logger) *DownstreamStage {
	return &DownstreamStage{
		events:    events,
		publisher: pub,
		batch:     200,
		metrics:   rec,
		logger:    log.WithModule("jobs.downstream"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the stage name
func (s *DownstreamStage) Name() string {
	return "downstream"
}

// Run drains pending events batch by batch
func (s *DownstreamStage) Run(ctx context.Context) error {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pending, err := s.events.ListPending(ctx, s.batch)
		if err != nil {
			return fmt.Errorf("list pending events: %w", err)
		}
		if len(pending) == 0 {
			break
		}

		if err := s.publisher.Publish(ctx, pending); err != nil {
			return fmt.Errorf("publish %d events: %w", len(pending), err)
		}

		ids := make([]int64, 0, len(pending))
		for _, e := range pending {
			ids = append(ids, e.ID)
		}
		if err := s.events.MarkPublished(ctx, ids, s.now()); err != nil {
			return fmt.Errorf("mark events published: %w", err)
		}

		total += len(pending)
		s.metrics.EventsPublished(len(pending))

		if len(pending) < s.batch {
			break
		}
	}

	if total > 0 {
		s.logger.WithField("published", total).Info("Outbox drained")
	}
	return nil
}
