package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/patientflow/internal/model"
	"github.com/jwalitptl/patientflow/internal/repository"
	"github.com/jwalitptl/patientflow/pkg/messaging"
	"github.com/jwalitptl/patientflow/pkg/metrics"
)

type OutboxProcessorConfig struct {
	Channel   string
	BatchSize int
	// PollInterval is the delay between batches.
	PollInterval time.Duration
	// RetryAttempts bounds in-batch publish retries; the event is then left for a later batch.
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c OutboxProcessorConfig) Validate() error {
	if c.Channel == "" {
		return errors.New("channel is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be greater than 0")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry attempts must not be negative")
	}
	return nil
}

// OutboxProcessor relays outbox events to the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Publisher
	config  OutboxProcessorConfig
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Publisher,
	config OutboxProcessorConfig,
	metrics *metrics.Metrics,
) (*OutboxProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid outbox processor config: %w", err)
	}
	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		metrics: metrics,
	}, nil
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	log.Info().Str("channel", p.config.Channel).Msg("starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down outbox processor")
			return
		case <-ticker.C:
			if _, _, err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("failed to process outbox batch")
			}
		}
	}
}

// ProcessBatch relays one batch of due events and reports how many were published
// and how many were rescheduled.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	processed, failed, err := p.repo.ProcessPending(ctx, p.config.BatchSize, p.config.RetryDelay, func(evt *model.OutboxEvent) error {
		return p.publish(ctx, evt)
	})
	if err != nil {
		return processed, failed, fmt.Errorf("failed to process pending events: %w", err)
	}

	p.metrics.OutboxEventsProcessed.Add(float64(processed))
	p.metrics.OutboxEventsFailed.Add(float64(failed))
	if processed+failed > 0 {
		log.Debug().Int("processed", processed).Int("failed", failed).Msg("outbox batch relayed")
	}
	return processed, failed, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, evt *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:         evt.ID,
		Type:       evt.EventType,
		Payload:    evt.Payload,
		OccurredAt: evt.CreatedAt,
	}

	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.config.RetryDelayInBatch()), uint64(p.config.RetryAttempts)),
		ctx,
	)
	err := backoff.Retry(func() error {
		if attempt > 0 {
			p.metrics.OutboxRetries.WithLabelValues(evt.EventType).Inc()
		}
		attempt++
		return p.broker.Publish(ctx, p.config.Channel, msg)
	}, policy)
	if err != nil {
		log.Warn().Err(err).
			Str("event_id", evt.ID.String()).
			Str("event_type", evt.EventType).
			Int("attempts", attempt).
			Msg("failed to publish outbox event")
	}
	return err
}

// RetryDelayInBatch is the pause between publish attempts for one event. It is
// capped so a broker outage cannot stall a batch for the full outbox retry delay.
func (c OutboxProcessorConfig) RetryDelayInBatch() time.Duration {
	const max = time.Second
	if c.RetryDelay <= 0 || c.RetryDelay > max {
		return max
	}
	return c.RetryDelay
}
