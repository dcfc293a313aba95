package outbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/counsel/internal/shared/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/counsel/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns the relay defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}
}

// Processor relays pending outbox messages to a Publisher.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	metrics   observability.Metrics
	logger    *slog.Logger
	now       func() time.Time

	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a relay. A nil metrics sink disables metrics.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, metrics observability.Metrics, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the polling loop in a goroutine until Stop or ctx ends.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
}

// Stop halts the loop and waits for the in-flight batch.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	now := p.now()
	messages, err := p.repo.GetPending(ctx, now, p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return err
	}
	p.recordProcessed(messages, now)

	for _, msg := range messages {
		body, err := msg.Envelope()
		if err != nil {
			p.deadLetter(ctx, msg, err)
			continue
		}
		if err := p.publisher.Publish(ctx, msg.RoutingKey, body); err != nil {
			p.handlePublishFailure(ctx, msg, err)
			continue
		}

		if err := p.repo.MarkPublished(ctx, msg.ID, p.now()); err != nil {
			p.logger.Error("failed to mark message as published",
				"id", msg.ID,
				"event_id", msg.EventID,
				"error", err,
			)
			continue
		}
		p.recordPublished()
		p.metrics.Counter(observability.MetricOutboxPublished, 1, observability.T("routing_key", msg.RoutingKey))
	}

	return nil
}

func (p *Processor) handlePublishFailure(ctx context.Context, msg *Message, err error) {
	meta := p.metadata(msg)
	p.logger.Warn("failed to publish message",
		"id", msg.ID,
		"routing_key", msg.RoutingKey,
		"event_id", msg.EventID,
		"correlation_id", meta.CorrelationID,
		"user_id", meta.UserID,
		"error", err,
	)

	if p.shouldDeadLetter(msg) {
		p.deadLetter(ctx, msg, err)
		return
	}

	p.recordFailure(err, false)
	nextRetryAt := p.now().Add(p.retryBackoff(msg.RetryCount + 1))
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), nextRetryAt); markErr != nil {
		p.logger.Error("failed to mark message as failed", "id", msg.ID, "error", markErr)
	}
}

func (p *Processor) deadLetter(ctx context.Context, msg *Message, err error) {
	p.recordFailure(err, true)
	p.metrics.Counter(observability.MetricOutboxDeadLettered, 1, observability.T("routing_key", msg.RoutingKey))
	if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error(), p.now()); markErr != nil {
		p.logger.Error("failed to mark message as dead-lettered", "id", msg.ID, "error", markErr)
	}
}

func (p *Processor) shouldDeadLetter(msg *Message) bool {
	if p.config.MaxRetries <= 0 {
		return true
	}
	return msg.RetryCount+1 >= p.config.MaxRetries
}

func (p *Processor) retryBackoff(attempt int) time.Duration {
	base := p.config.RetryBackoffBase
	if base <= 0 {
		base = time.Second
	}
	limit := p.config.RetryBackoffMax
	if limit <= 0 {
		limit = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}

	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	return backoff
}

func (p *Processor) metadata(msg *Message) domain.EventMetadata {
	var meta domain.EventMetadata
	if len(msg.Metadata) > 0 {
		_ = json.Unmarshal(msg.Metadata, &meta)
	}
	return meta
}

// Stats summarizes relay activity for health endpoints.
type Stats struct {
	IsRunning       bool       `json:"running"`
	PublishedCount  uint64     `json:"published"`
	FailedCount     uint64     `json:"failed"`
	DeadCount       uint64     `json:"dead"`
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// GetStats returns a snapshot of relay statistics.
func (p *Processor) GetStats() Stats {
	running := p.IsRunning()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	stats := p.stats
	stats.IsRunning = running
	return stats
}

func (p *Processor) recordPublished() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.PublishedCount++
}

func (p *Processor) recordFailure(err error, dead bool) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	if dead {
		p.stats.DeadCount++
	} else {
		p.stats.FailedCount++
	}
	now := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := p.now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Processor) recordProcessed(messages []*Message, now time.Time) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.LastProcessedAt = &now
	p.stats.LagSeconds = 0
	if len(messages) > 0 {
		p.stats.LagSeconds = now.Sub(messages[0].CreatedAt).Seconds()
	}
	p.metrics.Gauge(observability.MetricOutboxLag, p.stats.LagSeconds)
}
