// Package notify delivers subscription lifecycle notices relayed from the
// outbox to the user's transport.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// Notification is one message for one user.
type Notification struct {
	UserID          uuid.UUID                `json:"user_id"`
	ExternalID      string                   `json:"external_id"`
	SubscriptionID  uuid.UUID                `json:"subscription_id"`
	Plan            string                   `json:"plan"`
	Stage           ledgerDomain.NoticeStage `json:"stage"`
	Message         string                   `json:"message"`
	NextBillingDate time.Time                `json:"next_billing_date"`
}

// Sender hands a notification to the transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Consumer binds to every notification routing key.
type Consumer struct {
	sender Sender
	logger *slog.Logger
}

// NewConsumer creates a notification consumer.
func NewConsumer(sender Sender, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{sender: sender, logger: logger}
}

func (c *Consumer) EventTypes() []string {
	return []string{ledgerDomain.RoutingNotificationsBinding}
}

func (c *Consumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var n Notification
	if err := event.Decode(&n); err != nil {
		return fmt.Errorf("decode notification %s: %w", event.EventID, err)
	}
	if n.Message == "" {
		c.logger.WarnContext(ctx, "dropping empty notification",
			"event_id", event.EventID,
			"routing_key", event.RoutingKey,
		)
		return nil
	}
	if err := c.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification to %s: %w", n.UserID, err)
	}
	return nil
}

var _ eventbus.EventConsumer = (*Consumer)(nil)

// LogSender writes notifications to the log. It is the sender used when
// no chat transport is attached to the worker.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"user_id", n.UserID,
		"external_id", n.ExternalID,
		"stage", n.Stage,
		"message", n.Message,
	)
	return nil
}

// WriterSender prints notifications, one per line.
type WriterSender struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSender(w io.Writer) *WriterSender {
	return &WriterSender{w: w}
}

func (s *WriterSender) Send(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s: %s\n", n.Stage, n.ExternalID, n.Message)
	return err
}
