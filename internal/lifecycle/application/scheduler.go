// Package application advances subscriptions through their billing
// lifecycle: a reminder before the billing date, a renewal request on the
// day, and cancellation once the grace period is over.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerDomain "github.com/felixgeelhaar/counsel/internal/ledger/domain"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// Days relative to the billing date at which the sweep acts.
const (
	ReminderDays   = 3
	RenewalDueDays = 0
	GraceDays      = -3
)

const (
	DefaultRunAt       = 3 * time.Hour
	DefaultRetryDelay  = time.Hour
	DefaultConcurrency = 4
	DefaultItemTimeout = 30 * time.Second
)

// CancelReason is recorded on subscriptions cancelled by the sweep.
const CancelReason = "not renewed within grace period"

// Ledger is the part of the entitlement ledger the scheduler drives.
type Ledger interface {
	ActiveSubscriptions(ctx context.Context) ([]ledgerApp.SubscriptionView, error)
	IssueNotice(ctx context.Context, cmd ledgerApp.IssueNoticeCommand) (bool, error)
	CancelSubscription(ctx context.Context, cmd ledgerApp.CancelSubscriptionCommand) (bool, error)
}

// Config configures the scheduler.
type Config struct {
	// RunAt is the offset from UTC midnight of the daily sweep.
	RunAt       time.Duration
	RetryDelay  time.Duration
	Concurrency int
	ItemTimeout time.Duration
}

// DefaultConfig sweeps daily at 03:00 UTC.
func DefaultConfig() Config {
	return Config{
		RunAt:       DefaultRunAt,
		RetryDelay:  DefaultRetryDelay,
		Concurrency: DefaultConcurrency,
		ItemTimeout: DefaultItemTimeout,
	}
}

// Action is what the sweep did with one subscription.
type Action string

const (
	ActionNone       Action = "none"
	ActionReminder   Action = "reminder"
	ActionRenewalDue Action = "renewal_due"
	ActionCancelled  Action = "cancelled"
	ActionDuplicate  Action = "duplicate"
	ActionFailed     Action = "failed"
)

// Report summarizes one sweep.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Checked    int       `json:"checked"`
	Reminders  int       `json:"reminders"`
	RenewalDue int       `json:"renewal_due"`
	Cancelled  int       `json:"cancelled"`
	Duplicates int       `json:"duplicates"`
	Failed     int       `json:"failed"`
}

func (r *Report) record(a Action) {
	switch a {
	case ActionReminder:
		r.Reminders++
	case ActionRenewalDue:
		r.RenewalDue++
	case ActionCancelled:
		r.Cancelled++
	case ActionDuplicate:
		r.Duplicates++
	case ActionFailed:
		r.Failed++
	}
}

// Scheduler sweeps active subscriptions once a day.
type Scheduler struct {
	ledger  Ledger
	clock   sharedApplication.Clock
	config  Config
	metrics observability.Metrics
	logger  *slog.Logger

	running atomic.Bool
	stopCh  chan struct{}
	stopped sync.Once
}

// NewScheduler creates a scheduler.
func NewScheduler(ledger Ledger, clock sharedApplication.Clock, config Config, metrics observability.Metrics, logger *slog.Logger) *Scheduler {
	defaults := DefaultConfig()
	if config.RunAt < 0 || config.RunAt >= 24*time.Hour {
		config.RunAt = defaults.RunAt
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.ItemTimeout <= 0 {
		config.ItemTimeout = defaults.ItemTimeout
	}
	if clock == nil {
		clock = sharedApplication.SystemClock{}
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		ledger:  ledger,
		clock:   clock,
		config:  config,
		metrics: metrics,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Run sweeps immediately and then once a day at the configured time. A
// failed sweep is retried after the retry delay. Run blocks until ctx is
// cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)
	s.logger.Info("lifecycle scheduler started",
		"run_at", s.config.RunAt,
		"retry_delay", s.config.RetryDelay,
		"concurrency", s.config.Concurrency,
	)

	for {
		wait := s.config.RetryDelay
		report, err := s.Sweep(ctx)
		switch {
		case err != nil:
			s.logger.Error("lifecycle sweep failed", "error", err, "retry_in", wait)
		case report.Failed > 0:
			s.logger.Warn("lifecycle sweep finished with failures", "failed", report.Failed, "retry_in", wait)
		default:
			now := s.clock.Now()
			wait = NextRun(now, s.config.RunAt).Sub(now)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("lifecycle scheduler stopped (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			s.logger.Info("lifecycle scheduler stopped (stop signal)")
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// Stop signals Run to return.
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
}

// IsRunning reports whether Run is active.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// Sweep checks every active subscription once. Failures of single
// subscriptions are logged and counted; only a failure to list the
// subscriptions is returned.
func (s *Scheduler) Sweep(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: s.clock.Now()}
	start := time.Now()
	defer func() {
		s.metrics.Timing(observability.MetricSweepDuration, time.Since(start))
	}()

	subs, err := s.ledger.ActiveSubscriptions(ctx)
	if err != nil {
		s.metrics.Counter(observability.MetricSweepRuns, 1, observability.T("outcome", "error"))
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.config.Concurrency)
	for _, sub := range subs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			action := s.process(ctx, sub)
			mu.Lock()
			report.Checked++
			report.record(action)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = s.clock.Now()
	s.metrics.Counter(observability.MetricSweepRuns, 1, observability.T("outcome", "ok"))
	s.logger.InfoContext(ctx, "lifecycle sweep completed",
		"checked", report.Checked,
		"reminders", report.Reminders,
		"renewal_due", report.RenewalDue,
		"cancelled", report.Cancelled,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

func (s *Scheduler) process(ctx context.Context, sub ledgerApp.SubscriptionView) Action {
	itemCtx, cancel := context.WithTimeout(ctx, s.config.ItemTimeout)
	defer cancel()

	days := ledgerDomain.CalendarDaysUntil(s.clock.Now(), sub.NextBillingDate)
	action, err := s.apply(itemCtx, sub, days)
	if err != nil {
		s.metrics.Counter(observability.MetricSweepFailures, 1)
		s.logger.ErrorContext(ctx, "lifecycle step failed",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"days_until_renewal", days,
			"error", err,
		)
		return ActionFailed
	}
	if action != ActionNone {
		s.metrics.Counter(observability.MetricSweepActions, 1, observability.T("action", string(action)))
		s.logger.DebugContext(ctx, "lifecycle step applied",
			"subscription_id", sub.ID,
			"user_id", sub.UserID,
			"action", action,
		)
	}
	return action
}

func (s *Scheduler) apply(ctx context.Context, sub ledgerApp.SubscriptionView, days int) (Action, error) {
	switch days {
	case ReminderDays:
		return s.notice(ctx, sub, ledgerDomain.NoticeReminder, ActionReminder, ReminderMessage(sub))
	case RenewalDueDays:
		return s.notice(ctx, sub, ledgerDomain.NoticeRenewalDue, ActionRenewalDue, RenewalDueMessage(sub))
	case GraceDays:
		cancelled, err := s.ledger.CancelSubscription(ctx, ledgerApp.CancelSubscriptionCommand{
			UserID:              sub.UserID,
			Reason:              CancelReason,
			Notice:              CancelledMessage(sub),
			ExpectedBillingDate: sub.NextBillingDate,
		})
		if errors.Is(err, ledgerDomain.ErrNoActiveSubscription) || (err == nil && !cancelled) {
			return ActionDuplicate, nil
		}
		if err != nil {
			return ActionFailed, err
		}
		return ActionCancelled, nil
	default:
		return ActionNone, nil
	}
}

func (s *Scheduler) notice(ctx context.Context, sub ledgerApp.SubscriptionView, stage ledgerDomain.NoticeStage, action Action, message string) (Action, error) {
	sent, err := s.ledger.IssueNotice(ctx, ledgerApp.IssueNoticeCommand{
		UserID:      sub.UserID,
		Stage:       stage,
		Message:     message,
		BillingDate: sub.NextBillingDate,
	})
	if err != nil {
		return ActionFailed, err
	}
	if !sent {
		return ActionDuplicate, nil
	}
	return action, nil
}

// NextRun returns the first instant after now at offset past UTC midnight.
func NextRun(now time.Time, offset time.Duration) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.Add(offset)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseTimeOfDay parses "HH:MM" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
