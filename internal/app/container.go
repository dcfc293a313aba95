package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	conversationApp "github.com/felixgeelhaar/counsel/internal/conversation/application"
	conversationDomain "github.com/felixgeelhaar/counsel/internal/conversation/domain"
	"github.com/felixgeelhaar/counsel/internal/conversation/infrastructure/generation"
	conversationPersistence "github.com/felixgeelhaar/counsel/internal/conversation/infrastructure/persistence"
	"github.com/felixgeelhaar/counsel/internal/conversation/infrastructure/sessionstore"
	ledgerApp "github.com/felixgeelhaar/counsel/internal/ledger/application"
	ledgerPersistence "github.com/felixgeelhaar/counsel/internal/ledger/infrastructure/persistence"
	lifecycleApp "github.com/felixgeelhaar/counsel/internal/lifecycle/application"
	"github.com/felixgeelhaar/counsel/internal/lifecycle/infrastructure/notify"
	sharedApplication "github.com/felixgeelhaar/counsel/internal/shared/application"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/felixgeelhaar/counsel/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/counsel/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/counsel/pkg/config"
	"github.com/felixgeelhaar/counsel/pkg/observability"
	"github.com/redis/go-redis/v9"
)

// Options overrides parts of the container, mostly for tests.
type Options struct {
	Logger *slog.Logger
	Clock  sharedApplication.Clock
	// Generator replaces the Anthropic client.
	Generator conversationApp.Generator
	// NotificationSender delivers lifecycle notices relayed through the
	// in-process bus. Defaults to logging them.
	NotificationSender notify.Sender
}

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Clock   sharedApplication.Clock
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis
	RedisClient *redis.Client

	// Shared infrastructure
	UnitOfWork        sharedApplication.UnitOfWork
	OutboxRepo        outbox.Repository
	EventPublisher    eventbus.Publisher
	InProcessEventBus *eventbus.InProcessEventBus
	OutboxProcessor   *outbox.Processor

	// Ledger
	LedgerRepos ledgerPersistence.Repositories
	Ledger      *ledgerApp.Service

	// Conversation
	Problems  conversationDomain.ProblemRepository
	Sessions  conversationApp.SessionStore
	Generator conversationApp.Generator

	// Lifecycle
	Scheduler     *lifecycleApp.Scheduler
	Notifications *notify.Consumer
}

// NewContainer connects to the configured backends and wires every
// bounded context. Without DATABASE_URL, REDIS_URL and RABBITMQ_URL it runs
// on SQLite, in-memory sessions and the in-process bus.
func NewContainer(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = sharedApplication.SystemClock{}
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Clock:   clock,
		Metrics: observability.NewPrometheusMetrics("counsel"),
		Health:  observability.NewHealthRegistry(),
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initSessions(ctx); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.initEventBus(opts.NotificationSender); err != nil {
		c.Close()
		return nil, err
	}

	c.LedgerRepos = ledgerPersistence.NewRepositories(c.DBConn)
	c.Ledger = ledgerApp.NewService(ledgerApp.Dependencies{
		Users:      c.LedgerRepos.Users,
		Referrals:  c.LedgerRepos.Referrals,
		Payments:   c.LedgerRepos.Payments,
		Outbox:     c.OutboxRepo,
		UnitOfWork: c.UnitOfWork,
		Clock:      clock,
		Metrics:    c.Metrics,
		Logger:     logger.With("component", "ledger"),
	})

	c.Problems = conversationPersistence.NewProblemRepository(c.DBConn)
	c.Generator = opts.Generator
	if c.Generator == nil {
		c.Generator = c.newGenerator()
	}

	runAt, err := lifecycleApp.ParseTimeOfDay(cfg.SchedulerRunAt)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Scheduler = lifecycleApp.NewScheduler(c.Ledger, clock, lifecycleApp.Config{
		RunAt:       runAt,
		RetryDelay:  cfg.SchedulerRetryDelay,
		Concurrency: cfg.SchedulerConcurrency,
		ItemTimeout: cfg.SchedulerItemTimeout,
	}, c.Metrics, logger.With("component", "lifecycle"))

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     cfg.OutboxPollInterval,
		BatchSize:        cfg.OutboxBatchSize,
		MaxRetries:       cfg.OutboxMaxRetries,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
	}, c.Metrics, logger.With("component", "outbox"))

	return c, nil
}

func (c *Container) databaseConfig() database.Config {
	return database.Config{
		Driver:     database.Driver(c.Config.DatabaseDriver),
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	}
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbCfg := c.databaseConfig()

	conn, err := database.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()
	c.UnitOfWork = database.NewUnitOfWork(conn)
	c.OutboxRepo = outbox.NewRepository(conn)
	c.Health.Register("database", observability.PingChecker("database", true, conn.Ping))
	c.Logger.Info("connected to database", "driver", c.DBDriver)

	// SQLite is migrated on open so local mode needs no setup step.
	if c.DBDriver == database.DriverSQLite {
		if _, err := RunMigrations(ctx, dbCfg, c.Logger); err != nil {
			_ = conn.Close()
			return err
		}
	}
	return nil
}

func (c *Container) initSessions(ctx context.Context) error {
	cfg := c.Config
	if cfg.RedisURL == "" {
		c.Sessions = sessionstore.NewMemoryStore(cfg.SessionTTL, c.Clock)
		return nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, sessions will be kept in memory", "error", err)
		c.Sessions = sessionstore.NewMemoryStore(cfg.SessionTTL, c.Clock)
		return nil
	}

	c.RedisClient = client
	store := sessionstore.NewRedisStore(client, cfg.SessionTTL)
	c.Sessions = store
	c.Health.Register("redis", observability.PingChecker("redis", false, store.Ping))
	c.Logger.Info("connected to Redis")
	return nil
}

func (c *Container) initEventBus(sender notify.Sender) error {
	cfg := c.Config
	if cfg.RabbitMQURL != "" {
		publisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, c.Logger)
		if err == nil {
			c.EventPublisher = publisher
			c.Health.Register("rabbitmq", observability.PingChecker("rabbitmq", false, publisher.Ping))
			return nil
		}
		if !cfg.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using in-process event bus", "error", err)
	}

	if sender == nil {
		sender = notify.NewLogSender(c.Logger.With("component", "notify"))
	}
	c.InProcessEventBus = eventbus.NewInProcessEventBus(c.Logger)
	c.Notifications = notify.NewConsumer(sender, c.Logger)
	c.InProcessEventBus.RegisterConsumer(c.Notifications)
	c.EventPublisher = c.InProcessEventBus
	return nil
}

func (c *Container) newGenerator() conversationApp.Generator {
	cfg := c.Config
	if !cfg.HasGeneration() {
		c.Logger.Warn("ANTHROPIC_API_KEY not set, conversations will use fallback texts")
		return generation.Unavailable{Reason: "ANTHROPIC_API_KEY not set"}
	}
	return generation.NewClient(generation.Config{
		APIKey:            cfg.AnthropicAPIKey,
		BaseURL:           cfg.AnthropicBaseURL,
		Model:             cfg.GenerationModel,
		Timeout:           cfg.GenerationTimeout,
		MaxRetries:        cfg.GenerationMaxRetries,
		QuestionMaxTokens: cfg.GenerationQuestionMaxTokens,
		SolutionMaxTokens: cfg.GenerationSolutionMaxTokens,
		AnswerMaxTokens:   cfg.GenerationAnswerMaxTokens,
		FailureThreshold:  uint32(max(cfg.BreakerFailureThreshold, 1)),
		OpenTimeout:       cfg.BreakerOpenTimeout,
	}, c.Metrics, c.Logger.With("component", "generation"))
}

// ConversationLedger adapts the ledger service to the engine's port.
func (c *Container) ConversationLedger() conversationApp.Ledger {
	return conversationLedger{svc: c.Ledger}
}

// NewEngine builds a conversation engine that presents through presenter.
func (c *Container) NewEngine(presenter conversationApp.Presenter) *conversationApp.Engine {
	policy := conversationDomain.DefaultPolicy()
	policy.StartThrottle = c.Config.StartThrottle
	return conversationApp.NewEngine(conversationApp.Dependencies{
		Sessions:   c.Sessions,
		Problems:   c.Problems,
		Ledger:     c.ConversationLedger(),
		Generator:  c.Generator,
		Presenter:  presenter,
		Outbox:     c.OutboxRepo,
		UnitOfWork: c.UnitOfWork,
		Clock:      c.Clock,
		Metrics:    c.Metrics,
		Logger:     c.Logger.With("component", "conversation"),
		Policy:     policy,
	})
}

// Migrate applies any pending schema migrations to the configured database.
func (c *Container) Migrate(ctx context.Context) ([]string, error) {
	return RunMigrations(ctx, c.databaseConfig(), c.Logger)
}

// Close cleans up all resources.
func (c *Container) Close() {
	if c.Scheduler != nil && c.Scheduler.IsRunning() {
		c.Scheduler.Stop()
	}

	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", "error", err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", "error", err)
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", "error", err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}
}

// RunMigrations applies the embedded schema for the configured driver.
func RunMigrations(ctx context.Context, cfg database.Config, logger *slog.Logger) ([]string, error) {
	db, driver, err := migrations.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", "driver", driver, "count", len(applied))
	}
	return applied, nil
}
