// Package app assembles the reading service from configuration. Both the
// long-running daemon and the Lambda handler build on it.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/omutucat/reading-counter-dc/internal/api"
	"github.com/omutucat/reading-counter-dc/internal/cache"
	"github.com/omutucat/reading-counter-dc/internal/config"
	"github.com/omutucat/reading-counter-dc/internal/db"
	"github.com/omutucat/reading-counter-dc/internal/events"
	"github.com/omutucat/reading-counter-dc/internal/gate"
	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"github.com/omutucat/reading-counter-dc/internal/query"
	"github.com/omutucat/reading-counter-dc/internal/repo"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
	"go.uber.org/zap"
)

// Publisher is an api.EventPublisher that can be shut down.
type Publisher interface {
	api.EventPublisher
	Close() error
}

// App holds the wired components and what must be closed on shutdown.
type App struct {
	Config    *config.Config
	Store     rowstore.Store
	Metrics   *metrics.Collector
	Books     *repo.BookRepository
	Service   *api.Service
	Health    *api.HealthChecker
	Router    *chi.Mux
	Publisher Publisher

	log       *zap.Logger
	dynamo    *dynamodb.Client
	consumers []*events.Consumer
	closers   []func() error
}

// New builds every component selected by cfg. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Metrics: metrics.New("reading"),
		log:     log,
	}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}
	writes := gate.New(locker, a.Metrics, log)

	bookCache, err := a.openCache()
	if err != nil {
		return nil, err
	}

	if err := a.openPublisher(); err != nil {
		return nil, err
	}

	opts := repo.Options{
		LockTimeout:       cfg.LockTimeout,
		CacheTTL:          cfg.CacheTTL,
		InvalidateOnWrite: cfg.CacheInvalidateOnWrite,
	}
	a.Books = repo.NewBookRepository(a.Store, writes, bookCache, opts, log)
	progress := repo.NewProgressRepository(a.Store, writes, opts, log)
	engine := query.NewEngine(a.Books, progress, log, query.WithFinishedStatus(cfg.FinishedStatus))

	a.Service = api.NewService(a.Books, progress, engine, a.Publisher, log)
	a.Health = api.NewHealthChecker(a.Store, a.Publisher)
	a.Router = api.NewRouter(
		api.NewDispatcher(a.Service, a.Metrics, log),
		a.Health,
		a.Metrics,
		api.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		log,
	)
	built = true
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config
	var store rowstore.Store

	switch cfg.StoreBackend {
	case config.StoreMemory:
		a.log.Warn("Using in-memory row store, data is lost on exit")
		store = rowstore.NewMemory(repo.SheetNames()...)

	case config.StoreSQLite, config.StorePostgres:
		var (
			database *db.DB
			err      error
		)
		if cfg.StoreBackend == config.StoreSQLite {
			a.log.Info("Opening SQLite database", zap.String("path", cfg.SQLitePath))
			database, err = db.ConnectSQLite(cfg.SQLitePath)
		} else {
			a.log.Info("Connecting to database...")
			database, err = db.Connect(cfg.PGDSN)
		}
		if err != nil {
			return err
		}
		a.closers = append(a.closers, database.Close)

		a.log.Info("Running database migrations...")
		if err := db.RunMigrations(database); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		created, err := db.ProvisionSheets(database, repo.Sheets())
		if err != nil {
			return err
		}
		if len(created) > 0 {
			a.log.Info("Provisioned sheets", zap.Strings("sheets", created))
		}
		store = rowstore.NewSQL(database, a.log)

	case config.StoreDynamoDB:
		client, err := a.dynamoClient(ctx)
		if err != nil {
			return err
		}
		store = rowstore.NewDynamo(client, cfg.DynamoDBTable, repo.SheetNames(), a.log)

	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.BreakerEnabled && cfg.StoreBackend != config.StoreMemory {
		store = rowstore.WithBreaker(store, rowstore.DefaultBreakerSettings("rowstore"), a.log)
	}
	a.Store = store
	return nil
}

func (a *App) openLocker(ctx context.Context) (gate.Locker, error) {
	cfg := a.Config

	switch cfg.LockBackend {
	case config.LockLocal:
		return gate.NewLocal(), nil

	case config.LockPostgres:
		locker, err := gate.OpenPostgres(cfg.PGDSN, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, locker.Close)
		return locker, nil

	case config.LockDynamoDB:
		client, err := a.dynamoClient(ctx)
		if err != nil {
			return nil, err
		}
		return gate.NewDynamoLease(client, cfg.LockTable, cfg.LockLease, a.log), nil

	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

func (a *App) openCache() (cache.Cache, error) {
	var c cache.Cache

	switch a.Config.CacheBackend {
	case config.CacheMemory:
		c = cache.NewMemory()
	case config.CacheBadger:
		b, err := cache.OpenBadger(a.Config.CachePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		c = b
	default:
		return nil, fmt.Errorf("unknown cache backend %q", a.Config.CacheBackend)
	}

	return cache.WithMetrics(c, a.Metrics, a.log), nil
}

func (a *App) openPublisher() error {
	if a.Config.RabbitMQURL == "" {
		a.log.Info("RABBITMQ_URL not set, domain events disabled")
		a.Publisher = events.Nop{}
		return nil
	}

	a.log.Info("Connecting to RabbitMQ")
	publisher, err := events.NewPublisher(a.Config.RabbitMQURL, a.Metrics, a.log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, publisher.Close)
	a.Publisher = publisher
	return nil
}

// dynamoClient loads the AWS config once and shares the client between the
// row store and the lease lock.
func (a *App) dynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	if a.dynamo != nil {
		return a.dynamo, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.Config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	a.dynamo = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.RetryMaxAttempts = 3
		o.RetryMode = aws.RetryModeStandard
	})
	return a.dynamo, nil
}

// StartConsumer listens for registrations from other instances and drops the
// local book cache. It does nothing unless invalidate-on-write is enabled and
// a broker is configured.
func (a *App) StartConsumer(ctx context.Context) error {
	if !a.Config.CacheInvalidateOnWrite || a.Config.RabbitMQURL == "" {
		return nil
	}

	consumer, err := events.NewConsumer(a.Config.RabbitMQURL, a.Config.ServiceName, a.Books, a.log)
	if err != nil {
		return err
	}
	a.consumers = append(a.consumers, consumer)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			a.log.Error("Event consumer stopped", zap.Error(err))
		}
	}()
	return nil
}

// Close waits for pending event publishes, then releases everything New opened.
func (a *App) Close() {
	if a.Service != nil {
		a.Service.Wait()
	}
	for _, c := range a.consumers {
		c.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil
	a.consumers = nil
}
