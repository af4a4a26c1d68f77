package backend

import (
	"context"
	"fmt"
	"log/slog"

	"cashflow/internal/amqp"
	"cashflow/internal/services"
	"cashflow/internal/storage"
	"cashflow/internal/store"
	"cashflow/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	result := f.wire(ctx, config, sqliteRepo)
	result.Ready = sqliteRepo.Ping
	cleanup := result.Cleanup
	result.Cleanup = func() error {
		var errs []error
		if err := cleanup(); err != nil {
			errs = append(errs, err)
		}
		if err := sqliteRepo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		if len(errs) > 0 {
			return fmt.Errorf("close sqlite backend: %v", errs)
		}
		return nil
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", result.Feed != nil)
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	result := f.wire(ctx, config, memory.New())
	result.Ready = func(context.Context) error { return nil }

	f.logger.Info("Initialized memory backend", "amqp_enabled", result.Feed != nil)
	return result, nil
}

// wire builds the transaction service over repo with the optional change
// feed. An unreachable broker is logged and the app runs single-instance.
func (f *DefaultFactory) wire(ctx context.Context, config Config, repo store.Repository) *BackendResult {
	var feed *amqp.Client
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.Origin)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change feed", "error", err)
		} else {
			feed = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"origin", config.Origin)
		}
	}

	var publisher store.ChangePublisher
	if feed != nil {
		publisher = feed
	}
	svc := services.NewTransactionService(repo, publisher, config.Origin)

	return &BackendResult{
		Store: svc,
		Feed:  feed,
		Cleanup: func() error {
			var errs []error
			if err := svc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("service: %w", err))
			}
			if feed != nil {
				if err := feed.Close(); err != nil {
					errs = append(errs, fmt.Errorf("amqp: %w", err))
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("close backend: %v", errs)
			}
			return nil
		},
	}
}
