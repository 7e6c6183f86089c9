package backend

import (
	"context"
	"fmt"

	"insights/internal/amqp"
	"insights/internal/datasets"
	"insights/internal/datasets/memory"
	applog "insights/internal/log"
	"insights/internal/services"
	"insights/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store datasets.Store
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		store = repo
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		store = memory.New()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	svc := services.NewDatasetService(store, f.publisher(config), f.logger)
	return &BackendResult{
		Service: svc,
		Cleanup: svc.Close,
	}, nil
}

// publisher returns nil when events are disabled or unusable. A nil
// interface, not a nil *amqp.Client, so the service can test for it.
func (f *DefaultFactory) publisher(config Config) services.Publisher {
	if config.AMQPURL == "" {
		return nil
	}
	if config.Type != SQLiteBackend {
		f.logger.Warn("AMQP_URL ignored: the snapshot worker needs the sqlite backend to read datasets")
		return nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without dataset events", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
