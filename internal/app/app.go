package app

import (
	"context"
	"fmt"

	"queue2blob/internal/config"
	"queue2blob/internal/metrics"
	"queue2blob/internal/queue"
	"queue2blob/internal/storage"
	"queue2blob/internal/transfer"

	"go.uber.org/zap"
)

// Bridge wires the queue, the destination store and the transfer engine together
type Bridge struct {
	cfg     *config.Config
	logger  *zap.Logger
	queue   queue.Queue
	store   storage.BlobStore
	metrics *metrics.Collector
	engine  *transfer.Engine
	driver  *Driver
}

// New creates a new bridge instance. The destination container is checked, and
// created if missing, before New returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bridge, error) {
	// Create queue client
	q, err := queue.NewSQSQueue(ctx, queue.Config{
		Name:    cfg.Queue,
		Region:  cfg.Region,
		Profile: cfg.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create queue client: %w", err)
	}

	// Create destination client
	store, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination client: %w", err)
	}

	return build(ctx, cfg, q, store, logger)
}

func newStore(cfg *config.Config) (storage.BlobStore, error) {
	storeCfg := storage.Config{
		Endpoint:    cfg.BlobEndpoint,
		Account:     cfg.StorageAccount,
		Key:         cfg.StorageKey,
		UseIdentity: cfg.UseAzureIdentity,
	}

	switch cfg.DestinationType {
	case config.DestinationMinIO:
		return storage.NewMinIOStore(storeCfg)
	default:
		return storage.NewAzureStore(storeCfg)
	}
}

func build(ctx context.Context, cfg *config.Config, q queue.Queue, store storage.BlobStore, logger *zap.Logger) (*Bridge, error) {
	if err := store.EnsureContainer(ctx, cfg.Container); err != nil {
		return nil, fmt.Errorf("failed to prepare container %s: %w", cfg.Container, err)
	}

	metricsCollector := metrics.New()

	poller := transfer.NewCopyPoller(store, cfg.CopyPollInterval, cfg.CopyPollAttempts, logger)
	engine := transfer.NewEngine(transfer.Config{
		Container:   cfg.Container,
		S3Region:    cfg.S3Region,
		MaxMessages: cfg.MaxMessages,
	}, q, store, poller, metricsCollector, logger)

	return &Bridge{
		cfg:     cfg,
		logger:  logger,
		queue:   q,
		store:   store,
		metrics: metricsCollector,
		engine:  engine,
		driver:  NewDriver(engine, cfg.WaitTime, metricsCollector, logger),
	}, nil
}

// Run polls the queue until ctx is cancelled
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("Starting queue2blob",
		zap.String("queue", b.cfg.Queue),
		zap.String("region", b.cfg.Region),
		zap.String("destination", b.cfg.DestinationType),
		zap.String("container", b.cfg.Container),
		zap.Duration("wait", b.cfg.WaitTime),
	)

	if b.cfg.MetricsAddr != "" {
		go func() {
			if err := b.metrics.StartServer(b.cfg.MetricsAddr); err != nil {
				b.logger.Error("Failed to start metrics server", zap.Error(err))
			}
		}()
	}

	err := b.driver.Run(ctx)
	b.logger.Info("Stopped polling", zap.Error(err))
	return err
}
