package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queue2blob/internal/event"
	"queue2blob/internal/metrics"
	"queue2blob/internal/queue"
	"queue2blob/internal/storage"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine copies the objects referenced by queue messages into the destination container
type Engine struct {
	config  Config
	queue   queue.Queue
	store   storage.BlobStore
	poller  *CopyPoller
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewEngine creates a new transfer engine
func NewEngine(
	config Config,
	q queue.Queue,
	store storage.BlobStore,
	poller *CopyPoller,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		config:  config,
		queue:   q,
		store:   store,
		poller:  poller,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// RunCycle receives batches until one yields nothing to delete. Messages are handled
// in receive order; a malformed body or an empty Records list aborts the cycle before
// the current batch is acknowledged.
func (e *Engine) RunCycle(ctx context.Context) CycleResult {
	res := CycleResult{ID: uuid.NewString()}
	logger := e.logger.With(zap.String("cycle_id", res.ID))

	var errs []error
	for {
		messages, err := e.queue.Receive(ctx, e.config.MaxMessages)
		if err != nil {
			logger.Error("Could not receive messages", zap.Error(err))
			errs = append(errs, err)
			break
		}
		res.Batches++
		res.Received += len(messages)

		toDelete, failures, err := e.processBatch(ctx, logger, messages, &res)
		errs = append(errs, failures...)
		if err != nil {
			errs = append(errs, err)
			break
		}

		if len(toDelete) == 0 {
			break
		}

		if err := e.queue.DeleteBatch(ctx, toDelete); err != nil {
			logger.Error("Could not delete messages from queue", zap.Int("count", len(toDelete)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%w: %w", ErrDeleteFailed, err))
			break
		}
		logger.Debug("Deleted messages", zap.Int("count", len(toDelete)))

		if ctx.Err() != nil {
			break
		}
	}

	res.Err = errors.Join(errs...)
	return res
}

// processBatch returns the entries to delete and the copy failures, which do not stop
// the batch. A non-nil error means the cycle must abort.
func (e *Engine) processBatch(ctx context.Context, logger *zap.Logger, messages []queue.Message, res *CycleResult) ([]queue.DeleteEntry, []error, error) {
	var (
		toDelete []queue.DeleteEntry
		failures []error
	)

	for _, msg := range messages {
		msgLogger := logger.With(zap.String("message_id", msg.ID))
		c := event.Classify(msg.Body)

		switch c.Kind {
		case event.KindMalformed:
			e.metrics.IncMessage(metrics.ResultMalformed)
			msgLogger.Error("Could not load message body", zap.Error(c.Err))
			return nil, failures, fmt.Errorf("%w: message %s: %w", ErrMalformedMessage, msg.ID, c.Err)

		case event.KindIndexMismatch:
			e.metrics.IncMessage(metrics.ResultMalformed)
			msgLogger.Error("Message has an empty Records list")
			return nil, failures, fmt.Errorf("%w: message %s", ErrIndexMismatch, msg.ID)

		case event.KindEmpty:
			e.metrics.IncMessage(metrics.ResultSkipped)
			res.Skipped++
			msgLogger.Debug("Empty message body, skipping")

		case event.KindNonTransferable:
			e.metrics.IncMessage(metrics.ResultDiscarded)
			res.Discarded++
			msgLogger.Info("Found non object creation message, removing", zap.NamedError("reason", c.Err))
			toDelete = append(toDelete, msg.Entry())

		case event.KindTransferable:
			if err := e.transfer(ctx, msgLogger, c.Event); err != nil {
				e.metrics.IncMessage(metrics.ResultRetained)
				res.Retained++
				failures = append(failures, err)
				continue
			}
			e.metrics.IncMessage(metrics.ResultTransferred)
			res.Transferred++
			toDelete = append(toDelete, msg.Entry())
		}
	}

	return toDelete, failures, nil
}

func (e *Engine) transfer(ctx context.Context, logger *zap.Logger, evt event.ObjectCreated) error {
	req := NewRequest(e.config.S3Region, evt)
	logger = logger.With(zap.String("object", req.Name))

	logger.Debug("Object creation event",
		zap.String("region", req.Region),
		zap.String("bucket", req.Bucket),
	)
	logger.Info("Uploading object", zap.String("source_url", req.SourceURL))

	startTime := time.Now()
	if _, err := e.store.StartCopy(ctx, e.config.Container, req.Name, req.SourceURL); err != nil {
		logger.Error("Could not upload to container", zap.String("container", e.config.Container), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrCopyFailed, req.Name, err)
	}

	outcome, state, err := e.poller.Await(ctx, e.config.Container, req.Name)
	if outcome != OutcomeSuccess {
		logger.Error("Copy did not complete",
			zap.Stringer("outcome", outcome),
			zap.String("progress", state.Progress),
			zap.Error(err),
		)
		return err
	}

	elapsed := time.Since(startTime)
	e.metrics.ObserveCopy(state.Size, elapsed)
	logger.Info("Upload complete",
		zap.String("size", humanize.Bytes(uint64(state.Size))),
		zap.Duration("duration", elapsed),
	)
	return nil
}
