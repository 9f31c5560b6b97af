package app

import (
	"context"
	"time"

	"queue2blob/internal/metrics"
	"queue2blob/internal/transfer"

	"go.uber.org/zap"
)

// CycleRunner runs one poll cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) transfer.CycleResult
}

// Driver repeats poll cycles until its context is cancelled
type Driver struct {
	runner  CycleRunner
	wait    time.Duration
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewDriver creates a driver that sleeps wait between cycles
func NewDriver(runner CycleRunner, wait time.Duration, metricsCollector *metrics.Collector, logger *zap.Logger) *Driver {
	return &Driver{
		runner:  runner,
		wait:    wait,
		metrics: metricsCollector,
		logger:  logger,
	}
}

// Run loops forever. Failed cycles are logged and do not stop the loop;
// the only return is ctx.Err() once ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	timer := time.NewTimer(d.wait)
	timer.Stop()
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res := d.runner.RunCycle(ctx)
		d.metrics.ObserveCycle(res.OK())

		fields := []zap.Field{
			zap.String("cycle_id", res.ID),
			zap.Int("batches", res.Batches),
			zap.Int("received", res.Received),
			zap.Int("transferred", res.Transferred),
			zap.Int("discarded", res.Discarded),
			zap.Int("skipped", res.Skipped),
			zap.Int("retained", res.Retained),
		}
		if res.OK() {
			d.logger.Info("cycle completed", fields...)
		} else {
			d.logger.Error("cycle finished with errors", append(fields, zap.Error(res.Err))...)
		}

		d.logger.Debug("Waiting for next cycle", zap.Duration("wait", d.wait))
		timer.Reset(d.wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}
