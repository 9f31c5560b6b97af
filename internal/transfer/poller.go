package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"queue2blob/internal/storage"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollAttempts = 50
)

var errCopyPending = errors.New("copy pending")

// CopyPoller waits for a started copy to reach a terminal state.
// The status is read once immediately and then up to attempts more times, interval apart.
type CopyPoller struct {
	store    storage.BlobStore
	interval time.Duration
	attempts int
	logger   *zap.Logger

	// NewTimer overrides the wait between status reads; nil uses a real timer
	NewTimer func() backoff.Timer
}

// NewCopyPoller creates a new poller
func NewCopyPoller(store storage.BlobStore, interval time.Duration, attempts int, logger *zap.Logger) *CopyPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	return &CopyPoller{
		store:    store,
		interval: interval,
		attempts: attempts,
		logger:   logger,
	}
}

// Await polls the copy status of container/name. Failed and aborted copies stop the
// wait at once; status read errors are retried within the same budget.
func (p *CopyPoller) Await(ctx context.Context, container, name string) (Outcome, storage.CopyState, error) {
	var (
		state storage.CopyState
		polls int
	)

	check := func() error {
		polls++
		s, err := p.store.CopyStatus(ctx, container, name)
		if err != nil {
			return err
		}
		state = s

		switch s.Status {
		case storage.CopySuccess:
			return nil
		case storage.CopyFailed, storage.CopyAborted:
			return backoff.Permanent(fmt.Errorf("%w: %s is %s: %s", ErrCopyFailed, name, s.Status, s.Description))
		default:
			return errCopyPending
		}
	}

	notify := func(err error, next time.Duration) {
		p.logger.Debug("Copying to blob storage",
			zap.String("name", name),
			zap.Int("poll", polls),
			zap.String("progress", state.Progress),
			zap.Duration("next", next),
			zap.NamedError("reason", err),
		)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), uint64(p.attempts)),
		ctx,
	)

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	err := backoff.RetryNotifyWithTimer(check, b, notify, timer)
	switch {
	case err == nil:
		return OutcomeSuccess, state, nil
	case errors.Is(err, ErrCopyFailed):
		return OutcomeFailed, state, err
	case ctx.Err() != nil:
		return OutcomeFailed, state, fmt.Errorf("%w: %s: %w", ErrCopyFailed, name, ctx.Err())
	default:
		return OutcomeTimedOut, state, fmt.Errorf("%w: %s after %d status checks: %w", ErrCopyTimeout, name, polls, err)
	}
}
