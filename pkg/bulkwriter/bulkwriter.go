// Package bulkwriter buffers bulk index-store actions, flushing on size or
// distinct-index thresholds and retrying transient bulk-index errors
// (§4.A). It is grounded on the teacher's retryable transfer layer
// (pkg/transfer) for the retry shape and on migrates/batch.py for the
// exact threshold and retry semantics.
package bulkwriter

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/migrates/pkg/store"
)

// DefaultSize is the default action-count flush threshold.
const DefaultSize = 1000

// DefaultIndexesSize is the default distinct-index flush threshold. It
// exists because server-side queues are partitioned per index; bounding
// distinct indexes per flush limits queue pressure on any one of them.
const DefaultIndexesSize = 5

// DefaultMaxAttempts is the number of bulk attempts (1 initial + retries)
// before a flush gives up.
const DefaultMaxAttempts = 3

// DefaultRetryDelay is how long to sleep between bulk retry attempts.
const DefaultRetryDelay = 5 * time.Second

// DefaultSettleDelay is how long to yield after a successful flush to let
// the store catch up before the next flush cycle.
const DefaultSettleDelay = 1 * time.Second

// ErrBulkFailed is returned when a flush exhausts its retry attempts.
var ErrBulkFailed = errors.New("bulkwriter: bulk request failed after retries")

// Config configures flush thresholds and retry behavior. Zero values fall
// back to the Default* constants.
type Config struct {
	Size         int
	IndexesSize  int
	MaxAttempts  int
	RetryDelay   time.Duration
	SettleDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.IndexesSize <= 0 {
		c.IndexesSize = DefaultIndexesSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// Writer buffers BulkActions and flushes them to the index store.
//
// Not safe for concurrent use by multiple goroutines: a migration run
// drives one Writer sequentially per §5 (single-process, sequential
// orchestration).
type Writer struct {
	store  store.Store
	logger *zap.Logger
	cfg    Config

	actions []store.BulkAction
	indexes map[string]struct{}
}

// New creates a Writer bound to s, flushing with cfg's thresholds.
func New(s store.Store, logger *zap.Logger, cfg Config) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:   s,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		actions: make([]store.BulkAction, 0, cfg.withDefaults().Size),
		indexes: make(map[string]struct{}),
	}
}

// Add buffers one action, flushing immediately if either threshold is met.
func (w *Writer) Add(ctx context.Context, action store.BulkAction) error {
	w.actions = append(w.actions, action)
	w.indexes[action.Index] = struct{}{}
	if len(w.actions) >= w.cfg.Size || len(w.indexes) >= w.cfg.IndexesSize {
		return w.Flush(ctx)
	}
	return nil
}

// AddMany buffers each action in order, flushing as thresholds are met.
func (w *Writer) AddMany(ctx context.Context, actions []store.BulkAction) error {
	for _, a := range actions {
		if err := w.Add(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of buffered, unflushed actions.
func (w *Writer) Pending() int { return len(w.actions) }

// Flush is empty-safe: flushing with no buffered actions is a no-op that
// still clears state and does not sleep.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.actions) == 0 {
		return nil
	}

	attempts := w.cfg.MaxAttempts
	var lastResult store.BulkResult
	var attempt int
	for attempt = 1; attempt <= attempts; attempt++ {
		result, err := w.store.Bulk(ctx, w.actions)
		if err != nil {
			// Transient network/connectivity failures are the store
			// client's concern, not retried by this layer.
			return err
		}
		if !result.HasErrors {
			if attempt > 1 {
				w.logger.Info("bulk action succeeded after retry",
					zap.Int("attempt", attempt))
			}
			w.actions = w.actions[:0]
			w.indexes = make(map[string]struct{})
			sleep(ctx, w.cfg.SettleDelay)
			return nil
		}
		lastResult = result
		if attempt < attempts {
			w.logger.Warn("bulk action failed; retrying",
				zap.Int("attempt", attempt),
				zap.Int("errors", len(result.Errors)))
			sleep(ctx, w.cfg.RetryDelay)
		}
	}

	w.logger.Error("bulk action exhausted retries",
		zap.Int("attempts", attempts),
		zap.Int("errors", len(lastResult.Errors)))
	return &BulkError{Attempts: attempts, Result: lastResult}
}

// BulkError wraps ErrBulkFailed with the final failed bulk result.
type BulkError struct {
	Attempts int
	Result   store.BulkResult
}

func (e *BulkError) Error() string { return ErrBulkFailed.Error() }
func (e *BulkError) Unwrap() error { return ErrBulkFailed }

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Scope wraps a Writer so that Close(nil) guarantees a final flush, while a
// non-nil err abandons the batch unflushed — the caller's error means the
// batch is poisoned and the orchestrator will drive recovery instead
// (§9 Open Question (ii), preserved as-is from migrates/batch.py's
// __enter__/__exit__ semantics).
type Scope struct {
	w   *Writer
	ctx context.Context
}

// NewScope returns a Scope over w bound to ctx.
func NewScope(ctx context.Context, w *Writer) *Scope {
	return &Scope{w: w, ctx: ctx}
}

// Close flushes the underlying writer only when err is nil.
func (s *Scope) Close(err error) error {
	if err != nil {
		return nil
	}
	return s.w.Flush(s.ctx)
}
