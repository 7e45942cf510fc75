package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/papercomputeco/mnemo/pkg/ingest/worker"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const (
	defaultReconcileInterval = time.Minute
	defaultReconcileBatch    = 100
)

// PendingLister lists messages that have no memory yet.
type PendingLister interface {
	ListPendingMessages(ctx context.Context, limit int) ([]*storage.Message, error)
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Messages PendingLister
	Queue    Enqueuer

	// Interval between sweeps. Defaults to one minute.
	Interval time.Duration

	// Batch caps the messages re-enqueued per sweep. Defaults to 100.
	Batch int

	Logger *slog.Logger
}

// Reconciler re-enqueues messages whose memory was never recorded, because
// the job was dropped, its retries ran out or the process stopped mid-way.
type Reconciler struct {
	config ReconcilerConfig
	logger *slog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultReconcileInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultReconcileBatch
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Reconciler{config: cfg, logger: cfg.Logger}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			r.logger.Error("reconcile sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep re-enqueues one batch of pending messages and returns how many were
// accepted by the queue.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	pending, err := r.config.Messages.ListPendingMessages(ctx, r.config.Batch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, msg := range pending {
		if r.config.Queue.Enqueue(worker.Job{
			MessageID:         msg.ID,
			UserID:            msg.UserID,
			ProviderMessageID: msg.ProviderMessageID,
			Attempts:          storage.MemoryAttempts(msg.Status),
		}) {
			queued++
		}
	}

	if len(pending) > 0 {
		r.logger.Info("pending messages re-enqueued", "pending", len(pending), "queued", queued)
	}
	return queued, nil
}
