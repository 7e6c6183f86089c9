package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"insights/internal/amqp"
	"insights/internal/core"
	"insights/internal/datasets"
)

// SnapshotStore is what the worker needs from storage: the datasets written
// by the web server and a place to keep category snapshots.
type SnapshotStore interface {
	datasets.Reader
	SaveSnapshots(ctx context.Context, ref datasets.Ref, summary []core.CategorySummary, takenAt time.Time) error
}

// SnapshotWorker records the category breakdown of every loaded dataset so a
// session keeps a spending history across uploads.
type SnapshotWorker struct {
	store SnapshotStore
	now   func() time.Time
}

func NewSnapshotWorker(store SnapshotStore) *SnapshotWorker {
	return &SnapshotWorker{store: store, now: time.Now}
}

// HandleDatasetLoaded processes a single dataset-loaded message from AMQP.
func (w *SnapshotWorker) HandleDatasetLoaded(ctx context.Context, msg *amqp.DatasetLoadedMessage) error {
	slog.InfoContext(ctx, "Processing dataset loaded message",
		"dataset_id", msg.DatasetID,
		"session_id", msg.SessionID)

	ds, err := w.store.Get(ctx, msg.DatasetID)
	if errors.Is(err, datasets.ErrNotFound) {
		// Cleared before we got to it; nothing to record.
		slog.WarnContext(ctx, "Dataset no longer stored, skipping snapshot", "dataset_id", msg.DatasetID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get dataset from storage: %w", err)
	}

	summary := core.Summarize(ds.Transactions)
	if len(summary) == 0 {
		slog.InfoContext(ctx, "Dataset has no expenses, no snapshot written", "dataset_id", ds.ID)
		return nil
	}

	if err := w.store.SaveSnapshots(ctx, ds.Ref(), summary, w.now()); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	slog.InfoContext(ctx, "Category snapshot recorded",
		"dataset_id", ds.ID,
		"categories", len(summary))
	return nil
}
