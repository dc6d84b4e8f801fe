package workers

import (
	"context"
	"time"

	"taskpilot/internal/domain/observability"
	"taskpilot/internal/metrics"
)

// RetentionWorker removes decision logs older than the retention
// window. Tool invocation logs are removed with their decisions.
type RetentionWorker struct {
	*BaseWorker
	repo          observability.Repository
	retentionDays int
}

// NewRetentionWorker creates the retention sweep worker.
func NewRetentionWorker(repo observability.Repository, retentionDays int, interval time.Duration, enabled bool) *RetentionWorker {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		BaseWorker:    NewBaseWorker("retention_sweep", interval, enabled),
		repo:          repo,
		retentionDays: retentionDays,
	}
}

// Run deletes everything older than the cutoff.
func (w *RetentionWorker) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.UTC().AddDate(0, 0, -w.retentionDays)

	deleted, err := w.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}

	if deleted > 0 {
		metrics.RetentionDeleted.Add(float64(deleted))
		w.Log().Infow("Retention sweep removed logs",
			"deleted", deleted,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	}

	w.RecordRun(time.Since(start))
	return nil
}
