package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetentionStore deletes expired staging data
type RetentionStore interface {
	DeleteExpiredRows(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEmptyBatches(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionResult reports what one sweep removed
type RetentionResult struct {
	Cutoff         time.Time
	RowsDeleted    int64
	BatchesDeleted int64
}

// RetentionJob periodically removes staging rows and batches of finished uploads
type RetentionJob struct {
	store    RetentionStore
	logger   *logrus.Logger
	interval time.Duration
	period   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewRetentionJob creates a job that keeps finished batches for period and sweeps every interval
func NewRetentionJob(store RetentionStore, period, interval time.Duration, logger *logrus.Logger) *RetentionJob {
	return &RetentionJob{
		store:    store,
		logger:   logger,
		interval: interval,
		period:   period,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the retention job
func (j *RetentionJob) Start(ctx context.Context) {
	j.logger.Info("Retention job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.stopCh:
			j.logger.Info("Retention job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Retention job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *RetentionJob) Stop() {
	close(j.stopCh)
}

// RunOnce performs a single sweep. STAGING batches are never touched, and COMMITTED
// rows stay while their listing exists.
func (j *RetentionJob) RunOnce(ctx context.Context) (*RetentionResult, error) {
	cutoff := j.now().Add(-j.period)

	rows, err := j.store.DeleteExpiredRows(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	batches, err := j.store.DeleteEmptyBatches(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	return &RetentionResult{Cutoff: cutoff, RowsDeleted: rows, BatchesDeleted: batches}, nil
}

func (j *RetentionJob) sweep(ctx context.Context) {
	j.logger.Debug("Running retention sweep...")

	result, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.Errorf("Retention sweep failed: %v", err)
		return
	}
	if result.RowsDeleted == 0 && result.BatchesDeleted == 0 {
		j.logger.Debug("Nothing to clean up")
		return
	}
	j.logger.Infof("Retention sweep removed %d rows and %d batches older than %s",
		result.RowsDeleted, result.BatchesDeleted, result.Cutoff.Format(time.RFC3339))
}
