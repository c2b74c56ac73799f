package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/licenseops/licenseops/internal/jobs"
)

// Bumper invalidates cached report results.
type Bumper interface {
	Bump(ctx context.Context) (int64, error)
}

// CacheBumpJob moves the report cache to a new version.
type CacheBumpJob struct {
	Cache   Bumper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheBumpJob constructs the job handler.
func NewCacheBumpJob(cache Bumper, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheBumpJob {
	return &CacheBumpJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the cache bump.
func (j *CacheBumpJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("cache bump: handler not configured")
	}
	var payload CacheBumpPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("cache bump: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskReportsCacheBump)

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskReportsCacheBump))

	version, err := j.Cache.Bump(ctx)
	if err != nil {
		logger.Error("bump report cache", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("report cache bumped", slog.Int64("version", version), slog.String("reason", payload.Reason))
	return tracker.End(nil)
}
