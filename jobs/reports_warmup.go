package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/licenseops/licenseops/internal/jobs"
	"github.com/licenseops/licenseops/internal/reports"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	warmupOutcomeOK    = "ok"
	warmupOutcomeError = "error"
)

// ReportsWarmupJob fetches every report once without filters so the first user
// request of each type is served from cache.
type ReportsWarmupJob struct {
	Catalog     *reports.Catalog
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	Timeout     time.Duration
	clock       func() time.Time
}

// NewReportsWarmupJob wires dependencies for the warmup handler.
func NewReportsWarmupJob(catalog *reports.Catalog, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportsWarmupJob {
	return &ReportsWarmupJob{
		Catalog:     catalog,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: 2,
		Timeout:     20 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes report warmup tasks.
func (j *ReportsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Catalog == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload ReportsWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("reports warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	descs, err := j.selectReports(payload.Reports)
	if err != nil {
		resultErr = fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		return resultErr
	}

	logger := j.logger()
	start := j.now()
	logger.Info("starting reports warmup", slog.Int("reports", len(descs)))

	failures := make([]error, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency())
	for i, d := range descs {
		g.Go(func() error {
			if err := j.warm(gctx, d); err != nil {
				failures[i] = fmt.Errorf("%s: %w", d.Key, err)
				j.metrics().AddWarmed(d.Key, warmupOutcomeError, 1)
				logger.Warn("warm report", slog.String("report", d.Key), slog.Any("error", err))
				return nil
			}
			j.metrics().AddWarmed(d.Key, warmupOutcomeOK, 1)
			return nil
		})
	}
	_ = g.Wait()

	resultErr = errors.Join(failures...)
	logger.Info("completed reports warmup",
		slog.Int("reports", len(descs)),
		slog.Bool("failed", resultErr != nil),
		slog.Duration("duration", j.now().Sub(start)))
	return resultErr
}

func (j *ReportsWarmupJob) warm(ctx context.Context, d reports.Descriptor) error {
	if d.Fetch == nil {
		return nil
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := d.Fetch(warmCtx, reports.FilterValues{})
	return err
}

func (j *ReportsWarmupJob) selectReports(keys []string) ([]reports.Descriptor, error) {
	if len(keys) == 0 {
		return j.Catalog.Descriptors(), nil
	}
	out := make([]reports.Descriptor, 0, len(keys))
	for _, key := range keys {
		d, err := j.Catalog.Lookup(key)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (j *ReportsWarmupJob) concurrency() int {
	if j.Concurrency > 0 {
		return j.Concurrency
	}
	return 1
}

func (j *ReportsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *ReportsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ReportsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// HandleReportsWarmupForTest exposes the handler with a fixed clock.
func HandleReportsWarmupForTest(ctx context.Context, job *ReportsWarmupJob, now time.Time, t *asynq.Task) error {
	if job == nil {
		return errors.New("reports warmup: nil job")
	}
	job.clock = func() time.Time { return now }
	return job.Handle(ctx, t)
}
