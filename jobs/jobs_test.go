package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/licenseops/licenseops/internal/jobs"
	"github.com/licenseops/licenseops/internal/reports"
)

type countingFetch struct {
	mu      sync.Mutex
	calls   map[string]int
	filters map[string]reports.FilterValues
	fail    map[string]error
}

func (c *countingFetch) descriptor(key string) reports.Descriptor {
	return reports.Descriptor{
		Key:   key,
		Title: key,
		Fetch: func(ctx context.Context, values reports.FilterValues) ([]reports.Record, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.calls == nil {
				c.calls = map[string]int{}
				c.filters = map[string]reports.FilterValues{}
			}
			c.calls[key]++
			c.filters[key] = values
			if err := c.fail[key]; err != nil {
				return nil, err
			}
			return []reports.Record{{"k": key}}, nil
		},
	}
}

func TestReportsWarmupFetchesEveryReport(t *testing.T) {
	fetch := &countingFetch{}
	catalog := reports.NewCatalogFrom(fetch.descriptor("licenses"), fetch.descriptor("devices"), fetch.descriptor("alerts"))
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := NewReportsWarmupJob(catalog, nil, metrics)

	task, err := NewReportsWarmupTask()
	require.NoError(t, err)
	require.NoError(t, HandleReportsWarmupForTest(context.Background(), job, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), task))

	assert.Equal(t, map[string]int{"licenses": 1, "devices": 1, "alerts": 1}, fetch.calls)
	assert.Empty(t, fetch.filters["devices"])
}

func TestReportsWarmupSubsetAndFailures(t *testing.T) {
	fetch := &countingFetch{fail: map[string]error{"alerts": errors.New("backend down")}}
	catalog := reports.NewCatalogFrom(fetch.descriptor("licenses"), fetch.descriptor("devices"), fetch.descriptor("alerts"))
	job := NewReportsWarmupJob(catalog, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewReportsWarmupTask("devices", " alerts ", "")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alerts: backend down")
	assert.Equal(t, 0, fetch.calls["licenses"])
	assert.Equal(t, 1, fetch.calls["devices"])
}

func TestReportsWarmupUnknownReportSkipsRetry(t *testing.T) {
	job := NewReportsWarmupJob(reports.NewCatalogFrom(), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewReportsWarmupTask("nope")
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, reports.ErrUnknownReport)

	bad := asynq.NewTask(TaskReportsWarmup, []byte("{"))
	assert.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
}

func TestReportsWarmupRequiresCatalog(t *testing.T) {
	var job *ReportsWarmupJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskReportsWarmup, nil)))
}

type stubBumper struct {
	version atomic.Int64
	err     error
}

func (s *stubBumper) Bump(ctx context.Context) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.version.Add(1), nil
}

func TestCacheBumpJob(t *testing.T) {
	bumper := &stubBumper{}
	job := NewCacheBumpJob(bumper, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewCacheBumpTask("backend import")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, int64(1), bumper.version.Load())

	var payload CacheBumpPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "backend import", payload.Reason)

	failing := NewCacheBumpJob(&stubBumper{err: errors.New("redis gone")}, nil, nil)
	assert.Error(t, failing.Handle(context.Background(), task))
}

func TestWarmupMetricsRecorded(t *testing.T) {
	fetch := &countingFetch{fail: map[string]error{"alerts": errors.New("boom")}}
	catalog := reports.NewCatalogFrom(fetch.descriptor("devices"), fetch.descriptor("alerts"))
	reg := prometheus.NewRegistry()
	job := NewReportsWarmupJob(catalog, nil, jobmetrics.NewMetrics(reg))
	task, err := NewReportsWarmupTask()
	require.NoError(t, err)
	_ = job.Handle(context.Background(), task)

	count, err := testutil.GatherAndCount(reg, "licenseops_report_warmup_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "licenseops_jobs_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 4}}, status: http.StatusOK, pending: 4},
		{name: "redis down", inspector: fakeInspector{err: errors.New("dial tcp")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rec.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, QueueDefault, body.Queue)
			assert.Equal(t, tc.pending, body.Pending)
		})
	}
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	assert.Error(t, err)
}
