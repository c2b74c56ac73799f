package perf

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/licenseops/licenseops/internal/jobs"
	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/jobs"
)

func slowCatalog(delay time.Duration, inflight, peak *int64, failing string) *reports.Catalog {
	var descs []reports.Descriptor
	for _, key := range []string{"licenses", "devices", "assignments", "compliance", "alerts"} {
		descs = append(descs, reports.Descriptor{
			Key:   key,
			Title: key,
			Fetch: func(ctx context.Context, _ reports.FilterValues) ([]reports.Record, error) {
				now := atomic.AddInt64(inflight, 1)
				defer atomic.AddInt64(inflight, -1)
				for {
					old := atomic.LoadInt64(peak)
					if now <= old || atomic.CompareAndSwapInt64(peak, old, now) {
						break
					}
				}
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				if key == failing {
					return nil, errors.New("backend down")
				}
				return []reports.Record{}, nil
			},
		})
	}
	return reports.NewCatalogFrom(descs...)
}

func TestReportsWarmupRespectsConcurrencyLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	var inflight, peak int64
	job := jobs.NewReportsWarmupJob(slowCatalog(20*time.Millisecond, &inflight, &peak, "alerts"), nil, metrics)
	job.Concurrency = 2

	task, err := jobs.NewReportsWarmupTask()
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := job.Handle(context.Background(), task); err == nil {
			t.Fatal("expected the alerts failure to surface")
		}
	}

	if got := atomic.LoadInt64(&peak); got > 2 || got < 1 {
		t.Fatalf("peak concurrent fetches = %d, want 1..2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	ok := metricValue(t, families, "licenseops_report_warmup_total", map[string]string{"report": "devices", "outcome": "ok"})
	if ok != 5 {
		t.Fatalf("devices warmed %v times, want 5", ok)
	}
	failed := metricValue(t, families, "licenseops_report_warmup_total", map[string]string{"report": "alerts", "outcome": "error"})
	if failed != 5 {
		t.Fatalf("alerts failures %v, want 5", failed)
	}
	runs := metricValue(t, families, "licenseops_jobs_failures_total", map[string]string{"job": jobs.TaskReportsWarmup})
	if runs != 5 {
		t.Fatalf("job failures %v, want 5", runs)
	}

	mean := histogramMean(t, families, "licenseops_job_duration_seconds", map[string]string{"job": jobs.TaskReportsWarmup})
	if mean > 2.0 {
		t.Fatalf("warmup duration above budget: %f", mean)
	}
}

func BenchmarkReportsWarmup(b *testing.B) {
	var inflight, peak int64
	job := jobs.NewReportsWarmupJob(slowCatalog(0, &inflight, &peak, ""), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task := asynq.NewTask(jobs.TaskReportsWarmup, nil)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if err := job.Handle(context.Background(), task); err != nil {
			b.Fatal(err)
		}
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) && fam.GetType() == dto.MetricType_COUNTER {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		want, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != want {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
