package jobs

import (
	"encoding/json"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportsWarmup primes the report cache with unfiltered result sets.
	TaskReportsWarmup = "reports:warmup"
	// TaskReportsCacheBump invalidates every cached report result.
	TaskReportsCacheBump = "reports:cache-bump"
)

// ReportsWarmupPayload limits a warmup run to the listed report keys. Empty means all.
type ReportsWarmupPayload struct {
	Reports []string `json:"reports,omitempty"`
}

// CacheBumpPayload records who asked for the invalidation.
type CacheBumpPayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewReportsWarmupTask creates an Asynq task warming the given reports.
func NewReportsWarmupTask(reports ...string) (*asynq.Task, error) {
	keys := make([]string, 0, len(reports))
	for _, r := range reports {
		if r = strings.TrimSpace(r); r != "" {
			keys = append(keys, r)
		}
	}
	body, err := json.Marshal(ReportsWarmupPayload{Reports: keys})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, body, asynq.Queue(QueueDefault)), nil
}

// NewCacheBumpTask creates an Asynq task bumping the report cache version.
func NewCacheBumpTask(reason string) (*asynq.Task, error) {
	body, err := json.Marshal(CacheBumpPayload{Reason: strings.TrimSpace(reason)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsCacheBump, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
