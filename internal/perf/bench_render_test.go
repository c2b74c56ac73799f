package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/licenseops/licenseops/internal/reports"
	"github.com/licenseops/licenseops/internal/reports/export"
)

func deviceRecords(n int) []reports.Record {
	out := make([]reports.Record, n)
	for i := range out {
		out[i] = reports.Record{
			"deviceName":        fmt.Sprintf("edge-sw-%04d", i),
			"deviceType":        "SWITCH",
			"ipAddress":         fmt.Sprintf("10.0.%d.%d", i/250, i%250),
			"region":            reports.Regions[i%len(reports.Regions)],
			"lifecycle":         "ACTIVE",
			"installedLicenses": i % 7,
		}
	}
	return out
}

func TestRenderLatencyTargets(t *testing.T) {
	d := reports.NewCatalog(nil).MustLookup("devices")
	records := deviceRecords(5000)

	samples := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		start := time.Now()
		doc := reports.BuildDocument(d, records, start)
		_ = export.BuildHTML(doc)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 2*time.Second {
		t.Fatalf("document layout regression: p95=%s", p95)
	}
}

func BenchmarkRenderDevices(b *testing.B) {
	d := reports.NewCatalog(nil).MustLookup("devices")
	records := deviceRecords(1000)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = reports.Delimited(d, records)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	return sorted[index]
}
