package e2e

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/licenseops/licenseops/internal/observability"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var metricName = regexp.MustCompile(`licenseops_[a-z_]+`)

func loadRules(t *testing.T) []alertRule {
	t.Helper()
	raw, err := os.ReadFile("../../deploy/prometheus/alerts/licenseops.yml")
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(raw, &file))
	var rules []alertRule
	for _, g := range file.Groups {
		rules = append(rules, g.Rules...)
	}
	require.NotEmpty(t, rules)
	return rules
}

// scrape exercises every collector once so each family shows up in the exposition.
func scrape(t *testing.T) string {
	t.Helper()
	metrics := observability.NewMetrics()
	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/reports", nil))
	metrics.ObserveReportFetch("devices", 40*time.Millisecond, errors.New("backend down"))
	_ = metrics.Jobs().Track("reports:warmup").End(errors.New("alerts: backend down"))
	metrics.Jobs().AddWarmed("devices", "ok", 1)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestAlertRulesReferenceExportedMetrics(t *testing.T) {
	exposition := scrape(t)
	for _, rule := range loadRules(t) {
		names := metricName.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, names, rule.Alert)
		for _, name := range names {
			assert.Contains(t, exposition, "# TYPE "+name+" ", "%s uses %s", rule.Alert, name)
		}
	}
}

func TestAlertRulesCarryRunbookAnchors(t *testing.T) {
	runbook, err := os.ReadFile("../../docs/runbook.md")
	require.NoError(t, err)
	anchors := map[string]bool{}
	for _, line := range strings.Split(string(runbook), "\n") {
		if !strings.HasPrefix(line, "## ") {
			continue
		}
		anchor := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
		anchors[strings.ReplaceAll(anchor, " ", "-")] = true
	}

	for _, rule := range loadRules(t) {
		ref := rule.Annotations["runbook"]
		require.True(t, strings.HasPrefix(ref, "docs/runbook.md#"), "%s runbook %q", rule.Alert, ref)
		assert.True(t, anchors[strings.TrimPrefix(ref, "docs/runbook.md#")], "%s points at a missing runbook section", rule.Alert)
	}
}
