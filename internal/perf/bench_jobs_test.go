package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/miq-labs/miq-be/internal/jobs"
)

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	// Warmup runs often and must stay cheap.
	for i := 0; i < 40; i++ {
		tracker := metrics.Track("users:cache_warmup")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending warmup tracker: %v", err)
		}
	}

	// Retention runs daily and may take longer.
	for i := 0; i < 5; i++ {
		tracker := metrics.Track("audit:retention")
		time.Sleep(25 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending retention tracker: %v", err)
		}
		metrics.AddPurgedEntries(1000)
	}

	// Inject a couple of failures to ensure alerts fire correctly.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track("users:cache_warmup")
		time.Sleep(5 * time.Millisecond)
		if err := tracker.End(errors.New("redis timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "miq_jobs_total", map[string]string{"job": "users:cache_warmup", "status": "success"})
	failure := metricValue(t, families, "miq_jobs_total", map[string]string{"job": "users:cache_warmup", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no warmup executions recorded")
	}
	ratio := success / (success + failure)
	if ratio < 0.9 {
		t.Fatalf("warmup success ratio too low: %f", ratio)
	}

	warmupDuration := histogramMean(t, families, "miq_job_duration_seconds", map[string]string{"job": "users:cache_warmup"})
	if warmupDuration > 0.5 {
		t.Fatalf("warmup duration above budget: %f", warmupDuration)
	}

	retentionDuration := histogramMean(t, families, "miq_job_duration_seconds", map[string]string{"job": "audit:retention"})
	if retentionDuration > 2.0 {
		t.Fatalf("retention duration above budget: %f", retentionDuration)
	}

	purged := metricValue(t, families, "miq_audit_purged_entries_total", nil)
	if purged != 5000 {
		t.Fatalf("expected 5000 purged entries, got %f", purged)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
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
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
