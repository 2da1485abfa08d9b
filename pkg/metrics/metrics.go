// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Metrics holds the collectors of one process. A batch job has no scrape
// endpoint, so collectors live in their own registry and are pushed to a
// Pushgateway when the run ends.
type Metrics struct {
	Registry *prometheus.Registry

	// RecordsTotal tracks records by entity and outcome (extracted, clean, rejected)
	RecordsTotal *prometheus.CounterVec
	// FlagsTotal tracks quality flags raised by entity and flag
	FlagsTotal *prometheus.CounterVec
	// StageDuration tracks stage duration in seconds
	StageDuration *prometheus.HistogramVec
	// RunsTotal tracks completed runs by status
	RunsTotal *prometheus.CounterVec
	// LoadedRowsTotal tracks rows written to the sink
	LoadedRowsTotal *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fern",
				Subsystem: "stage",
				Name:      "records_total",
				Help:      "Total number of records by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		FlagsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fern",
				Subsystem: "stage",
				Name:      "flags_total",
				Help:      "Total number of quality flags raised by entity and flag",
			},
			[]string{"entity", "flag"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "fern",
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Duration of entity stages in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"entity"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fern",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by status",
			},
			[]string{"status"},
		),
		LoadedRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fern",
				Subsystem: "sink",
				Name:      "loaded_rows_total",
				Help:      "Total number of rows loaded into the sink by entity",
			},
			[]string{"entity"},
		),
	}
}

// ObserveStage records the outcome counts of one finished stage.
func (m *Metrics) ObserveStage(s *models.StageSummary) {
	entity := string(s.Entity)
	m.RecordsTotal.WithLabelValues(entity, "extracted").Add(float64(s.Extracted))
	m.RecordsTotal.WithLabelValues(entity, "clean").Add(float64(s.Clean))
	m.RecordsTotal.WithLabelValues(entity, "rejected").Add(float64(s.Rejected))
	for flag, n := range s.FlagCounts {
		m.FlagsTotal.WithLabelValues(entity, string(flag)).Add(float64(n))
	}
	m.StageDuration.WithLabelValues(entity).Observe(s.Duration.Seconds())
}

func (m *Metrics) ObserveLoad(l *models.LoadSummary) {
	m.LoadedRowsTotal.WithLabelValues(string(models.EntityPatients)).Add(float64(l.Patients))
	m.LoadedRowsTotal.WithLabelValues(string(models.EntityEncounters)).Add(float64(l.Encounters))
	m.LoadedRowsTotal.WithLabelValues(string(models.EntityDiagnoses)).Add(float64(l.Diagnoses))
}

func (m *Metrics) ObserveRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// Push sends the registry to a Pushgateway under job. An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string, timeout time.Duration) error {
	if url == "" {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
