package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestMetrics_ObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage(&models.StageSummary{
		Entity:     models.EntityDiagnoses,
		Extracted:  10,
		Clean:      7,
		Rejected:   3,
		FlagCounts: map[models.Flag]int{models.FlagInvalidCode: 2},
		Duration:   150 * time.Millisecond,
	})

	assert.Equal(t, 7.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("diagnoses", "clean")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RecordsTotal.WithLabelValues("diagnoses", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FlagsTotal.WithLabelValues("diagnoses", "INVALID_CODE")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestMetrics_ObserveLoadAndRun(t *testing.T) {
	m := New()
	m.ObserveLoad(&models.LoadSummary{Patients: 2, Encounters: 3, Diagnoses: 4})
	m.ObserveRun("success")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.LoadedRowsTotal.WithLabelValues("encounters")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
}

func TestMetrics_Push(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.ObserveRun("success")

	require.NoError(t, m.Push(context.Background(), "", "fern", time.Second))
	require.NoError(t, m.Push(context.Background(), srv.URL, "fern", time.Second))
	assert.Equal(t, "/metrics/job/fern", path)
}
