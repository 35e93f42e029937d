package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("should count jobs by terminal status", func(t *testing.T) {
		c := NewCollector()
		c.JobStarted()
		c.JobFinished("succeeded", 1.5, true)
		c.JobFinished("skipped_fresh", 0, false)

		assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsTotal.WithLabelValues("succeeded")))
		assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsTotal.WithLabelValues("skipped_fresh")))
	})

	t.Run("should track running jobs as a gauge", func(t *testing.T) {
		c := NewCollector()
		c.JobStarted()
		c.JobStarted()
		assert.Equal(t, float64(2), testutil.ToFloat64(c.jobsRunning))
		c.JobFinished("succeeded", 0.1, true)
		assert.Equal(t, float64(1), testutil.ToFloat64(c.jobsRunning))
	})

	t.Run("should keep collectors independent across instances", func(t *testing.T) {
		a := NewCollector()
		b := NewCollector()
		a.JobFinished("failed", 1, true)

		assert.Equal(t, float64(1), testutil.ToFloat64(a.jobsTotal.WithLabelValues("failed")))
		assert.Equal(t, float64(0), testutil.ToFloat64(b.jobsTotal.WithLabelValues("failed")))
	})

	t.Run("should expose series through the registry", func(t *testing.T) {
		c := NewCollector()
		c.JobFinished("succeeded", 1, true)
		families, err := c.Registry().Gather()
		require.NoError(t, err)

		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.Contains(t, names, "corpusmill_jobs_total")
	})
}
