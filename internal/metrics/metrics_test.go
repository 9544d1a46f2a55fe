package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersAllMetrics(t *testing.T) {
	reg := New()
	require.NotNil(t, reg)

	reg.EventsProduced.WithLabelValues("producer").Inc()
	reg.CoordinatorConflict.WithLabelValues("simultaneous_access").Inc()
	reg.AttentionFatigue.Set(0.42)

	families, err := reg.gatherer.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestTimerObservesStage(t *testing.T) {
	reg := New()
	timer := NewTimer()
	timer.ObserveStage(reg, "enrich")

	families, err := reg.gatherer.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "vsm_pipeline_stage_latency_seconds" {
			found = true
		}
	}
	assert.True(t, found)
}
