package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop_DoesNotPanic(t *testing.T) {
	c := NewNoop()
	assert.NotPanics(t, func() {
		c.TaskStateChanged("a", "running")
		c.TaskSpawned("a")
		c.TaskSpawnFailed("a")
		c.TaskExited("a", "succeeded", time.Second)
		c.ReadinessObserved("a", time.Millisecond)
		c.OrphansReaped(1)
		c.ActiveTasks(3)
	})
}

func TestPrometheusCollector_RegistersAndRecords(t *testing.T) {
	c := NewPrometheusCollector("tequio_test")

	c.TaskStateChanged("a", "running")
	c.TaskSpawned("a")
	c.TaskExited("a", "succeeded", 2*time.Second)
	c.ReadinessObserved("a", 50*time.Millisecond)
	c.OrphansReaped(2)
	c.ActiveTasks(1)

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["tequio_test_task_spawned_total"])
	assert.True(t, names["tequio_test_active_tasks"])
}
