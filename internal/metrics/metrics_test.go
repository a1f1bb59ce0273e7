package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziyaddin/venice/internal/admin"
)

func TestMetrics_RecordFailure_RoutesToNamedCounters(t *testing.T) {
	m, err := New("test_adminconsumer_failure")
	require.NoError(t, err)

	m.RecordFailure(admin.ClassRetriable)
	m.RecordFailure(admin.ClassFatal)
	m.RecordFailure(admin.ClassIgnoredSuccess) // not a failure, must not count

	assert.Equal(t, int64(1), m.FailedRetriableAdminConsumption.Value())
	assert.Equal(t, int64(1), m.FailedAdminConsumption.Value())
}

func TestMetrics_RecordLatency_AddVersionIsolatedFromGenericDigest(t *testing.T) {
	m, err := New("test_adminconsumer_latency")
	require.NoError(t, err)

	m.RecordLatency(admin.KindAddVersion, 10*time.Millisecond)
	m.RecordLatency(admin.KindDeleteStore, 1*time.Millisecond)

	addVersionP50 := m.Quantile(admin.KindAddVersion, 0.5)
	deleteStoreP50 := m.Quantile(admin.KindDeleteStore, 0.5)

	assert.Greater(t, addVersionP50, deleteStoreP50, "AddVersion's digest must not be merged with the generic per-kind digest")
}

func TestMetrics_Quantile_EmptyDigestReturnsZero(t *testing.T) {
	m, err := New("test_adminconsumer_empty")
	require.NoError(t, err)

	assert.Equal(t, float64(0), m.Quantile(admin.KindUpdateStore, 0.99))
}
