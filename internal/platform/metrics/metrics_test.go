package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CacheResult("compliance", "memory", "hit")
	m.CacheResult("compliance", "memory", "hit")
	m.ProviderRequest("zoya", "ok", 120*time.Millisecond)
	m.Degraded("zoya")
	m.Exclusion("UNVERIFIED")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("compliance", "memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerRequests.WithLabelValues("zoya", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.degraded.WithLabelValues("zoya")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exclusions.WithLabelValues("UNVERIFIED")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheResult("compliance", "memory", "miss")
		m.ProviderRequest("zoya", "error", time.Second)
		m.ProviderRetry("zoya")
		m.RateLimitWait("zoya", time.Second)
		m.Verdict("unknown", "cache")
		m.Degraded("zoya")
		m.Exclusion("UNVERIFIED")
		m.AuditFailure()
	})
}

func TestNew_IndependentRegistries(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
