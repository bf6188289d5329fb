package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"financial-diagnostics/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	require.True(t, cs.IsHealthy())
	t.Cleanup(func() { cs.Close() })

	return cs, mr
}

// ============================================================================
// TEST: basic operations
// ============================================================================

func TestCacheService_GetSetMiss(t *testing.T) {
	cs, _ := newTestCache(t)
	ctx := context.Background()

	_, err := cs.Get(ctx, "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cs.SetJSON(ctx, "k", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, cs.GetJSON(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])
}

func TestCacheService_DisabledConfig(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false})
	assert.Error(t, err)
}

func TestCacheService_CircuitBreaker(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()

	mr.Close()
	for i := 0; i < cs.maxFailures; i++ {
		_, _ = cs.Get(ctx, "k")
	}

	assert.False(t, cs.IsHealthy())
	_, err := cs.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrCacheUnavailable))
	assert.Equal(t, cs.maxFailures, cs.GetStats().FailureCount)
}

// ============================================================================
// TEST: chart invalidation and report queue
// ============================================================================

func TestInvalidateCompanyCharts(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()

	categories := []string{"liquidity", "leverage"}
	for _, c := range categories {
		require.NoError(t, mr.Set(ChartKey("acme", c), "{}"))
	}
	require.NoError(t, mr.Set(ChartKey("globex", "liquidity"), "{}"))

	require.NoError(t, cs.InvalidateCompanyCharts(ctx, "acme", categories))

	assert.False(t, mr.Exists("company:acme:chart:liquidity"))
	assert.False(t, mr.Exists("company:acme:chart:leverage"))
	assert.True(t, mr.Exists("company:globex:chart:liquidity"), "other companies untouched")
}

func TestInvalidatePublishedSeries(t *testing.T) {
	cs, mr := newTestCache(t)

	require.NoError(t, mr.Set(PublishedSeriesKey("acme", true), "[]"))
	require.NoError(t, mr.Set(PublishedSeriesKey("acme", false), "[]"))

	require.NoError(t, cs.InvalidatePublishedSeries(context.Background(), "acme"))

	assert.False(t, mr.Exists("company:acme:series:tax:published"))
	assert.False(t, mr.Exists("company:acme:series:monthly:published"))
}

func TestEnqueueReportRegeneration(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cs.EnqueueReportRegeneration(ctx, "reports", ReportRegenerationJob{CompanyID: "acme", PeriodID: "p1"}))
	require.NoError(t, cs.EnqueueReportRegeneration(ctx, "reports", ReportRegenerationJob{CompanyID: "acme", PeriodID: "p2"}))

	n, err := cs.PendingReportJobs(ctx, "reports")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// oldest job sits at the right end
	raw, err := mr.Lpop("reports")
	require.NoError(t, err)
	var newest ReportRegenerationJob
	require.NoError(t, json.Unmarshal([]byte(raw), &newest))
	assert.Equal(t, "p2", newest.PeriodID)
	assert.False(t, newest.RequestedAt.IsZero())
}

func TestPurgeCompany(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(ChartKey("acme", "liquidity"), "x"))
	require.NoError(t, mr.Set(PublishedSeriesKey("acme", true), "x"))
	require.NoError(t, mr.Set(ChartKey("acme-two", "liquidity"), "x"))

	require.NoError(t, cs.PurgeCompany(ctx, "acme"))

	assert.False(t, mr.Exists(ChartKey("acme", "liquidity")))
	assert.False(t, mr.Exists(PublishedSeriesKey("acme", true)))
	assert.True(t, mr.Exists(ChartKey("acme-two", "liquidity")))
}

func TestStorePublishedSeries_Generation(t *testing.T) {
	cs, mr := newTestCache(t)
	ctx := context.Background()
	key := PublishedSeriesKey("acme", false)

	gen, err := cs.PublishedSeriesGeneration(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	stored, err := cs.StorePublishedSeries(ctx, "acme", false, gen, []string{"p1"}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	require.NoError(t, cs.InvalidatePublishedSeries(ctx, "acme"))
	assert.False(t, mr.Exists(key))

	// a load that started before the invalidation is dropped
	stored, err = cs.StorePublishedSeries(ctx, "acme", false, gen, []string{"p1"}, time.Minute)
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists(key))

	gen, err = cs.PublishedSeriesGeneration(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	stored, err = cs.StorePublishedSeries(ctx, "acme", false, gen, []string{}, time.Minute)
	require.NoError(t, err)
	assert.True(t, stored)

	var got []string
	require.NoError(t, cs.GetJSON(ctx, key, &got))
	assert.Empty(t, got)
}
