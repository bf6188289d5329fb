package recompute

import (
	"context"
	"sync"
	"testing"
	"time"

	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/events"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *memStore {
	m := newMemStore()
	m.addPeriod("p1", "acme", false, 1400, 100, 30)
	m.addPeriod("p2", "acme", false, 1401, 200, 30)
	m.addPeriod("p3", "acme", false, 1402, 300, 30)
	return m
}

func recordEvents(bus *events.EventBus) func() []events.Event {
	var mu sync.Mutex
	var got []events.Event
	bus.SubscribeAll(func(e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return func() []events.Event {
		bus.Wait()
		mu.Lock()
		defer mu.Unlock()
		return append([]events.Event(nil), got...)
	}
}

func TestService_Recompute(t *testing.T) {
	store := seededStore()
	bus := events.NewEventBus()
	recorded := recordEvents(bus)
	svc := NewService(store, bus, nil)

	result, err := svc.Recompute(context.Background(), "acme", false, Options{})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Periods)
	assert.NotEmpty(t, result.RunID)

	// mean total asset is 200
	row := store.row("p1")
	require.NotNil(t, row)
	assert.True(t, row.result.Metrics.ROA.Equal(decimal.RequireFromString("0.15")), "roa = %s", row.result.Metrics.ROA)
	assert.False(t, row.published)

	evts := recorded()
	require.Len(t, evts, 1)
	assert.Equal(t, events.EventSeriesRecomputed, evts[0].Type)
	assert.Equal(t, "acme", evts[0].GetString("company_id"))
}

func TestService_RecomputeEmptySeries(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil, nil)

	result, err := svc.Recompute(context.Background(), "ghost", true, Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.Periods)
}

func TestService_RecomputeRequiresCompany(t *testing.T) {
	svc := NewService(newMemStore(), nil, nil)

	_, err := svc.Recompute(context.Background(), "", false, Options{})
	var invalid *engine.InvalidSeriesError
	assert.ErrorAs(t, err, &invalid)
}

func TestService_PublicationSurvivesRecompute(t *testing.T) {
	store := seededStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.Recompute(ctx, "acme", false, Options{})
	require.NoError(t, err)
	store.setPublished("p2")

	_, err = svc.Recompute(ctx, "acme", false, Options{})
	require.NoError(t, err)
	assert.True(t, store.row("p2").published)

	_, err = svc.Recompute(ctx, "acme", false, Options{ResetPublication: true})
	require.NoError(t, err)
	assert.False(t, store.row("p2").published)
}

func TestService_OnStatementChanged(t *testing.T) {
	store := seededStore()
	store.addPeriod("t1", "acme", true, 1400, 50, 5)
	svc := NewService(store, nil, nil)

	result, err := svc.OnStatementChanged(context.Background(), "t1")
	require.NoError(t, err)
	assert.True(t, result.IsTaxRecord)
	assert.Equal(t, 1, result.Periods)

	assert.NotNil(t, store.row("t1"))
	assert.Nil(t, store.row("p1"), "monthly series untouched")

	_, err = svc.OnStatementChanged(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrPeriodNotFound)
}

func TestService_DeletePeriodRecomputesSurvivors(t *testing.T) {
	store := seededStore()
	bus := events.NewEventBus()
	svc := NewService(store, bus, nil)
	ctx := context.Background()

	_, err := svc.Recompute(ctx, "acme", false, Options{})
	require.NoError(t, err)
	before := store.row("p1").result.Metrics

	recorded := recordEvents(bus)
	result, err := svc.DeletePeriod(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Periods)

	assert.Nil(t, store.row("p3"))
	after := store.row("p1").result.Metrics

	// mean total asset drops from 200 to 150
	assert.True(t, after.ROA.Equal(decimal.RequireFromString("0.2")), "roa = %s", after.ROA)
	assert.True(t, after.CurrentRatio.Equal(before.CurrentRatio))

	var types []events.EventType
	for _, e := range recorded() {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []events.EventType{events.EventSeriesRecomputed, events.EventPeriodDeleted}, types)
}

func TestService_DeleteMissingPeriod(t *testing.T) {
	svc := NewService(seededStore(), nil, nil)

	_, err := svc.DeletePeriod(context.Background(), "nope")
	assert.ErrorIs(t, err, database.ErrPeriodNotFound)
}

func TestService_FailedRecomputeWritesNothing(t *testing.T) {
	store := seededStore()
	store.addPeriod("bad", "acme", false, 0, 10, 1)
	svc := NewService(store, nil, nil)

	result, err := svc.Recompute(context.Background(), "acme", false, Options{})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, PhaseCompute, phaseOf(err))

	var invalid *engine.InvalidSeriesError
	assert.ErrorAs(t, err, &invalid)
	assert.Nil(t, store.row("p1"))
}

func TestService_SerializesSameSeries(t *testing.T) {
	store := seededStore()
	store.addPeriod("o1", "other", false, 1400, 10, 1)
	store.txDelay = 10 * time.Millisecond
	svc := NewService(store, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Recompute(context.Background(), "acme", false, Options{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.maxActive)
	assert.Equal(t, 5, store.txCount)
	assert.Zero(t, svc.locks.size())
}

func TestService_RecomputeCompanyAndAll(t *testing.T) {
	store := seededStore()
	store.addPeriod("t1", "acme", true, 1400, 50, 5)
	store.addPeriod("o1", "other", false, 1400, 10, 1)
	svc := NewService(store, nil, nil)
	svc.SetConcurrency(2)
	ctx := context.Background()

	results, err := svc.RecomputeCompany(ctx, "acme", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].IsTaxRecord)
	assert.True(t, results[1].IsTaxRecord)

	all, err := svc.RecomputeAll(ctx, nil, Options{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.NotNil(t, store.row("o1"))
}
