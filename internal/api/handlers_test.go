package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"financial-diagnostics/config"
	"financial-diagnostics/internal/cache"
	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/events"
	"financial-diagnostics/internal/publication"
	"financial-diagnostics/internal/recompute"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRecomputer struct {
	calls []string
	opts  recompute.Options
	err   error
}

func (f *fakeRecomputer) Recompute(_ context.Context, companyID string, isTax bool, opts recompute.Options) (*recompute.Result, error) {
	f.calls = append(f.calls, "recompute")
	f.opts = opts
	return &recompute.Result{CompanyID: companyID, IsTaxRecord: isTax, Success: f.err == nil}, f.err
}

func (f *fakeRecomputer) OnStatementChanged(_ context.Context, periodID string) (*recompute.Result, error) {
	f.calls = append(f.calls, "changed:"+periodID)
	return &recompute.Result{Success: f.err == nil}, f.err
}

func (f *fakeRecomputer) DeletePeriod(_ context.Context, periodID string) (*recompute.Result, error) {
	f.calls = append(f.calls, "delete:"+periodID)
	return &recompute.Result{Success: f.err == nil}, f.err
}

func (f *fakeRecomputer) RecomputeCompany(_ context.Context, companyID string, opts recompute.Options) ([]*recompute.Result, error) {
	f.calls = append(f.calls, "company:"+companyID)
	f.opts = opts
	return []*recompute.Result{{CompanyID: companyID}, {CompanyID: companyID, IsTaxRecord: true}}, f.err
}

func (f *fakeRecomputer) RecomputeAll(_ context.Context, _ []string, _ recompute.Options) ([]*recompute.Result, error) {
	return nil, f.err
}

type fakeGate struct {
	flags map[string]bool
}

func (g *fakeGate) SetPublished(_ context.Context, periodID string, published bool) (*database.PublicationChange, error) {
	prev, ok := g.flags[periodID]
	if !ok {
		return nil, database.ErrMetricsNotFound
	}
	g.flags[periodID] = published
	return &database.PublicationChange{PeriodID: periodID, CompanyID: "acme", Previous: prev, Current: published}, nil
}

type fakeReader struct {
	rows      []database.PublishedMetrics
	listCalls int
	healthErr error
	afterList func() // runs after the rows are loaded
}

func (r *fakeReader) ListPublishedMetrics(_ context.Context, _ string, _ bool) ([]database.PublishedMetrics, error) {
	r.listCalls++
	rows := r.rows
	if r.afterList != nil {
		r.afterList()
	}
	return rows, nil
}

func (r *fakeReader) HealthCheck(_ context.Context) error { return r.healthErr }

type fakeReconciler struct{}

func (fakeReconciler) RunOnce(_ context.Context) (*recompute.ReconcileReport, error) {
	return &recompute.ReconcileReport{Checked: 2, Recovered: 1, StillFailing: []string{"acme/tax"}}, nil
}

type fixture struct {
	server     *Server
	recomputer *fakeRecomputer
	gate       *fakeGate
	reader     *fakeReader
}

func newFixture(t *testing.T, seriesCache SeriesCache) *fixture {
	t.Helper()
	f := &fixture{
		recomputer: &fakeRecomputer{},
		gate:       &fakeGate{flags: map[string]bool{}},
		reader:     &fakeReader{},
	}
	deps := Dependencies{
		Recomputer:  f.recomputer,
		Publication: f.gate,
		Metrics:     f.reader,
		Reconciler:  fakeReconciler{},
	}
	if seriesCache != nil {
		deps.Cache = seriesCache
	}
	f.server = NewServer(config.ServerConfig{AllowedOrigins: "http://localhost:5173"}, deps)
	return f
}

func (f *fixture) do(method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	var response map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &response)
	return w, response
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w, response := f.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", response["status"])
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	f.reader.healthErr = errors.New("down")
	w, _ = f.do(http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSHeaders(t *testing.T) {
	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecomputeEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w, response := f.do(http.MethodPost, "/api/companies/acme/recompute", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["success"])
	assert.Len(t, response["data"], 2)

	w, _ = f.do(http.MethodPost, "/api/companies/acme/recompute", `{"is_tax_record": true, "reset_publication": true}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"company:acme", "recompute"}, f.recomputer.calls)
	assert.True(t, f.recomputer.opts.ResetPublication)

	w, _ = f.do(http.MethodPost, "/api/companies/acme/recompute", `{"is_tax_record": "yes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecomputeEndpoint_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid series", &engine.InvalidSeriesError{Index: 1, PeriodID: "x", Reason: "duplicate period id"}, http.StatusBadRequest},
		{"not found", database.ErrPeriodNotFound, http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.recomputer.err = tc.err

			w, response := f.do(http.MethodPost, "/api/companies/acme/recompute", `{"is_tax_record": false}`)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, false, response["success"])
		})
	}
}

func TestPeriodEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.NewString()

	w, _ := f.do(http.MethodPost, "/api/periods/"+id+"/statements-changed", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(http.MethodDelete, "/api/periods/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"changed:" + id, "delete:" + id}, f.recomputer.calls)

	w, _ = f.do(http.MethodDelete, "/api/periods/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, f.recomputer.calls, 2, "invalid ids never reach the service")
}

func TestPublicationEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	id := uuid.NewString()
	f.gate.flags[id] = true

	w, _ := f.do(http.MethodPut, "/api/periods/"+id+"/publication", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "published is required")

	w, response := f.do(http.MethodPut, "/api/periods/"+id+"/publication", `{"published": false}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["changed"])
	assert.False(t, f.gate.flags[id])

	w, response = f.do(http.MethodPut, "/api/periods/"+id+"/publication", `{"published": false}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["changed"])

	w, _ = f.do(http.MethodPut, "/api/periods/"+uuid.NewString()+"/publication", `{"published": true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishedMetricsEndpoint_WriteThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	cs, err := cache.NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	f := newFixture(t, cs)
	row := database.PublishedMetrics{PeriodID: uuid.NewString(), Year: 1402}
	row.Metrics.ROA = decimal.RequireFromString("0.15")
	f.reader.rows = []database.PublishedMetrics{row}

	w, response := f.do(http.MethodGet, "/api/companies/acme/metrics?series=tax", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["cached"])
	assert.True(t, mr.Exists(cache.PublishedSeriesKey("acme", true)))

	w, response = f.do(http.MethodGet, "/api/companies/acme/metrics?series=tax", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["cached"])
	assert.Equal(t, 1, f.reader.listCalls)

	data := response["data"].([]interface{})
	require.Len(t, data, 1)
	metrics := data[0].(map[string]interface{})["metrics"].(map[string]interface{})
	assert.Equal(t, "0.15", metrics["roa"])

	// redis down falls back to the database
	mr.Close()
	w, response = f.do(http.MethodGet, "/api/companies/acme/metrics?series=tax", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["cached"])
	assert.Equal(t, 2, f.reader.listCalls)
}

func TestPublishedMetricsEndpoint_UnpublishDuringLoad(t *testing.T) {
	mr := miniredis.RunT(t)
	cs, err := cache.NewCacheService(config.RedisConfig{Enabled: true, Address: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	f := newFixture(t, cs)
	bus := events.NewEventBus()
	publication.NewSideEffects(cs, nil, config.PublicationConfig{}).Register(bus)
	gate := publication.NewGate(f.gate, bus)

	periodID := uuid.NewString()
	f.gate.flags[periodID] = true
	f.reader.rows = []database.PublishedMetrics{{PeriodID: periodID, Year: 1402}}

	// the period is unpublished and invalidated after the snapshot was read
	f.reader.afterList = func() {
		f.reader.afterList = nil
		f.reader.rows = nil
		_, err := gate.SetPublished(context.Background(), periodID, false)
		require.NoError(t, err)
		bus.Wait()
	}

	w, response := f.do(http.MethodGet, "/api/companies/acme/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["cached"])
	assert.False(t, mr.Exists(cache.PublishedSeriesKey("acme", false)), "stale snapshot must not be cached")

	w, response = f.do(http.MethodGet, "/api/companies/acme/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["cached"])
	assert.Equal(t, []interface{}{}, response["data"])
	assert.Equal(t, 2, f.reader.listCalls)

	// with no invalidation in between the next load is cached again
	w, response = f.do(http.MethodGet, "/api/companies/acme/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["cached"])
}

func TestPublishedMetricsEndpoint_NoCache(t *testing.T) {
	f := newFixture(t, nil)

	w, response := f.do(http.MethodGet, "/api/companies/acme/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, response["data"])

	w, _ = f.do(http.MethodGet, "/api/companies/acme/metrics?series=weekly", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	w, response := f.do(http.MethodPost, "/api/admin/reconcile", "")
	assert.Equal(t, http.StatusOK, w.Code)

	data := response["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["checked"])
	assert.Equal(t, []interface{}{"acme/tax"}, data["still_failing"])
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.server.Shutdown(context.Background()))

	done := make(chan error, 1)
	go func() { done <- f.server.Start() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Shutdown")
	}
}
