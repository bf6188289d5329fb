package recompute

import (
	"context"
	"sort"
	"sync"
	"time"

	"financial-diagnostics/internal/database"
	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/statements"

	"github.com/shopspring/decimal"
)

type storedRow struct {
	result    engine.PeriodResult
	published bool
}

// memStore is an in-memory Store. Writes made inside RunInSeriesTx are
// staged and only applied when fn returns nil.
type memStore struct {
	mu       sync.Mutex
	periods  map[string]statements.PeriodInput
	rows     map[string]*storedRow
	failures []database.RecomputeFailure

	upsertErrs []error // returned by successive upserts, then nil
	txDelay    time.Duration

	active    map[statements.SeriesKey]int
	maxActive int
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{
		periods: make(map[string]statements.PeriodInput),
		rows:    make(map[string]*storedRow),
		active:  make(map[statements.SeriesKey]int),
	}
}

func (m *memStore) addPeriod(id, companyID string, isTax bool, year int, asset, profit int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.periods[id] = statements.PeriodInput{
		Period: statements.Period{ID: id, CompanyID: companyID, IsTaxRecord: isTax, Year: year},
		Statements: statements.StatementSet{
			Balance: &statements.BalanceReport{
				TotalCurrentAsset: decimal.NewFromInt(asset),
				NetProfit:         decimal.NewFromInt(profit),
			},
		},
	}
}

func (m *memStore) row(id string) *storedRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

func (m *memStore) setPublished(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].published = true
}

func (m *memStore) openFailures() []database.RecomputeFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []database.RecomputeFailure
	for _, f := range m.failures {
		if f.ResolvedAt == nil {
			out = append(out, f)
		}
	}
	return out
}

func (m *memStore) GetPeriod(_ context.Context, periodID string) (*statements.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	in, ok := m.periods[periodID]
	if !ok {
		return nil, database.ErrPeriodNotFound
	}
	p := in.Period
	return &p, nil
}

func (m *memStore) RunInSeriesTx(ctx context.Context, key statements.SeriesKey, fn func(ctx context.Context, tx database.SeriesTx) error) error {
	m.mu.Lock()
	m.txCount++
	m.active[key]++
	if m.active[key] > m.maxActive {
		m.maxActive = m.active[key]
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active[key]--
		m.mu.Unlock()
	}()

	if m.txDelay > 0 {
		time.Sleep(m.txDelay)
	}

	tx := &memTx{store: m, key: key, deleted: map[string]bool{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (m *memStore) ListCompanyIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var ids []string
	for _, in := range m.periods {
		if !seen[in.Period.CompanyID] {
			seen[in.Period.CompanyID] = true
			ids = append(ids, in.Period.CompanyID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) RecordRecomputeFailure(_ context.Context, f *database.RecomputeFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.CreatedAt = time.Now()
	m.failures = append(m.failures, *f)
	return nil
}

func (m *memStore) ListOpenFailures(_ context.Context, limit int) ([]database.RecomputeFailure, error) {
	open := m.openFailures()
	if len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

func (m *memStore) ResolveSeriesFailures(_ context.Context, companyID string, isTaxRecord bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for i := range m.failures {
		f := &m.failures[i]
		if f.CompanyID == companyID && f.IsTaxRecord == isTaxRecord && f.ResolvedAt == nil {
			f.ResolvedAt = &now
			n++
		}
	}
	return n, nil
}

type memTx struct {
	store   *memStore
	key     statements.SeriesKey
	deleted map[string]bool
	results []engine.PeriodResult
	reset   bool
}

func (t *memTx) Key() statements.SeriesKey { return t.key }

func (t *memTx) LoadSeries(_ context.Context) ([]statements.PeriodInput, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var inputs []statements.PeriodInput
	for id, in := range t.store.periods {
		if in.Period.SeriesKey() == t.key && !t.deleted[id] {
			inputs = append(inputs, in)
		}
	}
	sort.Slice(inputs, func(i, j int) bool {
		return inputs[i].Period.Ordinal() < inputs[j].Period.Ordinal()
	})
	return inputs, nil
}

func (t *memTx) UpsertComputedMetrics(_ context.Context, results []engine.PeriodResult, opts database.UpsertOptions) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if len(t.store.upsertErrs) > 0 {
		err := t.store.upsertErrs[0]
		t.store.upsertErrs = t.store.upsertErrs[1:]
		if err != nil {
			return err
		}
	}
	t.results = results
	t.reset = opts.ResetPublication
	return nil
}

func (t *memTx) DeletePeriod(_ context.Context, periodID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	in, ok := t.store.periods[periodID]
	if !ok || in.Period.SeriesKey() != t.key {
		return database.ErrPeriodNotFound
	}
	t.deleted[periodID] = true
	return nil
}

func (t *memTx) commit() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for id := range t.deleted {
		delete(t.store.periods, id)
		delete(t.store.rows, id)
	}
	for _, r := range t.results {
		row, ok := t.store.rows[r.PeriodID]
		if !ok {
			row = &storedRow{}
			t.store.rows[r.PeriodID] = row
		}
		row.result = r
		if t.reset {
			row.published = false
		}
	}
}
