package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for different cache types
const (
	PrefixChart           = "company:%s:chart:%s"
	PrefixPublishedSeries = "company:%s:series:%s:published"
	PrefixSeriesGen       = "company:%s:series:gen"
)

// DefaultSeriesTTL applies when no TTL is configured
const DefaultSeriesTTL = 10 * time.Minute

// ChartKey generates the cache key of one chart category payload.
func ChartKey(companyID, category string) string {
	return fmt.Sprintf(PrefixChart, companyID, category)
}

// PublishedSeriesKey generates the cache key of a company's published series.
func PublishedSeriesKey(companyID string, isTaxRecord bool) string {
	series := "monthly"
	if isTaxRecord {
		series = "tax"
	}
	return fmt.Sprintf(PrefixPublishedSeries, companyID, series)
}

// SeriesGenKey is the counter bumped on every invalidation of a company's
// published series.
func SeriesGenKey(companyID string) string {
	return fmt.Sprintf(PrefixSeriesGen, companyID)
}

// storeIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1].
var storeIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[1]) or "0"
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// InvalidateCompanyCharts drops the cached chart payload of every category.
func (cs *CacheService) InvalidateCompanyCharts(ctx context.Context, companyID string, categories []string) error {
	keys := make([]string, 0, len(categories))
	for _, c := range categories {
		keys = append(keys, ChartKey(companyID, c))
	}
	if err := cs.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to invalidate charts for company %s: %w", companyID, err)
	}
	return nil
}

// InvalidatePublishedSeries drops the cached read model of both series and
// bumps the company's generation, so a read that loaded its rows before the
// invalidation cannot write them back.
func (cs *CacheService) InvalidatePublishedSeries(ctx context.Context, companyID string) error {
	if err := cs.available(); err != nil {
		return err
	}

	_, err := cs.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, SeriesGenKey(companyID))
		pipe.Del(ctx, PublishedSeriesKey(companyID, true), PublishedSeriesKey(companyID, false))
		return nil
	})
	if err != nil {
		cs.recordFailure()
		return fmt.Errorf("failed to invalidate published series for company %s: %w", companyID, err)
	}

	cs.recordSuccess()
	return nil
}

// PublishedSeriesGeneration returns the current generation of a company's
// published series. A company never invalidated is at generation 0.
func (cs *CacheService) PublishedSeriesGeneration(ctx context.Context, companyID string) (int64, error) {
	if err := cs.available(); err != nil {
		return 0, err
	}

	gen, err := cs.client.Get(ctx, SeriesGenKey(companyID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			cs.recordSuccess()
			return 0, nil
		}
		cs.recordFailure()
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}

	cs.recordSuccess()
	return gen, nil
}

// StorePublishedSeries caches rows as the published series of a company if
// the generation is still gen. It reports whether the rows were stored.
func (cs *CacheService) StorePublishedSeries(ctx context.Context, companyID string, isTaxRecord bool, gen int64, rows interface{}, ttl time.Duration) (bool, error) {
	if err := cs.available(); err != nil {
		return false, err
	}

	if ttl <= 0 {
		ttl = DefaultSeriesTTL
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return false, fmt.Errorf("failed to marshal published series: %w", err)
	}

	keys := []string{SeriesGenKey(companyID), PublishedSeriesKey(companyID, isTaxRecord)}
	stored, err := storeIfGeneration.Run(ctx, cs.client, keys, gen, string(payload), ttl.Milliseconds()).Int()
	if err != nil {
		cs.recordFailure()
		return false, fmt.Errorf("redis store published series failed: %w", err)
	}

	cs.recordSuccess()
	return stored == 1, nil
}

// PurgeCompany drops every cached key of a company.
func (cs *CacheService) PurgeCompany(ctx context.Context, companyID string) error {
	if err := cs.DeletePattern(ctx, fmt.Sprintf("company:%s:*", companyID)); err != nil {
		return fmt.Errorf("failed to purge cache for company %s: %w", companyID, err)
	}
	return nil
}

// ReportRegenerationJob asks the report collaborator to rebuild a company's
// narrative report.
type ReportRegenerationJob struct {
	CompanyID   string    `json:"company_id"`
	PeriodID    string    `json:"period_id"`
	IsTaxRecord bool      `json:"is_tax_record"`
	RequestedAt time.Time `json:"requested_at"`
}

// EnqueueReportRegeneration pushes a job on the report queue (LPUSH; the
// consumer pops from the right).
func (cs *CacheService) EnqueueReportRegeneration(ctx context.Context, queue string, job ReportRegenerationJob) error {
	if err := cs.available(); err != nil {
		return err
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal report job: %w", err)
	}

	if err := cs.client.LPush(ctx, queue, payload).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis lpush failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// PendingReportJobs returns the report queue length.
func (cs *CacheService) PendingReportJobs(ctx context.Context, queue string) (int64, error) {
	if err := cs.available(); err != nil {
		return 0, err
	}

	n, err := cs.client.LLen(ctx, queue).Result()
	if err != nil {
		cs.recordFailure()
		return 0, fmt.Errorf("redis llen failed: %w", err)
	}

	cs.recordSuccess()
	return n, nil
}
