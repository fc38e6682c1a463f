package engine

import (
	"sort"
	"time"

	"github.com/coffersTech/eventscope/internal/model"
)

// ProviderCount is one row of the top-providers table.
type ProviderCount struct {
	Provider string
	Count    int
}

// Summary aggregates a record set for the stats panel: totals, severity
// distribution, busiest providers and the covered time span.
type Summary struct {
	Total        int
	Levels       [model.LevelCount]int
	TopProviders []ProviderCount
	From         time.Time
	To           time.Time
}

// Summarize computes a Summary over records, keeping the topN busiest
// providers. Ties break alphabetically so output is deterministic.
func Summarize(records []*model.Record, topN int) Summary {
	sum := Summary{Total: len(records)}
	providers := make(map[string]int)
	for _, r := range records {
		sum.Levels[model.ClampLevel(r.Level)]++
		providers[r.Provider]++
		if sum.From.IsZero() || r.Timestamp.Before(sum.From) {
			sum.From = r.Timestamp
		}
		if r.Timestamp.After(sum.To) {
			sum.To = r.Timestamp
		}
	}

	sum.TopProviders = make([]ProviderCount, 0, len(providers))
	for p, n := range providers {
		sum.TopProviders = append(sum.TopProviders, ProviderCount{Provider: p, Count: n})
	}
	sort.Slice(sum.TopProviders, func(a, b int) bool {
		pa, pb := sum.TopProviders[a], sum.TopProviders[b]
		if pa.Count != pb.Count {
			return pa.Count > pb.Count
		}
		return pa.Provider < pb.Provider
	})
	if topN > 0 && len(sum.TopProviders) > topN {
		sum.TopProviders = sum.TopProviders[:topN]
	}
	return sum
}

// HistogramPoint is one time bucket of record volume.
type HistogramPoint struct {
	Bucket time.Time
	Count  int
}

// Histogram buckets records by interval, returning points in ascending
// bucket order. Empty buckets between populated ones are not filled in.
func Histogram(records []*model.Record, interval time.Duration) []HistogramPoint {
	if interval <= 0 || len(records) == 0 {
		return nil
	}
	buckets := make(map[time.Time]int)
	for _, r := range records {
		buckets[r.Timestamp.Truncate(interval)]++
	}
	points := make([]HistogramPoint, 0, len(buckets))
	for b, n := range buckets {
		points = append(points, HistogramPoint{Bucket: b, Count: n})
	}
	sort.Slice(points, func(a, b int) bool {
		return points[a].Bucket.Before(points[b].Bucket)
	})
	return points
}
