package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Statistic type names accepted by the statistics endpoints.
const (
	StatCompletionRate = "completion_rate"
	StatThroughput     = "throughput"
)

// Statistic is a decoded statistics document.
type Statistic interface {
	StatType() string
}

// CompletionRatePoint is one bucket of a completion-rate series.
type CompletionRatePoint struct {
	Date      string  `json:"date"`
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// CompletionRateSummary aggregates a completion-rate series.
type CompletionRateSummary struct {
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// CompletionRateStatistic mirrors the server's completion-rate document.
type CompletionRateStatistic struct {
	Type       string                `json:"type"`
	ActivityID string                `json:"activityId,omitempty"`
	Data       []CompletionRatePoint `json:"data"`
	Summary    CompletionRateSummary `json:"summary"`
}

func (CompletionRateStatistic) StatType() string { return StatCompletionRate }

// ThroughputPoint is one bucket of a throughput series.
type ThroughputPoint struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}

// ThroughputSummary aggregates a throughput series.
type ThroughputSummary struct {
	Total   int     `json:"total"`
	Average float64 `json:"average"`
}

// ThroughputStatistic mirrors the server's throughput document.
type ThroughputStatistic struct {
	Type       string            `json:"type"`
	ActivityID string            `json:"activityId,omitempty"`
	Data       []ThroughputPoint `json:"data"`
	Summary    ThroughputSummary `json:"summary"`
}

func (ThroughputStatistic) StatType() string { return StatThroughput }

// DecodeStatistic decodes a statistics document by peeking at its type field.
func DecodeStatistic(raw json.RawMessage) (Statistic, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode statistic header: %w", err)
	}
	switch head.Type {
	case StatCompletionRate:
		var stat CompletionRateStatistic
		if err := json.Unmarshal(raw, &stat); err != nil {
			return nil, err
		}
		return stat, nil
	case StatThroughput:
		var stat ThroughputStatistic
		if err := json.Unmarshal(raw, &stat); err != nil {
			return nil, err
		}
		return stat, nil
	default:
		return nil, fmt.Errorf("unknown statistic type %q", head.Type)
	}
}

func statisticsPrefix() Key {
	return NewKey("statistics")
}

func statisticsKey(statType, activityID string, from, to time.Time) Key {
	scope := "all"
	if activityID != "" {
		scope = activityID
	}
	return NewKey("statistics", statType, scope,
		from.Format("2006-01-02"), to.Format("2006-01-02"))
}

func statisticsQuery(from, to time.Time) url.Values {
	q := url.Values{}
	q.Set("from", from.Format("2006-01-02"))
	q.Set("to", to.Format("2006-01-02"))
	return q
}

// Statistics returns the cross-activity statistic of the given type over an
// inclusive local date range.
func (c *Client) Statistics(ctx context.Context, statType string, from, to time.Time) (Statistic, error) {
	return c.fetchStatistic(ctx, statType, "", "/v1/statistics/"+statType, from, to)
}

// ActivityStatistics returns the per-activity statistic of the given type
// over an inclusive local date range.
func (c *Client) ActivityStatistics(ctx context.Context, activityID, statType string, from, to time.Time) (Statistic, error) {
	path := "/v1/activities/" + activityID + "/statistics/" + statType
	return c.fetchStatistic(ctx, statType, activityID, path, from, to)
}

func (c *Client) fetchStatistic(ctx context.Context, statType, activityID, path string, from, to time.Time) (Statistic, error) {
	key := statisticsKey(statType, activityID, from, to)
	c.cache.Register(key, func(ctx context.Context) (any, error) {
		var raw json.RawMessage
		if err := c.do(ctx, "GET", path, statisticsQuery(from, to), nil, &raw); err != nil {
			return nil, err
		}
		return DecodeStatistic(raw)
	})
	return GetData[Statistic](ctx, c.cache, key)
}
