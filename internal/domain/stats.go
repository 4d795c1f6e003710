package domain

import (
	"math"
	"time"
)

// StatisticType selects the aggregation computed over a date range.
type StatisticType string

const (
	StatCompletionRate StatisticType = "completion_rate"
	StatThroughput     StatisticType = "throughput"
)

// KnownStatisticType reports whether t names a supported aggregation.
func KnownStatisticType(t StatisticType) bool {
	return t == StatCompletionRate || t == StatThroughput
}

// Statistic is the tagged union of range aggregations.
type Statistic interface {
	StatType() StatisticType
}

// CompletionRatePoint is one day of the completion-rate series.
type CompletionRatePoint struct {
	Date      string  `json:"date"`
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// CompletionRateSummary totals the series.
type CompletionRateSummary struct {
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// CompletionRateStatistic reports scheduled versus completed counts per day.
type CompletionRateStatistic struct {
	Type    StatisticType         `json:"type"`
	Data    []CompletionRatePoint `json:"data"`
	Summary CompletionRateSummary `json:"summary"`
}

// StatType implements Statistic.
func (CompletionRateStatistic) StatType() StatisticType { return StatCompletionRate }

// ThroughputPoint is one day of the throughput series.
type ThroughputPoint struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}

// ThroughputSummary totals the series.
type ThroughputSummary struct {
	Total   int     `json:"total"`
	Average float64 `json:"average"`
}

// ThroughputStatistic reports raw completion counts per day with no
// scheduling weighting.
type ThroughputStatistic struct {
	Type    StatisticType     `json:"type"`
	Data    []ThroughputPoint `json:"data"`
	Summary ThroughputSummary `json:"summary"`
}

// StatType implements Statistic.
func (ThroughputStatistic) StatType() StatisticType { return StatThroughput }

// CompletionRate aggregates the inclusive local date range [from, to]. For
// each day, scheduled sums every activity's target for that weekday and
// completed sums min(actual, target) per activity, so over-completion is
// capped. Days with nothing scheduled are omitted from the series. The
// caller supplies non-archived activities only.
func CompletionRate(activities []Activity, completions []Completion, from, to time.Time, loc *time.Location) CompletionRateStatistic {
	byDay := GroupByDay(completions, loc)
	stat := CompletionRateStatistic{Type: StatCompletionRate, Data: []CompletionRatePoint{}}

	for day := dayStart(from, loc); !day.After(dayStart(to, loc)); day = day.AddDate(0, 0, 1) {
		key := LocalDateKey(day, loc)
		weekday := day.Weekday()

		scheduled, completed := 0, 0
		for _, a := range activities {
			target := a.Schedule.TargetFor(weekday)
			if target == 0 {
				continue
			}
			scheduled += target
			actual := 0
			for _, c := range byDay[key] {
				if c.ActivityID == a.ID {
					actual++
				}
			}
			if actual > target {
				actual = target
			}
			completed += actual
		}
		if scheduled == 0 {
			continue
		}

		stat.Data = append(stat.Data, CompletionRatePoint{
			Date:      key,
			Scheduled: scheduled,
			Completed: completed,
			Rate:      round3(float64(completed) / float64(scheduled)),
		})
		stat.Summary.Scheduled += scheduled
		stat.Summary.Completed += completed
	}

	if stat.Summary.Scheduled > 0 {
		stat.Summary.Rate = round3(float64(stat.Summary.Completed) / float64(stat.Summary.Scheduled))
	}
	return stat
}

// Throughput counts completions of the given activities per day across the
// inclusive local date range [from, to], emitting every day including empty
// ones. The average is over the number of days in the range.
func Throughput(activities []Activity, completions []Completion, from, to time.Time, loc *time.Location) ThroughputStatistic {
	ids := make(map[string]struct{}, len(activities))
	for _, a := range activities {
		ids[a.ID] = struct{}{}
	}
	byDay := GroupByDay(completions, loc)
	stat := ThroughputStatistic{Type: StatThroughput, Data: []ThroughputPoint{}}

	days := 0
	for day := dayStart(from, loc); !day.After(dayStart(to, loc)); day = day.AddDate(0, 0, 1) {
		key := LocalDateKey(day, loc)
		completed := 0
		for _, c := range byDay[key] {
			if _, ok := ids[c.ActivityID]; ok {
				completed++
			}
		}
		stat.Data = append(stat.Data, ThroughputPoint{Date: key, Completed: completed})
		stat.Summary.Total += completed
		days++
	}

	if days > 0 {
		stat.Summary.Average = round2(float64(stat.Summary.Total) / float64(days))
	}
	return stat
}

// dayStart normalizes t to midnight of its local calendar day.
func dayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

func round2(x float64) float64 { return math.Round(x*100) / 100 }
